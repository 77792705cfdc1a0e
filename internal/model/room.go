package model

import "time"

// RoomState is the state machine position of a Room. The legal transitions
// are exactly those in the event dispatch table; anything else is rejected
// by the event engine before this package is ever touched.
type RoomState string

const (
	RoomIdle     RoomState = "idle"
	RoomQueued   RoomState = "queued"
	RoomPrestart RoomState = "prestart"
	RoomInGame   RoomState = "ingame"
	RoomClosed   RoomState = "closed"
)

// Room holds a party of 1..N users sharing a queue ticket and, later, a
// match. Member order is preserved so "promote next oldest" on master
// departure is well defined.
type Room struct {
	RoomID        string
	Master        string
	Members       []string
	Mode          string
	State         RoomState
	PrestartAcks  map[string]bool
	CreatedAt     time.Time
	QueuedAt      time.Time
	PrestartUntil time.Time
	GameID        string
}

func NewRoom(roomID, master string) *Room {
	return &Room{
		RoomID:       roomID,
		Master:       master,
		Members:      []string{master},
		State:        RoomIdle,
		PrestartAcks: make(map[string]bool),
	}
}

func (r *Room) Size() int { return len(r.Members) }

func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (r *Room) AddMember(userID string) {
	r.Members = append(r.Members, userID)
}

// RemoveMember removes a member and, if that member was master, promotes
// the next-oldest remaining member. Returns the new master ("" if the room
// is now empty) and whether the room is now empty.
func (r *Room) RemoveMember(userID string) (newMaster string, empty bool) {
	idx := -1
	for i, m := range r.Members {
		if m == userID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return r.Master, len(r.Members) == 0
	}
	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)
	delete(r.PrestartAcks, userID)
	if len(r.Members) == 0 {
		r.Master = ""
		return "", true
	}
	if r.Master == userID {
		r.Master = r.Members[0]
	}
	return r.Master, false
}

// AllAccepted reports whether every member has acknowledged prestart.
func (r *Room) AllAccepted() bool {
	if len(r.PrestartAcks) < len(r.Members) {
		return false
	}
	for _, m := range r.Members {
		if !r.PrestartAcks[m] {
			return false
		}
	}
	return true
}

// AnyDeclined reports whether any member explicitly declined prestart.
func (r *Room) AnyDeclined() bool {
	for _, m := range r.Members {
		accepted, recorded := r.PrestartAcks[m]
		if recorded && !accepted {
			return true
		}
	}
	return false
}

func (r *Room) ResetPrestart() {
	r.PrestartAcks = make(map[string]bool)
	r.GameID = ""
	r.PrestartUntil = time.Time{}
}

// QueueEntry is the matchmaker's view of a queued Room. team_score_avg is
// recomputed from the contributing members' current rank in Mode every
// time Store.QueueSnapshot builds the entry.
type QueueEntry struct {
	RoomID       string
	Mode         string
	PartySize    int
	TeamScoreAvg float64
	EnteredAt    time.Time
}
