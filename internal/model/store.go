package model

import "time"

// Store is the entire live world: users, rooms, per-mode queues, games,
// catalogs and the blacklist. The event engine is the only component that
// ever touches it, and it touches it synchronously from its single
// goroutine — Store itself does no locking, because none is needed.
type Store struct {
	Users map[string]*User
	Rooms map[string]*Room
	Games map[string]*Game

	// Queues is mode -> FIFO ordered room ids currently queued in that mode.
	Queues map[string][]string

	Equipment     map[string]*Equipment
	UserEquipment map[string]map[string]*UserEquipment // userID -> equID -> record
	Options       map[string]*Option

	// userID -> set of userIDs that user has blacklisted.
	BlackLists map[string]map[string]struct{}

	// PendingMatches is keyed by MatchID; entries are removed once every
	// room in the match has either reached RoomInGame or aborted prestart.
	PendingMatches map[string]*PendingMatch
}

func NewStore() *Store {
	return &Store{
		Users:          make(map[string]*User),
		Rooms:          make(map[string]*Room),
		Games:          make(map[string]*Game),
		Queues:         make(map[string][]string),
		Equipment:      make(map[string]*Equipment),
		UserEquipment:  make(map[string]map[string]*UserEquipment),
		Options:        make(map[string]*Option),
		BlackLists:     make(map[string]map[string]struct{}),
		PendingMatches: make(map[string]*PendingMatch),
	}
}

func (s *Store) EnqueueRoom(mode, roomID string) {
	s.Queues[mode] = append(s.Queues[mode], roomID)
}

// DequeueRoom removes roomID from mode's queue, preserving FIFO order of
// the remainder.
func (s *Store) DequeueRoom(mode, roomID string) {
	q := s.Queues[mode]
	for i, id := range q {
		if id == roomID {
			s.Queues[mode] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// QueueSnapshot returns a FIFO-ordered copy of mode's queue as QueueEntry
// values, resolved against the live Room/User state; tie-breaking by
// (entered_at, room_id) is left to the matchmaker's sort. Rooms that
// have disappeared (e.g. closed out from under the queue) are skipped.
func (s *Store) QueueSnapshot(mode string, teamSize func(string) int) []*QueueEntry {
	ids := s.Queues[mode]
	out := make([]*QueueEntry, 0, len(ids))
	for _, id := range ids {
		r, ok := s.Rooms[id]
		if !ok || r.State != RoomQueued {
			continue
		}
		out = append(out, &QueueEntry{
			RoomID:       r.RoomID,
			Mode:         mode,
			PartySize:    r.Size(),
			TeamScoreAvg: s.roomScoreAvg(r, mode),
			EnteredAt:    r.QueuedAt,
		})
	}
	return out
}

func (s *Store) roomScoreAvg(r *Room, mode string) float64 {
	if len(r.Members) == 0 {
		return 0
	}
	total := 0
	for _, uid := range r.Members {
		u, ok := s.Users[uid]
		if !ok {
			continue
		}
		si := u.EnsureMode(mode)
		total += si.Score
	}
	return float64(total) / float64(len(r.Members))
}

// Blacklisted reports whether a and b exclude each other, checked
// symmetrically as the spec requires at match-admission time.
func (s *Store) Blacklisted(a, b string) bool {
	if set, ok := s.BlackLists[a]; ok {
		if _, ok := set[b]; ok {
			return true
		}
	}
	if set, ok := s.BlackLists[b]; ok {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}

func (s *Store) AddBlackList(userID, target string) {
	if s.BlackLists[userID] == nil {
		s.BlackLists[userID] = make(map[string]struct{})
	}
	s.BlackLists[userID][target] = struct{}{}
}

func (s *Store) RemoveBlackList(userID, target string) {
	if set, ok := s.BlackLists[userID]; ok {
		delete(set, target)
	}
}

// Reset wipes all volatile state. Used only by the debug Reset() event.
func (s *Store) Reset() {
	*s = *NewStore()
}

// PruneOfflineSince removes in-memory Users who logged out before cutoff,
// implementing "in-memory copy removed after grace period following
// logout" from the lifecycle notes. Online users are never pruned.
func (s *Store) PruneOfflineSince(cutoff time.Time, loggedOutAt map[string]time.Time) {
	for uid, t := range loggedOutAt {
		if t.Before(cutoff) {
			if u, ok := s.Users[uid]; ok && !u.Online {
				delete(s.Users, uid)
			}
			delete(loggedOutAt, uid)
		}
	}
}
