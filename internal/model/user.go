package model

import "time"

// ScoreInfo is the per-mode rank entry in User.Rank. New modes are seeded
// with Score 1000 and zero wins/losses at login, per the rating engine's
// starting point.
type ScoreInfo struct {
	Score  int `json:"score"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

const defaultHonor = 50
const defaultScore = 1000

// User is the event engine's sole in-memory representation of an account.
// It is mutated only from the event engine goroutine; no other component
// ever holds a pointer to one.
type User struct {
	UserID    string
	Hero      string
	Honor     int
	Online    bool
	Rank      map[string]*ScoreInfo // mode name -> rating
	RoomID    string                // "" if not currently in a room
	BlackList map[string]struct{}
	LoggedInAt time.Time
}

// NewUser creates a fresh in-memory User seeded for the given modes. It
// does not touch the database; the caller schedules the upsert separately.
func NewUser(userID string, modes []string) *User {
	u := &User{
		UserID:    userID,
		Honor:     defaultHonor,
		Online:    true,
		Rank:      make(map[string]*ScoreInfo, len(modes)),
		BlackList: make(map[string]struct{}),
	}
	for _, m := range modes {
		u.Rank[m] = &ScoreInfo{Score: defaultScore}
	}
	return u
}

// EnsureMode lazily seeds a rank entry the first time a user queues in a
// mode the server didn't know about at login (e.g. newly configured mode).
func (u *User) EnsureMode(mode string) *ScoreInfo {
	if si, ok := u.Rank[mode]; ok {
		return si
	}
	si := &ScoreInfo{Score: defaultScore}
	u.Rank[mode] = si
	return si
}

func (u *User) InRoom() bool { return u.RoomID != "" }

func (u *User) IsBlacklisted(other string) bool {
	_, ok := u.BlackList[other]
	return ok
}

func (u *User) AddBlackList(other string) { u.BlackList[other] = struct{}{} }

func (u *User) RemoveBlackList(other string) { delete(u.BlackList, other) }
