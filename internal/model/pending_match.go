package model

// PendingMatch groups the rooms the matchmaker paired together while they
// move through Prestart. Room.GameID holds MatchID during this window;
// once every room accepts, the event engine creates the real Game under
// the same id and the rooms transition to RoomInGame.
type PendingMatch struct {
	MatchID string
	Mode    string
	SideA   []string // room ids
	SideB   []string // room ids
}

// Rooms returns every room id in the match, side A then side B.
func (m *PendingMatch) Rooms() []string {
	out := make([]string, 0, len(m.SideA)+len(m.SideB))
	out = append(out, m.SideA...)
	out = append(out, m.SideB...)
	return out
}
