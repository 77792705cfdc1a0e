package model

import "time"

// PlayerStat is the per-user combat record attached to a finished Game.
type PlayerStat struct {
	Kills   int `json:"kills"`
	Deaths  int `json:"deaths"`
	Assists int `json:"assists"`
}

// Game is created on successful prestart convergence and archived once
// GameOver has applied scoring exactly once (see Result below).
type Game struct {
	GameID    string
	Mode      string
	TeamA     []string
	TeamB     []string
	StartedAt time.Time
	EndedAt   time.Time

	Bans    map[string][]string // userID -> banned hero/option ids
	Choices map[string]string   // userID -> chosen hero/option id
	Stats   map[string]PlayerStat

	// Result is nil until GameOver; 0 = team A won, 1 = team B won.
	Result *int
	scored bool
}

func NewGame(gameID, mode string, teamA, teamB []string) *Game {
	return &Game{
		GameID:    gameID,
		Mode:      mode,
		TeamA:     append([]string{}, teamA...),
		TeamB:     append([]string{}, teamB...),
		StartedAt: time.Now(),
		Bans:      make(map[string][]string),
		Choices:   make(map[string]string),
		Stats:     make(map[string]PlayerStat),
	}
}

func (g *Game) AllMembers() []string {
	out := make([]string, 0, len(g.TeamA)+len(g.TeamB))
	out = append(out, g.TeamA...)
	out = append(out, g.TeamB...)
	return out
}

// SetResult records the winner exactly once. Calling it a second time is a
// StateViolation: once result is set, scoring is applied exactly once and
// the Game is archived.
func (g *Game) SetResult(winnerTeam int) error {
	if g.Result != nil {
		return ErrStateViolation("game %s already has a result", g.GameID)
	}
	g.Result = &winnerTeam
	g.EndedAt = time.Now()
	return nil
}

func (g *Game) MarkScored() { g.scored = true }
func (g *Game) Scored() bool { return g.scored }
