package engine

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/damody/erps/internal/codec"
	"github.com/damody/erps/internal/model"
	"github.com/damody/erps/internal/sqlworker"
)

// userUpsertExec writes the row the login event describes. ON DUPLICATE KEY
// UPDATE covers a returning user without a separate existence check.
func userUpsertExec(userID, hero string, honor int) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO user (userid, status, hero, honor) VALUES (?, 'online', ?, ?)
			 ON DUPLICATE KEY UPDATE status = 'online', hero = VALUES(hero), honor = VALUES(honor)`,
			userID, hero, honor)
		return err
	}
}

// userStatusExec marks a user offline on logout.
func userStatusExec(userID string) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `UPDATE user SET status = 'offline' WHERE userid = ?`, userID)
		return err
	}
}

// replayExec records a replay reference verbatim; the payload's contents
// are opaque to this core (replay storage itself is an external
// collaborator), so it is kept as-is in a JSON column rather than parsed.
func replayExec(refID, kind string, payload []byte) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO replay_log (ref_id, kind, payload, uploaded_at) VALUES (?, ?, ?, NOW())`,
			refID, kind, payload)
		return err
	}
}

type loginResponse struct {
	UserID string                      `json:"user_id"`
	Hero   string                      `json:"hero"`
	Honor  int                         `json:"honor"`
	Rank   map[string]*model.ScoreInfo `json:"rank"`
}

// handleLogin creates the in-memory User on first sight, or marks an
// existing one back online, then schedules the upsert asynchronously —
// the caller never waits on the database round trip.
func (e *Engine) handleLogin(ctx context.Context, ev *codec.Event) interface{} {
	var p loginPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("login: %v", err))
	}

	u, existed := e.store.Users[ev.ID]
	if !existed {
		u = model.NewUser(ev.ID, e.modeNames())
		e.store.Users[ev.ID] = u
	}
	u.Online = true
	u.LoggedInAt = ev.DecodedAt
	if p.Hero != "" {
		u.Hero = p.Hero
	}
	delete(e.loggedOutAt, ev.ID)

	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpUserUpsert, Desc: "user_upsert:" + ev.ID, Exec: userUpsertExec(u.UserID, u.Hero, u.Honor)})

	return loginResponse{UserID: u.UserID, Hero: u.Hero, Honor: u.Honor, Rank: u.Rank}
}

type okResponse struct {
	OK bool `json:"ok"`
}

// handleLogout marks the user offline, pulls them out of their room if
// they were in one — per the lifecycle notes, logging out also leaves the
// room rather than leaving a ghost member behind — and starts the grace
// period before the in-memory record is pruned.
func (e *Engine) handleLogout(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	u.Online = false
	e.loggedOutAt[ev.ID] = ev.DecodedAt

	if u.InRoom() {
		e.removeFromRoom(ctx, u.RoomID, ev.ID)
	}

	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpUserStatus, Desc: "user_status:" + ev.ID, Exec: userStatusExec(ev.ID)})

	return okResponse{OK: true}
}

func (e *Engine) handleChooseHero(ctx context.Context, ev *codec.Event) interface{} {
	var p chooseHeroPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("choose_hero: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	u.Hero = p.Hero
	return okResponse{OK: true}
}

type statusResponse struct {
	UserID string                      `json:"user_id"`
	Online bool                        `json:"online"`
	RoomID string                      `json:"room_id,omitempty"`
	Rank   map[string]*model.ScoreInfo `json:"rank"`
}

func (e *Engine) handleStatus(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	return statusResponse{UserID: u.UserID, Online: u.Online, RoomID: u.RoomID, Rank: u.Rank}
}

// handleReconnect re-marks a user online without resetting any room/queue
// state, covering the brief-disconnect case distinct from a full Logout.
func (e *Engine) handleReconnect(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	u.Online = true
	delete(e.loggedOutAt, ev.ID)
	return statusResponse{UserID: u.UserID, Online: u.Online, RoomID: u.RoomID, Rank: u.Rank}
}

type blackListResponse struct {
	Targets []string `json:"targets"`
}

func (e *Engine) handleAddBlackList(ctx context.Context, ev *codec.Event) interface{} {
	var p blackListPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("add_black_list: %v", err))
	}
	if _, ok := e.store.Users[ev.ID]; !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	e.store.AddBlackList(ev.ID, p.TargetUserID)
	return okResponse{OK: true}
}

func (e *Engine) handleQueryBlackList(ctx context.Context, ev *codec.Event) interface{} {
	set := e.store.BlackLists[ev.ID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return blackListResponse{Targets: out}
}

func (e *Engine) handleRemoveBlackList(ctx context.Context, ev *codec.Event) interface{} {
	var p blackListPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("remove_black_list: %v", err))
	}
	e.store.RemoveBlackList(ev.ID, p.TargetUserID)
	return okResponse{OK: true}
}

// handleReplay acknowledges a replay-file reference without inspecting its
// contents; persisting and serving the replay itself belongs to an
// external collaborator, per the design scoping of this core.
func (e *Engine) handleReplay(ctx context.Context, ev *codec.Event) interface{} {
	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpReplayResult, Desc: "replay:" + ev.ID, Exec: replayExec(ev.ID, "replay", ev.Payload)})
	return okResponse{OK: true}
}

func (e *Engine) modeNames() []string {
	out := make([]string, 0, len(e.cfg.Modes))
	for m := range e.cfg.Modes {
		out = append(out, m)
	}
	return out
}
