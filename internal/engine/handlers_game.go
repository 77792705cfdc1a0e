package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/damody/erps/internal/codec"
	"github.com/damody/erps/internal/model"
	"github.com/damody/erps/internal/rating"
	"github.com/damody/erps/internal/sqlworker"
	"go.uber.org/zap"
)

// scoreUpdateExec upserts one user's cumulative mode record.
func scoreUpdateExec(userID, mode string, score, wins, losses int) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO score (userid, mode, score, wins, losses) VALUES (?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE score = VALUES(score), wins = VALUES(wins), losses = VALUES(losses)`,
			userID, mode, score, wins, losses)
		return err
	}
}

// gameInsertExec archives a finished game's result row. team_a/team_b are
// stored as comma-joined user_id lists, matching the schema's plain string
// columns rather than a normalized member table.
func gameInsertExec(g *model.Game) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO game (game_id, mode, team_a, team_b, winner, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.GameID, g.Mode, strings.Join(g.TeamA, ","), strings.Join(g.TeamB, ","), *g.Result, g.StartedAt, g.EndedAt)
		return err
	}
}

// catalogCrudExec forwards a manager verb's raw payload into the matching
// catalog table; the CRUD payload semantics stay the manager-owning
// collaborator's concern per the routing-only scoping of this core, but the
// row itself is still written rather than discarded.
func catalogCrudExec(table, idColumn, id string, payload []byte, deleted bool) func(ctx context.Context, db *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		if deleted {
			_, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+idColumn+" = ?", id)
			return err
		}
		_, err := db.ExecContext(ctx,
			"INSERT INTO "+table+" ("+idColumn+", payload, updated_at) VALUES (?, ?, NOW())"+
				" ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)",
			id, payload)
		return err
	}
}

type gameInfoResponse struct {
	GameID string                        `json:"game_id"`
	Mode   string                        `json:"mode"`
	TeamA  []string                      `json:"team_a"`
	TeamB  []string                      `json:"team_b"`
	Result *int                          `json:"result,omitempty"`
	Stats  map[string]model.PlayerStat `json:"stats,omitempty"`
}

func gameView(g *model.Game) gameInfoResponse {
	return gameInfoResponse{GameID: g.GameID, Mode: g.Mode, TeamA: g.TeamA, TeamB: g.TeamB, Result: g.Result, Stats: g.Stats}
}

func (e *Engine) gameByID(gameID string) (*model.Game, *model.EngineError) {
	g, ok := e.store.Games[gameID]
	if !ok {
		return nil, model.ErrNotFound("game %s not found", gameID)
	}
	return g, nil
}

// handleStartGame acknowledges a client has finished loading into a game
// whose id was announced by promoteToPrestart/checkMatchReady.
func (e *Engine) handleStartGame(ctx context.Context, ev *codec.Event) interface{} {
	g, err := e.gameByID(ev.ID)
	if err != nil {
		return errResponse(err)
	}
	return gameView(g)
}

func (e *Engine) handleGameClose(ctx context.Context, ev *codec.Event) interface{} {
	g, err := e.gameByID(ev.ID)
	if err != nil {
		return errResponse(err)
	}
	if g.Scored() {
		return errResponse(model.ErrStateViolation("game %s already scored", g.GameID))
	}
	e.releaseGameRooms(g)
	delete(e.store.Games, g.GameID)
	return okResponse{OK: true}
}

func (e *Engine) handleGameInfo(ctx context.Context, ev *codec.Event) interface{} {
	g, err := e.gameByID(ev.ID)
	if err != nil {
		return errResponse(err)
	}
	return gameView(g)
}

func (e *Engine) handleChoose(ctx context.Context, ev *codec.Event) interface{} {
	var p choosePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("choose: %v", err))
	}
	g, err := e.gameByID(ev.ID)
	if err != nil {
		return errResponse(err)
	}
	g.Choices[ev.ID] = p.ChoiceID
	return okResponse{OK: true}
}

func (e *Engine) handleBan(ctx context.Context, ev *codec.Event) interface{} {
	var p banPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("ban: %v", err))
	}
	g, err := e.gameByID(ev.ID)
	if err != nil {
		return errResponse(err)
	}
	g.Bans[ev.ID] = append(g.Bans[ev.ID], p.BanID)
	return okResponse{OK: true}
}

// handleGameLeave records a mid-game departure. It does not forfeit the
// match on its own — GameOver is still the only place scoring is applied.
// The departure is only logged; game_info does not reflect it.
func (e *Engine) handleGameLeave(ctx context.Context, ev *codec.Event) interface{} {
	if _, err := e.gameByID(ev.ID); err != nil {
		return errResponse(err)
	}
	e.logger.Info("player left game mid-match", zap.String("game_id", ev.ID))
	return okResponse{OK: true}
}

// handleExit returns a player's room to idle after their game has ended.
func (e *Engine) handleExit(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	if r, ok := e.store.Rooms[u.RoomID]; ok && r.State == model.RoomInGame {
		r.State = model.RoomIdle
		r.GameID = ""
		r.ResetPrestart()
	}
	return okResponse{OK: true}
}

// handleGameOver applies the Elo rating update exactly once per game, per
// the scoring-applied-exactly-once invariant enforced by Game.SetResult.
func (e *Engine) handleGameOver(ctx context.Context, ev *codec.Event) interface{} {
	var p gameOverPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("game_over: %v", err))
	}
	g, gerr := e.gameByID(ev.ID)
	if gerr != nil {
		return errResponse(gerr)
	}
	if p.Winner != 0 && p.Winner != 1 {
		return errResponse(model.ErrDecode("game_over: winner must be 0 or 1, got %d", p.Winner))
	}
	if err := g.SetResult(p.Winner); err != nil {
		return errResponse(err.(*model.EngineError))
	}
	for uid, st := range p.Stats {
		g.Stats[uid] = model.PlayerStat{Kills: st.Kills, Deaths: st.Deaths, Assists: st.Assists}
	}

	teamA := rating.TeamResult{}
	teamB := rating.TeamResult{}
	for _, uid := range g.TeamA {
		teamA[uid] = e.userScore(uid, g.Mode)
	}
	for _, uid := range g.TeamB {
		teamB[uid] = e.userScore(uid, g.Mode)
	}
	deltasA, deltasB := rating.Update(teamA, teamB, p.Winner == 0)

	applyDeltas := func(deltas []rating.Delta) {
		for _, d := range deltas {
			u, ok := e.store.Users[d.UserID]
			if !ok {
				continue
			}
			si := u.EnsureMode(g.Mode)
			si.Score += d.Points
			if si.Score < 0 {
				si.Score = 0
			}
			if d.Won {
				si.Wins++
			} else {
				si.Losses++
			}
			e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpScoreUpdate, Desc: "score:" + d.UserID + ":" + g.Mode, Exec: scoreUpdateExec(d.UserID, g.Mode, si.Score, si.Wins, si.Losses)})
		}
	}
	applyDeltas(deltasA)
	applyDeltas(deltasB)
	g.MarkScored()

	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpGameInsert, Desc: "game_insert:" + g.GameID, Exec: gameInsertExec(g)})
	e.releaseGameRooms(g)

	return gameOverResponse{GameID: g.GameID, Winner: p.Winner, DeltasA: deltasA, DeltasB: deltasB}
}

type gameOverResponse struct {
	GameID  string          `json:"game_id"`
	Winner  int             `json:"winner"`
	DeltasA []rating.Delta `json:"deltas_a"`
	DeltasB []rating.Delta `json:"deltas_b"`
}

func (e *Engine) userScore(userID, mode string) int {
	u, ok := e.store.Users[userID]
	if !ok {
		return 1000
	}
	return u.EnsureMode(mode).Score
}

// releaseGameRooms returns every room that was part of g back to idle,
// whether the game ended by GameOver or an early GameClose.
func (e *Engine) releaseGameRooms(g *model.Game) {
	for _, uid := range g.AllMembers() {
		u, ok := e.store.Users[uid]
		if !ok {
			continue
		}
		if r, ok := e.store.Rooms[u.RoomID]; ok && r.GameID == g.GameID {
			r.State = model.RoomIdle
			r.GameID = ""
			r.ResetPrestart()
		}
	}
}

func (e *Engine) handleUpload(ctx context.Context, ev *codec.Event) interface{} {
	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpReplayResult, Desc: "upload:" + ev.ID, Exec: replayExec(ev.ID, "upload", ev.Payload)})
	return okResponse{OK: true}
}

// handleResultUpload is distinct from handleUpload: upload stores the raw
// replay file reference, result_upload stores the derived per-player stat
// line that GameOver did not already capture. Both are forwarded as the
// same OpKind — the distinction lives in Desc for persistence logging and
// in replay_log's kind column — since this core does not interpret either payload's contents.
func (e *Engine) handleResultUpload(ctx context.Context, ev *codec.Event) interface{} {
	e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpReplayResult, Desc: "result_upload:" + ev.ID, Exec: replayExec(ev.ID, "result_upload", ev.Payload)})
	return okResponse{OK: true}
}

func (e *Engine) handleRankgameStatus(ctx context.Context, ev *codec.Event) interface{} {
	out := make(map[string]int, len(e.store.Queues))
	for mode, q := range e.store.Queues {
		out[mode] = len(q)
	}
	return rankgameStatusResponse{QueueLengths: out}
}

type rankgameStatusResponse struct {
	QueueLengths map[string]int `json:"queue_lengths"`
}

// handleManagerOp forwards every catalog/manager verb: the CRUD payload
// semantics stay the manager-owning collaborator's concern (only routing is
// specified here), but the in-memory catalog and the catalog table both
// get the write so neither silently diverges from the other.
func (e *Engine) handleManagerOp(ctx context.Context, kind codec.EventKind, ev *codec.Event) interface{} {
	var data map[string]interface{}
	_ = json.Unmarshal(ev.Payload, &data)

	switch kind {
	case codec.KindEquTest:
		return okResponse{OK: true}

	case codec.KindNewEqu, codec.KindModifyEqu:
		e.store.Equipment[ev.ID] = &model.Equipment{EquID: ev.ID, Data: data}
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpEquipmentCRUD, Desc: "equ_upsert:" + ev.ID,
			Exec: catalogCrudExec("equipment_catalog", "equ_id", ev.ID, ev.Payload, false)})

	case codec.KindDeleteEqu:
		delete(e.store.Equipment, ev.ID)
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpEquipmentCRUD, Desc: "equ_delete:" + ev.ID,
			Exec: catalogCrudExec("equipment_catalog", "equ_id", ev.ID, nil, true)})

	case codec.KindInsertEqu, codec.KindModifyUserEqu:
		var p struct {
			EquID string `json:"equ_id"`
		}
		_ = json.Unmarshal(ev.Payload, &p)
		if e.store.UserEquipment[ev.ID] == nil {
			e.store.UserEquipment[ev.ID] = make(map[string]*model.UserEquipment)
		}
		e.store.UserEquipment[ev.ID][p.EquID] = &model.UserEquipment{UserID: ev.ID, EquID: p.EquID, Data: data}
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpEquipmentCRUD, Desc: "user_equ_upsert:" + ev.ID + ":" + p.EquID,
			Exec: catalogCrudExec("user_equipment", "userid_equid", ev.ID+":"+p.EquID, ev.Payload, false)})

	case codec.KindDeleteUserEqu:
		var p struct {
			EquID string `json:"equ_id"`
		}
		_ = json.Unmarshal(ev.Payload, &p)
		delete(e.store.UserEquipment[ev.ID], p.EquID)
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpEquipmentCRUD, Desc: "user_equ_delete:" + ev.ID + ":" + p.EquID,
			Exec: catalogCrudExec("user_equipment", "userid_equid", ev.ID+":"+p.EquID, nil, true)})

	case codec.KindNewOption, codec.KindModifyOption:
		e.store.Options[ev.ID] = &model.Option{OptionID: ev.ID, Data: data}
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpOptionCRUD, Desc: "option_upsert:" + ev.ID,
			Exec: catalogCrudExec("option_catalog", "option_id", ev.ID, ev.Payload, false)})

	case codec.KindDeleteOption:
		delete(e.store.Options, ev.ID)
		e.sql.Submit(sqlworker.Op{Kind: sqlworker.OpOptionCRUD, Desc: "option_delete:" + ev.ID,
			Exec: catalogCrudExec("option_catalog", "option_id", ev.ID, nil, true)})
	}
	return okResponse{OK: true}
}
