package engine

import (
	"context"
	"time"

	"github.com/damody/erps/internal/matchmaker"
	"github.com/damody/erps/internal/model"
	"go.uber.org/zap"
)

type gameStartNotice struct {
	GameID string   `json:"game_id"`
	Mode   string   `json:"mode"`
	TeamA  []string `json:"team_a"`
	TeamB  []string `json:"team_b"`
}

// handleTick runs the periodic scheduler pass: matchmaking per configured
// mode, prestart-timeout enforcement, dedup sweep and offline-user pruning.
// It is the only place besides handleRaw that mutates the model, and like
// handleRaw it runs entirely on the engine's single goroutine.
func (e *Engine) handleTick(ctx context.Context, now time.Time) {
	for mode, mc := range e.cfg.Modes {
		e.runMatchmakingPass(ctx, mode, mc, now)
	}
	e.checkPrestartTimeouts(ctx, now)
	e.dedup.Sweep(now)
	e.store.PruneOfflineSince(now.Add(-5*time.Minute), e.loggedOutAt)
}

func (e *Engine) runMatchmakingPass(ctx context.Context, mode string, mc ModeConfig, now time.Time) {
	snapshot := e.store.QueueSnapshot(mode, func(string) int { return mc.TeamSize })
	if len(snapshot) == 0 {
		return
	}
	members := func(roomID string) []string {
		r, ok := e.store.Rooms[roomID]
		if !ok {
			return nil
		}
		return r.Members
	}
	pairings := matchmaker.AssembleMatches(mode, snapshot, now, mc.TeamSize, e.cfg.ToleranceBase, e.cfg.ToleranceSlope, e.cfg.ToleranceCap, members, e.store.Blacklisted)
	for _, pairing := range pairings {
		e.promoteToPrestart(ctx, pairing, now)
	}
}

// promoteToPrestart dequeues every room in a freshly assembled pairing and
// moves it into RoomPrestart, grouped under one PendingMatch so later
// prestart acks can be checked against the whole match rather than just
// one room.
func (e *Engine) promoteToPrestart(ctx context.Context, pairing matchmaker.Pairing, now time.Time) {
	matchID := e.newID("match")
	pm := &model.PendingMatch{MatchID: matchID, Mode: pairing.Mode, SideA: pairing.SideA, SideB: pairing.SideB}
	e.store.PendingMatches[matchID] = pm

	deadline := now.Add(e.cfg.PrestartTimeout)
	for _, roomID := range pm.Rooms() {
		r, ok := e.store.Rooms[roomID]
		if !ok {
			continue
		}
		e.store.DequeueRoom(pairing.Mode, roomID)
		r.ResetPrestart()
		r.State = model.RoomPrestart
		r.GameID = matchID
		r.PrestartUntil = deadline
		e.publishJSON(ctx, "room/"+roomID+"/res/prestart", prestartResponse{RoomID: roomID, GameID: matchID, State: string(r.State), Acks: r.PrestartAcks})
	}
}

// checkMatchReady promotes a pending match to a real Game once every room
// in it has fully accepted prestart.
func (e *Engine) checkMatchReady(ctx context.Context, matchID string) {
	pm, ok := e.store.PendingMatches[matchID]
	if !ok {
		return
	}
	for _, roomID := range pm.Rooms() {
		r, ok := e.store.Rooms[roomID]
		if !ok || !r.AllAccepted() {
			return
		}
	}

	teamA := e.collectMembers(pm.SideA)
	teamB := e.collectMembers(pm.SideB)
	g := model.NewGame(matchID, pm.Mode, teamA, teamB)
	e.store.Games[matchID] = g

	for _, roomID := range pm.Rooms() {
		r, ok := e.store.Rooms[roomID]
		if !ok {
			continue
		}
		r.State = model.RoomInGame
	}
	delete(e.store.PendingMatches, matchID)
	e.publishJSON(ctx, "game/"+matchID+"/res/start_game", gameStartNotice{GameID: matchID, Mode: pm.Mode, TeamA: teamA, TeamB: teamB})
}

func (e *Engine) collectMembers(roomIDs []string) []string {
	var out []string
	for _, id := range roomIDs {
		if r, ok := e.store.Rooms[id]; ok {
			out = append(out, r.Members...)
		}
	}
	return out
}

// abortMatch reverts every sibling room in matchID back to idle (if it
// still has members); rooms are never re-queued automatically on abort —
// the master has to call start_queue again.
func (e *Engine) abortMatch(ctx context.Context, matchID, reason string) {
	if matchID == "" {
		return
	}
	pm, ok := e.store.PendingMatches[matchID]
	if !ok {
		return
	}
	e.logger.Info("match aborted", zap.String("match_id", matchID), zap.String("reason", reason))
	for _, roomID := range pm.Rooms() {
		r, ok := e.store.Rooms[roomID]
		if !ok {
			continue
		}
		r.ResetPrestart()
		if r.Size() == 0 {
			delete(e.store.Rooms, roomID)
			continue
		}
		r.State = model.RoomIdle
		e.publishJSON(ctx, "room/"+roomID+"/res/prestart", errEnvelope{Err: reason, Code: 409})
	}
	delete(e.store.PendingMatches, matchID)
}

func (e *Engine) checkPrestartTimeouts(ctx context.Context, now time.Time) {
	for matchID, pm := range e.store.PendingMatches {
		for _, roomID := range pm.Rooms() {
			r, ok := e.store.Rooms[roomID]
			if !ok {
				continue
			}
			if !r.PrestartUntil.IsZero() && now.After(r.PrestartUntil) {
				e.abortMatch(ctx, matchID, "prestart timed out")
				break
			}
		}
	}
}

// handleHeartbeat records a heartbeat arrival in heartbeatSeen, which the
// supervisor's backup watchdog consumes to decide whether the primary is
// still alive.
func (e *Engine) handleHeartbeat() {
	e.missedHeartbeats = 0
	e.heartbeatSeen.Store(true)
}

// handlePeerLogin notes that a peer (primary or backup) announced itself
// on the shared server channel; routing precedence is arbitrated by the
// supervisor, not the engine itself.
func (e *Engine) handlePeerLogin() {
	e.logger.Debug("peer server login observed")
}

// handleReset wipes all in-memory state. It is a bare debug topic with no
// category/id, reachable only on the "reset" literal topic.
func (e *Engine) handleReset() {
	e.logger.Warn("reset: wiping in-memory model")
	e.store.Reset()
	e.loggedOutAt = make(map[string]time.Time)
}
