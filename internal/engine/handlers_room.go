package engine

import (
	"context"
	"encoding/json"

	"github.com/damody/erps/internal/codec"
	"github.com/damody/erps/internal/model"
)

type roomResponse struct {
	RoomID  string   `json:"room_id"`
	Master  string   `json:"master"`
	Members []string `json:"members"`
	State   string   `json:"state"`
	Mode    string   `json:"mode,omitempty"`
}

func roomView(r *model.Room) roomResponse {
	return roomResponse{RoomID: r.RoomID, Master: r.Master, Members: append([]string{}, r.Members...), State: string(r.State), Mode: r.Mode}
}

func (e *Engine) handleCreate(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	if u.InRoom() {
		return errResponse(model.ErrConflict("user %s already in room %s", ev.ID, u.RoomID))
	}
	roomID := e.newID("room")
	r := model.NewRoom(roomID, ev.ID)
	e.store.Rooms[roomID] = r
	u.RoomID = roomID
	return roomView(r)
}

func (e *Engine) handleClose(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may close room %s", r.RoomID))
	}
	if r.State == model.RoomPrestart || r.State == model.RoomInGame {
		return errResponse(model.ErrStateViolation("room %s cannot close while %s", r.RoomID, r.State))
	}
	if r.State == model.RoomQueued {
		e.store.DequeueRoom(r.Mode, r.RoomID)
	}
	for _, m := range r.Members {
		if mu, ok := e.store.Users[m]; ok {
			mu.RoomID = ""
		}
	}
	delete(e.store.Rooms, r.RoomID)
	return okResponse{OK: true}
}

func (e *Engine) handleStartQueue(ctx context.Context, ev *codec.Event) interface{} {
	var p startQueuePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("start_queue: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may start queueing room %s", r.RoomID))
	}
	if r.State != model.RoomIdle {
		return errResponse(model.ErrStateViolation("room %s is not idle (state %s)", r.RoomID, r.State))
	}
	if _, ok := e.cfg.Modes[p.Mode]; !ok {
		return errResponse(model.ErrDecode("unknown mode %q", p.Mode))
	}
	r.Mode = p.Mode
	r.State = model.RoomQueued
	r.QueuedAt = ev.DecodedAt
	e.store.EnqueueRoom(p.Mode, r.RoomID)
	return roomView(r)
}

func (e *Engine) handleCancelQueue(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may cancel queueing for room %s", r.RoomID))
	}
	if r.State != model.RoomQueued {
		return errResponse(model.ErrStateViolation("room %s is not queued", r.RoomID))
	}
	e.store.DequeueRoom(r.Mode, r.RoomID)
	r.State = model.RoomIdle
	return roomView(r)
}

// handleInvite forwards a notice to the target's member topic; no pending
// invite is modeled — the target simply calls Join against the inviting
// room once they see it, same as an unsolicited join.
func (e *Engine) handleInvite(ctx context.Context, ev *codec.Event) interface{} {
	var p invitePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("invite: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	if !u.InRoom() {
		return errResponse(model.ErrStateViolation("user %s has no room to invite into", ev.ID))
	}
	if _, ok := e.store.Users[p.TargetUserID]; !ok {
		return errResponse(model.ErrNotFound("target user %s not known", p.TargetUserID))
	}
	if e.store.Blacklisted(ev.ID, p.TargetUserID) {
		return errResponse(model.ErrConflict("user %s and %s have blacklisted each other", ev.ID, p.TargetUserID))
	}
	e.publishJSON(ctx, "member/"+p.TargetUserID+"/res/invite", struct {
		FromUserID string `json:"from_user_id"`
		RoomID     string `json:"room_id"`
	}{FromUserID: ev.ID, RoomID: u.RoomID})
	return okResponse{OK: true}
}

func (e *Engine) handleJoin(ctx context.Context, ev *codec.Event) interface{} {
	var p joinPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("join: %v", err))
	}
	return e.joinRoom(ctx, ev.ID, p.RoomID)
}

func (e *Engine) handleAcceptJoin(ctx context.Context, ev *codec.Event) interface{} {
	var p acceptJoinPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("accept_join: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may accept joins for room %s", r.RoomID))
	}
	return e.joinRoom(ctx, p.TargetUserID, r.RoomID)
}

func (e *Engine) joinRoom(ctx context.Context, userID, roomID string) interface{} {
	u, ok := e.store.Users[userID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", userID))
	}
	if u.InRoom() {
		return errResponse(model.ErrConflict("user %s already in room %s", userID, u.RoomID))
	}
	r, ok := e.store.Rooms[roomID]
	if !ok {
		return errResponse(model.ErrNotFound("room %s not found", roomID))
	}
	if r.State != model.RoomIdle {
		return errResponse(model.ErrStateViolation("room %s is not open to join (state %s)", roomID, r.State))
	}
	for _, m := range r.Members {
		if e.store.Blacklisted(userID, m) {
			return errResponse(model.ErrConflict("user %s is blacklisted by a member of room %s", userID, roomID))
		}
	}
	r.AddMember(userID)
	u.RoomID = roomID
	return roomView(r)
}

func (e *Engine) handleKick(ctx context.Context, ev *codec.Event) interface{} {
	var p kickPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("kick: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may kick from room %s", r.RoomID))
	}
	if p.TargetUserID == ev.ID {
		return errResponse(model.ErrStateViolation("master cannot kick themselves, use close or leave"))
	}
	if !r.HasMember(p.TargetUserID) {
		return errResponse(model.ErrNotFound("user %s is not a member of room %s", p.TargetUserID, r.RoomID))
	}
	e.removeFromRoom(ctx, r.RoomID, p.TargetUserID)
	return okResponse{OK: true}
}

func (e *Engine) handleLeave(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	if !u.InRoom() {
		return errResponse(model.ErrStateViolation("user %s has no room to leave", ev.ID))
	}
	e.removeFromRoom(ctx, u.RoomID, ev.ID)
	return okResponse{OK: true}
}

// removeFromRoom pulls userID out of roomID, promoting a new master,
// dequeuing if the room was queued, aborting its match if it was mid
// prestart, and deleting the room once it is empty.
func (e *Engine) removeFromRoom(ctx context.Context, roomID, userID string) {
	r, ok := e.store.Rooms[roomID]
	if !ok {
		return
	}
	if r.State == model.RoomQueued {
		e.store.DequeueRoom(r.Mode, r.RoomID)
		r.State = model.RoomIdle
	}
	if r.State == model.RoomPrestart {
		e.abortMatch(ctx, r.GameID, "member "+userID+" left room "+roomID+" during prestart")
	}
	if u, ok := e.store.Users[userID]; ok {
		u.RoomID = ""
	}
	_, empty := r.RemoveMember(userID)
	if empty {
		delete(e.store.Rooms, r.RoomID)
	}
}

type prestartResponse struct {
	RoomID      string          `json:"room_id"`
	GameID      string          `json:"game_id"`
	State       string          `json:"state"`
	Acks        map[string]bool `json:"acks"`
	AllAccepted bool            `json:"all_accepted"`
}

func (e *Engine) handlePrestart(ctx context.Context, ev *codec.Event) interface{} {
	var p prestartPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return errResponse(model.ErrDecode("prestart: %v", err))
	}
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.State != model.RoomPrestart {
		return errResponse(model.ErrStateViolation("room %s is not in prestart", r.RoomID))
	}
	r.PrestartAcks[ev.ID] = p.Accept

	gameID := r.GameID
	if !p.Accept {
		e.abortMatch(ctx, gameID, "member "+ev.ID+" declined prestart")
		return prestartResponse{RoomID: r.RoomID, GameID: gameID, State: string(r.State), Acks: r.PrestartAcks}
	}

	e.checkMatchReady(ctx, gameID)
	r2 := e.store.Rooms[r.RoomID]
	if r2 == nil {
		return prestartResponse{RoomID: r.RoomID, GameID: gameID, State: string(model.RoomInGame), Acks: nil, AllAccepted: true}
	}
	return prestartResponse{RoomID: r2.RoomID, GameID: r2.GameID, State: string(r2.State), Acks: r2.PrestartAcks, AllAccepted: r2.AllAccepted()}
}

func (e *Engine) handlePrestartGet(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	return prestartResponse{RoomID: r.RoomID, GameID: r.GameID, State: string(r.State), Acks: r.PrestartAcks, AllAccepted: r.AllAccepted()}
}

// handleStart lets a room's master bypass matchmaking and start a private
// match directly from the room's current members, split evenly into two
// teams in join order. Requires an even member count of at least two.
func (e *Engine) handleStart(ctx context.Context, ev *codec.Event) interface{} {
	u, ok := e.store.Users[ev.ID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s not known", ev.ID))
	}
	r, ok := e.store.Rooms[u.RoomID]
	if !ok {
		return errResponse(model.ErrNotFound("user %s has no room", ev.ID))
	}
	if r.Master != ev.ID {
		return errResponse(model.ErrStateViolation("only the room master may start room %s", r.RoomID))
	}
	if r.State != model.RoomIdle {
		return errResponse(model.ErrStateViolation("room %s is not idle (state %s)", r.RoomID, r.State))
	}
	if r.Size() < 2 || r.Size()%2 != 0 {
		return errResponse(model.ErrStateViolation("room %s needs an even member count of at least 2 to start privately", r.RoomID))
	}
	half := r.Size() / 2
	teamA := append([]string{}, r.Members[:half]...)
	teamB := append([]string{}, r.Members[half:]...)
	mode := r.Mode
	if mode == "" {
		mode = e.defaultMode()
	}
	gameID := e.newID("game")
	g := model.NewGame(gameID, mode, teamA, teamB)
	e.store.Games[gameID] = g
	r.GameID = gameID
	r.State = model.RoomInGame
	e.publishJSON(ctx, "game/"+gameID+"/res/start_game", gameStartNotice{GameID: gameID, Mode: mode, TeamA: teamA, TeamB: teamB})
	return gameStartNotice{GameID: gameID, Mode: mode, TeamA: teamA, TeamB: teamB}
}

func (e *Engine) defaultMode() string {
	for m := range e.cfg.Modes {
		return m
	}
	return ""
}
