package engine

import (
	"context"
	"testing"
	"time"

	"github.com/damody/erps/internal/codec"
	"github.com/damody/erps/internal/model"
	"github.com/damody/erps/internal/outbound"
	"github.com/damody/erps/internal/sqlworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := model.NewStore()
	out := outbound.New(outbound.Config{BrokerURL: "tcp://127.0.0.1:1883"}, zap.NewNop())
	sql := sqlworker.New(sqlworker.Config{DSN: "test"}, zap.NewNop())

	counter := 0
	idGen := func() string {
		counter++
		return "id" + string(rune('0'+counter))
	}

	return New(Config{
		Modes: map[string]ModeConfig{"ng1v1": {TeamSize: 1, Ranked: true}},
	}, store, out, sql, zap.NewNop(), idGen)
}

func decodeEvent(t *testing.T, kind codec.EventKind, id string, payload string) *codec.Event {
	t.Helper()
	ev, err := codec.Decode(kind, id, "test/topic", []byte(payload))
	require.NoError(t, err)
	return ev
}

func TestHandleLogin_CreatesUserWithSeededRank(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "alice", `{"hero":"Titan"}`))

	login, ok := resp.(loginResponse)
	require.True(t, ok)
	assert.Equal(t, "alice", login.UserID)
	assert.Equal(t, "Titan", login.Hero)
	assert.Equal(t, 1000, login.Rank["ng1v1"].Score)
}

func TestCreateJoinLeave_RoomLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "alice", `{}`))
	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "bob", `{}`))

	createResp := e.dispatch(ctx, codec.KindCreate, decodeEvent(t, codec.KindCreate, "alice", `{}`))
	room, ok := createResp.(roomResponse)
	require.True(t, ok)
	assert.Equal(t, "alice", room.Master)

	joinPayload := `{"room_id":"` + room.RoomID + `"}`
	joinResp := e.dispatch(ctx, codec.KindJoin, decodeEvent(t, codec.KindJoin, "bob", joinPayload))
	joined, ok := joinResp.(roomResponse)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"alice", "bob"}, joined.Members)
	assert.Equal(t, "bob", e.store.Users["bob"].RoomID)

	leaveResp := e.dispatch(ctx, codec.KindLeave, decodeEvent(t, codec.KindLeave, "bob", `{}`))
	assert.Equal(t, okResponse{OK: true}, leaveResp)
	assert.Equal(t, "", e.store.Users["bob"].RoomID)
	assert.False(t, e.store.Rooms[room.RoomID].HasMember("bob"))
}

func TestJoin_RejectsBlacklistedRoom(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "alice", `{}`))
	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "bob", `{}`))
	e.store.AddBlackList("alice", "bob")

	createResp := e.dispatch(ctx, codec.KindCreate, decodeEvent(t, codec.KindCreate, "alice", `{}`)).(roomResponse)
	joinPayload := `{"room_id":"` + createResp.RoomID + `"}`
	resp := e.dispatch(ctx, codec.KindJoin, decodeEvent(t, codec.KindJoin, "bob", joinPayload))

	errResp, ok := resp.(errEnvelope)
	require.True(t, ok)
	assert.NotEmpty(t, errResp.Err)
}

func TestGameOver_AppliesScoringExactlyOnce(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "alice", `{}`))
	e.dispatch(ctx, codec.KindLogin, decodeEvent(t, codec.KindLogin, "bob", `{}`))

	g := model.NewGame("g1", "ng1v1", []string{"alice"}, []string{"bob"})
	e.store.Games["g1"] = g

	resp := e.dispatch(ctx, codec.KindGameOver, decodeEvent(t, codec.KindGameOver, "g1", `{"winner":0}`))
	over, ok := resp.(gameOverResponse)
	require.True(t, ok)
	assert.Equal(t, 0, over.Winner)
	assert.True(t, g.Scored())

	second := e.dispatch(ctx, codec.KindGameOver, decodeEvent(t, codec.KindGameOver, "g1", `{"winner":0}`))
	_, isErr := second.(errEnvelope)
	assert.True(t, isErr)
}

func TestDedup_ReplaysCachedResponseOnRedelivery(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()

	e.store.Users["alice"] = model.NewUser("alice", nil)
	ev, err := codec.Decode(codec.KindChooseHero, "alice", "member/alice/send/choose_hero", []byte(`{"hero":"Titan","request_id":"req1"}`))
	require.NoError(t, err)
	ev.DecodedAt = now

	e.handleRaw(context.Background(), InboundMessage{Topic: ev.Topic, Payload: ev.Payload})
	assert.Equal(t, "Titan", e.store.Users["alice"].Hero)

	e.store.Users["alice"].Hero = "Changed"
	e.handleRaw(context.Background(), InboundMessage{Topic: ev.Topic, Payload: ev.Payload})
	assert.Equal(t, "Changed", e.store.Users["alice"].Hero, "dedup only replays the cached response, it does not re-run the handler")
}
