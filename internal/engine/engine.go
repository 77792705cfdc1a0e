// Package engine is the single owner of the live world model. It receives
// a tagged event stream (inbound MQTT publishes plus a synthetic Tick) and
// runs every mutation from one goroutine, per the 4.E/4.G design: no model
// field is ever observed from any other goroutine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/damody/erps/internal/codec"
	"github.com/damody/erps/internal/dedup"
	"github.com/damody/erps/internal/model"
	"github.com/damody/erps/internal/outbound"
	"github.com/damody/erps/internal/sqlworker"
	"go.uber.org/zap"
)

// InboundMessage is a raw MQTT publish handed to the engine by the router.
type InboundMessage struct {
	Topic   string
	Payload []byte
}

// ModeConfig describes one configured game mode.
type ModeConfig struct {
	TeamSize int
	Ranked   bool
}

// Config is the engine's static configuration, resolved once at startup.
type Config struct {
	Modes               map[string]ModeConfig
	TickInterval        time.Duration
	PrestartTimeout      time.Duration
	DedupWindow         time.Duration
	ToleranceBase       float64
	ToleranceSlope      float64
	ToleranceCap        float64
}

// Engine is the event engine. It is not safe for concurrent use — by
// design, only the goroutine running Run ever touches it.
type Engine struct {
	cfg    Config
	store  *model.Store
	dedup  *dedup.Window
	out    *outbound.Pool
	sql    *sqlworker.Worker
	logger *zap.Logger

	inbound chan InboundMessage

	isBackup         atomic.Bool
	missedHeartbeats int
	heartbeatSeen    atomic.Bool // set by handleHeartbeat, consumed by the supervisor's watchdog goroutine
	loggedOutAt      map[string]time.Time
	idGen            func() string
}

func New(cfg Config, store *model.Store, out *outbound.Pool, sql *sqlworker.Worker, logger *zap.Logger, idGen func() string) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.PrestartTimeout <= 0 {
		cfg.PrestartTimeout = 10 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 60 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		dedup:       dedup.New(cfg.DedupWindow),
		out:         out,
		sql:         sql,
		logger:      logger.With(zap.String("component", "event_engine")),
		inbound:     make(chan InboundMessage, 10000),
		loggedOutAt: make(map[string]time.Time),
		idGen:       idGen,
	}
}

// SetBackup marks this instance as a standby (true) that tracks heartbeats
// only, or as the active instance (false). The supervisor calls
// SetBackup(false) when it promotes a backup.
func (e *Engine) SetBackup(backup bool) { e.isBackup.Store(backup) }

// ConsumeHeartbeatSeen reports whether a heartbeat arrived since the last
// call, resetting the flag. Safe for the supervisor's watchdog goroutine
// to call concurrently with Run: it only ever touches the atomic flag,
// never the model.
func (e *Engine) ConsumeHeartbeatSeen() bool {
	return e.heartbeatSeen.Swap(false)
}

// Inbound returns the channel the router publishes raw inbound messages
// onto; classification and decoding happen in handleRaw. Its capacity (10000) is the bounded inbound queue from
// the concurrency model; a full channel blocks the router, never drops.
func (e *Engine) Inbound() chan<- InboundMessage { return e.inbound }

// Run drains the inbound channel and the scheduler tick until ctx is
// cancelled. On shutdown it stops accepting new inbound and exits —
// outbound/sql draining down on their own goroutines per the supervisor.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-e.inbound:
			e.handleRaw(ctx, msg)
		case now := <-ticker.C:
			e.handleTick(ctx, now)
		}
	}
}

func (e *Engine) handleRaw(ctx context.Context, msg InboundMessage) {
	kind, id, ok := codec.Classify(msg.Topic)
	if !ok {
		e.logger.Debug("dropping unrecognized topic", zap.String("topic", msg.Topic))
		return
	}
	ev, err := codec.Decode(kind, id, msg.Topic, msg.Payload)
	if err != nil {
		e.logger.Debug("dropping malformed payload", zap.String("topic", msg.Topic), zap.Error(err))
		if kind != codec.KindHeartbeat && !e.isBackup.Load() {
			e.publishJSON(ctx, codec.ResponseTopic(msg.Topic), errResponse(model.ErrDecode("%v", err)))
		}
		return
	}

	if kind == codec.KindHeartbeat {
		e.handleHeartbeat()
		return
	}
	if kind == codec.KindServerLogin {
		e.handlePeerLogin()
		return
	}
	if e.isBackup.Load() {
		// A standby instance tracks liveness only; it stays silent on the
		// rest of the topic surface until the supervisor promotes it.
		return
	}

	if cached, seen := e.dedup.Seen(ev.ID, verbOf(kind), ev.RequestID, ev.DecodedAt); seen {
		e.replay(ctx, msg.Topic, cached)
		return
	}

	resp := e.dispatch(ctx, kind, ev)
	e.dedup.Record(ev.ID, verbOf(kind), ev.RequestID, resp, ev.DecodedAt)
	if resp != nil {
		e.publishJSON(ctx, codec.ResponseTopic(msg.Topic), resp)
	}
}

func (e *Engine) replay(ctx context.Context, topic string, cached interface{}) {
	if cached == nil {
		return
	}
	e.publishJSON(ctx, codec.ResponseTopic(topic), cached)
}

// dispatch is the finite dispatch table: one case per verb, matching the
// abridged table in the design notes plus every remaining verb in the wire
// surface. It returns the value to publish on the res topic, or nil if the
// verb emits no direct reply to its own topic (e.g. a broadcast already
// sent explicitly by the handler).
func (e *Engine) dispatch(ctx context.Context, kind codec.EventKind, ev *codec.Event) interface{} {
	switch kind {
	case codec.KindLogin:
		return e.handleLogin(ctx, ev)
	case codec.KindLogout:
		return e.handleLogout(ctx, ev)
	case codec.KindChooseHero:
		return e.handleChooseHero(ctx, ev)
	case codec.KindStatus:
		return e.handleStatus(ctx, ev)
	case codec.KindReconnect:
		return e.handleReconnect(ctx, ev)
	case codec.KindReplay:
		return e.handleReplay(ctx, ev)
	case codec.KindAddBlackList:
		return e.handleAddBlackList(ctx, ev)
	case codec.KindQueryBlackList:
		return e.handleQueryBlackList(ctx, ev)
	case codec.KindRemoveBlackList:
		return e.handleRemoveBlackList(ctx, ev)

	case codec.KindCreate:
		return e.handleCreate(ctx, ev)
	case codec.KindClose:
		return e.handleClose(ctx, ev)
	case codec.KindStartQueue:
		return e.handleStartQueue(ctx, ev)
	case codec.KindCancelQueue:
		return e.handleCancelQueue(ctx, ev)
	case codec.KindInvite:
		return e.handleInvite(ctx, ev)
	case codec.KindJoin:
		return e.handleJoin(ctx, ev)
	case codec.KindAcceptJoin:
		return e.handleAcceptJoin(ctx, ev)
	case codec.KindKick:
		return e.handleKick(ctx, ev)
	case codec.KindLeave:
		return e.handleLeave(ctx, ev)
	case codec.KindPrestart:
		return e.handlePrestart(ctx, ev)
	case codec.KindPrestartGet:
		return e.handlePrestartGet(ctx, ev)
	case codec.KindStart:
		return e.handleStart(ctx, ev)

	case codec.KindStartGame:
		return e.handleStartGame(ctx, ev)
	case codec.KindGameClose:
		return e.handleGameClose(ctx, ev)
	case codec.KindGameOver:
		return e.handleGameOver(ctx, ev)
	case codec.KindGameInfo:
		return e.handleGameInfo(ctx, ev)
	case codec.KindChoose:
		return e.handleChoose(ctx, ev)
	case codec.KindBan:
		return e.handleBan(ctx, ev)
	case codec.KindGameLeave:
		return e.handleGameLeave(ctx, ev)
	case codec.KindExit:
		return e.handleExit(ctx, ev)
	case codec.KindUpload:
		return e.handleUpload(ctx, ev)
	case codec.KindResultUpload:
		return e.handleResultUpload(ctx, ev)
	case codec.KindRankgameStatus:
		return e.handleRankgameStatus(ctx, ev)

	case codec.KindEquTest, codec.KindInsertEqu, codec.KindModifyUserEqu, codec.KindDeleteUserEqu,
		codec.KindModifyEqu, codec.KindNewEqu, codec.KindDeleteEqu,
		codec.KindModifyOption, codec.KindNewOption, codec.KindDeleteOption:
		return e.handleManagerOp(ctx, kind, ev)

	case codec.KindReset:
		e.handleReset()
		return nil

	default:
		return errResponse(model.ErrUnknownTopic(ev.Topic))
	}
}

func verbOf(kind codec.EventKind) string {
	return fmt.Sprintf("verb-%d", int(kind))
}

type errEnvelope struct {
	Err  string `json:"err"`
	Code int    `json:"code"`
}

func errResponse(err *model.EngineError) interface{} {
	return errEnvelope{Err: err.Error(), Code: err.Code()}
}

func (e *Engine) publishJSON(ctx context.Context, topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("failed to marshal outbound payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	e.out.Publish(ctx, topic, data)
}

func (e *Engine) newID(prefix string) string {
	return prefix + "_" + e.idGen()
}
