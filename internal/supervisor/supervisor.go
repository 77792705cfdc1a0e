// Package supervisor owns the inbound MQTT connection and the
// primary/backup failover dance: it subscribes to the full topic surface,
// feeds classified messages into the event engine, and promotes a backup
// instance to primary if the heartbeat goes quiet.
package supervisor

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/damody/erps/internal/engine"
)

// topics is the full inbound subscription surface. Using a wildcard per
// category instead of one subscription per verb keeps the broker-side
// subscription table small regardless of how many verbs this core adds.
var topics = []string{
	"member/+/send/+",
	"room/+/send/+",
	"game/+/send/+",
	"manager/+/send/+",
	"server/+/send/+",
	"server/+/res/heartbeat",
	"reset",
}

// Config controls the supervisor's broker connection and failover timing.
type Config struct {
	BrokerURL        string
	ClientIDBase     string
	Backup           bool
	HeartbeatInterval time.Duration // default 2s
	MissThreshold     int           // default 2 missed heartbeats before promotion
}

func (c Config) withDefaults() Config {
	if c.ClientIDBase == "" {
		c.ClientIDBase = "erps_sub"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	if c.MissThreshold <= 0 {
		c.MissThreshold = 2
	}
	return c
}

// Supervisor wires the broker to the engine and arbitrates primary/backup
// ownership of write access to the shared topic surface.
type Supervisor struct {
	cfg    Config
	eng    *engine.Engine
	logger *zap.Logger
	client mqtt.Client

	selfID        string
	lastHeartbeat time.Time
	promoted      bool
}

func New(cfg Config, eng *engine.Engine, logger *zap.Logger) *Supervisor {
	cfg = cfg.withDefaults()
	return &Supervisor{
		cfg:    cfg,
		eng:    eng,
		logger: logger.With(zap.String("component", "supervisor")),
		selfID: uuid.New().String(),
	}
}

// Run connects to the broker, subscribes the full topic surface, and
// drives the backup heartbeat watchdog until ctx is cancelled. It returns
// once the connection is torn down.
func (s *Supervisor) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(s.clientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.logger.Info("connected, subscribing", zap.Strings("topics", topics))
		for _, t := range topics {
			if token := c.Subscribe(t, 0, s.onMessage); token.Wait() && token.Error() != nil {
				s.logger.Error("subscribe failed", zap.String("topic", t), zap.Error(token.Error()))
			}
		}
	})
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.logger.Warn("connection lost", zap.Error(err))
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer s.client.Disconnect(250)

	if !s.cfg.Backup {
		return s.runPrimaryHeartbeat(ctx)
	}
	return s.runBackupWatchdog(ctx)
}

func (s *Supervisor) clientID() string {
	id := s.cfg.ClientIDBase + "_" + s.selfID
	if len(id) > 23 {
		id = id[:23]
	}
	return id
}

// onMessage hands a raw publish to the engine's bounded inbound queue. A
// full queue blocks this callback rather than dropping the message — the
// paho client serializes delivery per subscription, so this is the
// back-pressure point the concurrency model relies on.
func (s *Supervisor) onMessage(c mqtt.Client, msg mqtt.Message) {
	s.eng.Inbound() <- engine.InboundMessage{Topic: msg.Topic(), Payload: msg.Payload()}
}

// runPrimaryHeartbeat publishes a liveness heartbeat on an interval so any
// backup instance watching server/+/res/heartbeat knows the primary is up.
func (s *Supervisor) runPrimaryHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.client.Publish("server/"+s.selfID+"/res/heartbeat", 0, false, []byte("{}"))
		}
	}
}

// runBackupWatchdog tracks heartbeat arrivals via the engine's
// ConsumeHeartbeatSeen flag and self-promotes to primary after MissThreshold
// consecutive missed intervals, per the failover design.
func (s *Supervisor) runBackupWatchdog(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.eng.ConsumeHeartbeatSeen() {
				misses = 0
				continue
			}
			misses++
			if misses >= s.cfg.MissThreshold && !s.promoted {
				s.promoted = true
				s.eng.SetBackup(false)
				s.logger.Warn("primary presumed dead, promoting self", zap.Int("missed_heartbeats", misses))
				go func() {
					_ = s.runPrimaryHeartbeat(ctx)
				}()
			}
		}
	}
}
