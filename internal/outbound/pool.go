// Package outbound implements the fan-out publisher pool: a fixed set of
// independent broker connections, each draining its own partition of the
// outbound queue, so a stall on one connection never halts the others.
package outbound

import (
	"context"
	"hash/fnv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Message is one outbound publish.
type Message struct {
	Topic   string
	Payload []byte
}

// Config controls pool sizing; zero values fall back to the spec defaults.
type Config struct {
	BrokerURL    string
	Workers      int // default 8
	QueueDepth   int // default 10000, split evenly across workers
	ClientIDBase string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 10000
	}
	if c.ClientIDBase == "" {
		c.ClientIDBase = "erps_pub"
	}
	return c
}

// Pool is the outbound publisher pool. Producers call Publish, which
// blocks if the target partition is full — this is the only place the
// event engine is allowed to block on output, per the concurrency model.
// Publishes for a single topic always land on the same partition, so their
// enqueue order is preserved through to the broker.
type Pool struct {
	cfg     Config
	logger  *zap.Logger
	workers []*worker
}

type worker struct {
	index   int
	queue   chan Message
	client  mqtt.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Pool but does not start its workers; call Run for that.
func New(cfg Config, logger *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "outbound_pool")),
	}
	perWorker := cfg.QueueDepth / cfg.Workers
	if perWorker < 1 {
		perWorker = 1
	}
	p.workers = make([]*worker, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		p.workers[i] = &worker{
			index:   i,
			queue:   make(chan Message, perWorker),
			limiter: rate.NewLimiter(rate.Limit(200), 400),
			logger:  p.logger.With(zap.Int("worker", i)),
		}
	}
	return p
}

// generateClientID mirrors the original source's generate_client_id: a
// short, collision-resistant id, one per spawned publisher connection.
func generateClientID(base string) string {
	s := base + "_" + uuid.New().String()
	if len(s) > 23 {
		s = s[:23]
	}
	return s
}

// partition routes a topic to a worker index by hashing it.
func (p *Pool) partition(topic string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32()) % len(p.workers)
}

// Run connects cfg.Workers independent broker connections and drains each
// worker's partition until ctx is cancelled. It blocks until all workers
// have exited.
func (p *Pool) Run(ctx context.Context) error {
	done := make(chan struct{}, len(p.workers))
	for _, w := range p.workers {
		w := w
		go func() {
			p.runWorker(ctx, w)
			done <- struct{}{}
		}()
	}
	for range p.workers {
		<-done
	}
	return nil
}

func (p *Pool) runWorker(ctx context.Context, w *worker) {
	for {
		if ctx.Err() != nil {
			if w.client != nil {
				w.client.Disconnect(250)
			}
			return
		}

		if w.client == nil || !w.client.IsConnected() {
			if err := p.connect(w); err != nil {
				w.logger.Error("publisher connect failed, retrying", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
		}

		select {
		case <-ctx.Done():
			w.client.Disconnect(250)
			return
		case msg := <-w.queue:
			p.publishOne(w, msg)
		}
	}
}

func (p *Pool) connect(w *worker) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.BrokerURL)
	opts.SetClientID(generateClientID(p.cfg.ClientIDBase))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(100 * time.Second)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		w.logger.Warn("publisher lost connection", zap.Error(err))
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	w.client = client
	return nil
}

func (p *Pool) publishOne(w *worker, msg Message) {
	_ = w.limiter.Wait(context.Background())
	token := w.client.Publish(msg.Topic, 0, false, msg.Payload)
	token.Wait()
	if err := token.Error(); err != nil {
		w.logger.Error("publish failed", zap.String("topic", msg.Topic), zap.Error(err))
	}
}

// Publish enqueues a message on the partition owned by its topic, blocking
// if that partition is full. It is safe for concurrent use, but by design
// only the event engine ever calls it.
func (p *Pool) Publish(ctx context.Context, topic string, payload []byte) {
	w := p.workers[p.partition(topic)]
	select {
	case w.queue <- Message{Topic: topic, Payload: payload}:
	case <-ctx.Done():
	}
}

// Depth reports the summed queue length across all partitions, useful for
// supervisor metrics.
func (p *Pool) Depth() int {
	total := 0
	for _, w := range p.workers {
		total += len(w.queue)
	}
	return total
}
