package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/service"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

// QueueGroup load-balances inbound messages across engine instances.
const QueueGroup = "handoff-engine"

// InboundHandler processes one counterpart message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, conversationID, personaID, fromID, text string) (*service.Reply, error)
}

// Publisher publishes raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	HandleTimeout time.Duration
	// Workers is the number of inbound handlers running at once. Messages for one
	// conversation always go to the same worker, in arrival order.
	Workers   int
	QueueSize int
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 60 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 16
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Transport connects the orchestrator to the chat network through NATS: it consumes inbound
// envelopes and publishes each reply after its humanized delay.
//
// The subscription callback only decodes and enqueues. Envelopes are handled on a pool of
// workers keyed by conversation, so a slow generation for one conversation does not hold
// up the others.
type Transport struct {
	handler InboundHandler
	pub     Publisher
	logger  *logger.Logger
	cfg     TransportConfig

	afterFunc func(d time.Duration, f func()) *time.Timer

	queueMu  sync.RWMutex
	shards   []chan model.InboundEnvelope
	draining bool
	workers  sync.WaitGroup

	mu      sync.Mutex
	sub     *nats.Subscription
	pending map[*time.Timer]struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewTransport creates a transport publishing through pub and starts its workers.
func NewTransport(handler InboundHandler, pub Publisher, cfg TransportConfig, log *logger.Logger) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		handler:   handler,
		pub:       pub,
		logger:    log.Component("transport"),
		cfg:       cfg,
		afterFunc: time.AfterFunc,
		shards:    make([]chan model.InboundEnvelope, cfg.Workers),
		pending:   make(map[*time.Timer]struct{}),
	}
	for i := range t.shards {
		ch := make(chan model.InboundEnvelope, cfg.QueueSize)
		t.shards[i] = ch
		t.workers.Add(1)
		go func() {
			defer t.workers.Done()
			for env := range ch {
				t.process(env)
			}
		}()
	}
	return t
}

// Start subscribes to every inbound subject in the engine's queue group.
func (t *Transport) Start(conn *nats.Conn) error {
	sub, err := conn.QueueSubscribe(InboundWildcard(), QueueGroup, t.handleMsg)
	if err != nil {
		return fmt.Errorf("failed to subscribe to inbound: %w", err)
	}
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	t.logger.Info("inbound transport started", zap.String("subject", InboundWildcard()))
	return nil
}

// Send publishes a reply to the conversation's outbound subject immediately.
func (t *Transport) Send(conversationID string, reply *service.Reply) error {
	env := model.OutboundEnvelope{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Text:           reply.Text,
		Kind:           reply.Kind,
		DelaySeconds:   reply.Delay.Seconds(),
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound: %w", err)
	}
	if err := t.pub.Publish(OutboundSubject(conversationID), data); err != nil {
		return fmt.Errorf("failed to publish outbound: %w", err)
	}
	return nil
}

// Close stops consuming, finishes the envelopes already received and cancels replies that
// are still waiting for their delay. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Drain()
		t.awaitDrained(sub)
	}

	t.queueMu.Lock()
	if !t.draining {
		t.draining = true
		for _, ch := range t.shards {
			close(ch)
		}
	}
	t.queueMu.Unlock()
	t.workers.Wait()

	t.mu.Lock()
	t.closed = true
	dropped := 0
	for timer := range t.pending {
		if timer.Stop() {
			dropped++
			t.wg.Done()
		}
		delete(t.pending, timer)
	}
	t.mu.Unlock()

	t.wg.Wait()
	if dropped > 0 {
		t.logger.Warn("pending replies dropped on shutdown", zap.Int("count", dropped))
	}
	return err
}

// awaitDrained waits until the subscription has delivered its buffered messages.
func (t *Transport) awaitDrained(sub *nats.Subscription) {
	deadline := time.Now().Add(t.cfg.HandleTimeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func (t *Transport) handleMsg(msg *nats.Msg) {
	var env model.InboundEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		t.logger.Warn("invalid inbound envelope", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if env.ConversationID == "" {
		env.ConversationID = strings.TrimPrefix(msg.Subject, SubjectPrefix+".inbound.")
	}

	t.queueMu.RLock()
	defer t.queueMu.RUnlock()
	if t.draining {
		t.logger.Warn("inbound dropped, transport closed", zap.String("conversation_id", env.ConversationID))
		return
	}
	t.shards[t.shardFor(env.ConversationID)] <- env
}

func (t *Transport) shardFor(conversationID string) int {
	return int(xxhash.Sum64String(conversationID) % uint64(len(t.shards)))
}

func (t *Transport) process(env model.InboundEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.HandleTimeout)
	defer cancel()

	reply, err := t.handler.HandleInbound(ctx, env.ConversationID, env.PersonaID, env.FromID, env.Text)
	if err != nil {
		level := t.logger.Error
		if errors.Is(err, service.ErrUnknownPersona) || errors.Is(err, service.ErrInvalidInput) {
			level = t.logger.Warn
		}
		level("inbound handling failed", zap.String("conversation_id", env.ConversationID), zap.Error(err))
		return
	}
	if reply == nil {
		return
	}
	t.schedule(env.ConversationID, reply)
}

func (t *Transport) schedule(conversationID string, reply *service.Reply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.wg.Add(1)
	var timer *time.Timer
	timer = t.afterFunc(reply.Delay, func() {
		defer t.wg.Done()
		t.mu.Lock()
		delete(t.pending, timer)
		t.mu.Unlock()

		if err := t.Send(conversationID, reply); err != nil {
			t.logger.Error("failed to deliver reply", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	})
	t.pending[timer] = struct{}{}
}
