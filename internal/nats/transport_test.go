package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/service"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

type fakeHandler struct {
	mu    sync.Mutex
	reply *service.Reply
	err   error
	wait  time.Duration
	calls []model.InboundEnvelope

	running int32
	peak    int32
}

func (h *fakeHandler) HandleInbound(_ context.Context, conv, persona, from, text string) (*service.Reply, error) {
	n := atomic.AddInt32(&h.running, 1)
	defer atomic.AddInt32(&h.running, -1)
	for {
		peak := atomic.LoadInt32(&h.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&h.peak, peak, n) {
			break
		}
	}
	if h.wait > 0 {
		time.Sleep(h.wait)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, model.InboundEnvelope{ConversationID: conv, PersonaID: persona, FromID: from, Text: text})
	return h.reply, h.err
}

func (h *fakeHandler) snapshot() []model.InboundEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.InboundEnvelope(nil), h.calls...)
}

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{subject, data})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func inboundMsg(t *testing.T, subject string, env model.InboundEnvelope) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return &nats.Msg{Subject: subject, Data: data}
}

func TestTransportDeliversReplyAfterDelay(t *testing.T) {
	h := &fakeHandler{reply: &service.Reply{Text: "Oi, tudo bem?", Delay: 20 * time.Millisecond, Kind: model.ReplyKindReply}}
	pub := &fakePublisher{}
	tr := NewTransport(h, pub, TransportConfig{}, logger.NewNop())

	tr.handleMsg(inboundMsg(t, InboundSubject("c1"), model.InboundEnvelope{
		ConversationID: "c1", PersonaID: "irma-clara", FromID: "u1", Text: "oi",
	}))

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	calls := h.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "irma-clara", calls[0].PersonaID)
	assert.Equal(t, "oi", calls[0].Text)

	msg := pub.msgs[0]
	assert.Equal(t, "handoff.outbound.c1", msg.subject)

	var env model.OutboundEnvelope
	require.NoError(t, json.Unmarshal(msg.data, &env))
	assert.Equal(t, "c1", env.ConversationID)
	assert.Equal(t, "Oi, tudo bem?", env.Text)
	assert.Equal(t, model.ReplyKindReply, env.Kind)
	assert.InDelta(t, 0.02, env.DelaySeconds, 0.001)
	assert.NotEmpty(t, env.ID)

	require.NoError(t, tr.Close())
}

func TestTransportSilence(t *testing.T) {
	h := &fakeHandler{}
	pub := &fakePublisher{}
	tr := NewTransport(h, pub, TransportConfig{}, logger.NewNop())

	tr.handleMsg(inboundMsg(t, InboundSubject("c1"), model.InboundEnvelope{ConversationID: "c1", Text: "tchau"}))
	require.NoError(t, tr.Close())
	assert.Len(t, h.snapshot(), 1)
	assert.Zero(t, pub.count())
}

func TestTransportConversationFromSubject(t *testing.T) {
	h := &fakeHandler{}
	tr := NewTransport(h, &fakePublisher{}, TransportConfig{}, logger.NewNop())

	tr.handleMsg(inboundMsg(t, InboundSubject("c-42"), model.InboundEnvelope{PersonaID: "p", Text: "oi"}))
	require.NoError(t, tr.Close())
	calls := h.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "c-42", calls[0].ConversationID)
}

func TestTransportIgnoresInvalidPayload(t *testing.T) {
	h := &fakeHandler{}
	tr := NewTransport(h, &fakePublisher{}, TransportConfig{}, logger.NewNop())

	tr.handleMsg(&nats.Msg{Subject: InboundSubject("c1"), Data: []byte("{not json")})
	require.NoError(t, tr.Close())
	assert.Empty(t, h.snapshot())
}

func TestTransportHandlerError(t *testing.T) {
	h := &fakeHandler{err: service.ErrUnknownPersona}
	pub := &fakePublisher{}
	tr := NewTransport(h, pub, TransportConfig{}, logger.NewNop())

	tr.handleMsg(inboundMsg(t, InboundSubject("c1"), model.InboundEnvelope{ConversationID: "c1", Text: "oi"}))
	require.NoError(t, tr.Close())
	assert.Zero(t, pub.count())
}

func TestTransportCloseDropsPendingReplies(t *testing.T) {
	h := &fakeHandler{reply: &service.Reply{Text: "depois", Delay: time.Hour}}
	pub := &fakePublisher{}
	tr := NewTransport(h, pub, TransportConfig{}, logger.NewNop())

	tr.handleMsg(inboundMsg(t, InboundSubject("c1"), model.InboundEnvelope{ConversationID: "c1", Text: "oi"}))
	require.NoError(t, tr.Close())
	assert.Zero(t, pub.count())

	// Nothing is handled or scheduled after close.
	tr.handleMsg(inboundMsg(t, InboundSubject("c1"), model.InboundEnvelope{ConversationID: "c1", Text: "oi"}))
	require.NoError(t, tr.Close())
	assert.Len(t, h.snapshot(), 1)
	assert.Empty(t, tr.pending)
}

func TestTransportHandlesConversationsConcurrently(t *testing.T) {
	h := &fakeHandler{wait: 300 * time.Millisecond}
	tr := NewTransport(h, &fakePublisher{}, TransportConfig{Workers: 64}, logger.NewNop())

	// Pick conversations on distinct workers.
	var convs []string
	used := make(map[int]bool)
	for i := 0; len(convs) < 4; i++ {
		conv := fmt.Sprintf("c%d", i)
		if shard := tr.shardFor(conv); !used[shard] {
			used[shard] = true
			convs = append(convs, conv)
		}
	}

	start := time.Now()
	for _, conv := range convs {
		tr.handleMsg(inboundMsg(t, InboundSubject(conv), model.InboundEnvelope{ConversationID: conv, Text: "oi"}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "callback must not wait for the handler")

	require.NoError(t, tr.Close())
	elapsed := time.Since(start)

	assert.Len(t, h.snapshot(), 4)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&h.peak), int32(2))
	assert.Less(t, elapsed, 4*300*time.Millisecond)
}

func TestTransportKeepsConversationOrder(t *testing.T) {
	h := &fakeHandler{wait: time.Millisecond}
	tr := NewTransport(h, &fakePublisher{}, TransportConfig{Workers: 4}, logger.NewNop())

	for i := 0; i < 20; i++ {
		for _, conv := range []string{"a", "b", "c"} {
			tr.handleMsg(inboundMsg(t, InboundSubject(conv), model.InboundEnvelope{
				ConversationID: conv, Text: fmt.Sprintf("%d", i),
			}))
		}
	}
	require.NoError(t, tr.Close())

	seen := make(map[string][]string)
	for _, call := range h.snapshot() {
		seen[call.ConversationID] = append(seen[call.ConversationID], call.Text)
	}
	for _, conv := range []string{"a", "b", "c"} {
		require.Len(t, seen[conv], 20, conv)
		for i, text := range seen[conv] {
			assert.Equal(t, fmt.Sprintf("%d", i), text, conv)
		}
	}
}

func TestTransportConfigDefaults(t *testing.T) {
	cfg := TransportConfig{}.withDefaults()
	assert.Equal(t, 60*time.Second, cfg.HandleTimeout)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "handoff.inbound.c1", InboundSubject("c1"))
	assert.Equal(t, "handoff.inbound.>", InboundWildcard())
	assert.Equal(t, "handoff.outbound.c1", OutboundSubject("c1"))
	assert.Equal(t, "handoff.audit.c1", AuditSubject("c1"))
	assert.Equal(t, "handoff.events.c1", EventSubject("c1"))
}
