package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/compliance"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
	"github.com/capitalize-ai/handoff-engine/internal/store"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

const personaID = "irma-clara"

type stubGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	prompts []string
	seen    [][]model.HistoryEntry
}

func (g *stubGenerator) Complete(_ context.Context, systemPrompt string, history []model.HistoryEntry) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, systemPrompt)
	g.seen = append(g.seen, append([]model.HistoryEntry(nil), history...))
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "Que bom falar com você!", nil
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return r, nil
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.HandoffEvent
}

func (n *recordingNotifier) NotifyHandoff(_ context.Context, e *model.HandoffEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []model.PolicyLogEntry
}

func (s *recordingSink) PublishAudit(_ context.Context, _ string, e *model.PolicyLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

type fixture struct {
	svc      *ConversationService
	personas *PersonaService
	store    *store.MemoryStore
	gen      *stubGenerator
	notifier *recordingNotifier
	sink     *recordingSink
}

type fixtureOpts struct {
	maxAuto   int
	generator Generator
	persona   func(*model.PersonaInput)
	wrapStore func(store.Store) store.Store
}

// flakyStore fails SaveState while failSave is set.
type flakyStore struct {
	store.Store
	failSave atomic.Bool
}

func (s *flakyStore) SaveState(ctx context.Context, st *model.ConversationState, audit ...model.PolicyLogEntry) error {
	if s.failSave.Load() {
		return errors.New("redis: connection reset")
	}
	return s.Store.SaveState(ctx, st, audit...)
}

func newFixture(t *testing.T, opts ...func(*fixtureOpts)) *fixture {
	t.Helper()

	fo := &fixtureOpts{}
	for _, o := range opts {
		o(fo)
	}

	tpl := compliance.Default()
	if fo.maxAuto > 0 {
		tpl.MaxConsecutiveAutoMessages = fo.maxAuto
	}
	reg := archetype.NewRegistry(tpl, policy.WithRandom(func(int) int { return 0 }))

	in := &model.PersonaInput{
		Name:       "Irmã Clara",
		Niche:      model.NicheReligious,
		Tone:       model.TonePastoral,
		BasePrompt: "Você é a Irmã Clara, acolhedora e paciente com os fiéis.",
	}
	if fo.persona != nil {
		fo.persona(in)
	}

	log := logger.NewNop()
	personas := NewPersonaService(reg, log)
	_, err := personas.Create(in)
	require.NoError(t, err)

	f := &fixture{
		personas: personas,
		store:    store.NewMemoryStore(),
		gen:      &stubGenerator{},
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
	}
	var gen Generator = f.gen
	if fo.generator != nil {
		gen = fo.generator
	}

	d := NewDispatcher(4, 8, log)
	t.Cleanup(func() { _ = d.Close() })

	var st store.Store = f.store
	if fo.wrapStore != nil {
		st = fo.wrapStore(st)
	}
	f.svc = NewConversationService(st, reg, gen, d, log,
		WithNotifier(f.notifier),
		WithAuditSink(f.sink),
		WithHistoryCapacity(10),
		WithRandom(func() float64 { return 0.5 }),
	)
	return f
}

func withMaxAuto(n int) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.maxAuto = n }
}

func withGenerator(g Generator) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.generator = g }
}

func withPersona(fn func(*model.PersonaInput)) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.persona = fn }
}

func withStore(wrap func(store.Store) store.Store) func(*fixtureOpts) {
	return func(o *fixtureOpts) { o.wrapStore = wrap }
}

func (f *fixture) inbound(t *testing.T, conv, text string) *Reply {
	t.Helper()
	reply, err := f.svc.HandleInbound(context.Background(), conv, personaID, "5511999990000", text)
	require.NoError(t, err)
	return reply
}

func (f *fixture) state(t *testing.T, conv string) *model.ConversationState {
	t.Helper()
	st, err := f.svc.State(context.Background(), conv)
	require.NoError(t, err)
	return st
}

func actions(entries []model.PolicyLogEntry) []model.PolicyAction {
	out := make([]model.PolicyAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}
