package archetype

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/policy"
)

// ErrPersonaExists is returned when registering an ID that is already taken.
var ErrPersonaExists = errors.New("persona already exists")

// Entry is a registered persona: its merged policy and the evaluator compiled from it.
type Entry struct {
	Policy    *model.ArchetypePolicy
	Evaluator *policy.Evaluator
	CreatedAt time.Time
}

// Registry holds merged personas. Policies are compiled once at registration and are
// immutable afterwards; lookups only take the read lock.
type Registry struct {
	template *model.CompliancePolicy
	opts     []policy.Option

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates a registry bound to one compliance template.
func NewRegistry(template *model.CompliancePolicy, opts ...policy.Option) *Registry {
	tpl := template.Clone()
	return &Registry{
		template: &tpl,
		opts:     opts,
		entries:  make(map[string]*Entry),
	}
}

// Register validates, merges and compiles a new persona. It fails with ErrPersonaExists
// when the ID is taken.
func (r *Registry) Register(in *model.PersonaInput) (*Entry, error) {
	entry, err := r.build(in)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Policy.PersonaID]; ok {
		return nil, ErrPersonaExists
	}
	r.entries[entry.Policy.PersonaID] = entry
	return entry, nil
}

// Put validates, merges and compiles a persona, replacing any existing entry with the
// same ID. Evaluators already handed out keep the old policy.
func (r *Registry) Put(in *model.PersonaInput) (*Entry, error) {
	entry, err := r.build(in)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.entries[entry.Policy.PersonaID] = entry
	r.mu.Unlock()
	return entry, nil
}

func (r *Registry) build(in *model.PersonaInput) (*Entry, error) {
	merged, err := Merge(in, r.template)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Policy:    merged,
		Evaluator: policy.Compile(merged, r.opts...),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Get returns a persona by ID.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// List returns all personas ordered by ID.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Policy.PersonaID < out[j].Policy.PersonaID
	})
	return out
}

// Template returns a copy of the compliance template.
func (r *Registry) Template() model.CompliancePolicy {
	return r.template.Clone()
}

// Len returns the number of registered personas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
