package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
)

// ErrUnknownPersona is returned for a persona ID that is not registered.
var ErrUnknownPersona = errors.New("unknown persona")

// PersonaService manages archetype personas.
type PersonaService struct {
	registry *archetype.Registry
	logger   *logger.Logger
}

// NewPersonaService creates a new persona service.
func NewPersonaService(registry *archetype.Registry, log *logger.Logger) *PersonaService {
	return &PersonaService{registry: registry, logger: log}
}

// Create validates, merges and registers a persona.
func (s *PersonaService) Create(in *model.PersonaInput) (*model.ArchetypePolicy, error) {
	entry, err := s.registry.Register(in)
	if err != nil {
		s.logger.Info("persona rejected", zap.String("name", in.Name), zap.Error(err))
		return nil, err
	}
	metrics.PersonasRegistered.Set(float64(s.registry.Len()))

	s.logger.Info("persona created",
		zap.String("persona_id", entry.Policy.PersonaID),
		zap.String("niche", string(entry.Policy.Niche)),
		zap.Int("rules", entry.Evaluator.RuleCount()),
	)
	return entry.Policy, nil
}

// Get returns a persona's effective policy.
func (s *PersonaService) Get(id string) (*model.ArchetypePolicy, error) {
	entry, ok := s.registry.Get(id)
	if !ok {
		return nil, ErrUnknownPersona
	}
	return entry.Policy, nil
}

// List returns every persona ordered by ID.
func (s *PersonaService) List() *model.ListPersonasResponse {
	entries := s.registry.List()
	out := make([]model.ArchetypePolicy, len(entries))
	for i, e := range entries {
		out[i] = *e.Policy
	}
	return &model.ListPersonasResponse{Personas: out, Total: len(out)}
}
