package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/model"
)

func TestPersonaService(t *testing.T) {
	f := newFixture(t)

	p, err := f.personas.Get(personaID)
	require.NoError(t, err)
	assert.Equal(t, "Irmã Clara", p.Name)

	_, err = f.personas.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownPersona)

	created, err := f.personas.Create(&model.PersonaInput{
		ID:         "ana",
		Name:       "Ana",
		Niche:      model.NicheWellness,
		Tone:       model.ToneWarm,
		BasePrompt: "Você é a Ana, instrutora de yoga.",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana", created.PersonaID)

	_, err = f.personas.Create(&model.PersonaInput{Name: "Ana", ID: "ana", Niche: model.NicheWellness, Tone: model.ToneWarm, BasePrompt: "x"})
	assert.ErrorIs(t, err, archetype.ErrPersonaExists)

	_, err = f.personas.Create(&model.PersonaInput{Name: "Bot", Niche: "gaming"})
	var verr *archetype.ValidationError
	assert.ErrorAs(t, err, &verr)

	list := f.personas.List()
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "ana", list.Personas[0].PersonaID)
}
