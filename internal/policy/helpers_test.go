package policy

import (
	"github.com/capitalize-ai/handoff-engine/internal/compliance"
	"github.com/capitalize-ai/handoff-engine/internal/model"
)

func testPolicy(mutate ...func(*model.ArchetypePolicy)) *model.ArchetypePolicy {
	p := &model.ArchetypePolicy{
		PersonaID:          "irma-clara",
		Name:               "Irmã Clara",
		Niche:              model.NicheReligious,
		Tone:               model.TonePastoral,
		BasePrompt:         "Você é a Irmã Clara, acolhedora e paciente.",
		Compliance:         compliance.Default().Clone(),
		MaxCharsPerMessage: 320,
		DelayRange:         model.DelayRange{Min: 2, Max: 8},
	}
	for _, m := range mutate {
		m(p)
	}
	return p
}

func firstIndex(int) int { return 0 }

func testEvaluator(mutate ...func(*model.ArchetypePolicy)) *Evaluator {
	return Compile(testPolicy(mutate...), WithRandom(firstIndex))
}
