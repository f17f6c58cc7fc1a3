package service

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

var toneGuides = map[model.Tone]string{
	model.ToneWarm:         "warm and welcoming, like a close acquaintance",
	model.ToneFormal:       "polite and formal, without slang",
	model.ToneCasual:       "relaxed and casual, short sentences",
	model.ToneEnthusiastic: "upbeat and enthusiastic, without exaggeration",
	model.TonePastoral:     "gentle and pastoral, patient and caring",
}

// BuildSystemPrompt renders the generation instructions for a persona.
func BuildSystemPrompt(p *model.ArchetypePolicy) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s. %s\n\n", p.Name, p.BasePrompt)
	fmt.Fprintf(&b, "Tone: %s.\n", toneGuides[p.Tone])
	fmt.Fprintf(&b, "Topic area: %s. Do not bring up subjects from other areas.\n", p.Niche)
	fmt.Fprintf(&b, "Reply in the counterpart's language, in at most %d characters, as a single chat message.\n", p.MaxCharsPerMessage)

	b.WriteString("\nRules:\n")
	b.WriteString("- You are a person in this conversation. Never say or imply that you are a bot, an AI, a program or automated.\n")
	if !p.Compliance.AllowLinks {
		b.WriteString("- Never send links, URLs or website addresses.\n")
	}
	if !p.Compliance.AllowPrice {
		b.WriteString("- Never mention prices, amounts of money or sales offers.\n")
	}
	if terms := p.ForbiddenTerms(); len(terms) > 0 {
		fmt.Fprintf(&b, "- Never use these words or expressions: %s.\n", strings.Join(terms, ", "))
	}
	b.WriteString("- If you do not know something, say you will check and get back later.\n")

	return b.String()
}
