package policy

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

func TestValidateOutbound(t *testing.T) {
	e := testEvaluator()

	tests := []struct {
		name    string
		reply   string
		allowed bool
		reason  string
	}{
		{"clean reply", "Que alegria falar com você! Como foi o culto de domingo?", true, ReasonOK},
		{"forbidden single word", "Isso é uma merda mesmo.", false, ReasonForbiddenTerm},
		{"forbidden multi word", "Temos cura garantida para você", false, ReasonForbiddenTerm},
		{"full url", "Veja em https://exemplo.com/culto", false, ReasonLinkNotAllowed},
		{"www prefix", "acesse www.igreja.org", false, ReasonLinkNotAllowed},
		{"domain with path", "entra em minhaigreja.com.br/agenda", false, ReasonLinkNotAllowed},
		{"shortener", "me chama no wa.me agora", false, ReasonLinkNotAllowed},
		{"currency amount", "Fica só R$ 19,90", false, ReasonPriceDisclosure},
		{"currency word", "São 20 reais por encontro", false, ReasonPriceDisclosure},
		{"naked price with context", "O valor é 19,90 por mês", false, ReasonPriceDisclosure},
		{"naked number without context", "Hoje faço 19,90 km", true, ReasonOK},
		{"sales vocabulary", "Clique aqui e garanta sua vaga", false, ReasonSalesVocabulary},
		{"self disclosure pt", "Na verdade eu sou um robô, desculpe", false, ReasonSelfDisclosure},
		{"self disclosure en", "I'm an AI but I can help", false, ReasonSelfDisclosure},
		{"programmed", "Fui programada para te ajudar", false, ReasonSelfDisclosure},
		{"cross niche vocabulary", "Já pensou no seu voto na próxima eleição?", false, ReasonNicheVocabulary},
		{"empty reply", "  ", false, ReasonEmptyReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ValidateOutbound(tt.reply)
			assert.Equal(t, tt.allowed, got.Allowed, "reply %q", tt.reply)
			assert.Equal(t, tt.reason, got.Reason, "reply %q", tt.reply)
			if tt.allowed {
				assert.Equal(t, tt.reply, got.FinalText)
			} else {
				assert.Equal(t, DefaultFallbacks[0], got.FinalText)
			}
		})
	}
}

func TestValidateOutboundForbiddenTokenBoundary(t *testing.T) {
	e := testEvaluator(func(p *model.ArchetypePolicy) {
		p.ExtraForbiddenTerms = []string{"gato", "sal"}
	})

	for _, reply := range []string{"o gato subiu no telhado", "Gato!", "pouco SAL na comida"} {
		assert.False(t, e.ValidateOutbound(reply).Allowed, reply)
	}
	for _, reply := range []string{"tomei gatorade", "meu salário atrasou", "a salada está boa"} {
		assert.True(t, e.ValidateOutbound(reply).Allowed, reply)
	}
}

func TestValidateOutboundStopsAtFirstViolation(t *testing.T) {
	e := testEvaluator()

	got := e.ValidateOutbound("Que merda, acesse https://exemplo.com/x por R$ 10")
	assert.Equal(t, ReasonForbiddenTerm, got.Reason)
	assert.Equal(t, []string{"truncate:pass", "forbidden_terms:fired"}, got.Trace)
}

func TestValidateOutboundAllowancesFromTemplate(t *testing.T) {
	e := testEvaluator(func(p *model.ArchetypePolicy) {
		p.Compliance.AllowLinks = true
		p.Compliance.AllowPrice = true
	})

	assert.True(t, e.ValidateOutbound("Veja em https://exemplo.com/culto").Allowed)
	assert.True(t, e.ValidateOutbound("O valor é 19,90 por mês").Allowed)
}

func TestValidateOutboundUsesSafeResponses(t *testing.T) {
	e := testEvaluator(func(p *model.ArchetypePolicy) {
		p.SafeResponses = []string{"Fica com Deus, querida."}
	})

	got := e.ValidateOutbound("eu sou um bot")
	assert.False(t, got.Allowed)
	assert.Equal(t, "Fica com Deus, querida.", got.FinalText)
}

func TestValidateOutboundTruncates(t *testing.T) {
	e := testEvaluator(func(p *model.ArchetypePolicy) {
		p.MaxCharsPerMessage = 40
	})

	reply := "Que bom te ver por aqui. Hoje teremos louvor às sete horas da noite."
	got := e.ValidateOutbound(reply)
	require.True(t, got.Allowed)
	assert.True(t, got.Truncated)
	assert.Equal(t, "Que bom te ver por aqui.", got.FinalText)
	assert.Contains(t, got.Trace, "truncate:applied")
}

func TestCannedRepliesRespectMessageLimit(t *testing.T) {
	e := testEvaluator(func(p *model.ArchetypePolicy) {
		p.MaxCharsPerMessage = 40
	})

	got := e.ValidateOutbound("eu sou um bot")
	require.False(t, got.Allowed)
	assert.LessOrEqual(t, utf8.RuneCountInString(got.FinalText), 40)
	assert.NotEmpty(t, got.FinalText)

	for i := range DefaultFallbacks {
		e := Compile(testPolicy(func(p *model.ArchetypePolicy) { p.MaxCharsPerMessage = 40 }),
			WithRandom(func(int) int { return i }))
		assert.LessOrEqual(t, utf8.RuneCountInString(e.Fallback()), 40)
	}

	assert.Greater(t, utf8.RuneCountInString(DefaultHandoffMessage), 40)
	assert.LessOrEqual(t, utf8.RuneCountInString(e.HandoffMessage()), 40)
	assert.True(t, strings.HasPrefix(DefaultHandoffMessage, e.HandoffMessage()))
}

func TestFallbackIsUniform(t *testing.T) {
	counts := make(map[string]int)
	e := Compile(testPolicy())
	for i := 0; i < 300; i++ {
		counts[e.Fallback()]++
	}
	assert.Len(t, counts, len(DefaultFallbacks))
}

func TestHandoffMessage(t *testing.T) {
	assert.Equal(t, DefaultHandoffMessage, testEvaluator().HandoffMessage())

	custom := "Já chamo alguém da pastoral para falar com você."
	e := testEvaluator(func(p *model.ArchetypePolicy) { p.HandoffMessage = &custom })
	assert.Equal(t, custom, e.HandoffMessage())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"within limit", "curto", 10, "curto"},
		{"disabled", "qualquer coisa", 0, "qualquer coisa"},
		{"sentence boundary past midpoint", "Primeira frase aqui. Segunda frase longa", 30, "Primeira frase aqui."},
		{"sentence boundary before midpoint falls back to word", "Oi. Esta segunda frase é bem comprida", 30, "Oi. Esta segunda frase é bem"},
		{"decimal point is not a sentence end", "Custa 19.90 hoje mesmo para todos", 20, "Custa 19.90 hoje"},
		{"exact word end", "uma duas três", 8, "uma duas"},
		{"hard cut", "supercalifragilistico", 5, "super"},
		{"multibyte runes", "ação ação ação", 9, "ação ação"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.limit)
			assert.Equal(t, tt.want, got)
			if tt.limit > 0 {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.limit)
			}
		})
	}
}

func TestTruncateIdempotent(t *testing.T) {
	texts := []string{
		"Primeira frase aqui. Segunda frase longa e mais longa ainda.",
		strings.Repeat("palavra ", 40),
		strings.Repeat("x", 500),
		"Que bom! Você voltou? Vamos conversar mais um pouco sobre isso tudo.",
	}
	for _, text := range texts {
		for _, limit := range []int{1, 7, 25, 60, 100} {
			once := Truncate(text, limit)
			assert.Equal(t, once, Truncate(once, limit))
			assert.LessOrEqual(t, utf8.RuneCountInString(once), limit)
		}
	}
}
