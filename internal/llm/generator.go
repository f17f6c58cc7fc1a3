package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/pkg/metrics"
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Generator turns a conversation history into a reply using a Client.
type Generator struct {
	client Client
	cfg    GeneratorConfig
}

// NewGenerator creates a generator.
func NewGenerator(client Client, cfg GeneratorConfig) *Generator {
	return &Generator{client: client, cfg: cfg}
}

// Complete generates the next automated reply. Every failure, including the configured
// timeout elapsing, is returned wrapped in ErrGenerationFailed.
func (g *Generator) Complete(ctx context.Context, systemPrompt string, history []model.HistoryEntry) (string, error) {
	messages := BuildMessages(history)
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no counterpart message in history", ErrGenerationFailed)
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Complete(ctx, &CompletionRequest{
		Model:       g.cfg.Model,
		System:      systemPrompt,
		Messages:    messages,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		metrics.RecordGeneration(g.modelLabel(), "error", time.Since(start).Seconds(), 0, 0)
		return "", fmt.Errorf("%w: %s: %v", ErrGenerationFailed, g.client.Name(), err)
	}

	metrics.RecordGeneration(g.modelLabel(), "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return strings.TrimSpace(resp.Content), nil
}

func (g *Generator) modelLabel() string {
	if g.cfg.Model != "" {
		return g.cfg.Model
	}
	return g.client.Name()
}

// BuildMessages maps history entries to chat messages. Counterpart messages become user
// turns; automated and human operator messages become assistant turns. Consecutive turns of
// the same role are joined, and leading assistant turns are dropped so the exchange always
// opens with the user.
func BuildMessages(history []model.HistoryEntry) []ChatMessage {
	var out []ChatMessage
	for _, entry := range history {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		role := RoleAssistant
		if entry.Role == model.RoleCounterparty {
			role = RoleUser
		}
		if len(out) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + text
			continue
		}
		out = append(out, ChatMessage{Role: role, Content: text})
	}
	return out
}
