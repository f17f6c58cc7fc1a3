package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

// FallbackClient wraps a primary client with a secondary provider that is tried when the
// primary fails. A nil fallback makes it a pass-through.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logger.Logger
}

// NewFallbackClient creates a fallback-enabled client.
func NewFallbackClient(primary, fallback Client, log *logger.Logger) *FallbackClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: log}
}

// Name returns the primary provider name.
func (c *FallbackClient) Name() string {
	return c.primary.Name()
}

// Complete tries the primary provider, then the fallback.
func (c *FallbackClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("primary llm failed, attempting fallback",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(err),
	)

	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("fallback llm also failed", zap.NamedError("primary_error", err), zap.Error(fbErr))
		return nil, fbErr
	}
	return resp, nil
}
