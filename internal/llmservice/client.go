// Package llmservice wraps the chat-completion provider.
package llmservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"notebook-rag/internal/config"
)

// New builds the chat model from config. Any OpenAI-compatible endpoint
// works; base_url selects the provider.
func New(cfg *config.LLMConfig) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// GenerateText runs one non-streaming chat completion with deterministic
// sampling, retrying transient provider failures on a fixed-delay schedule.
// Only text content survives; providers returning structured parts have them
// collapsed to text by the client library.
func GenerateText(ctx context.Context, model llms.Model, retries int, delay time.Duration, messages []llms.MessageContent) (string, error) {
	if retries <= 0 {
		retries = 2
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var out string
	op := func() error {
		resp, err := model.GenerateContent(ctx, messages, llms.WithTemperature(0))
		if err != nil {
			log.Warn().Err(err).Msg("chat completion attempt failed")
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		out = resp.Choices[0].Content
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return out, nil
}
