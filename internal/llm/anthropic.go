package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/byteos/intelligence/internal/logger"
)

// ── Anthropic ──────────────────────────────────────────────

type AnthropicProvider struct {
	client   *anthropic.Client
	model    string
	attempts int
	log      *logger.Logger
}

func NewAnthropicProvider(apiKey, model string, log *logger.Logger) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{
		client:   &client,
		model:    model,
		attempts: 2,
		log:      log.With("provider", "anthropic"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: param.NewOpt(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := p.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = strings.TrimSpace(block.Text)
			break
		}
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:         text,
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

// callWithRetry retries once with backoff, giving up early when ctx ends.
func (p *AnthropicProvider) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
			p.log.Debug("retrying anthropic call", "attempt", attempt+1, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("anthropic: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}
