// Package llm wraps text-completion providers behind a single interface and
// composes them into an ordered fallback chain.
package llm

import "context"

// Provider produces a short completion for a prompt.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}
