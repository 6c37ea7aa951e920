package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrChainExhausted means every provider in the chain failed for this request.
	ErrChainExhausted = errors.New("all llm providers failed")
	ErrEmptyResponse  = errors.New("llm returned no text")
)

// ProviderError ties a failure to the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
