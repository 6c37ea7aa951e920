package llm

import (
	"strings"

	"github.com/byteos/intelligence/internal/config"
	"github.com/byteos/intelligence/internal/logger"
)

// FromConfig builds the fallback chain in the configured order. Providers
// without credentials are skipped with a log line, so an empty chain is
// valid and simply never narrates.
func FromConfig(cfg config.LLMConfig, log *logger.Logger) *Chain {
	breaker := BreakerConfig{FailureThreshold: cfg.BreakerFailures, Timeout: cfg.BreakerTimeout}
	var providers []Provider

	for _, name := range cfg.Providers {
		var (
			p   Provider
			err error
		)
		switch strings.ToLower(name) {
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				log.Info("llm provider skipped, no api key", "provider", name)
				continue
			}
			p = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel, log)
		case "openai":
			p, err = NewOpenAIProvider("openai", cfg.OpenAIAPIKey, "", cfg.OpenAIModel)
		case "together":
			p, err = NewTogetherProvider(cfg.TogetherAPIKey, cfg.TogetherBaseURL, cfg.TogetherModel)
		case "mock":
			p = NewMockProvider("mock")
		default:
			log.Warn("unknown llm provider", "provider", name)
			continue
		}
		if err != nil {
			log.Info("llm provider skipped", "provider", name, "reason", err.Error())
			continue
		}
		providers = append(providers, WithBreaker(p, breaker, log))
	}

	chain := NewChain(cfg.Timeout, log, providers...)
	log.Info("llm chain ready", "providers", chain.Names())
	return chain
}
