package config

import (
	"fmt"
	"strings"
)

var knownProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"together":  true,
}

// devOnlyProviders are accepted only with logging.mode dev.
var devOnlyProviders = map[string]bool{
	"mock": true,
}

// Validate checks ranges and cross-field rules. Every failure wraps
// ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateLLM()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Name == "" {
		return invalid("database.name is required")
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	if e.HalfLife <= 0 {
		return invalid("engine.half_life must be positive, got %s", e.HalfLife)
	}
	if e.SkillGapWindow <= 0 {
		return invalid("engine.skill_gap_window must be positive, got %s", e.SkillGapWindow)
	}
	unit := map[string]float64{
		"engine.modality_margin":    e.ModalityMargin,
		"engine.severity_threshold": e.SeverityThreshold,
		"engine.low_engagement":     e.LowEngagement,
		"engine.modality_gap_min":   e.ModalityGapMin,
		"engine.confidence_cap":     e.ConfidenceCap,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return invalid("%s must be within [0,1], got %v", name, v)
		}
	}
	if e.MaxConflictRetries < 1 {
		return invalid("engine.max_conflict_retries must be at least 1, got %d", e.MaxConflictRetries)
	}
	if e.StoreTimeout <= 0 {
		return invalid("engine.store_timeout must be positive, got %s", e.StoreTimeout)
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.CacheTTL <= 0 {
		return invalid("redis.cache_ttl must be positive, got %s", c.Redis.CacheTTL)
	}
	if need := c.Engine.MinLockTTL(); c.Redis.LockTTL < need {
		return invalid("redis.lock_ttl must cover a full update (store_timeout x 3 x max_conflict_retries = %s), got %s",
			need, c.Redis.LockTTL)
	}
	return nil
}

func (c *Config) validateLLM() error {
	for _, p := range c.LLM.Providers {
		name := strings.ToLower(p)
		if devOnlyProviders[name] {
			if !c.devMode() {
				return invalid("llm.providers: %q is only allowed with logging.mode dev", p)
			}
			continue
		}
		if !knownProviders[name] {
			return invalid("llm.providers: unknown provider %q", p)
		}
	}
	if len(c.LLM.Providers) > 0 && c.LLM.Timeout <= 0 {
		return invalid("llm.timeout must be positive when providers are configured")
	}
	return nil
}

func (c *Config) devMode() bool {
	switch strings.ToLower(c.Logging.Mode) {
	case "dev", "development":
		return true
	}
	return false
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Mode) {
	case "dev", "development", "prod", "production":
		return nil
	default:
		return invalid("logging.mode must be dev or prod, got %q", c.Logging.Mode)
	}
}
