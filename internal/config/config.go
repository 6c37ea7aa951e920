package config

import (
	"errors"
	"time"
)

// ErrInvalidConfiguration wraps every validation failure. Startup treats it as fatal.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	Engine   EngineConfig   `koanf:"engine"`
	LLM      LLMConfig      `koanf:"llm"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	// InMemory replaces Postgres with a process-local store.
	InMemory     bool   `koanf:"in_memory"`
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	Name         string `koanf:"name"`
	SSLMode      string `koanf:"sslmode"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RedisConfig is optional. With an empty Addr the engine uses in-process
// locking and no next-action cache.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	LockTTL  time.Duration `koanf:"lock_ttl"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// storeCallsPerAttempt is the profile read, gap read and write of one
// update attempt.
const storeCallsPerAttempt = 3

// MinLockTTL is the longest a single profile update can hold the learner
// lock when every store call runs to its timeout.
func (e EngineConfig) MinLockTTL() time.Duration {
	return e.StoreTimeout * storeCallsPerAttempt * time.Duration(e.MaxConflictRetries)
}

// AuthConfig holds the shared HS256 secret of the platform that issues
// learner tokens. An empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
}

type EngineConfig struct {
	HalfLife           time.Duration `koanf:"half_life"`
	SkillGapWindow     time.Duration `koanf:"skill_gap_window"`
	ModalityMargin     float64       `koanf:"modality_margin"`
	SeverityThreshold  float64       `koanf:"severity_threshold"`
	LowEngagement      float64       `koanf:"low_engagement"`
	ModalityGapMin     float64       `koanf:"modality_gap_min"`
	ConfidenceCap      float64       `koanf:"confidence_cap"`
	MaxConflictRetries int           `koanf:"max_conflict_retries"`
	StoreTimeout       time.Duration `koanf:"store_timeout"`
}

type LLMConfig struct {
	// Providers is the fallback order. Entries without credentials are skipped.
	Providers       []string      `koanf:"providers"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxTokens       int           `koanf:"max_tokens"`
	AnthropicAPIKey string        `koanf:"anthropic_api_key"`
	AnthropicModel  string        `koanf:"anthropic_model"`
	OpenAIAPIKey    string        `koanf:"openai_api_key"`
	OpenAIModel     string        `koanf:"openai_model"`
	TogetherAPIKey  string        `koanf:"together_api_key"`
	TogetherModel   string        `koanf:"together_model"`
	TogetherBaseURL string        `koanf:"together_base_url"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type LoggingConfig struct {
	Mode  string `koanf:"mode"`
	Level string `koanf:"level"`
}
