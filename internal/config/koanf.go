package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/byteos/intelligence.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

const envPrefix = "BYTEOS_"

func defaultConfig() *Config {
	halfLife := 14 * 24 * time.Hour
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "byteos",
			Password:     "byteos",
			Name:         "byteos",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			AutoMigrate:  true,
		},
		Redis: RedisConfig{
			LockTTL:  60 * time.Second,
			CacheTTL: 4 * time.Hour,
		},
		Engine: EngineConfig{
			HalfLife:           halfLife,
			SkillGapWindow:     halfLife,
			ModalityMargin:     0.15,
			SeverityThreshold:  0.7,
			LowEngagement:      0.3,
			ModalityGapMin:     0.2,
			ConfidenceCap:      0.9,
			MaxConflictRetries: 3,
			StoreTimeout:       5 * time.Second,
		},
		LLM: LLMConfig{
			Providers:       []string{"together", "openai", "anthropic"},
			Timeout:         8 * time.Second,
			MaxTokens:       80,
			AnthropicModel:  "claude-haiku-4-5",
			OpenAIModel:     "gpt-4o-mini",
			TogetherModel:   "meta-llama/Meta-Llama-3.1-8B-Instruct-Turbo",
			TogetherBaseURL: "https://api.together.xyz/v1",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
	}
}

// Load layers configuration: struct defaults, then an optional YAML file,
// then environment variables. The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"llm.providers",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// legacyEnv maps the unprefixed names the service has always honored.
var legacyEnv = map[string]string{
	"port":              "server.port",
	"db_host":           "database.host",
	"db_port":           "database.port",
	"db_user":           "database.user",
	"db_password":       "database.password",
	"db_name":           "database.name",
	"db_sslmode":        "database.sslmode",
	"redis_url":         "redis.addr",
	"jwt_secret":        "auth.jwt_secret",
	"anthropic_api_key": "llm.anthropic_api_key",
	"openai_api_key":    "llm.openai_api_key",
	"together_api_key":  "llm.together_api_key",
}

// envTransformFunc maps BYTEOS_ENGINE_HALF_LIFE to engine.half_life. The
// first underscore after the prefix separates section from field. Unknown
// variables map to "" and are dropped.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, envPrefix) {
		rest := strings.ToLower(strings.TrimPrefix(key, envPrefix))
		section, field, ok := strings.Cut(rest, "_")
		if !ok || field == "" {
			return ""
		}
		return section + "." + field
	}
	if mapped, ok := legacyEnv[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
