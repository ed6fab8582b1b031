package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port     int    `validate:"min=1,max=65535"`
	LogLevel string `validate:"oneof=debug info warn error"`

	ModelProvider    string        `validate:"oneof=anthropic gemini"`
	AnthropicAPIKey  string        `validate:"required_if=ModelProvider anthropic"`
	AnthropicModel   string        `validate:"required"`
	GeminiAPIKey     string        `validate:"required_if=ModelProvider gemini"`
	GeminiModel      string        `validate:"required"`
	ModelTimeout     time.Duration // 0 means no deadline
	TargetLanguage   string
	FallbackLanguage string

	StoreDriver string `validate:"oneof=memory sqlite postgres"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `validate:"required_if=StoreDriver sqlite"`

	NatsURL   string
	NatsToken string
	APIToken  string

	TTSURL      string
	S3Endpoint  string
	S3Bucket    string `validate:"required_with=S3Endpoint"`
	S3Region    string
	S3AccessKey string
	S3SecretKey string

	SlackBotToken string
	SlackChannel  string `validate:"required_with=SlackBotToken"`

	ImportStatePath string
	ImportDelay     time.Duration

	Timezone     string
	MorphEnabled bool
}

func Load() Config {
	return Config{
		Port:     envInt("GLOSSA_PORT", 8760),
		LogLevel: strings.ToLower(envStr("LOG_LEVEL", "info")),

		ModelProvider:    strings.ToLower(envStr("MODEL_PROVIDER", "anthropic")),
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   envStr("GLOSSA_MODEL", "claude-sonnet-4-20250514"),
		GeminiAPIKey:     envStr("GEMINI_API_KEY", ""),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.5-flash"),
		ModelTimeout:     envDuration("MODEL_TIMEOUT", 0),
		TargetLanguage:   envStr("TARGET_LANGUAGE", "简体中文"),
		FallbackLanguage: envStr("FALLBACK_LANGUAGE", "未知"),

		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", "sqlite")),
		DatabaseURL: envStr("DATABASE_URL", ""),
		SQLitePath:  envStr("SQLITE_PATH", "glossa.db"),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),
		APIToken:  envStr("GLOSSA_API_TOKEN", ""),

		TTSURL:      envStr("TTS_URL", "https://translate.google.com/translate_tts"),
		S3Endpoint:  envStr("S3_ENDPOINT", ""),
		S3Bucket:    envStr("S3_BUCKET", ""),
		S3Region:    envStr("S3_REGION", "us-east-1"),
		S3AccessKey: envStr("S3_ACCESS_KEY", ""),
		S3SecretKey: envStr("S3_SECRET_KEY", ""),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_CHANNEL", ""),

		ImportStatePath: envStr("IMPORT_STATE_PATH", "~/.glossa/import-state.json"),
		ImportDelay:     envDuration("IMPORT_DELAY", time.Second),

		Timezone:     envStr("TIMEZONE", "Local"),
		MorphEnabled: envBool("MORPH_ENABLED", true),
	}
}

// Validate checks field constraints and that the timezone resolves.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone for history timestamps.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlackEnabled reports whether import summaries are posted to Slack.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// SpeechCacheEnabled reports whether synthesized audio goes to S3.
func (c Config) SpeechCacheEnabled() bool {
	return c.S3Bucket != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("30s") or plain seconds ("30").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
