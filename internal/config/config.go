// Package config provides configuration loading, validation, and management
// for TokenBot. It reads a YAML file, applies TOKENBOT_* environment overrides,
// fills defaults and validates the result.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration is wrapped by every error returned from LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration parameters for all components.
type Config struct {
	Logger       LoggerConfig       `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Quota        QuotaConfig        `mapstructure:"quota"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Web          WebConfig          `mapstructure:"web"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Messages     MessagesConfig     `mapstructure:"messages"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// RedisConfig is optional; an empty URL disables every Redis-backed store.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// QuotaConfig configures the daily request gate.
type QuotaConfig struct {
	Backend    string `mapstructure:"backend"     validate:"required,oneof=sqlite redis memory"`
	DailyLimit int64  `mapstructure:"daily_limit" validate:"required,gt=0"`
	Timezone   string `mapstructure:"timezone"    validate:"required,timezone"`
}

// LedgerConfig configures token accounting.
type LedgerConfig struct {
	StartingGrant int64   `mapstructure:"starting_grant" validate:"gte=0"`
	OutputReserve int64   `mapstructure:"output_reserve" validate:"gte=0"`
	WordWeight    int64   `mapstructure:"word_weight"    validate:"gte=0"`
	CharFraction  float64 `mapstructure:"char_fraction"  validate:"gte=0"`
}

// ConversationConfig bounds the prompt context.
type ConversationConfig struct {
	MaxTurns int `mapstructure:"max_turns" validate:"gte=0,lte=200"`
}

// LLMConfig holds settings for the Gemini API client.
type LLMConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	Model              string        `mapstructure:"model"           validate:"required"`
	Temperature        float32       `mapstructure:"temperature"     validate:"min=0,max=2"`
	SystemInstruction  string        `mapstructure:"system_instruction"`
	Timeout            time.Duration `mapstructure:"timeout"         validate:"min=1s,max=10m"`
	MaxRetries         int           `mapstructure:"max_retries"     validate:"gte=0,lte=5"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"     validate:"gte=0"`
	// BreakerMaxFailures consecutive failures open the circuit; 0 disables it.
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout" validate:"gte=0"`
}

// PipelineConfig tunes the request pipeline.
type PipelineConfig struct {
	// FinalizeTimeout bounds settlement and persistence, which run detached
	// from the caller's context.
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout" validate:"min=1s"`
}

// TelegramConfig holds settings for the bot front-end.
type TelegramConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Token             string        `mapstructure:"token"               validate:"required_if=Enabled true"`
	MaxQuestionLength int           `mapstructure:"max_question_length" validate:"gt=0"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"         validate:"min=1m"`
	LinkTokenTTL      time.Duration `mapstructure:"link_token_ttl"      validate:"min=1m"`
}

// WebConfig holds settings for the HTTP front-end.
type WebConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Addr              string `mapstructure:"addr"                validate:"required_if=Enabled true"`
	AccountHeader     string `mapstructure:"account_header"      validate:"required"`
	MaxQuestionLength int    `mapstructure:"max_question_length" validate:"gt=0"`
	BotURL            string `mapstructure:"bot_url"             validate:"omitempty,url"`
}

// SchedulerConfig lists the cron tasks.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// MessagesConfig holds user-facing texts shared by both front-ends.
type MessagesConfig struct {
	Welcome             string `mapstructure:"welcome"              validate:"required"`
	Linked              string `mapstructure:"linked"               validate:"required"`
	LinkInvalid         string `mapstructure:"link_invalid"         validate:"required"`
	NotLinked           string `mapstructure:"not_linked"           validate:"required"`
	Balance             string `mapstructure:"balance"              validate:"required"`
	ContextCleared      string `mapstructure:"context_cleared"      validate:"required"`
	TooLong             string `mapstructure:"too_long"             validate:"required"`
	RateLimited         string `mapstructure:"rate_limited"         validate:"required"`
	InsufficientBalance string `mapstructure:"insufficient_balance" validate:"required"`
	RetryLater          string `mapstructure:"retry_later"          validate:"required"`
	GeneralError        string `mapstructure:"general_error"        validate:"required"`
	UsageFooter         string `mapstructure:"usage_footer"         validate:"required"`
	ButtonBalance       string `mapstructure:"button_balance"       validate:"required"`
	ButtonClearContext  string `mapstructure:"button_clear_context" validate:"required"`
	ButtonMainMenu      string `mapstructure:"button_main_menu"     validate:"required"`
}

// Location resolves the quota timezone. Validation guarantees it loads.
func (q QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
