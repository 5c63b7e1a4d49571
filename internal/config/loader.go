package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TOKENBOT_LLM_API_KEY.
const EnvPrefix = "TOKENBOT"

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional; a missing file is not an error)
// 3. TOKENBOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
		slog.Info("configuration file not found, using defaults and environment", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded",
		"path", path,
		"quota_backend", cfg.Quota.Backend,
		"llm_model", cfg.LLM.Model,
		"db_path", cfg.Database.Path,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks struct tags plus the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Quota.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("%w: quota.backend is redis but redis.url is empty", ErrConfiguration)
	}
	if !c.Telegram.Enabled && !c.Web.Enabled {
		return fmt.Errorf("%w: at least one of telegram or web must be enabled", ErrConfiguration)
	}
	return nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.prefix", DefaultRedisPrefix)

	v.SetDefault("quota.backend", DefaultQuotaBackend)
	v.SetDefault("quota.daily_limit", DefaultQuotaDailyLimit)
	v.SetDefault("quota.timezone", DefaultQuotaTimezone)

	v.SetDefault("ledger.starting_grant", DefaultLedgerStartingGrant)
	v.SetDefault("ledger.output_reserve", DefaultLedgerOutputReserve)
	v.SetDefault("ledger.word_weight", DefaultLedgerWordWeight)
	v.SetDefault("ledger.char_fraction", DefaultLedgerCharFraction)

	v.SetDefault("conversation.max_turns", DefaultConversationMaxTurns)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.temperature", DefaultLLMTemperature)
	v.SetDefault("llm.system_instruction", "")
	v.SetDefault("llm.timeout", DefaultLLMTimeout)
	v.SetDefault("llm.max_retries", DefaultLLMMaxRetries)
	v.SetDefault("llm.retry_delay", DefaultLLMRetryDelay)
	v.SetDefault("llm.breaker_max_failures", DefaultLLMBreakerMaxFailures)
	v.SetDefault("llm.breaker_timeout", DefaultLLMBreakerTimeout)

	v.SetDefault("pipeline.finalize_timeout", DefaultPipelineFinalizeTimeout)

	v.SetDefault("telegram.enabled", DefaultTelegramEnabled)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.max_question_length", DefaultTelegramMaxQuestionLength)
	v.SetDefault("telegram.session_ttl", DefaultTelegramSessionTTL)
	v.SetDefault("telegram.link_token_ttl", DefaultTelegramLinkTokenTTL)

	v.SetDefault("web.enabled", DefaultWebEnabled)
	v.SetDefault("web.addr", DefaultWebAddr)
	v.SetDefault("web.account_header", DefaultWebAccountHeader)
	v.SetDefault("web.max_question_length", DefaultWebMaxQuestionLength)
	v.SetDefault("web.bot_url", "")

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	m := DefaultMessages
	v.SetDefault("messages.welcome", m.Welcome)
	v.SetDefault("messages.linked", m.Linked)
	v.SetDefault("messages.link_invalid", m.LinkInvalid)
	v.SetDefault("messages.not_linked", m.NotLinked)
	v.SetDefault("messages.balance", m.Balance)
	v.SetDefault("messages.context_cleared", m.ContextCleared)
	v.SetDefault("messages.too_long", m.TooLong)
	v.SetDefault("messages.rate_limited", m.RateLimited)
	v.SetDefault("messages.insufficient_balance", m.InsufficientBalance)
	v.SetDefault("messages.retry_later", m.RetryLater)
	v.SetDefault("messages.general_error", m.GeneralError)
	v.SetDefault("messages.usage_footer", m.UsageFooter)
	v.SetDefault("messages.button_balance", m.ButtonBalance)
	v.SetDefault("messages.button_clear_context", m.ButtonClearContext)
	v.SetDefault("messages.button_main_menu", m.ButtonMainMenu)
}
