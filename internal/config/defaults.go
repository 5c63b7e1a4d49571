package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDBPath = "storage.db"

	DefaultRedisPrefix = "tokenbot:"

	DefaultQuotaBackend    = "sqlite"
	DefaultQuotaDailyLimit = 3
	DefaultQuotaTimezone   = "UTC"

	DefaultLedgerStartingGrant = 2000
	DefaultLedgerOutputReserve = 0
	DefaultLedgerWordWeight    = 1
	DefaultLedgerCharFraction  = 0.1

	DefaultConversationMaxTurns = 10

	DefaultLLMModel       = "gemini-2.0-flash"
	DefaultLLMTemperature = 1.0
	DefaultLLMTimeout     = 60 * time.Second
	DefaultLLMMaxRetries  = 1
	DefaultLLMRetryDelay  = 2 * time.Second

	DefaultLLMBreakerMaxFailures = 5
	DefaultLLMBreakerTimeout     = 30 * time.Second

	DefaultPipelineFinalizeTimeout = 15 * time.Second

	DefaultTelegramEnabled           = true
	DefaultTelegramMaxQuestionLength = 2000 // Bot front-end allows longer questions than the web
	DefaultTelegramSessionTTL        = 30 * 24 * time.Hour
	DefaultTelegramLinkTokenTTL      = time.Hour

	DefaultWebEnabled           = true
	DefaultWebAddr              = ":5000"
	DefaultWebAccountHeader     = "X-Account-ID"
	DefaultWebMaxQuestionLength = 1000
)

// DefaultTasks are scheduled unless overridden in config.yaml.
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	"quota_sweep":     {Enabled: true, Schedule: "0 15 * * * *"},
}

// DefaultMessages are the user-facing texts.
var DefaultMessages = MessagesConfig{
	Welcome:             "👋 Hello! I answer your questions. Use /balance to check your tokens and /clear_context to start a fresh dialog.",
	Linked:              "✅ Your account is linked. You can ask questions now.",
	LinkInvalid:         "🚫 This link is invalid or has expired. Please open the bot from the website again.",
	NotLinked:           "🔗 Please open the bot using the link on the website to link your account.",
	Balance:             "💰 Tokens remaining: %d",
	ContextCleared:      "🗑 Dialog context has been cleared.",
	TooLong:             "📝 The maximum question length is %d characters.",
	RateLimited:         "⏳ Daily limit of %d questions reached.",
	InsufficientBalance: "💸 Not enough tokens to send this question.",
	RetryLater:          "🤖 Unable to get an answer right now. Please try again later.",
	GeneralError:        "❌ An error occurred. Please try again later.",
	UsageFooter:         "\n\nTokens used: %d\nTokens remaining: %d",
	ButtonBalance:       "💰 Balance",
	ButtonClearContext:  "🗑 Clear Context",
	ButtonMainMenu:      "📋 Main Menu",
}
