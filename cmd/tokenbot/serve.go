package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbot "github.com/go-telegram/bot"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/edgard/tokenbot/internal/bot"
	"github.com/edgard/tokenbot/internal/bot/handlers"
	"github.com/edgard/tokenbot/internal/bot/tasks"
	"github.com/edgard/tokenbot/internal/config"
	"github.com/edgard/tokenbot/internal/conversation"
	"github.com/edgard/tokenbot/internal/ledger"
	"github.com/edgard/tokenbot/internal/llm"
	"github.com/edgard/tokenbot/internal/pipeline"
	"github.com/edgard/tokenbot/internal/quota"
	"github.com/edgard/tokenbot/internal/session"
	"github.com/edgard/tokenbot/internal/telegram"
	"github.com/edgard/tokenbot/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the web API and the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	b, err := openBase(opts)
	if err != nil {
		return err
	}
	defer b.Close()
	cfg, log := b.cfg, b.log

	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		rdb, err = newRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	counters, sweeper, err := newCounterStore(cfg, b, rdb)
	if err != nil {
		return err
	}
	gate := quota.NewGate(counters, cfg.Quota.DailyLimit, cfg.Quota.Location(), log)

	estimator := ledger.WordCharEstimator{WordWeight: cfg.Ledger.WordWeight, CharFraction: cfg.Ledger.CharFraction}
	ldg := ledger.New(b.store, estimator, cfg.Ledger.OutputReserve, log)
	builder := conversation.NewBuilder(b.store, cfg.Conversation.MaxTurns)

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		SystemInstruction: cfg.LLM.SystemInstruction,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        cfg.LLM.RetryDelay,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	var client llm.Client = gemini
	if cfg.LLM.BreakerMaxFailures > 0 {
		client = llm.NewBreakerClient(gemini, llm.BreakerConfig{
			MaxFailures: cfg.LLM.BreakerMaxFailures,
			OpenTimeout: cfg.LLM.BreakerTimeout,
		}, log)
	}

	pl := pipeline.New(gate, ldg, builder, b.store, client, pipeline.Config{
		Model:           cfg.LLM.Model,
		LLMTimeout:      cfg.LLM.Timeout,
		FinalizeTimeout: cfg.Pipeline.FinalizeTimeout,
	}, log)

	var sessions session.Store
	if rdb != nil {
		sessions = session.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Telegram.SessionTTL, cfg.Telegram.LinkTokenTTL)
	} else {
		log.Warn("Redis not configured, bot sessions are kept in memory")
		sessions = session.NewMemoryStore(cfg.Telegram.SessionTTL, cfg.Telegram.LinkTokenTTL)
	}

	var tg *tgbot.Bot
	if cfg.Telegram.Enabled {
		hDeps := handlers.HandlerDeps{
			Logger:   log,
			Config:   cfg,
			Store:    b.store,
			Sessions: sessions,
			Pipeline: pl,
		}
		tg, err = telegram.NewTelegramBot(cfg.Telegram.Token, hDeps)
		if err != nil {
			return err
		}
		if _, err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
			return fmt.Errorf("failed to register telegram handlers: %w", err)
		}
	}

	var server *http.Server
	if cfg.Web.Enabled {
		server = web.NewServer(web.Deps{
			Logger:   log,
			Config:   cfg.Web,
			Store:    b.store,
			Sessions: sessions,
			Pipeline: pl,
		}).HTTPServer()
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:   log,
		Store:    b.store,
		Counters: sweeper,
	}))
	if err != nil {
		return err
	}

	log.Info("Starting tokenbot",
		"telegram", cfg.Telegram.Enabled,
		"web", cfg.Web.Enabled,
		"quota_backend", cfg.Quota.Backend)

	if err := bot.NewBot(log, tg, server, sched).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	redisOpts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := goredis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// newCounterStore picks the quota backend. The sweeper is nil for Redis,
// which expires keys itself.
func newCounterStore(cfg *config.Config, b *base, rdb *goredis.Client) (quota.CounterStore, tasks.CounterSweeper, error) {
	switch cfg.Quota.Backend {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("quota backend redis requires redis.url")
		}
		return quota.NewRedisStore(rdb, quota.WithKeyPrefix(cfg.Redis.Prefix)), nil, nil
	case "memory":
		m := quota.NewMemoryStore()
		return m, m, nil
	default:
		return b.store, b.store, nil
	}
}
