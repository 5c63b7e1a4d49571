package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/tokenbot/internal/config"
	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/pipeline"
	"github.com/edgard/tokenbot/internal/session"
)

// Submitter runs a question through the request pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Sessions session.Store
	Pipeline Submitter
}
