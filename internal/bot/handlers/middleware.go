// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"errors"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/tokenbot/internal/session"
)

type accountKey struct{}

// accountFromContext returns the account bound by RequireSession.
func accountFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountKey{}).(int64)
	return id, ok
}

// RequireSession resolves the chat's linked account and stores it in the
// context. Unlinked chats are told how to link and the update stops here.
func RequireSession(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if ctx, ok := resolveSession(ctx, deps, b, update); ok {
				next(ctx, b, update)
			}
		}
	}
}

func resolveSession(ctx context.Context, deps HandlerDeps, s Sender, update *models.Update) (context.Context, bool) {
	if update.Message == nil {
		return ctx, false
	}
	chatID := update.Message.Chat.ID
	log := deps.Logger.With("middleware", "RequireSession", "chat_id", chatID)

	accountID, err := deps.Sessions.Lookup(ctx, chatID)
	if err == nil {
		return context.WithValue(ctx, accountKey{}, accountID), true
	}

	text := deps.Config.Messages.NotLinked
	if errors.Is(err, session.ErrNotLinked) {
		log.InfoContext(ctx, "Message from unlinked chat")
	} else {
		log.ErrorContext(ctx, "Session lookup failed", "error", err)
		text = deps.Config.Messages.GeneralError
	}

	if err := reply(ctx, s, chatID, text, nil); err != nil {
		log.ErrorContext(ctx, "Failed to send session reply", "error", err)
	}
	return ctx, false
}
