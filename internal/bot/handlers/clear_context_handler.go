package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewClearContextHandler returns a handler that deletes the bot dialog's
// history. It expects RequireSession to run first.
func NewClearContextHandler(deps HandlerDeps) bot.HandlerFunc {
	h := clearContextHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type clearContextHandler struct {
	deps HandlerDeps
}

func (h clearContextHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "clear_context")
	accountID, ok := accountFromContext(ctx)
	if !ok || update.Message == nil {
		log.ErrorContext(ctx, "Clear context handler called without session")
		return
	}
	chatID := update.Message.Chat.ID

	text := h.deps.Config.Messages.ContextCleared
	dialog, err := h.deps.Store.GetOrCreateDialog(ctx, accountID)
	if err == nil {
		_, err = h.deps.Store.DeleteTurns(ctx, dialog.ID)
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to clear dialog", "account_id", accountID, "error", err)
		text = h.deps.Config.Messages.GeneralError
	}

	if err := reply(ctx, s, chatID, text, mainKeyboard(h.deps)); err != nil {
		log.ErrorContext(ctx, "Failed to send clear confirmation", "error", err, "chat_id", chatID)
	}
}
