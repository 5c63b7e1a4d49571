package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewMenuHandler re-sends the welcome text with the main keyboard.
func NewMenuHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message == nil {
			return
		}
		chatID := update.Message.Chat.ID
		if err := reply(ctx, b, chatID, deps.Config.Messages.Welcome, mainKeyboard(deps)); err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to send menu", "handler", "menu", "error", err, "chat_id", chatID)
		}
	}
}
