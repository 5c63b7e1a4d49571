package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewBalanceHandler returns a handler for /balance and the balance button.
// It expects RequireSession to run first.
func NewBalanceHandler(deps HandlerDeps) bot.HandlerFunc {
	h := balanceHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type balanceHandler struct {
	deps HandlerDeps
}

func (h balanceHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "balance")
	accountID, ok := accountFromContext(ctx)
	if !ok || update.Message == nil {
		log.ErrorContext(ctx, "Balance handler called without session")
		return
	}
	chatID := update.Message.Chat.ID

	text := h.deps.Config.Messages.GeneralError
	balance, err := h.deps.Store.Balance(ctx, accountID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read balance", "account_id", accountID, "error", err)
	} else {
		text = fmt.Sprintf(h.deps.Config.Messages.Balance, balance)
	}

	if err := reply(ctx, s, chatID, text, mainKeyboard(h.deps)); err != nil {
		log.ErrorContext(ctx, "Failed to send balance", "error", err, "chat_id", chatID)
	}
}
