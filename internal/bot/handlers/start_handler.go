package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/tokenbot/internal/session"
)

// NewStartHandler returns a handler for /start. "/start <token>" redeems a
// link token issued by the web front-end and binds the chat to its account.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	h := startHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		h.handle(ctx, b, update)
	}
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")
	if update.Message == nil {
		log.WarnContext(ctx, "Start handler received update without message", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	text := msgs.Welcome
	if token := startToken(update.Message.Text); token != "" {
		text = h.link(ctx, chatID, token)
	} else if _, err := h.deps.Sessions.Lookup(ctx, chatID); err != nil {
		text = msgs.Welcome + "\n\n" + msgs.NotLinked
	}

	if err := reply(ctx, s, chatID, text, mainKeyboard(h.deps)); err != nil {
		log.ErrorContext(ctx, "Failed to send start reply", "error", err, "chat_id", chatID)
	}
}

func (h startHandler) link(ctx context.Context, chatID int64, token string) string {
	log := h.deps.Logger.With("handler", "start", "chat_id", chatID)
	msgs := h.deps.Config.Messages

	accountID, err := h.deps.Sessions.RedeemLinkToken(ctx, token)
	if errors.Is(err, session.ErrInvalidToken) {
		log.InfoContext(ctx, "Invalid or expired link token")
		return msgs.LinkInvalid
	}
	if err != nil {
		log.ErrorContext(ctx, "Redeeming link token failed", "error", err)
		return msgs.GeneralError
	}

	if err := h.deps.Sessions.Bind(ctx, chatID, accountID); err != nil {
		log.ErrorContext(ctx, "Binding chat failed", "account_id", accountID, "error", err)
		return msgs.GeneralError
	}
	if _, err := h.deps.Store.GetOrCreateDialog(ctx, accountID); err != nil {
		log.WarnContext(ctx, "Creating dialog failed, it will be created on first question", "account_id", accountID, "error", err)
	}

	log.InfoContext(ctx, "Chat linked to account", "account_id", accountID)
	return msgs.Linked
}

// startToken extracts the deep-link payload from "/start <payload>".
func startToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
