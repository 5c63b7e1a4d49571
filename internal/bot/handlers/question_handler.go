package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/tokenbot/internal/pipeline"
)

// NewQuestionHandler returns the default handler: every plain text message
// from a linked chat is submitted as a question on the account's dialog.
func NewQuestionHandler(deps HandlerDeps) bot.HandlerFunc {
	h := questionHandler{deps}
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if !isQuestion(update) {
			return
		}
		ctx, ok := resolveSession(ctx, deps, b, update)
		if !ok {
			return
		}
		h.handle(ctx, b, update)
	}
}

type questionHandler struct {
	deps HandlerDeps
}

func isQuestion(update *models.Update) bool {
	if update.Message == nil {
		return false
	}
	text := strings.TrimSpace(update.Message.Text)
	return text != "" && !strings.HasPrefix(text, "/")
}

func (h questionHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	accountID, ok := accountFromContext(ctx)
	if !ok {
		return
	}
	chatID := update.Message.Chat.ID
	log := h.deps.Logger.With("handler", "question", "chat_id", chatID, "account_id", accountID)

	dialog, err := h.deps.Store.GetOrCreateDialog(ctx, accountID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve dialog", "error", err)
		h.send(ctx, s, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	typingCtx, stopTyping := context.WithCancel(ctx)
	go keepTyping(typingCtx, s, chatID, typingInterval)

	result, err := h.deps.Pipeline.Submit(ctx, pipeline.Request{
		AccountID: accountID,
		SurfaceID: dialog.ID,
		Text:      update.Message.Text,
		MaxLength: h.deps.Config.Telegram.MaxQuestionLength,
	})
	stopTyping()

	text := h.render(result, err)
	if err != nil {
		log.WarnContext(ctx, "Question aborted", "error", err)
	}
	if text == "" {
		return
	}
	h.send(ctx, s, chatID, text)
}

// render turns a pipeline outcome into the reply text. Causes of failures
// are not shown to the user.
func (h questionHandler) render(result pipeline.Result, err error) string {
	msgs := h.deps.Config.Messages

	if err != nil {
		var callErr *pipeline.ExternalCallError
		if errors.As(err, &callErr) {
			return msgs.RetryLater
		}
		return msgs.GeneralError
	}

	if result.Status == pipeline.StatusRejected {
		switch result.Reason {
		case pipeline.ReasonTooLong:
			return fmt.Sprintf(msgs.TooLong, result.Limit)
		case pipeline.ReasonRateLimited:
			return fmt.Sprintf(msgs.RateLimited, result.Limit)
		case pipeline.ReasonInsufficientBalance:
			return msgs.InsufficientBalance
		default:
			return ""
		}
	}

	return result.Response + fmt.Sprintf(msgs.UsageFooter, result.TokensUsed, result.TokensRemaining)
}

func (h questionHandler) send(ctx context.Context, s Sender, chatID int64, text string) {
	if err := reply(ctx, s, chatID, text, mainKeyboard(h.deps)); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send answer", "handler", "question", "chat_id", chatID, "error", err)
	}
}
