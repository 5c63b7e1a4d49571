package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	sendMessageTimeout = 10 * time.Second
	typingInterval     = 4 * time.Second
	// maxMessageLength is Telegram's limit for one text message, in characters.
	maxMessageLength = 4096
)

// Sender is the subset of *bot.Bot the handlers call.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

var _ Sender = (*bot.Bot)(nil)

func mainKeyboard(deps HandlerDeps) *models.ReplyKeyboardMarkup {
	msgs := deps.Config.Messages
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{{Text: msgs.ButtonBalance}, {Text: msgs.ButtonClearContext}},
			{{Text: msgs.ButtonMainMenu}},
		},
		ResizeKeyboard: true,
	}
}

// reply sends text to chatID, split into Telegram-sized chunks. The keyboard
// is attached to the last chunk.
func reply(ctx context.Context, s Sender, chatID int64, text string, keyboard models.ReplyMarkup) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	chunks := splitMessage(text, maxMessageLength)
	for i, chunk := range chunks {
		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == len(chunks)-1 && keyboard != nil {
			params.ReplyMarkup = keyboard
		}
		if _, err := s.SendMessage(sendCtx, params); err != nil {
			return fmt.Errorf("failed to send message part %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit characters. A piece
// ends after the last newline in its second half when there is one.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// keepTyping shows the typing indicator in chatID until ctx is done.
func keepTyping(ctx context.Context, s Sender, chatID int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionTyping,
		}); err != nil && ctx.Err() == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
