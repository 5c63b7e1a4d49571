package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler describes one handler registration.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands returns every command and keyboard button handler.
// Plain questions go to NewQuestionHandler, installed as the default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	sessionRequired := []tgbot.Middleware{RequireSession(deps)}
	msgs := deps.Config.Messages

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}

	handlers["/balance"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "balance",
		Handler:     NewBalanceHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  sessionRequired,
	}
	handlers["button:balance"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     msgs.ButtonBalance,
		Handler:     NewBalanceHandler(deps),
		MatchType:   tgbot.MatchTypeExact,
		Middleware:  sessionRequired,
	}

	handlers["/clear_context"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "clear_context",
		Handler:     NewClearContextHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  sessionRequired,
	}
	handlers["button:clear_context"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     msgs.ButtonClearContext,
		Handler:     NewClearContextHandler(deps),
		MatchType:   tgbot.MatchTypeExact,
		Middleware:  sessionRequired,
	}

	handlers["button:main_menu"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     msgs.ButtonMainMenu,
		Handler:     NewMenuHandler(deps),
		MatchType:   tgbot.MatchTypeExact,
	}

	return handlers
}
