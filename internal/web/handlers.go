package web

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/pipeline"
)

type chatRequest struct {
	TabID   int64  `json:"tab_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response        string `json:"response"`
	TokensUsed      int64  `json:"tokens_used"`
	TokensRemaining int64  `json:"tokens_remaining"`
}

type rejectionResponse struct {
	Error string `json:"error"`
	Limit int64  `json:"limit,omitempty"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type tabRequest struct {
	Name string `json:"name"`
}

type tabResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type botLinkResponse struct {
	Token string `json:"token"`
	URL   string `json:"url,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.log.ErrorContext(r.Context(), "Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, accountID int64) {
	ctx := r.Context()
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tab, err := s.deps.Store.GetSurface(ctx, accountID, req.TabID)
	if err != nil || tab.Kind != database.SurfaceTab {
		s.storeError(w, r, "Failed to resolve tab", err)
		return
	}

	result, err := s.deps.Pipeline.Submit(ctx, pipeline.Request{
		AccountID: accountID,
		SurfaceID: tab.ID,
		Text:      req.Message,
		MaxLength: s.deps.Config.MaxQuestionLength,
	})
	if err != nil {
		var callErr *pipeline.ExternalCallError
		if errors.As(err, &callErr) {
			s.log.WarnContext(ctx, "Model call failed", "account_id", accountID, "fault", callErr.Fault, "error", err)
			writeError(w, http.StatusBadGateway, "unable to get an answer, please try again later")
			return
		}
		s.log.ErrorContext(ctx, "Question aborted", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.Status == pipeline.StatusRejected {
		writeJSON(w, rejectionStatus(result.Reason), rejectionResponse{Error: string(result.Reason), Limit: result.Limit})
		return
	}
	for _, adv := range result.Advisories {
		s.log.WarnContext(ctx, "Answer delivered with advisory", "account_id", accountID, "advisory", adv)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:        result.Response,
		TokensUsed:      result.TokensUsed,
		TokensRemaining: result.TokensRemaining,
	})
}

func rejectionStatus(reason pipeline.Reason) int {
	switch reason {
	case pipeline.ReasonRateLimited:
		return http.StatusTooManyRequests
	case pipeline.ReasonInsufficientBalance:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, accountID int64) {
	balance, err := s.deps.Store.Balance(r.Context(), accountID)
	if err != nil {
		s.storeError(w, r, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request, accountID int64) {
	tabs, err := s.deps.Store.ListTabs(r.Context(), accountID)
	if err != nil {
		s.storeError(w, r, "Failed to list tabs", err)
		return
	}
	out := make([]tabResponse, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, toTabResponse(&t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTab(w http.ResponseWriter, r *http.Request, accountID int64) {
	var req tabRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	tab, err := s.deps.Store.CreateTab(r.Context(), accountID, req.Name)
	if err != nil {
		s.storeError(w, r, "Failed to create tab", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTabResponse(tab))
}

func (s *Server) handleRenameTab(w http.ResponseWriter, r *http.Request, accountID int64) {
	tabID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req tabRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tab, err := s.deps.Store.RenameTab(r.Context(), accountID, tabID, req.Name)
	if err != nil {
		s.storeError(w, r, "Failed to rename tab", err)
		return
	}
	writeJSON(w, http.StatusOK, toTabResponse(tab))
}

func (s *Server) handleDeleteTab(w http.ResponseWriter, r *http.Request, accountID int64) {
	tabID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteTab(r.Context(), accountID, tabID); err != nil {
		s.storeError(w, r, "Failed to delete tab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request, accountID int64) {
	tab, ok := s.ownedTab(w, r, accountID)
	if !ok {
		return
	}
	turns, err := s.deps.Store.ListTurns(r.Context(), tab.ID)
	if err != nil {
		s.storeError(w, r, "Failed to list messages", err)
		return
	}
	out := make([]messageResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, messageResponse{
			ID:        t.ID,
			Role:      t.Role.String,
			Content:   t.Content.String,
			CreatedAt: t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request, accountID int64) {
	tab, ok := s.ownedTab(w, r, accountID)
	if !ok {
		return
	}
	if _, err := s.deps.Store.DeleteTurns(r.Context(), tab.ID); err != nil {
		s.storeError(w, r, "Failed to clear messages", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBotLink(w http.ResponseWriter, r *http.Request, accountID int64) {
	ctx := r.Context()
	if _, err := s.deps.Store.GetAccount(ctx, accountID); err != nil {
		s.storeError(w, r, "Failed to load account", err)
		return
	}

	token, err := s.deps.Sessions.IssueLinkToken(ctx, accountID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to issue link token", "account_id", accountID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "bot linking unavailable")
		return
	}

	resp := botLinkResponse{Token: token}
	if s.deps.Config.BotURL != "" {
		resp.URL = s.deps.Config.BotURL + "?start=" + url.QueryEscape(token)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ownedTab(w http.ResponseWriter, r *http.Request, accountID int64) (*database.Surface, bool) {
	tabID, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	tab, err := s.deps.Store.GetSurface(r.Context(), accountID, tabID)
	if err != nil || tab.Kind != database.SurfaceTab {
		s.storeError(w, r, "Failed to resolve tab", err)
		return nil, false
	}
	return tab, true
}

// storeError maps store failures to responses. A nil err means the record
// exists but is not addressable through this API.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case err == nil, errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.ErrorContext(r.Context(), msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toTabResponse(t *database.Surface) tabResponse {
	return tabResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}
