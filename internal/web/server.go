// Package web serves the JSON API used by the browser front-end. Requests
// arrive already authenticated: the account id is read from a header set by
// the upstream auth proxy.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edgard/tokenbot/internal/config"
	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/logger"
	"github.com/edgard/tokenbot/internal/pipeline"
	"github.com/edgard/tokenbot/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxBodyBytes      = 64 << 10
)

// Submitter runs a question through the request pipeline.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Deps are the collaborators of the web handlers.
type Deps struct {
	Logger   *slog.Logger
	Config   config.WebConfig
	Store    database.Store
	Sessions session.Store
	Pipeline Submitter
}

// Server holds the HTTP routes.
type Server struct {
	deps Deps
	log  *slog.Logger
	mux  *http.ServeMux
}

// NewServer builds the route table.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		deps: deps,
		log:  deps.Logger.With("component", "web"),
		mux:  http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/chat", s.withAccount(s.handleChat))
	s.mux.HandleFunc("GET /api/balance", s.withAccount(s.handleBalance))
	s.mux.HandleFunc("GET /api/tabs", s.withAccount(s.handleListTabs))
	s.mux.HandleFunc("POST /api/tabs", s.withAccount(s.handleCreateTab))
	s.mux.HandleFunc("PUT /api/tabs/{id}", s.withAccount(s.handleRenameTab))
	s.mux.HandleFunc("DELETE /api/tabs/{id}", s.withAccount(s.handleDeleteTab))
	s.mux.HandleFunc("GET /api/tabs/{id}/messages", s.withAccount(s.handleListMessages))
	s.mux.HandleFunc("DELETE /api/tabs/{id}/messages", s.withAccount(s.handleClearMessages))
	s.mux.HandleFunc("POST /api/bot-link", s.withAccount(s.handleBotLink))

	return s
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return logger.HTTPMiddleware(s.deps.Logger, s.mux)
}

// HTTPServer returns an *http.Server listening on the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.deps.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

type accountHandler func(w http.ResponseWriter, r *http.Request, accountID int64)

// withAccount rejects requests without a valid account header.
func (s *Server) withAccount(next accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(s.deps.Config.AccountHeader)
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || accountID <= 0 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, accountID)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
