package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/tokenbot/internal/config"
	"github.com/edgard/tokenbot/internal/database"
	"github.com/edgard/tokenbot/internal/llm"
	"github.com/edgard/tokenbot/internal/pipeline"
	"github.com/edgard/tokenbot/internal/session"
)

const accountHeader = "X-Account-ID"

type fakeSubmitter struct {
	result pipeline.Result
	err    error
	got    []pipeline.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

type harness struct {
	handler   http.Handler
	store     database.Store
	sessions  *session.MemoryStore
	submitter *fakeSubmitter
	accountID int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)
	acct, err := store.CreateAccount(context.Background(), "web@example.com", 2000)
	require.NoError(t, err)

	sessions := session.NewMemoryStore(time.Hour, time.Hour)
	submitter := &fakeSubmitter{}
	srv := NewServer(Deps{
		Logger: logger,
		Config: config.WebConfig{
			Addr:              ":0",
			AccountHeader:     accountHeader,
			MaxQuestionLength: 1000,
			BotURL:            "https://t.me/tokenbot",
		},
		Store:    store,
		Sessions: sessions,
		Pipeline: submitter,
	})

	return &harness{
		handler:   srv.Handler(),
		store:     store,
		sessions:  sessions,
		submitter: submitter,
		accountID: acct.ID,
	}
}

func (h *harness) do(t *testing.T, method, path, body string, accountID int64) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if accountID != 0 {
		req.Header.Set(accountHeader, strconv.FormatInt(accountID, 10))
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "", 0)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountHeaderRequired(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/balance", "", 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
	req.Header.Set(accountHeader, "abc")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBalance(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/balance", "", h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), decode[balanceResponse](t, rec).Balance)

	rec = h.do(t, http.MethodGet, "/api/balance", "", h.accountID+100)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTabsLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/tabs", "", h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	tabs := decode[[]tabResponse](t, rec)
	require.Len(t, tabs, 1)
	assert.Equal(t, database.DefaultTabName, tabs[0].Name)

	rec = h.do(t, http.MethodPost, "/api/tabs", `{"name":"Work"}`, h.accountID)
	require.Equal(t, http.StatusCreated, rec.Code)
	work := decode[tabResponse](t, rec)
	assert.Equal(t, "Work", work.Name)

	rec = h.do(t, http.MethodPost, "/api/tabs", "", h.accountID)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, database.DefaultTabName, decode[tabResponse](t, rec).Name)

	path := fmt.Sprintf("/api/tabs/%d", work.ID)
	rec = h.do(t, http.MethodPut, path, `{"name":"Personal"}`, h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Personal", decode[tabResponse](t, rec).Name)

	rec = h.do(t, http.MethodPut, path, `{"name":"`+strings.Repeat("x", 51)+`"}`, h.accountID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, path, "", h.accountID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, path, "", h.accountID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTabsAreAccountScoped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	other, err := h.store.CreateAccount(ctx, "other@example.com", 10)
	require.NoError(t, err)
	tab, err := h.store.CreateTab(ctx, other.ID, "Secret")
	require.NoError(t, err)

	path := fmt.Sprintf("/api/tabs/%d", tab.ID)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPut, path, `{"name":"x"}`, h.accountID).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, path, "", h.accountID).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, path+"/messages", "", h.accountID).Code)

	body := fmt.Sprintf(`{"tab_id":%d,"message":"hi"}`, tab.ID)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/chat", body, h.accountID).Code)
	assert.Empty(t, h.submitter.got)
}

func TestMessagesListAndClear(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	tab, err := h.store.CreateTab(ctx, h.accountID, "Work")
	require.NoError(t, err)
	_, err = h.store.AppendTurn(ctx, tab.ID, database.RoleUser, "question")
	require.NoError(t, err)
	_, err = h.store.AppendTurn(ctx, tab.ID, database.RoleAssistant, "answer")
	require.NoError(t, err)

	path := fmt.Sprintf("/api/tabs/%d/messages", tab.ID)
	rec := h.do(t, http.MethodGet, path, "", h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]messageResponse](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "question", msgs[0].Content)
	assert.Equal(t, database.RoleAssistant, msgs[1].Role)

	rec = h.do(t, http.MethodDelete, path, "", h.accountID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, path, "", h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]messageResponse](t, rec))
}

func TestChat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     pipeline.Result
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "answered",
			result:     pipeline.Result{Status: pipeline.StatusAnswered, Response: "42", TokensUsed: 5, TokensRemaining: 1995},
			wantStatus: http.StatusOK,
		},
		{
			name:       "too long",
			result:     pipeline.Result{Status: pipeline.StatusRejected, Reason: pipeline.ReasonTooLong, Limit: 1000},
			wantStatus: http.StatusBadRequest,
			wantError:  "too_long",
		},
		{
			name:       "rate limited",
			result:     pipeline.Result{Status: pipeline.StatusRejected, Reason: pipeline.ReasonRateLimited, Limit: 3},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate_limited",
		},
		{
			name:       "insufficient balance",
			result:     pipeline.Result{Status: pipeline.StatusRejected, Reason: pipeline.ReasonInsufficientBalance},
			wantStatus: http.StatusPaymentRequired,
			wantError:  "insufficient_balance",
		},
		{
			name:       "external failure",
			err:        &pipeline.ExternalCallError{Fault: llm.FaultUpstreamError, Err: errors.New("boom")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "infrastructure failure",
			err:        errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.submitter.result = tt.result
			h.submitter.err = tt.err

			tab, err := h.store.CreateTab(context.Background(), h.accountID, "Chat")
			require.NoError(t, err)

			body := fmt.Sprintf(`{"tab_id":%d,"message":"what is the answer?"}`, tab.ID)
			rec := h.do(t, http.MethodPost, "/api/chat", body, h.accountID)
			assert.Equal(t, tt.wantStatus, rec.Code)

			require.Len(t, h.submitter.got, 1)
			assert.Equal(t, pipeline.Request{
				AccountID: h.accountID,
				SurfaceID: tab.ID,
				Text:      "what is the answer?",
				MaxLength: 1000,
			}, h.submitter.got[0])

			if tt.wantStatus == http.StatusOK {
				resp := decode[chatResponse](t, rec)
				assert.Equal(t, chatResponse{Response: "42", TokensUsed: 5, TokensRemaining: 1995}, resp)
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[rejectionResponse](t, rec).Error)
			}
		})
	}
}

func TestChatRejectsDialogSurface(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	dialog, err := h.store.GetOrCreateDialog(context.Background(), h.accountID)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"tab_id":%d,"message":"hi"}`, dialog.ID)
	rec := h.do(t, http.MethodPost, "/api/chat", body, h.accountID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatInvalidBody(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/chat", "{", h.accountID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBotLink(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/bot-link", "", h.accountID)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[botLinkResponse](t, rec)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, "https://t.me/tokenbot?start="+resp.Token, resp.URL)

	accountID, err := h.sessions.RedeemLinkToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, h.accountID, accountID)

	rec = h.do(t, http.MethodPost, "/api/bot-link", "", h.accountID+100)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
