package session

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	maxMemorySessions = 100_000
	maxMemoryTokens   = 10_000
)

// MemoryStore keeps sessions in process. Bindings are lost on restart.
type MemoryStore struct {
	sessions *expirable.LRU[int64, int64]

	mu     sync.Mutex
	tokens *expirable.LRU[string, int64]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose bindings live for sessionTTL since
// last use and whose link tokens live for tokenTTL.
func NewMemoryStore(sessionTTL, tokenTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: expirable.NewLRU[int64, int64](maxMemorySessions, nil, sessionTTL),
		tokens:   expirable.NewLRU[string, int64](maxMemoryTokens, nil, tokenTTL),
	}
}

func (m *MemoryStore) Bind(_ context.Context, chatID, accountID int64) error {
	m.sessions.Add(chatID, accountID)
	return nil
}

func (m *MemoryStore) Lookup(_ context.Context, chatID int64) (int64, error) {
	accountID, ok := m.sessions.Get(chatID)
	if !ok {
		return 0, ErrNotLinked
	}
	m.sessions.Add(chatID, accountID)
	return accountID, nil
}

func (m *MemoryStore) Unbind(_ context.Context, chatID int64) error {
	m.sessions.Remove(chatID)
	return nil
}

func (m *MemoryStore) IssueLinkToken(_ context.Context, accountID int64) (string, error) {
	token := newToken()
	m.tokens.Add(token, accountID)
	return token, nil
}

func (m *MemoryStore) RedeemLinkToken(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accountID, ok := m.tokens.Get(token)
	if !ok {
		return 0, ErrInvalidToken
	}
	m.tokens.Remove(token)
	return accountID, nil
}
