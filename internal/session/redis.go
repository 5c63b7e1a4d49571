package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore shares sessions and link tokens between bot and web instances.
type RedisStore struct {
	client     goredis.Cmdable
	keyPrefix  string
	sessionTTL time.Duration
	tokenTTL   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed session store. keyPrefix is prepended
// to every key.
func NewRedisStore(client goredis.Cmdable, keyPrefix string, sessionTTL, tokenTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		keyPrefix:  keyPrefix,
		sessionTTL: sessionTTL,
		tokenTTL:   tokenTTL,
	}
}

func (s *RedisStore) sessionKey(chatID int64) string {
	return s.keyPrefix + "session:" + strconv.FormatInt(chatID, 10)
}

func (s *RedisStore) tokenKey(token string) string {
	return s.keyPrefix + "bot_token:" + token
}

func (s *RedisStore) Bind(ctx context.Context, chatID, accountID int64) error {
	if err := s.client.Set(ctx, s.sessionKey(chatID), accountID, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis bind chat %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, chatID int64) (int64, error) {
	accountID, err := s.client.GetEx(ctx, s.sessionKey(chatID), s.sessionTTL).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, ErrNotLinked
	}
	if err != nil {
		return 0, fmt.Errorf("redis lookup chat %d: %w", chatID, err)
	}
	return accountID, nil
}

func (s *RedisStore) Unbind(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, s.sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("redis unbind chat %d: %w", chatID, err)
	}
	return nil
}

func (s *RedisStore) IssueLinkToken(ctx context.Context, accountID int64) (string, error) {
	token := newToken()
	if err := s.client.Set(ctx, s.tokenKey(token), accountID, s.tokenTTL).Err(); err != nil {
		return "", fmt.Errorf("redis issue link token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) RedeemLinkToken(ctx context.Context, token string) (int64, error) {
	accountID, err := s.client.GetDel(ctx, s.tokenKey(token)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("redis redeem link token: %w", err)
	}
	return accountID, nil
}
