package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a JSON value under prefix+userID.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps a go-redis client. A zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

// Get loads and decodes the session value.
func (r *RedisStore) Get(ctx context.Context, userID int64) (UserSession, bool, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return UserSession{}, false, nil
	}
	if err != nil {
		return UserSession{}, false, fmt.Errorf("redis get session %d: %w", userID, err)
	}
	s, err := decodeSession(raw)
	if err != nil {
		return UserSession{}, false, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return s, true, nil
}

// Save encodes and writes the session value.
func (r *RedisStore) Save(ctx context.Context, s UserSession) error {
	raw, err := encodeSession(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.TelegramUserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session %d: %w", s.TelegramUserID, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func encodeSession(s UserSession) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	return json.Marshal(s)
}

func decodeSession(raw []byte) (UserSession, error) {
	var s UserSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return UserSession{}, err
	}
	if err := s.Validate(); err != nil {
		return UserSession{}, err
	}
	return s, nil
}
