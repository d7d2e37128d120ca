package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
)

const (
	// Redis key prefix for session snapshots
	sessionKeyPrefix = "wizard:session:"

	defaultTTL = 24 * time.Hour
)

// RedisStore keeps JSON snapshots in Redis with a sliding TTL, so abandoned
// drafts expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

type RedisOption func(*RedisStore)

// WithTTL sets how long an untouched snapshot survives.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis constructs a Redis-backed snapshot store. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: sessionKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(sessionID id.SessionID) string {
	return s.prefix + sessionID.String()
}

// Save overwrites the snapshot and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w: %w", session.ID, ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w: %w", sessionID, ErrUnavailable, err)
	}
	return decode(data)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID id.SessionID) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w: %w", sessionID, ErrUnavailable, err)
	}
	return nil
}

// TTL reports the remaining lifetime of a snapshot.
func (s *RedisStore) TTL(ctx context.Context, sessionID id.SessionID) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.key(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl session %s: %w: %w", sessionID, ErrUnavailable, err)
	}
	if ttl < 0 {
		return 0, ErrNotFound
	}
	return ttl, nil
}
