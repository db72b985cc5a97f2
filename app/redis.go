package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisStatePrefix   = "authbff:state:"
	redisSessionPrefix = "authbff:session:"
)

// RedisStore implements Store on Redis for multi-instance deployments. Keys
// carry native TTLs, so no janitor is needed.
type RedisStore struct {
	client     redis.UniversalClient
	stateTTL   time.Duration
	sessionTTL time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, stateTTL, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, stateTTL: stateTTL, sessionTTL: sessionTTL}
}

// SavePendingState stores the encoded pending-state payload with TTL.
func (s *RedisStore) SavePendingState(ctx context.Context, ps PendingState) error {
	payload, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, redisStatePrefix+ps.State, payload, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// ConsumeState atomically loads and removes the state via GETDEL, so two
// concurrent callbacks racing on the same state cannot both succeed.
func (s *RedisStore) ConsumeState(ctx context.Context, state string) (PendingState, bool, error) {
	raw, err := s.client.GetDel(ctx, redisStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PendingState{}, false, nil
		}
		return PendingState{}, false, fmt.Errorf("consume state: %w", err)
	}
	var ps PendingState
	if err := json.Unmarshal(raw, &ps); err != nil {
		return PendingState{}, false, fmt.Errorf("decode state: %w", err)
	}
	return ps, true, nil
}

// SaveSession stores the encoded session with the credential lifetime as TTL.
func (s *RedisStore) SaveSession(ctx context.Context, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, redisSessionPrefix+sess.ID, payload, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// GetSession loads and decodes a session.
func (s *RedisStore) GetSession(ctx context.Context, id string) (Session, bool, error) {
	raw, err := s.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return sess, true, nil
}

// DeleteSession removes the session key. Missing keys are not an error.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisSessionPrefix+id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
