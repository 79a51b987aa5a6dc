package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"account_service/internal/model"
	"account_service/internal/utils"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	userSetKeyPrefix = "user_sessions:"
)

// Store defines operations for the session store. Resolve returns (nil, nil)
// for absent or expired tokens; expiry is re-checked on every call.
type Store interface {
	Issue(ctx context.Context, userID int, role string, ttl time.Duration) (string, error)
	Resolve(ctx context.Context, token string) (*model.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID int) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

func userSetKey(userID int) string {
	return fmt.Sprintf("%s%d", userSetKeyPrefix, userID)
}

// Issue creates a new session for the user and returns its opaque token
func (s *redisStore) Issue(ctx context.Context, userID int, role string, ttl time.Duration) (string, error) {
	token, err := utils.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	sess := model.Session{
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(ttl),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(token), payload, ttl)
	pipe.SAdd(ctx, userSetKey(userID), token)
	// The per-user set outlives its longest session so RevokeAll always sees
	// every live token. Stale members are pruned on RevokeAll.
	pipe.Expire(ctx, userSetKey(userID), ttl+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// decodeSession parses a stored session payload and applies the expiry rule:
// a session whose expiry is at or before now resolves to nothing, exactly
// like a missing token. Redis TTL already bounds the key's lifetime; the
// stored expiry is checked too so a clock-skewed or persisted key can never
// resolve late.
func decodeSession(payload []byte, token string, now time.Time) (*model.Session, error) {
	var sess model.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if !sess.ExpiresAt.After(now) {
		return nil, nil
	}
	sess.Token = token
	return &sess, nil
}

// Resolve looks up a token and enforces expiry. A token past its expiry is
// treated exactly like a missing one.
func (s *redisStore) Resolve(ctx context.Context, token string) (*model.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	sess, err := decodeSession(payload, token, time.Now())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		_ = s.client.Del(ctx, sessionKey(token)).Err()
		return nil, nil
	}
	return sess, nil
}

// Revoke deletes a single session
func (s *redisStore) Revoke(ctx context.Context, token string) error {
	sess, err := s.Resolve(ctx, token)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(token))
	if sess != nil {
		pipe.SRem(ctx, userSetKey(sess.UserID), token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session belonging to the user
func (s *redisStore) RevokeAll(ctx context.Context, userID int) error {
	tokens, err := s.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, token := range tokens {
		pipe.Del(ctx, sessionKey(token))
	}
	pipe.Del(ctx, userSetKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}
