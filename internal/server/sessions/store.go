// Package sessions keeps browser sessions in Redis and binds them to signed
// cookies. The cookie only carries the session id; everything else lives
// server side and expires with the Redis TTL.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
	"github.com/openscholar/platform/internal/signing"
)

const keyPrefix = "session:"

// redisClient is the subset of *redis.Client the store needs.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Store creates, loads and destroys sessions.
type Store struct {
	rdb    redisClient
	signer *signing.Signer
	ttl    time.Duration
}

func NewStore(rdb *redis.Client, signer *signing.Signer, ttl time.Duration) *Store {
	return &Store{rdb: rdb, signer: signer, ttl: ttl}
}

func newStoreWithClient(rdb redisClient, signer *signing.Signer, ttl time.Duration) *Store {
	return &Store{rdb: rdb, signer: signer, ttl: ttl}
}

// Create opens a session for the user and persists it with the store TTL.
func (s *Store) Create(ctx context.Context, userID string) (*models.Session, error) {
	id, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	sess := &models.Session{
		ID:        id,
		UserID:    userID,
		Data:      map[string]string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id; common.ErrNotFound when it is absent or expired.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis error: %w", err)
	}
	sess := &models.Session{}
	if err := json.Unmarshal([]byte(raw), sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// Save writes the session back and resets its TTL.
func (s *Store) Save(ctx context.Context, sess *models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+sess.ID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Touch extends the session's TTL without rewriting it.
func (s *Store) Touch(ctx context.Context, id string) error {
	if err := s.rdb.Expire(ctx, keyPrefix+id, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Destroy removes the session. Destroying an absent session is not an error.
func (s *Store) Destroy(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// EncodeCookie turns the session id into a tamper-proof cookie value.
func (s *Store) EncodeCookie(sessionID string) string {
	return s.signer.SignValue(sessionID)
}

// DecodeCookie extracts the session id from a cookie value, rejecting values
// whose signature does not verify.
func (s *Store) DecodeCookie(cookie string) (string, error) {
	id, ok := s.signer.UnsignValue(cookie)
	if !ok {
		return "", common.ErrUnauthorized
	}
	return id, nil
}
