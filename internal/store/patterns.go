// Package store persists what a studio session shares or keeps: short
// pattern links, finished recordings and their catalog rows. Every store is
// optional; a session without one simply skips that step.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pikomusic/studio/internal/pattern"
)

var ErrNotFound = errors.New("not found")

// DefaultShareTTL keeps a short link alive for thirty days.
const DefaultShareTTL = 30 * 24 * time.Hour

// RedisConfig locates the share-link store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// kv is the slice of the redis client the pattern store uses.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// PatternStore maps short share ids to encoded patterns.
type PatternStore struct {
	rdb kv
	ttl time.Duration
}

// NewPatternStore connects to redis and checks the connection.
func NewPatternStore(ctx context.Context, cfg RedisConfig) (*PatternStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return newPatternStore(rdb, cfg.TTL), nil
}

func newPatternStore(rdb kv, ttl time.Duration) *PatternStore {
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	return &PatternStore{rdb: rdb, ttl: ttl}
}

// PatternKey is the redis key of a share id.
func PatternKey(id string) string {
	return "piko:pattern:" + id
}

// Save stores p under a new short id.
func (s *PatternStore) Save(ctx context.Context, p pattern.Pattern) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	if err := s.rdb.Set(ctx, PatternKey(id), pattern.Encode(p), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("save pattern: %w", err)
	}
	return id, nil
}

// Load returns the pattern stored under id. A stored value that no longer
// decodes to pads rows is reported as pattern.ErrInvalid.
func (s *PatternStore) Load(ctx context.Context, id string, pads int) (pattern.Pattern, error) {
	code, err := s.rdb.Get(ctx, PatternKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return pattern.Pattern{}, ErrNotFound
	}
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("load pattern: %w", err)
	}
	return pattern.Decode(code, pads)
}

// Close releases the connection.
func (s *PatternStore) Close() error {
	return s.rdb.Close()
}
