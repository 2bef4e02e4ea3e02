package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"gdsim/internal/domain"
)

// RedisStore keeps the snapshot under one key that expires with the
// freshness window.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(addr string, key string, ttl time.Duration) (*RedisStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis snapshot store: empty address")
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis snapshot store: set")
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, errors.Wrap(err, "redis snapshot store: get")
	}
	snapshot, ok := decodeSnapshot(payload)
	return snapshot, ok, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis snapshot store: del")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
