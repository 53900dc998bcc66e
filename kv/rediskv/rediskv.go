// Package rediskv is the networked KV backend, connection-pooled and
// health-checked on construction. It uses URL-or-default resolution,
// key-prefix handling, and context-per-call discipline, adapted to a
// namespaced, TTL-aware key-value contract.
package rediskv

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

// Store is a Redis-backed kv.Store implementation.
type Store struct {
	client     *redis.Client
	prefix     string
	serializer kv.Serializer
}

// Config configures a Redis-backed Store.
type Config struct {
	URL        string // defaults to "redis://localhost:6379/0"
	KeyPrefix  string // defaults to "fetcher:"
	Serializer kv.Serializer
}

// New parses cfg.URL, pings the server once to fail fast on
// misconfiguration, and returns a ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	url := cfg.URL
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redis url: %v", model.ErrBackendUnavailable, err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connecting to redis: %v", model.ErrBackendUnavailable, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fetcher:"
	}
	serializer := cfg.Serializer
	if serializer == nil {
		serializer = kv.JSONSerializer{}
	}

	return &Store{client: client, prefix: prefix, serializer: serializer}, nil
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

func (s *Store) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := s.serializer.Encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.fullKey(key), b, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string, out any) error {
	b, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return s.serializer.Decode(b, out)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	return n > 0, nil
}

// RangeGet scans with SCAN (never KEYS, to avoid blocking the server) and
// sorts client-side: Redis's SCAN cursor makes no ordering guarantee, so the
// contract's "ascending key order" must be enforced here regardless.
func (s *Store) RangeGet(ctx context.Context, start, end string, limit int) ([]kv.Pair, error) {
	fullStart := s.fullKey(start)
	var fullEnd string
	if end != "" {
		fullEnd = s.fullKey(end)
	}

	var matched []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if k < fullStart {
			continue
		}
		if fullEnd != "" && k >= fullEnd {
			continue
		}
		matched = append(matched, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
	}
	sort.Strings(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	pairs := make([]kv.Pair, 0, len(matched))
	for _, k := range matched {
		b, err := s.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrBackendUnavailable, err)
		}
		pairs = append(pairs, kv.Pair{Key: k[len(s.prefix):], Value: b})
	}
	return pairs, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
