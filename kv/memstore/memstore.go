// Package memstore is the process-local KV backend: a map of encoded values
// guarded by a sync.RWMutex and by expiry timestamps, with a background sweep
// goroutine.
// It follows a bucket-oriented Put/Get/Delete/ForEach shape and keeps
// everything in-process since on-disk durability buys nothing the memory
// contract in kv.Store doesn't already promise (see DESIGN.md).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/model"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory kv.Store implementation.
type Store struct {
	prefix     string
	serializer kv.Serializer

	mu   sync.RWMutex
	data map[string]entry

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// Config configures a memory Store.
type Config struct {
	Prefix        string
	Serializer    kv.Serializer // defaults to JSONSerializer
	SweepInterval time.Duration // defaults to 1 minute
}

// New creates a memory-backed Store and starts its expiry sweep goroutine.
func New(cfg Config) *Store {
	if cfg.Serializer == nil {
		cfg.Serializer = kv.JSONSerializer{}
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	s := &Store{
		prefix:        cfg.Prefix,
		serializer:    cfg.Serializer,
		data:          make(map[string]entry),
		sweepInterval: cfg.SweepInterval,
		stopSweep:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + key
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}

func (s *Store) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := s.serializer.Encode(value)
	if err != nil {
		return err
	}
	e := entry{value: b}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[s.fullKey(key)] = e
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, key string, out any) error {
	s.mu.RLock()
	e, ok := s.data[s.fullKey(key)]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return s.serializer.Decode(e.value, out)
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	fk := s.fullKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[fk]
	if !ok || e.expired(time.Now()) {
		delete(s.data, fk)
		return false, nil
	}
	delete(s.data, fk)
	return true, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	e, ok := s.data[s.fullKey(key)]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

func (s *Store) RangeGet(_ context.Context, start, end string, limit int) ([]kv.Pair, error) {
	fullStart := s.fullKey(start)
	var fullEnd string
	if end != "" {
		fullEnd = s.fullKey(end)
	}

	now := time.Now()
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k, e := range s.data {
		if e.expired(now) {
			continue
		}
		if k < fullStart {
			continue
		}
		if fullEnd != "" && k >= fullEnd {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]kv.Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kv.Pair{
			Key:   strings.TrimPrefix(k, s.prefix),
			Value: s.data[k].value,
		})
		if limit > 0 && len(pairs) >= limit {
			break
		}
	}
	s.mu.RUnlock()
	return pairs, nil
}

func (s *Store) Close() error {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	return nil
}
