// Package redisstore keeps the profile collection in a single Redis key so
// that every instance of a cluster starts from the same active profile.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/sos-core/internal/core/observability"
)

const DefaultKey = "sos:profiles"

// Options tune the client. Zero fields keep the defaults.
type Options struct {
	PoolSize    int
	DialTimeout time.Duration
	// IOTimeout bounds both reads and writes.
	IOTimeout time.Duration
}

func (o Options) client(addr string) *redis.Options {
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	if o.PoolSize > 0 {
		ro.PoolSize = o.PoolSize
	}
	if o.DialTimeout > 0 {
		ro.DialTimeout = o.DialTimeout
	}
	if o.IOTimeout > 0 {
		ro.ReadTimeout, ro.WriteTimeout = o.IOTimeout, o.IOTimeout
	}
	return ro
}

// Store implements profile.Store on a Redis string value.
type Store struct {
	rdb *redis.Client
	key string
}

// New connects to addr and pings it. An empty key selects DefaultKey.
func New(ctx context.Context, addr, key string, opts Options) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if key == "" {
		key = DefaultKey
	}
	s := &Store{rdb: redis.NewClient(opts.client(addr)), key: key}
	if err := s.ping(ctx); err != nil {
		_ = s.rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return s, nil
}

func (s *Store) ping(ctx context.Context) error {
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	observability.ObserveProfileStoreOp("ping", err, time.Since(start).Seconds())
	return err
}

// Readiness pings Redis with a short deadline. It satisfies
// health.ReadinessReporter.
func (s *Store) Readiness() (bool, []int32) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return s.ping(ctx) == nil, nil
}

// Load returns nil data when the key does not exist.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis GET %q: %w", s.key, err)
	}
	return b, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", s.key, err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
