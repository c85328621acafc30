package market

import (
	"context"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"
)

// NonceCache remembers the request nonces accepted from each caller.
type NonceCache interface {
	// Claim records nonce for address for ttl. It reports false when the
	// nonce is already recorded.
	Claim(ctx context.Context, address, nonce string, ttl time.Duration) (bool, error)
}

type MemoryNonceCache struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	now       func() time.Time
	lastPrune time.Time
}

func NewMemoryNonceCache() *MemoryNonceCache {
	return &MemoryNonceCache{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryNonceCache) Claim(_ context.Context, address, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastPrune) > time.Minute {
		for key, expiry := range m.seen {
			if !now.Before(expiry) {
				delete(m.seen, key)
			}
		}
		m.lastPrune = now
	}

	key := address + ":" + nonce
	if expiry, ok := m.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

// RedisNonceCache shares claimed nonces between nodes through SET NX.
type RedisNonceCache struct {
	pool   *redis.Pool
	prefix string
}

func NewRedisNonceCache(pool *redis.Pool, prefix string) *RedisNonceCache {
	return &RedisNonceCache{pool: pool, prefix: prefix + "nonce:"}
}

func (r *RedisNonceCache) Claim(_ context.Context, address, nonce string, ttl time.Duration) (bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	_, err := redis.String(conn.Do("SET", r.prefix+address+":"+nonce, 1, "PX", ms, "NX"))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("claiming request nonce: %w", err)
	}
	return true, nil
}

func (r *RedisNonceCache) Close() error {
	return r.pool.Close()
}
