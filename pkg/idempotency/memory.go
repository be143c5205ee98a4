// Package idempotency provides the fast-path duplicate detectors consulted
// by the writer before inserting. A reservation maps a producer-supplied
// idempotency key to the entry uuid that first claimed it.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process reservation table. Suitable for tests and
// single-process deployments; multi-process deployments use RedisGuard.
type MemoryGuard struct {
	mu    sync.Mutex
	byKey map[string]reservation
	clock func() time.Time
}

type reservation struct {
	entryUUID string
	expiresAt time.Time
}

// NewMemoryGuard creates an empty guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		byKey: make(map[string]reservation),
		clock: time.Now,
	}
}

// Reserve claims key for entryUUID. A live prior claim wins and is returned.
func (g *MemoryGuard) Reserve(_ context.Context, key, entryUUID string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if r, ok := g.byKey[key]; ok && now.Before(r.expiresAt) {
		return r.entryUUID, false, nil
	}
	g.byKey[key] = reservation{entryUUID: entryUUID, expiresAt: now.Add(ttl)}
	return "", true, nil
}

// Release frees the reservation for key.
func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byKey, key)
	return nil
}
