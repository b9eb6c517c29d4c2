package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/espalier/pkg/ports"
)

// DistributedLockTTL bounds how long a crashed replica can hold an instance.
const DistributedLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lockManager serializes mutations per process instance. Unrelated instances
// never wait on each other. Entries are reference counted and dropped when
// the last holder or waiter leaves, so the map only holds busy instances.
type lockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker // optional
	logger *slog.Logger
}

func newLockManager(locker ports.DistributedLocker, logger *slog.Logger) *lockManager {
	return &lockManager{
		locks:  make(map[string]*lockEntry),
		locker: locker,
		logger: logger,
	}
}

// acquire returns the entry of the instance with one more reference taken.
// Pair it with release once entry.mu is unlocked.
func (m *lockManager) acquire(instanceID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[instanceID]
	if !exists {
		entry = &lockEntry{}
		m.locks[instanceID] = entry
	}
	entry.refs++
	return entry
}

// release drops a reference; the last one removes the instance entry.
func (m *lockManager) release(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[instanceID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, instanceID)
	}
}

// size reports how many instances currently hold or wait for a lock.
func (m *lockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// withLock executes fn while holding the lock of the instance. The lock is
// not re-entrant: fn must not call back into a locking entry point.
func (m *lockManager) withLock(ctx context.Context, instanceID string, fn func(context.Context) error) error {
	entry := m.acquire(instanceID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(instanceID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, instanceID, DistributedLockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"instance_id", instanceID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
