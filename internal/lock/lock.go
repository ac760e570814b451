// Package lock provides non-blocking mutual exclusion keyed by tenant and
// resource. Acquire never waits: a lock held elsewhere comes back as a nil
// *Lock, which callers treat as "skip and try again on the next run".
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotHeld is returned by Refresh when the lease expired or was released.
var ErrNotHeld = errors.New("lock: not held")

type Locker interface {
	// Acquire returns (nil, nil) when the lock is held by someone else.
	Acquire(ctx context.Context, tenantID, resource string) (*Lock, error)
	// Release frees a lock obtained from Acquire. Releasing the same lock twice is a no-op.
	Release(ctx context.Context, l *Lock) error
	// Refresh extends the lease of a held lock. It fails with ErrNotHeld once
	// the lease is gone; the caller no longer has exclusive access then.
	Refresh(ctx context.Context, l *Lock) error
}

// Lock is the handle of one successful acquisition.
type Lock struct {
	key     string
	once    sync.Once
	release func(context.Context) error
	refresh func(context.Context) error
}

func (l *Lock) Key() string { return l.key }

func (l *Lock) releaseOnce(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if l.release != nil {
			err = l.release(ctx)
		}
	})
	return err
}

func (l *Lock) refreshLease(ctx context.Context) error {
	if l == nil || l.refresh == nil {
		return ErrNotHeld
	}
	return l.refresh(ctx)
}

func Key(tenantID, resource string) string {
	return fmt.Sprintf("lock:%s:%s", tenantID, resource)
}

// MemoryLocker serializes within one process only.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]*Lock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]*Lock)}
}

func (m *MemoryLocker) Acquire(ctx context.Context, tenantID, resource string) (*Lock, error) {
	key := Key(tenantID, resource)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[key]; busy {
		return nil, nil
	}
	l := &Lock{key: key}
	l.release = func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.held[key] == l {
			delete(m.held, key)
		}
		return nil
	}
	l.refresh = func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.held[key] != l {
			return ErrNotHeld
		}
		return nil
	}
	m.held[key] = l
	return l, nil
}

func (m *MemoryLocker) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	return l.releaseOnce(ctx)
}

func (m *MemoryLocker) Refresh(ctx context.Context, l *Lock) error {
	return l.refreshLease(ctx)
}

// Expire drops a lease as if its ttl had run out.
func (m *MemoryLocker) Expire(tenantID, resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, Key(tenantID, resource))
}

// Held reports whether key is currently locked.
func (m *MemoryLocker) Held(tenantID, resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[Key(tenantID, resource)]
	return ok
}
