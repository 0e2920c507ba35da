package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

// KeyedLockManager implements LockManager with one in-process lock per key.
// It serializes publishes within a single orchestrator instance; deployments
// running several instances use the redis lock instead.
type KeyedLockManager struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLockManager creates a KeyedLockManager.
func NewKeyedLockManager() *KeyedLockManager {
	return &KeyedLockManager{locks: make(map[string]*keyedLock)}
}

// Ensure KeyedLockManager implements the interface.
var _ ports.LockManager = (*KeyedLockManager)(nil)

// Acquire blocks until key is free or ctx is done.
func (m *KeyedLockManager) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, l)
		return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-l.ch
			m.unref(key, l)
		})
	}
	return release, nil
}

// unref drops the lock entry once nobody holds or waits for it.
func (m *KeyedLockManager) unref(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
