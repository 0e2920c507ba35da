package ports

import (
	"context"
	"time"
)

// Clock provides time-related functionality.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// LockManager serializes work per key across requests.
type LockManager interface {
	// Acquire blocks until the key is held or ctx is done. The returned
	// release function must be called when the critical section ends.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Metrics records orchestrator outcomes.
type Metrics interface {
	ObservePublish(projectType, env, outcome string)
	ObserveCallback(result string, applied bool)
	ObserveNotification(outcome string)
	ObserveRollback(projectType, outcome string)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObservePublish(string, string, string) {}
func (NopMetrics) ObserveCallback(string, bool)          {}
func (NopMetrics) ObserveNotification(string)            {}
func (NopMetrics) ObserveRollback(string, string)        {}
