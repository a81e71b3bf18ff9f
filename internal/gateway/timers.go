package gateway

import (
	"sync"
	"time"
)

// TimerManager keeps at most one armed auto-block timer per connection.
type TimerManager struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]TimerHandle
}

func NewTimerManager(clock Clock) *TimerManager {
	if clock == nil {
		clock = NewRealClock()
	}
	return &TimerManager{clock: clock, timers: make(map[string]TimerHandle)}
}

// Arm schedules fn after delay. Re-arming the same connection first cancels
// the previous timer so repeated connect events cannot leak timers.
func (tm *TimerManager) Arm(connectionID string, delay time.Duration, fn func()) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if existing, ok := tm.timers[connectionID]; ok {
		existing.Stop()
		delete(tm.timers, connectionID)
	}

	var handle TimerHandle
	handle = tm.clock.AfterFunc(delay, func() {
		tm.mu.Lock()
		// A concurrent Cancel may have removed the entry; the fire still ran
		// because Stop lost the race, so only forget our own registration.
		if current, ok := tm.timers[connectionID]; ok && current == handle {
			delete(tm.timers, connectionID)
		}
		tm.mu.Unlock()
		fn()
	})
	tm.timers[connectionID] = handle
}

// Cancel stops a pending timer. Cancelling an unknown connection is a no-op.
// Cancellation completes before Cancel returns.
func (tm *TimerManager) Cancel(connectionID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if handle, ok := tm.timers[connectionID]; ok {
		handle.Stop()
		delete(tm.timers, connectionID)
	}
}

// Pending reports whether a timer is currently armed for the connection.
func (tm *TimerManager) Pending(connectionID string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	_, ok := tm.timers[connectionID]
	return ok
}
