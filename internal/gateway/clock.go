package gateway

import "time"

// Clock abstracts timer scheduling so the auto-block races are testable
// without real sleeps.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

// TimerHandle mirrors the subset of *time.Timer the manager needs.
type TimerHandle interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}

// NewRealClock returns a Clock backed by the runtime timer heap.
func NewRealClock() Clock {
	return realClock{}
}
