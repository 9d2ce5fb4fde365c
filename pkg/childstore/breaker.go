package childstore

import (
	"sync"
	"time"

	"github.com/nexusvol/control-plane/pkg/metrics"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a minimal closed→open→half-open circuit breaker guarding etcd
// calls: N consecutive failures trip it open for a fixed window, after which
// a single trial call is let through before the breaker fully resets.
type breaker struct {
	mu sync.Mutex

	state       breakerState
	threshold   int
	openWindow  time.Duration
	consecutive int
	openedAt    time.Time
}

func newBreaker(threshold int, openWindow time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openWindow <= 0 {
		openWindow = 30 * time.Second
	}
	return &breaker{threshold: threshold, openWindow: openWindow}
}

// allow reports whether a call may proceed. An open breaker past its window
// admits exactly one trial call by transitioning to half-open.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		// The single trial call is still in flight.
		return false
	}
	if time.Since(b.openedAt) < b.openWindow {
		return false
	}
	b.state = breakerHalfOpen
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.setState(breakerClosed)
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if b.state == breakerHalfOpen || b.consecutive >= b.threshold {
		b.openedAt = time.Now()
		b.setState(breakerOpen)
	}
}

func (b *breaker) setState(s breakerState) {
	b.state = s
	if s == breakerOpen {
		metrics.ChildStoreBreakerOpen.Set(1)
	} else {
		metrics.ChildStoreBreakerOpen.Set(0)
	}
}
