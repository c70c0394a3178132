// Package resilience provides a circuit breaker for outbound calls.
//
// [Breaker] implements the classic closed → open → half-open pattern. The
// resolver wraps its search backend calls in one so that an upstream outage
// fails fast instead of burning a timeout per query variant.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// its cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrBreakerOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; one failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Settings tunes a [Breaker]. The zero value is usable; each field falls
// back to its stated default.
type Settings struct {
	// FailureThreshold is how many consecutive failures open the breaker.
	// Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing the
	// upstream again. Default 30s.
	Cooldown time.Duration

	// ProbeQuota is how many half-open probe calls must succeed before the
	// breaker closes. Default 3.
	ProbeQuota int
}

// Breaker guards calls to a single upstream.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	quota     int
	now       func() time.Time

	mu        sync.Mutex
	state     State
	streak    int // consecutive failures while closed
	openedAt  time.Time
	probes    int // probe calls issued while half-open
	probeHits int // probes that succeeded
}

// NewBreaker creates a closed [Breaker] named for log output.
func NewBreaker(name string, s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.ProbeQuota <= 0 {
		s.ProbeQuota = 3
	}
	return &Breaker{
		name:      name,
		threshold: s.FailureThreshold,
		cooldown:  s.Cooldown,
		quota:     s.ProbeQuota,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker is open. The error from fn is returned
// unchanged; a rejected call returns [ErrBreakerOpen] without running fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if !b.admitLocked() {
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failedLocked(probing)
	} else {
		b.succeededLocked(probing)
	}
	return err
}

// admitLocked decides whether a call may proceed, applying the
// open → half-open transition when the cooldown has elapsed.
func (b *Breaker) admitLocked() bool {
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeHits = 0
		slog.Info("breaker probing upstream", "name", b.name)
		return true
	case StateHalfOpen:
		return b.probes < b.quota
	}
	return true
}

func (b *Breaker) failedLocked(probing bool) {
	if probing {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("breaker re-opened, probe failed", "name", b.name)
		return
	}
	b.streak++
	if b.state == StateClosed && b.streak >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("breaker opened", "name", b.name, "failures", b.streak)
	}
}

func (b *Breaker) succeededLocked(probing bool) {
	if probing {
		b.probeHits++
		if b.probeHits >= b.quota {
			b.state = StateClosed
			b.streak = 0
			slog.Info("breaker closed, upstream recovered", "name", b.name)
		}
		return
	}
	b.streak = 0
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports half-open; the stored transition happens on the next Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears its failure history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.streak = 0
	b.probes = 0
	b.probeHits = 0
	slog.Info("breaker reset", "name", b.name)
}
