// Package clock provides the engine's time sources: a monotonic Clock with
// a fake variant for tests, the Looper message loop all engine work runs
// on, and the media clocks that track playback position.
package clock

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time abstraction every scheduled piece of work runs against.
// Loopers created from the same clock share its notion of time, so a fake
// clock drives all delayed postings deterministically.
type Clock interface {
	Now() time.Time
	// ElapsedRealtime is monotonic time since the clock was created.
	ElapsedRealtime() time.Duration
	NewLooper(name string, logger *slog.Logger) *Looper
}

type systemClock struct {
	cw    clockwork.Clock
	start time.Time
}

// NewSystemClock returns the real-time clock.
func NewSystemClock() Clock {
	cw := clockwork.NewRealClock()
	return &systemClock{cw: cw, start: cw.Now()}
}

func (c *systemClock) Now() time.Time                 { return c.cw.Now() }
func (c *systemClock) ElapsedRealtime() time.Duration { return c.cw.Since(c.start) }

func (c *systemClock) NewLooper(name string, logger *slog.Logger) *Looper {
	return newLooper(c.cw, name, logger)
}

// FakeClock is the virtual clock used in tests. Advancing it fires any
// delayed looper postings whose deadline has elapsed, in deadline then
// insertion order.
type FakeClock struct {
	cw    *clockwork.FakeClock
	start time.Time
}

func NewFakeClock() *FakeClock {
	cw := clockwork.NewFakeClock()
	return &FakeClock{cw: cw, start: cw.Now()}
}

func (c *FakeClock) Now() time.Time                 { return c.cw.Now() }
func (c *FakeClock) ElapsedRealtime() time.Duration { return c.cw.Since(c.start) }

func (c *FakeClock) NewLooper(name string, logger *slog.Logger) *Looper {
	return newLooper(c.cw, name, logger)
}

// Advance moves virtual time forward, firing due timers.
func (c *FakeClock) Advance(d time.Duration) { c.cw.Advance(d) }

// BlockUntilTimers waits until at least n loopers are parked on a timer.
func (c *FakeClock) BlockUntilTimers(ctx context.Context, n int) error {
	return c.cw.BlockUntilContext(ctx, n)
}
