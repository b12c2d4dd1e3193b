package ts

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock gets the current time and the current slot height.  Betting windows
// are slot-indexed, so everything that gates on a window wants both.
type Clock interface {
	Now() time.Time
	Height() int64
}

// SlotClock derives a monotonic slot height from wall time: slots of a fixed
// interval counted from a genesis instant.  Before genesis the height is 0.
type SlotClock struct {
	clock    clockwork.Clock
	genesis  time.Time
	interval time.Duration
}

var _ Clock = (*SlotClock)(nil)

func NewSlotClock(clock clockwork.Clock, genesis time.Time, interval time.Duration) *SlotClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &SlotClock{
		clock:    clock,
		genesis:  genesis,
		interval: interval,
	}
}

// NewRealSlotClock is the production configuration: wall clock, given genesis
// and interval.
func NewRealSlotClock(genesis time.Time, interval time.Duration) *SlotClock {
	return NewSlotClock(clockwork.NewRealClock(), genesis, interval)
}

// Now provides a timestamp truncated to the second, convenient for
// human-readable times and stable JSON.
func (c *SlotClock) Now() time.Time {
	return c.clock.Now().Truncate(time.Second)
}

func (c *SlotClock) Height() int64 {
	elapsed := c.clock.Now().Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / c.interval)
}

// HeightAt converts an arbitrary time to a slot height, for callers that
// want to translate a wall-clock deadline into a betting window edge.
func (c *SlotClock) HeightAt(t time.Time) int64 {
	elapsed := t.Sub(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / c.interval)
}

// RealClock exposes the underlying clockwork clock for code that needs
// timers or tickers.
func (c *SlotClock) RealClock() clockwork.Clock {
	return c.clock
}
