package ts

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var genesis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestHeight(t *testing.T) {
	fc := clockwork.NewFakeClockAt(genesis)
	c := NewSlotClock(fc, genesis, 10*time.Second)

	if got := c.Height(); got != 0 {
		t.Errorf("height at genesis = %d, want 0", got)
	}

	fc.Advance(9 * time.Second)
	if got := c.Height(); got != 0 {
		t.Errorf("height at +9s = %d, want 0", got)
	}

	fc.Advance(time.Second)
	if got := c.Height(); got != 1 {
		t.Errorf("height at +10s = %d, want 1", got)
	}

	fc.Advance(25 * time.Second)
	if got := c.Height(); got != 3 {
		t.Errorf("height at +35s = %d, want 3", got)
	}
}

func TestHeightBeforeGenesisIsZero(t *testing.T) {
	fc := clockwork.NewFakeClockAt(genesis.Add(-time.Hour))
	c := NewSlotClock(fc, genesis, 10*time.Second)
	if got := c.Height(); got != 0 {
		t.Errorf("height before genesis = %d, want 0", got)
	}
}

func TestHeightAt(t *testing.T) {
	c := NewSlotClock(clockwork.NewFakeClockAt(genesis), genesis, time.Minute)
	tests := []struct {
		at   time.Time
		want int64
	}{
		{genesis, 0},
		{genesis.Add(59 * time.Second), 0},
		{genesis.Add(time.Minute), 1},
		{genesis.Add(90 * time.Minute), 90},
		{genesis.Add(-time.Minute), 0},
	}
	for _, tt := range tests {
		if got := c.HeightAt(tt.at); got != tt.want {
			t.Errorf("HeightAt(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestNowTruncatesToSecond(t *testing.T) {
	fc := clockwork.NewFakeClockAt(genesis.Add(1500 * time.Millisecond))
	c := NewSlotClock(fc, genesis, 10*time.Second)
	want := genesis.Add(time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
}

func TestZeroIntervalDefaults(t *testing.T) {
	fc := clockwork.NewFakeClockAt(genesis.Add(5 * time.Second))
	c := NewSlotClock(fc, genesis, 0)
	if got := c.Height(); got != 5 {
		t.Errorf("height with default interval = %d, want 5", got)
	}
}
