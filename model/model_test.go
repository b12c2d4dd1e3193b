package model

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testRound() *Round {
	return &Round{
		SeqNo:        1,
		Competitors:  []string{"horse-a", "horse-b"},
		BettingStart: 10,
		BettingEnd:   20,
		RaceStart:    t0.Add(10 * time.Minute),
		RaceEnd:      t0.Add(11 * time.Minute),
		StakerCounts: map[string]int{"horse-a": 2},
	}
}

func TestPhaseAt(t *testing.T) {
	winner := "horse-a"
	tests := []struct {
		name   string
		mutate func(r *Round)
		now    time.Time
		height int64
		want   Phase
	}{
		{
			name:   "before the betting window opens",
			now:    t0,
			height: 9,
			want:   PhaseScheduled,
		},
		{
			name:   "window open",
			now:    t0,
			height: 10,
			want:   PhaseBetting,
		},
		{
			name:   "window closed by height",
			now:    t0,
			height: 20,
			want:   PhaseAwaitingRace,
		},
		{
			name:   "window closed by race start",
			now:    t0.Add(10 * time.Minute),
			height: 15,
			want:   PhaseAwaitingRace,
		},
		{
			name:   "winner declared, nothing aggregated",
			mutate: func(r *Round) { r.Winner = &winner },
			now:    t0.Add(12 * time.Minute),
			height: 80,
			want:   PhaseAggregating,
		},
		{
			name: "aggregation done, payment pending",
			mutate: func(r *Round) {
				r.Winner = &winner
				r.AggregatedCount = 2
			},
			now:    t0.Add(12 * time.Minute),
			height: 80,
			want:   PhaseDistributing,
		},
		{
			name: "everyone paid, fees pending",
			mutate: func(r *Round) {
				r.Winner = &winner
				r.AggregatedCount = 2
				r.PaidCount = 2
			},
			now:    t0.Add(12 * time.Minute),
			height: 80,
			want:   PhaseSettling,
		},
		{
			name: "winner with no stakers skips to settling",
			mutate: func(r *Round) {
				w := "horse-b"
				r.Winner = &w
			},
			now:    t0.Add(12 * time.Minute),
			height: 80,
			want:   PhaseSettling,
		},
		{
			name:   "fees final",
			mutate: func(r *Round) { r.FeesFinal = true },
			now:    t0.Add(12 * time.Minute),
			height: 80,
			want:   PhaseClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRound()
			if tt.mutate != nil {
				tt.mutate(r)
			}
			if got := r.PhaseAt(tt.now, tt.height); got != tt.want {
				t.Errorf("PhaseAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBettingOpen(t *testing.T) {
	r := testRound()
	if r.BettingOpen(t0, 9) {
		t.Errorf("betting open before the window")
	}
	if !r.BettingOpen(t0, 10) {
		t.Errorf("betting closed inside the window")
	}
	if r.BettingOpen(t0, 20) {
		t.Errorf("betting open past the window")
	}
	if r.BettingOpen(t0.Add(10*time.Minute), 15) {
		t.Errorf("betting open after the race started")
	}
}
