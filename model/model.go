// package model holds the trivial data model for tote: rounds, stakes, and
// the bits of site/user state that hang off them.
//
// These types are serialized to the database (and to JSON clients), so keep
// them dumb.  Anything that needs a clock or storage lives in pool.
package model

import (
	"fmt"
	"time"
)

const (
	// MinCompetitors and MaxCompetitors bound the field of a race.
	MinCompetitors = 2
	MaxCompetitors = 8
)

// Phase is the explicit lifecycle state of a round.  The source of truth is
// the round's stored fields; Phase is derived, never stored, so it cannot
// drift from them.
type Phase int

const (
	PhaseScheduled Phase = iota
	PhaseBetting
	PhaseAwaitingRace
	PhaseAggregating
	PhaseDistributing
	PhaseSettling
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseScheduled:
		return "scheduled"
	case PhaseBetting:
		return "betting"
	case PhaseAwaitingRace:
		return "awaiting-race"
	case PhaseAggregating:
		return "aggregating"
	case PhaseDistributing:
		return "distributing"
	case PhaseSettling:
		return "settling"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Round is one complete betting-and-settlement cycle.  Exactly one round is
// current at a time; closed rounds are kept for queries but never mutated.
type Round struct {
	SeqNo          int64
	OptimisticLock int64

	// Competitors are account addresses, 2-8 of them, immutable once set.
	Competitors []string

	// The betting window is slot-indexed; the race window is time-indexed.
	BettingStart int64
	BettingEnd   int64
	RaceStart    time.Time
	RaceEnd      time.Time

	// Winner is nil until declared, and set at most once.
	Winner *string

	// TotalStaked is the sum of every stake in the round.  WinnerPool is the
	// sum of winning-side stakes folded in so far by aggregation.
	TotalStaked int64
	WinnerPool  int64

	// AggregatedCount and PaidCount track settlement progress over the
	// winning competitor's staker list.
	AggregatedCount int
	PaidCount       int

	// FeesFinal marks that fee/reserve settlement ran.  It runs at most once.
	FeesFinal bool

	// StakerCounts is the number of distinct stakers per competitor.
	StakerCounts map[string]int
}

// WinnerStakerCount is the number of stakers on the declared winner, or 0 if
// no winner is declared yet.
func (r *Round) WinnerStakerCount() int {
	if r.Winner == nil {
		return 0
	}
	return r.StakerCounts[*r.Winner]
}

// HasCompetitor reports whether addr is racing in this round.
func (r *Round) HasCompetitor(addr string) bool {
	for _, c := range r.Competitors {
		if c == addr {
			return true
		}
	}
	return false
}

// BettingOpen reports whether a stake is currently legal: the slot height is
// inside the betting window and the race hasn't started.
func (r *Round) BettingOpen(now time.Time, height int64) bool {
	if r.Winner != nil || r.FeesFinal {
		return false
	}
	return height >= r.BettingStart && height < r.BettingEnd && now.Before(r.RaceStart)
}

// PhaseAt derives the round's lifecycle phase from its stored fields and the
// current time/height.
func (r *Round) PhaseAt(now time.Time, height int64) Phase {
	switch {
	case r.FeesFinal:
		return PhaseClosed
	case r.Winner == nil:
		if height < r.BettingStart {
			return PhaseScheduled
		}
		if height < r.BettingEnd && now.Before(r.RaceStart) {
			return PhaseBetting
		}
		return PhaseAwaitingRace
	case r.WinnerStakerCount() == 0:
		// Nobody backed the winner; settlement skips straight to fees.
		return PhaseSettling
	case r.AggregatedCount < r.WinnerStakerCount():
		return PhaseAggregating
	case r.PaidCount < r.WinnerStakerCount():
		return PhaseDistributing
	default:
		return PhaseSettling
	}
}

// Clone makes a deep copy, so cached rounds can't be mutated behind the
// cache's back.
func (r *Round) Clone() *Round {
	cpy := *r
	cpy.Competitors = append([]string(nil), r.Competitors...)
	if r.Winner != nil {
		w := *r.Winner
		cpy.Winner = &w
	}
	cpy.StakerCounts = make(map[string]int, len(r.StakerCounts))
	for k, v := range r.StakerCounts {
		cpy.StakerCounts[k] = v
	}
	return &cpy
}

// Stake is the book entry for one (competitor, staker) pair.  Amount only
// grows while betting is open (top-ups accumulate).  Index is the staker's
// position in the competitor's append-only staker list; it is what makes
// batched settlement deterministic.
type Stake struct {
	Competitor string
	Staker     string
	Index      int
	Amount     int64

	// Aggregated and Paid are monotonic false->true, winning side only.
	Aggregated bool
	Paid       bool
}

// RoundSlug is a lightweight round description for overview lists.
type RoundSlug struct {
	SeqNo       int64
	Phase       string
	Competitors []string
	TotalStaked int64
}

// Overview is what the front page shows: current and recent rounds.
type Overview struct {
	Slugs []RoundSlug
}
