// package ledger is the in-memory book for one round: stakes keyed by
// (competitor, staker), and a per-competitor staker list in first-stake
// order.  The ordered list is what makes batched settlement deterministic;
// everything else is bookkeeping.
//
// A Book records, it does not decide.  Window gating, minimums, and phase
// checks belong to pool.
package ledger

import "github.com/ts4z/tote/model"

type key struct {
	competitor string
	staker     string
}

type Book struct {
	stakes map[key]*model.Stake
	order  map[string][]string // competitor -> stakers, append-only
}

func NewBook() *Book {
	return &Book{
		stakes: make(map[key]*model.Stake),
		order:  make(map[string][]string),
	}
}

// Add records a stake top-up and reports whether this was the staker's first
// stake on this competitor (i.e. whether they were appended to the staker
// list).
func (b *Book) Add(competitor, staker string, amount int64) (first bool) {
	k := key{competitor, staker}
	s, ok := b.stakes[k]
	if !ok {
		s = &model.Stake{
			Competitor: competitor,
			Staker:     staker,
			Index:      len(b.order[competitor]),
		}
		b.stakes[k] = s
		b.order[competitor] = append(b.order[competitor], staker)
		first = true
	}
	s.Amount += amount
	return first
}

// Stake returns a copy of the book entry, or nil if the staker never staked
// on that competitor.
func (b *Book) Stake(competitor, staker string) *model.Stake {
	s, ok := b.stakes[key{competitor, staker}]
	if !ok {
		return nil
	}
	cpy := *s
	return &cpy
}

// Put writes back a (possibly flag-updated) stake.  Amount and flags are
// taken from s; identity and index are not changed.
func (b *Book) Put(s *model.Stake) {
	cur, ok := b.stakes[key{s.Competitor, s.Staker}]
	if !ok {
		return
	}
	cur.Amount = s.Amount
	cur.Aggregated = s.Aggregated
	cur.Paid = s.Paid
}

func (b *Book) StakerCount(competitor string) int {
	return len(b.order[competitor])
}

// Range returns copies of the stakes for competitor with indices in
// [start, end), clamped to the staker list.
func (b *Book) Range(competitor string, start, end int) []*model.Stake {
	stakers := b.order[competitor]
	start, end = Clamp(start, end, len(stakers))
	out := make([]*model.Stake, 0, end-start)
	for _, staker := range stakers[start:end] {
		out = append(out, b.Stake(competitor, staker))
	}
	return out
}

// SumFor is the total staked on one competitor.
func (b *Book) SumFor(competitor string) int64 {
	var total int64
	for _, staker := range b.order[competitor] {
		total += b.stakes[key{competitor, staker}].Amount
	}
	return total
}

// Sum is the total staked across all competitors.  Against a well-formed
// round this equals Round.TotalStaked.
func (b *Book) Sum() int64 {
	var total int64
	for _, s := range b.stakes {
		total += s.Amount
	}
	return total
}

// Clamp bounds a half-open index range to [0, n).
func Clamp(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return start, end
}
