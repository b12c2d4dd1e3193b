package paytable

// Package paytable provides the stateless fee and payout arithmetic for a
// pari-mutuel pool.  Percentages are in basis points (10000 = 100%).
//
// Nothing here touches storage or a clock; pool calls these with the round's
// totals and pays out what comes back.

import "math/big"

// Policy holds the fixed percentages.  The fee schedule is deliberately not
// configurable beyond these; they're constants of the product.
type Policy struct {
	PlatformFeeBps  int64 // skimmed from the pool when there's a losing side
	WinnerBonusBps  int64 // paid to the winning competitor's account
	FallbackHotBps  int64 // no-winner-bets split when the winner ever staked
	FallbackColdBps int64 // no-winner-bets split otherwise
}

// Default is the production schedule: 1% platform fee, 2% winner bonus,
// 50%/2% no-winner-bets fallback.
func Default() *Policy {
	return &Policy{
		PlatformFeeBps:  100,
		WinnerBonusBps:  200,
		FallbackHotBps:  5000,
		FallbackColdBps: 200,
	}
}

// Cut is the result of splitting a round's pool.
type Cut struct {
	Total         int64 // total staked, all competitors
	WinnerPool    int64 // total staked on the winner
	Fee           int64
	Bonus         int64
	Distributable int64

	// OnlyWinners means everyone staked on the winner; no fee, no bonus,
	// everybody breaks even.
	OnlyWinners bool
	// GuardTripped means the losing side couldn't even cover the fees, so
	// the fees were discarded to keep winners at break-even or better.
	GuardTripped bool
}

// Split computes the fee/bonus/distributable split for a round.  total and
// winnerPool are the round's final aggregates; winnerPool must not exceed
// total.
func (p *Policy) Split(total, winnerPool int64) Cut {
	cut := Cut{Total: total, WinnerPool: winnerPool}

	if total == winnerPool {
		cut.OnlyWinners = true
		cut.Distributable = total
		return cut
	}

	cut.Fee = Bps(total, p.PlatformFeeBps)
	cut.Bonus = Bps(total, p.WinnerBonusBps)
	cut.Distributable = total - cut.Fee - cut.Bonus

	// If the losing side's contribution doesn't cover the skim, winners
	// would get back less than they put in.  Give the fees back instead.
	if cut.Distributable < winnerPool {
		cut.Fee = 0
		cut.Bonus = 0
		cut.Distributable = total
		cut.GuardTripped = true
	}

	return cut
}

// Reward is one winner's proportional share: stake * distributable /
// winnerPool, in integer division.  The remainder is accepted rounding dust,
// not redistributed.
func (c Cut) Reward(stake int64) int64 {
	if c.WinnerPool == 0 {
		return 0
	}
	return mulDiv(stake, c.Distributable, c.WinnerPool)
}

// FallbackShare is the no-winner-bets payout: a share of the whole house
// balance, at the hot rate if the winner account ever staked in any round,
// at the cold rate otherwise.
func (p *Policy) FallbackShare(balance int64, everStaked bool) int64 {
	if everStaked {
		return Bps(balance, p.FallbackHotBps)
	}
	return Bps(balance, p.FallbackColdBps)
}

// ReserveSplit divides a balance between the primary and secondary reserves:
// half to primary, remainder (including the odd unit) to secondary.
func ReserveSplit(balance int64) (primary, secondary int64) {
	primary = balance / 2
	secondary = balance - primary
	return primary, secondary
}

// Bps takes a basis-point fraction of amount, rounding down.
func Bps(amount, bps int64) int64 {
	return mulDiv(amount, bps, 10000)
}

// mulDiv computes a*b/c without intermediate overflow.  Stake amounts are
// int64 credits and products routinely exceed 63 bits.
func mulDiv(a, b, c int64) int64 {
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return prod.Div(prod, big.NewInt(c)).Int64()
}
