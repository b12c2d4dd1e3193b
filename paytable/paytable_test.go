package paytable

import (
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name              string
		total             int64
		winnerPool        int64
		wantFee           int64
		wantBonus         int64
		wantDistributable int64
		wantOnlyWinners   bool
		wantGuardTripped  bool
	}{
		{
			name:              "normal skim",
			total:             10000,
			winnerPool:        2000,
			wantFee:           100,
			wantBonus:         200,
			wantDistributable: 9700,
		},
		{
			name:              "everyone picked the winner",
			total:             5000,
			winnerPool:        5000,
			wantDistributable: 5000,
			wantOnlyWinners:   true,
		},
		{
			name:              "losing side can't cover the fees",
			total:             10000,
			winnerPool:        9800,
			wantDistributable: 10000,
			wantGuardTripped:  true,
		},
		{
			name:              "empty round",
			total:             0,
			winnerPool:        0,
			wantDistributable: 0,
			wantOnlyWinners:   true,
		},
	}

	p := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cut := p.Split(tt.total, tt.winnerPool)
			if cut.Fee != tt.wantFee {
				t.Errorf("Fee = %d, want %d", cut.Fee, tt.wantFee)
			}
			if cut.Bonus != tt.wantBonus {
				t.Errorf("Bonus = %d, want %d", cut.Bonus, tt.wantBonus)
			}
			if cut.Distributable != tt.wantDistributable {
				t.Errorf("Distributable = %d, want %d", cut.Distributable, tt.wantDistributable)
			}
			if cut.OnlyWinners != tt.wantOnlyWinners {
				t.Errorf("OnlyWinners = %v, want %v", cut.OnlyWinners, tt.wantOnlyWinners)
			}
			if cut.GuardTripped != tt.wantGuardTripped {
				t.Errorf("GuardTripped = %v, want %v", cut.GuardTripped, tt.wantGuardTripped)
			}
		})
	}
}

func TestRewardNeverBelowStakeWhenGuarded(t *testing.T) {
	p := Default()
	cut := p.Split(10000, 9800)
	if !cut.GuardTripped {
		t.Fatalf("expected guard to trip")
	}
	for _, stake := range []int64{1, 100, 9699} {
		if got := cut.Reward(stake); got < stake {
			t.Errorf("Reward(%d) = %d, below break-even", stake, got)
		}
	}
}

func TestRewardConservation(t *testing.T) {
	p := Default()
	stakes := []int64{1, 7, 500, 12345, 999999}
	var winnerPool int64
	for _, s := range stakes {
		winnerPool += s
	}
	total := winnerPool * 3

	cut := p.Split(total, winnerPool)
	var paid int64
	for _, s := range stakes {
		paid += cut.Reward(s)
	}
	if paid > cut.Distributable {
		t.Errorf("paid %d exceeds distributable %d", paid, cut.Distributable)
	}
	// Dust is bounded by one unit per winner.
	if dust := cut.Distributable - paid; dust >= int64(len(stakes)) {
		t.Errorf("dust %d, want < %d", dust, len(stakes))
	}
}

func TestRewardNoOverflow(t *testing.T) {
	// stake * distributable would overflow int64; mulDiv must not.
	const big = int64(4e18)
	cut := Cut{WinnerPool: big, Distributable: big}
	if got := cut.Reward(big); got != big {
		t.Errorf("Reward(%d) = %d, want %d", big, got, big)
	}
}

func TestFallbackShare(t *testing.T) {
	p := Default()
	if got := p.FallbackShare(1000, true); got != 500 {
		t.Errorf("hot fallback = %d, want 500", got)
	}
	if got := p.FallbackShare(1000, false); got != 20 {
		t.Errorf("cold fallback = %d, want 20", got)
	}
	if got := p.FallbackShare(0, true); got != 0 {
		t.Errorf("fallback of zero balance = %d, want 0", got)
	}
}

func TestReserveSplit(t *testing.T) {
	tests := []struct {
		balance   int64
		primary   int64
		secondary int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{10, 5, 5},
		{11, 5, 6},
	}
	for _, tt := range tests {
		p, s := ReserveSplit(tt.balance)
		if p != tt.primary || s != tt.secondary {
			t.Errorf("ReserveSplit(%d) = (%d, %d), want (%d, %d)",
				tt.balance, p, s, tt.primary, tt.secondary)
		}
		if p+s != tt.balance {
			t.Errorf("ReserveSplit(%d) loses money: %d + %d", tt.balance, p, s)
		}
	}
}

func TestBpsRoundsDown(t *testing.T) {
	if got := Bps(199, 100); got != 1 {
		t.Errorf("Bps(199, 100) = %d, want 1", got)
	}
	if got := Bps(99, 100); got != 0 {
		t.Errorf("Bps(99, 100) = %d, want 0", got)
	}
}
