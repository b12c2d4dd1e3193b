package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ts4z/tote/bank"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/pool"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/ts"
)

var genesis = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newFacade() (*PoolFacade, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(genesis)
	storage := state.NewMemoryStorage()
	m := pool.NewManager(&pool.Config{
		Clock:    ts.NewSlotClock(fc, genesis, 10*time.Second),
		Storage:  storage,
		Site:     storage,
		Treasury: bank.New(),
		MinStake: 1,
	})
	return NewPoolFacade(m), fc
}

func asUser(ctx context.Context, operator bool) context.Context {
	return UserIdentityInContext(ctx, &model.UserIdentity{
		ID:         1,
		Nick:       "op",
		IsOperator: operator,
	})
}

func TestLifecycleOpsAreOperatorGated(t *testing.T) {
	f, _ := newFacade()
	raceStart := genesis.Add(5 * time.Minute)
	raceEnd := raceStart.Add(time.Minute)

	tests := []struct {
		name string
		op   func(ctx context.Context) error
	}{
		{"create round", func(ctx context.Context) error {
			_, err := f.CreateRound(ctx, []string{"a", "b"}, 1, 101, raceStart, raceEnd)
			return err
		}},
		{"declare winner", func(ctx context.Context) error {
			return f.DeclareWinner(ctx, 1, "a")
		}},
		{"aggregate", func(ctx context.Context) error {
			return f.AggregateWinnings(ctx, 1, 0, 1)
		}},
		{"distribute", func(ctx context.Context) error {
			return f.DistributeRewards(ctx, 1, 0, 1)
		}},
		{"finalize", func(ctx context.Context) error {
			return f.FinalizeFees(ctx, 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(context.Background()); !errors.Is(err, pool.ErrPermissionDenied) {
				t.Errorf("anonymous %s = %v, want ErrPermissionDenied", tt.name, err)
			}
			if err := tt.op(asUser(context.Background(), false)); !errors.Is(err, pool.ErrPermissionDenied) {
				t.Errorf("non-operator %s = %v, want ErrPermissionDenied", tt.name, err)
			}
		})
	}
}

func TestOperatorPassesThrough(t *testing.T) {
	f, fc := newFacade()
	ctx := asUser(context.Background(), true)

	raceStart := genesis.Add(5 * time.Minute)
	if _, err := f.CreateRound(ctx, []string{"a", "b"}, 1, 101, raceStart, raceStart.Add(time.Minute)); err != nil {
		t.Fatalf("CreateRound as operator: %v", err)
	}

	// Staking needs no role at all.
	fc.Advance(10 * time.Second)
	if err := f.PlaceStake(context.Background(), 1, "a", "alice", 10); err != nil {
		t.Errorf("anonymous PlaceStake = %v, want nil", err)
	}
	if _, err := f.Round(context.Background(), 1); err != nil {
		t.Errorf("anonymous Round = %v, want nil", err)
	}
}
