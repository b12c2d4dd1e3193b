package permission

import (
	"context"
	"time"

	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/pool"
)

// PoolFacade gates the round lifecycle behind the operator role.  Placing a
// stake and reading state stay open; everything that moves the round through
// its phases does not.
type PoolFacade struct {
	next *pool.Manager
}

func NewPoolFacade(next *pool.Manager) *PoolFacade {
	return &PoolFacade{next: next}
}

func (f *PoolFacade) CreateRound(ctx context.Context, competitors []string, bettingStart, bettingEnd int64, raceStart, raceEnd time.Time) (*model.Round, error) {
	return requireOperatorReturning(ctx, func() (*model.Round, error) {
		return f.next.CreateRound(ctx, competitors, bettingStart, bettingEnd, raceStart, raceEnd)
	})
}

func (f *PoolFacade) PlaceStake(ctx context.Context, seqNo int64, competitor, staker string, amount int64) error {
	return f.next.PlaceStake(ctx, seqNo, competitor, staker, amount)
}

func (f *PoolFacade) DeclareWinner(ctx context.Context, seqNo int64, competitor string) error {
	return requireOperator(ctx, func() error {
		return f.next.DeclareWinner(ctx, seqNo, competitor)
	})
}

func (f *PoolFacade) AggregateWinnings(ctx context.Context, seqNo int64, start, end int) error {
	return requireOperator(ctx, func() error {
		return f.next.AggregateWinnings(ctx, seqNo, start, end)
	})
}

func (f *PoolFacade) DistributeRewards(ctx context.Context, seqNo int64, start, end int) error {
	return requireOperator(ctx, func() error {
		return f.next.DistributeRewards(ctx, seqNo, start, end)
	})
}

func (f *PoolFacade) FinalizeFees(ctx context.Context, seqNo int64) error {
	return requireOperator(ctx, func() error {
		return f.next.FinalizeFees(ctx, seqNo)
	})
}

func (f *PoolFacade) Round(ctx context.Context, seqNo int64) (*model.Round, error) {
	return f.next.Round(ctx, seqNo)
}

func (f *PoolFacade) CurrentRound(ctx context.Context) (*model.Round, error) {
	return f.next.CurrentRound(ctx)
}

func (f *PoolFacade) Stakers(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error) {
	return f.next.Stakers(ctx, seqNo, competitor, start, end)
}

func (f *PoolFacade) StakeOf(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error) {
	return f.next.StakeOf(ctx, seqNo, competitor, staker)
}

func (f *PoolFacade) Overview(ctx context.Context, offset, limit int) (*model.Overview, error) {
	return f.next.Overview(ctx, offset, limit)
}
