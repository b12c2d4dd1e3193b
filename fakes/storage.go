// package fakes holds test doubles shared across packages' tests.
package fakes

import (
	"context"

	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/state"
)

// BrokenStorage wraps a PoolStorage and fails writes on demand.  Reads pass
// through untouched.
type BrokenStorage struct {
	state.PoolStorage

	// SaveErr, when set, is returned by every write.
	SaveErr error
}

func (b *BrokenStorage) CreateRound(ctx context.Context, r *model.Round) error {
	if b.SaveErr != nil {
		return b.SaveErr
	}
	return b.PoolStorage.CreateRound(ctx, r)
}

func (b *BrokenStorage) SaveRound(ctx context.Context, r *model.Round) error {
	if b.SaveErr != nil {
		return b.SaveErr
	}
	return b.PoolStorage.SaveRound(ctx, r)
}

func (b *BrokenStorage) RecordStake(ctx context.Context, r *model.Round, s *model.Stake, firstStake bool) error {
	if b.SaveErr != nil {
		return b.SaveErr
	}
	return b.PoolStorage.RecordStake(ctx, r, s, firstStake)
}

func (b *BrokenStorage) SaveSettlement(ctx context.Context, r *model.Round, stakes []*model.Stake) error {
	if b.SaveErr != nil {
		return b.SaveErr
	}
	return b.PoolStorage.SaveSettlement(ctx, r, stakes)
}
