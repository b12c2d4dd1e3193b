package state

// package state manages persistence.

import (
	"context"
	"errors"

	"github.com/ts4z/tote/model"
)

var (
	// ErrNotFound means the round, stake, or user doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an optimistic-lock race was lost, or a round was
	// created while another is still unsettled.  The caller's whole
	// operation is rejected; nothing partial survives.
	ErrConflict = errors.New("storage conflict")
)

type Closer interface {
	Close()
}

// PoolStorage is storage's view of rounds and their books.
//
// The three write methods are each atomic: either everything in the call is
// persisted or nothing is.  Round writes are guarded by the round's
// optimistic lock, which the implementation bumps on success.
type PoolStorage interface {
	Closer

	// CreateRound adds a new round.  Fails with ErrConflict if a round with
	// that sequence number exists or the previous round isn't settled.
	CreateRound(ctx context.Context, r *model.Round) error
	FetchRound(ctx context.Context, seqNo int64) (*model.Round, error)
	// CurrentRound is the highest-numbered round, settled or not.
	CurrentRound(ctx context.Context) (*model.Round, error)
	// SaveRound persists round-only changes (winner declared, finalized).
	SaveRound(ctx context.Context, r *model.Round) error

	// RecordStake persists a stake top-up: the updated round and stake, and,
	// for a first stake, the staker's lifetime-participant mark.
	RecordStake(ctx context.Context, r *model.Round, s *model.Stake, firstStake bool) error
	// SaveSettlement persists a settlement batch: the updated round plus the
	// flag updates for the touched stakes.
	SaveSettlement(ctx context.Context, r *model.Round, stakes []*model.Stake) error

	FetchStake(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error)
	// FetchStakeRange pages through a competitor's stakes by staker-list
	// index, half-open [start, end), clamped to the list.
	FetchStakeRange(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error)

	// IsParticipant reports whether the account ever staked, in any round.
	IsParticipant(ctx context.Context, account string) (bool, error)

	FetchOverview(ctx context.Context, offset, limit int) (*model.Overview, error)
}

// SiteStorage holds server-wide configuration.
type SiteStorage interface {
	Closer

	FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error)
	SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error
}

// UserStorage holds operator/admin accounts.
type UserStorage interface {
	Closer

	FetchUsers(ctx context.Context) ([]*model.UserIdentity, error)
	CreateUser(ctx context.Context, nick, passwordHash string, isAdmin, isOperator bool) error
	FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error)
	FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error)
	DeleteUserByNick(ctx context.Context, nick string) error
	SetOperator(ctx context.Context, nick string, isOperator bool) error
}

// Storage is everything a server needs.
type Storage interface {
	PoolStorage
	SiteStorage
	UserStorage
}
