package dbcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/varz"
)

var (
	userStorageCacheHits   = varz.NewInt("userStorageCacheHits")
	userStorageCacheMisses = varz.NewInt("userStorageCacheMisses")
)

type UserStorage struct {
	cache *lru.Cache[int64, *model.UserIdentity]
	next  state.UserStorage
}

var _ state.UserStorage = &UserStorage{}

func NewUserStorage(size int, nx state.UserStorage) *UserStorage {
	cache, err := lru.New[int64, *model.UserIdentity](size)
	if err != nil {
		panic(err)
	}
	return &UserStorage{
		cache: cache,
		next:  nx,
	}
}

func (s *UserStorage) Close() {
	s.next.Close()
}

// TODO: We need to be able to call this for multiple-writer changes.
func (s *UserStorage) InvalidateCache(userID int64) {
	s.cache.Remove(userID)
}

func (s *UserStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	return s.next.FetchUsers(ctx)
}

func (s *UserStorage) CreateUser(ctx context.Context, nick, passwordHash string, isAdmin, isOperator bool) error {
	return s.next.CreateUser(ctx, nick, passwordHash, isAdmin, isOperator)
}

func (s *UserStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	if ui, ok := s.cache.Get(id); ok {
		userStorageCacheHits.Add(1)
		return ui.Clone(), nil
	}

	userStorageCacheMisses.Add(1)

	ui, err := s.next.FetchUserByUserID(ctx, id)
	if err == nil {
		s.cache.Add(id, ui.Clone())
	}

	return ui, err
}

func (s *UserStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	return s.next.FetchUserRow(ctx, nick)
}

func (s *UserStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	err := s.next.DeleteUserByNick(ctx, nick)
	if err == nil {
		s.cache.Purge()
	}
	return err
}

func (s *UserStorage) SetOperator(ctx context.Context, nick string, isOperator bool) error {
	err := s.next.SetOperator(ctx, nick, isOperator)
	if err == nil {
		// Keyed by ID, changed by nick; cheapest correct answer is to dump
		// the whole cache.
		s.cache.Purge()
	}
	return err
}
