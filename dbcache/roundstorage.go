package dbcache

import (
	"context"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/varz"
)

var (
	roundStorageCacheHits            = varz.NewInt("roundStorageCacheHits")
	roundStorageCacheMisses          = varz.NewInt("roundStorageCacheMisses")
	roundStorageCacheDuplicateUpdate = varz.NewInt("roundStorageCacheDuplicateUpdate")
)

// RoundStorage caches rounds by sequence number in front of the database.
// The round's optimistic lock doubles as the cache version: dbnotify calls
// CacheInvalidate with the version it heard about, and stale entries lose.
//
// Stakes are not cached; settlement reads them once per batch and the rows
// are tiny.
type RoundStorage struct {
	cache *lru.Cache[int64, *model.Round]
	lock  sync.Mutex
	next  state.PoolStorage
}

var _ state.PoolStorage = (*RoundStorage)(nil)

func NewRoundStorage(size int, next state.PoolStorage) *RoundStorage {
	cache, err := lru.New[int64, *model.Round](size)
	if err != nil {
		log.Fatalf("Failed to create RoundStorage cache: %v", err)
	}
	return &RoundStorage{
		cache: cache,
		next:  next,
	}
}

func (s *RoundStorage) Close() {
	s.next.Close()
}

// CreateRound implements state.PoolStorage.
func (s *RoundStorage) CreateRound(ctx context.Context, r *model.Round) error {
	err := s.next.CreateRound(ctx, r)
	if err == nil {
		s.CacheStore(ctx, r)
	}
	return err
}

func (s *RoundStorage) CacheInvalidate(_ context.Context, seqNo int64, version int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if r, ok := s.cache.Get(seqNo); ok {
		if r.OptimisticLock <= version {
			s.cache.Remove(seqNo)
		}
	}
}

func (s *RoundStorage) CacheStore(ctx context.Context, r *model.Round) {
	seqNo := r.SeqNo
	s.lock.Lock()
	defer s.lock.Unlock()
	cached, ok := s.cache.Get(seqNo)
	if ok {
		if cached.OptimisticLock > r.OptimisticLock {
			log.Printf("cache: have version %d, incoming %d, ignoring", cached.OptimisticLock, r.OptimisticLock)
			return
		} else if cached.OptimisticLock == r.OptimisticLock {
			roundStorageCacheDuplicateUpdate.Add(1)
			return
		}
	}
	s.cache.Add(seqNo, r.Clone())
}

// Alternate name, making this suitable for the dbnotify CacheStorage
// interface.
func (s *RoundStorage) Fetch(ctx context.Context, seqNo int64) (*model.Round, error) {
	return s.FetchRound(ctx, seqNo)
}

func (s *RoundStorage) FetchRound(ctx context.Context, seqNo int64) (*model.Round, error) {
	s.lock.Lock()
	r, ok := s.cache.Get(seqNo)
	s.lock.Unlock()
	if ok {
		roundStorageCacheHits.Add(1)
		return r.Clone(), nil
	}

	roundStorageCacheMisses.Add(1)
	r, err := s.next.FetchRound(ctx, seqNo)
	if err != nil {
		return nil, err
	}
	s.CacheStore(ctx, r)
	return r, nil
}

// CurrentRound is never served from cache; which round is current is
// exactly the thing another writer could change under us.
func (s *RoundStorage) CurrentRound(ctx context.Context) (*model.Round, error) {
	r, err := s.next.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	s.CacheStore(ctx, r)
	return r, nil
}

func (s *RoundStorage) SaveRound(ctx context.Context, r *model.Round) error {
	err := s.next.SaveRound(ctx, r)
	if err != nil {
		return err
	}
	s.CacheStore(ctx, r)
	return nil
}

func (s *RoundStorage) RecordStake(ctx context.Context, r *model.Round, st *model.Stake, firstStake bool) error {
	err := s.next.RecordStake(ctx, r, st, firstStake)
	if err != nil {
		return err
	}
	s.CacheStore(ctx, r)
	return nil
}

func (s *RoundStorage) SaveSettlement(ctx context.Context, r *model.Round, stakes []*model.Stake) error {
	err := s.next.SaveSettlement(ctx, r, stakes)
	if err != nil {
		return err
	}
	s.CacheStore(ctx, r)
	return nil
}

func (s *RoundStorage) FetchStake(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error) {
	return s.next.FetchStake(ctx, seqNo, competitor, staker)
}

func (s *RoundStorage) FetchStakeRange(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error) {
	return s.next.FetchStakeRange(ctx, seqNo, competitor, start, end)
}

func (s *RoundStorage) IsParticipant(ctx context.Context, account string) (bool, error) {
	return s.next.IsParticipant(ctx, account)
}

func (s *RoundStorage) FetchOverview(ctx context.Context, offset, limit int) (*model.Overview, error) {
	return s.next.FetchOverview(ctx, offset, limit)
}
