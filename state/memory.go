package state

import (
	"context"
	"sort"
	"sync"

	"github.com/ts4z/tote/ledger"
	"github.com/ts4z/tote/model"
)

// MemoryStorage keeps everything in process.  It backs tests and the
// single-node no-database configuration; the semantics match DBStorage,
// including optimistic locking, so pool can't tell them apart.
type MemoryStorage struct {
	mu           sync.Mutex
	rounds       map[int64]*model.Round
	books        map[int64]*ledger.Book
	participants map[string]bool
	users        map[string]*model.UserRow
	nextUserID   int64
	site         *model.SiteConfig
	currentSeq   int64
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		rounds:       make(map[int64]*model.Round),
		books:        make(map[int64]*ledger.Book),
		participants: make(map[string]bool),
		users:        make(map[string]*model.UserRow),
		nextUserID:   1,
		site:         &model.SiteConfig{},
	}
}

func (s *MemoryStorage) Close() {}

func (s *MemoryStorage) CreateRound(ctx context.Context, r *model.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rounds[r.SeqNo]; exists {
		return ErrConflict
	}
	if cur, ok := s.rounds[s.currentSeq]; ok && !cur.FeesFinal {
		return ErrConflict
	}

	cpy := r.Clone()
	cpy.OptimisticLock = 1
	s.rounds[r.SeqNo] = cpy
	s.books[r.SeqNo] = ledger.NewBook()
	if r.SeqNo > s.currentSeq {
		s.currentSeq = r.SeqNo
	}
	r.OptimisticLock = cpy.OptimisticLock
	return nil
}

func (s *MemoryStorage) FetchRound(ctx context.Context, seqNo int64) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[seqNo]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStorage) CurrentRound(ctx context.Context) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[s.currentSeq]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// saveRoundLocked applies the optimistic-lock check and stores a bumped
// clone.  Caller holds the mutex.
func (s *MemoryStorage) saveRoundLocked(r *model.Round) error {
	cur, ok := s.rounds[r.SeqNo]
	if !ok {
		return ErrNotFound
	}
	if cur.OptimisticLock != r.OptimisticLock {
		return ErrConflict
	}
	cpy := r.Clone()
	cpy.OptimisticLock++
	s.rounds[r.SeqNo] = cpy
	r.OptimisticLock = cpy.OptimisticLock
	return nil
}

func (s *MemoryStorage) SaveRound(ctx context.Context, r *model.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRoundLocked(r)
}

func (s *MemoryStorage) RecordStake(ctx context.Context, r *model.Round, st *model.Stake, firstStake bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveRoundLocked(r); err != nil {
		return err
	}
	book := s.books[r.SeqNo]
	if firstStake {
		book.Add(st.Competitor, st.Staker, st.Amount)
		s.participants[st.Staker] = true
	} else {
		book.Put(st)
	}
	return nil
}

func (s *MemoryStorage) SaveSettlement(ctx context.Context, r *model.Round, stakes []*model.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveRoundLocked(r); err != nil {
		return err
	}
	book := s.books[r.SeqNo]
	for _, st := range stakes {
		book.Put(st)
	}
	return nil
}

func (s *MemoryStorage) FetchStake(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[seqNo]
	if !ok {
		return nil, ErrNotFound
	}
	st := book.Stake(competitor, staker)
	if st == nil {
		return nil, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStorage) FetchStakeRange(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[seqNo]
	if !ok {
		return nil, ErrNotFound
	}
	return book.Range(competitor, start, end), nil
}

func (s *MemoryStorage) IsParticipant(ctx context.Context, account string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[account], nil
}

func (s *MemoryStorage) FetchOverview(ctx context.Context, offset, limit int) (*model.Overview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]int64, 0, len(s.rounds))
	for seq := range s.rounds {
		seqs = append(seqs, seq)
	}
	// Newest first, like the front page wants.
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })

	lo, hi := ledger.Clamp(offset, offset+limit, len(seqs))
	overview := &model.Overview{}
	for _, seq := range seqs[lo:hi] {
		r := s.rounds[seq]
		overview.Slugs = append(overview.Slugs, model.RoundSlug{
			SeqNo:       r.SeqNo,
			Competitors: append([]string(nil), r.Competitors...),
			TotalStaked: r.TotalStaked,
		})
	}
	return overview, nil
}

func (s *MemoryStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.UserIdentity{}
	for _, u := range s.users {
		id := u.UserIdentity
		out = append(out, &id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, nick, passwordHash string, isAdmin, isOperator bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[nick]; exists {
		return ErrConflict
	}
	s.users[nick] = &model.UserRow{
		UserIdentity: model.UserIdentity{
			ID:         s.nextUserID,
			Nick:       nick,
			IsAdmin:    isAdmin,
			IsOperator: isOperator,
		},
		PasswordHash: passwordHash,
	}
	s.nextUserID++
	return nil
}

func (s *MemoryStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			identity := u.UserIdentity
			return &identity, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[nick]
	if !ok {
		return nil, ErrNotFound
	}
	row := *u
	return &row, nil
}

func (s *MemoryStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[nick]; !ok {
		return ErrNotFound
	}
	delete(s.users, nick)
	return nil
}

func (s *MemoryStorage) SetOperator(ctx context.Context, nick string, isOperator bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[nick]
	if !ok {
		return ErrNotFound
	}
	u.IsOperator = isOperator
	return nil
}

func (s *MemoryStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := *s.site
	return &cpy, nil
}

func (s *MemoryStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.OptimisticLock != s.site.OptimisticLock {
		return ErrConflict
	}
	cpy := *config
	cpy.OptimisticLock++
	s.site = &cpy
	config.OptimisticLock = cpy.OptimisticLock
	return nil
}
