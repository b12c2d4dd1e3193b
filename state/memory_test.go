package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ts4z/tote/model"
)

func testRound(seqNo int64) *model.Round {
	return &model.Round{
		SeqNo:        seqNo,
		Competitors:  []string{"horse-a", "horse-b"},
		BettingStart: 1,
		BettingEnd:   100,
		RaceStart:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		RaceEnd:      time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC),
		StakerCounts: map[string]int{},
	}
}

func TestCreateAndFetchRound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r := testRound(1)
	if err := s.CreateRound(ctx, r); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	if r.OptimisticLock != 1 {
		t.Errorf("lock after create = %d, want 1", r.OptimisticLock)
	}

	got, err := s.FetchRound(ctx, 1)
	if err != nil {
		t.Fatalf("FetchRound: %v", err)
	}
	if got.SeqNo != 1 || len(got.Competitors) != 2 {
		t.Errorf("fetched round = %+v", got)
	}

	if _, err := s.FetchRound(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchRound(99) = %v, want ErrNotFound", err)
	}
}

func TestCreateRoundWhilePreviousUnsettled(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	if err := s.CreateRound(ctx, testRound(1)); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	if err := s.CreateRound(ctx, testRound(2)); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateRound with unsettled predecessor = %v, want ErrConflict", err)
	}
}

func TestOptimisticLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r := testRound(1)
	if err := s.CreateRound(ctx, r); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}

	// Two readers fetch the same version; the second save must lose.
	a, _ := s.FetchRound(ctx, 1)
	b, _ := s.FetchRound(ctx, 1)

	a.TotalStaked = 100
	if err := s.SaveRound(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	b.TotalStaked = 200
	if err := s.SaveRound(ctx, b); !errors.Is(err, ErrConflict) {
		t.Errorf("stale save = %v, want ErrConflict", err)
	}

	got, _ := s.FetchRound(ctx, 1)
	if got.TotalStaked != 100 {
		t.Errorf("TotalStaked = %d, want 100", got.TotalStaked)
	}
}

func TestRecordStakeAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r := testRound(1)
	if err := s.CreateRound(ctx, r); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}

	stakers := []string{"alice", "bob", "carol"}
	for i, staker := range stakers {
		st := &model.Stake{Competitor: "horse-a", Staker: staker, Index: i, Amount: int64(10 * (i + 1))}
		if err := s.RecordStake(ctx, r, st, true); err != nil {
			t.Fatalf("RecordStake(%s): %v", staker, err)
		}
	}

	got, err := s.FetchStakeRange(ctx, 1, "horse-a", 1, 3)
	if err != nil {
		t.Fatalf("FetchStakeRange: %v", err)
	}
	if len(got) != 2 || got[0].Staker != "bob" || got[1].Staker != "carol" {
		t.Errorf("range [1,3) = %+v", got)
	}

	if ok, _ := s.IsParticipant(ctx, "alice"); !ok {
		t.Errorf("alice not marked as participant")
	}
	if ok, _ := s.IsParticipant(ctx, "nobody"); ok {
		t.Errorf("nobody marked as participant")
	}
}

func TestSaveSettlementPersistsFlags(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	r := testRound(1)
	if err := s.CreateRound(ctx, r); err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	st := &model.Stake{Competitor: "horse-a", Staker: "alice", Index: 0, Amount: 10}
	if err := s.RecordStake(ctx, r, st, true); err != nil {
		t.Fatalf("RecordStake: %v", err)
	}

	st.Aggregated = true
	if err := s.SaveSettlement(ctx, r, []*model.Stake{st}); err != nil {
		t.Fatalf("SaveSettlement: %v", err)
	}

	got, err := s.FetchStake(ctx, 1, "horse-a", "alice")
	if err != nil {
		t.Fatalf("FetchStake: %v", err)
	}
	if !got.Aggregated {
		t.Errorf("aggregated flag not persisted")
	}
}

func TestOverviewNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	for seq := int64(1); seq <= 3; seq++ {
		r := testRound(seq)
		if err := s.CreateRound(ctx, r); err != nil {
			t.Fatalf("CreateRound(%d): %v", seq, err)
		}
		r.FeesFinal = true
		if err := s.SaveRound(ctx, r); err != nil {
			t.Fatalf("SaveRound(%d): %v", seq, err)
		}
	}

	ov, err := s.FetchOverview(ctx, 0, 2)
	if err != nil {
		t.Fatalf("FetchOverview: %v", err)
	}
	if len(ov.Slugs) != 2 || ov.Slugs[0].SeqNo != 3 || ov.Slugs[1].SeqNo != 2 {
		t.Errorf("overview = %+v, want seq 3 then 2", ov.Slugs)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	if err := s.CreateUser(ctx, "ada", "hash", true, false); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, "ada", "hash", false, false); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate CreateUser = %v, want ErrConflict", err)
	}

	row, err := s.FetchUserRow(ctx, "ada")
	if err != nil {
		t.Fatalf("FetchUserRow: %v", err)
	}
	if !row.IsAdmin || row.IsOperator {
		t.Errorf("row = %+v", row)
	}

	if err := s.SetOperator(ctx, "ada", true); err != nil {
		t.Fatalf("SetOperator: %v", err)
	}
	u, err := s.FetchUserByUserID(ctx, row.ID)
	if err != nil {
		t.Fatalf("FetchUserByUserID: %v", err)
	}
	if !u.IsOperator {
		t.Errorf("operator grant not persisted")
	}

	if err := s.DeleteUserByNick(ctx, "ada"); err != nil {
		t.Fatalf("DeleteUserByNick: %v", err)
	}
	if _, err := s.FetchUserRow(ctx, "ada"); !errors.Is(err, ErrNotFound) {
		t.Errorf("fetch after delete = %v, want ErrNotFound", err)
	}
}

func TestSiteConfigOptimisticLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	a, _ := s.FetchSiteConfig(ctx)
	b, _ := s.FetchSiteConfig(ctx)

	a.PrimaryReserve = "reserve-1"
	if err := s.SaveSiteConfig(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	b.PrimaryReserve = "reserve-2"
	if err := s.SaveSiteConfig(ctx, b); !errors.Is(err, ErrConflict) {
		t.Errorf("stale site config save = %v, want ErrConflict", err)
	}
}
