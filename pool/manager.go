// package pool runs the pari-mutuel round: the lifecycle state machine and
// the batched settlement engine.
//
// Settlement has to survive an unbounded number of winning-side stakers, so
// both phases work over caller-chosen index ranges and are idempotent per
// index: a retried or overlapping batch silently skips entries it already
// handled.  Out-of-order calls, by contrast, fail loudly with the unmet
// precondition.  The distinction matters; don't blur it.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ts4z/tote/bank"
	"github.com/ts4z/tote/gossip"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/paytable"
	"github.com/ts4z/tote/state"
	"github.com/ts4z/tote/ts"
	"github.com/ts4z/tote/varz"
	"github.com/ts4z/tote/yield"
)

var (
	stakesRecorded   = varz.NewInt("stakesRecorded")
	rewardsPaid      = varz.NewInt("rewardsPaid")
	transferFailures = varz.NewInt("transferFailures")
	roundsClosed     = varz.NewInt("roundsClosed")
)

// Manager owns the current round.  All mutating entry points serialize on
// one mutex: there is exactly one active round, and a settlement batch must
// never interleave with another mutation of it.  (Closed rounds are inert,
// so they don't need their own locks.)
type Manager struct {
	mu sync.Mutex

	clock    ts.Clock
	storage  state.PoolStorage
	site     state.SiteStorage
	policy   *paytable.Policy
	treasury bank.Treasury
	gossiper *gossip.Gossiper
	hooks    yield.Hooks
	minStake int64
}

type Config struct {
	Clock    ts.Clock
	Storage  state.PoolStorage
	Site     state.SiteStorage
	Policy   *paytable.Policy
	Treasury bank.Treasury
	Gossiper *gossip.Gossiper
	Hooks    yield.Hooks
	MinStake int64
}

func NewManager(cfg *Config) *Manager {
	policy := cfg.Policy
	if policy == nil {
		policy = paytable.Default()
	}
	gossiper := cfg.Gossiper
	if gossiper == nil {
		gossiper = gossip.New()
	}
	return &Manager{
		clock:    cfg.Clock,
		storage:  cfg.Storage,
		site:     cfg.Site,
		policy:   policy,
		treasury: cfg.Treasury,
		gossiper: gossiper,
		hooks:    cfg.Hooks,
		minStake: cfg.MinStake,
	}
}

// Gossiper exposes the event stream.
func (m *Manager) Gossiper() *gossip.Gossiper {
	return m.gossiper
}

// currentRound fetches the current round and checks the caller is talking
// about it.  Historical rounds are queryable but never mutable.
func (m *Manager) currentRound(ctx context.Context, op string, seqNo int64) (*model.Round, error) {
	r, err := m.storage.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if r.SeqNo != seqNo {
		return nil, phaseErr(op, r.PhaseAt(m.clock.Now(), m.clock.Height()),
			"round %d is not the current round (%d)", seqNo, r.SeqNo)
	}
	return r, nil
}

// CreateRound opens a new round.  Legal only when no round exists yet or the
// previous round has fully settled.
func (m *Manager) CreateRound(ctx context.Context, competitors []string, bettingStart, bettingEnd int64, raceStart, raceEnd time.Time) (*model.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(competitors) < model.MinCompetitors || len(competitors) > model.MaxCompetitors {
		return nil, fmt.Errorf("need %d-%d competitors, got %d: %w",
			model.MinCompetitors, model.MaxCompetitors, len(competitors), ErrBadRequest)
	}
	seen := map[string]bool{}
	for _, c := range competitors {
		if c == "" || seen[c] {
			return nil, fmt.Errorf("competitors must be distinct and non-empty: %w", ErrBadRequest)
		}
		seen[c] = true
	}

	now, height := m.clock.Now(), m.clock.Height()
	if bettingStart <= height {
		return nil, fmt.Errorf("betting start %d must be after current slot %d: %w",
			bettingStart, height, ErrBadRequest)
	}
	if bettingEnd <= bettingStart {
		return nil, fmt.Errorf("betting end %d must be after betting start %d: %w",
			bettingEnd, bettingStart, ErrBadRequest)
	}
	if !raceStart.After(now) {
		return nil, fmt.Errorf("race start must be in the future: %w", ErrBadRequest)
	}
	if !raceEnd.After(raceStart) {
		return nil, fmt.Errorf("race end must be after race start: %w", ErrBadRequest)
	}

	seqNo := int64(1)
	if cur, err := m.storage.CurrentRound(ctx); err == nil {
		if !cur.FeesFinal {
			return nil, phaseErr("create round", cur.PhaseAt(now, height),
				"round %d is not settled yet", cur.SeqNo)
		}
		seqNo = cur.SeqNo + 1
	} else if err != state.ErrNotFound {
		return nil, err
	}

	r := &model.Round{
		SeqNo:        seqNo,
		Competitors:  append([]string(nil), competitors...),
		BettingStart: bettingStart,
		BettingEnd:   bettingEnd,
		RaceStart:    raceStart,
		RaceEnd:      raceEnd,
		StakerCounts: make(map[string]int),
	}
	if err := m.storage.CreateRound(ctx, r); err != nil {
		return nil, err
	}

	log.Printf("round %d created: %d competitors, betting slots [%d,%d), race %v..%v",
		seqNo, len(competitors), bettingStart, bettingEnd, raceStart, raceEnd)
	m.gossiper.Publish(gossip.Event{Type: gossip.RoundCreated, SeqNo: seqNo, At: now})
	return r, nil
}

// PlaceStake records a stake (or a top-up) on a competitor while the betting
// window is open.
func (m *Manager) PlaceStake(ctx context.Context, seqNo int64, competitor, staker string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.currentRound(ctx, "place stake", seqNo)
	if err != nil {
		return err
	}

	now, height := m.clock.Now(), m.clock.Height()
	if !r.BettingOpen(now, height) {
		return phaseErr("place stake", r.PhaseAt(now, height),
			"betting window is slots [%d,%d) and before %v; now slot %d, %v",
			r.BettingStart, r.BettingEnd, r.RaceStart, height, now)
	}
	if amount < m.minStake {
		return fmt.Errorf("stake %d < minimum %d: %w", amount, m.minStake, ErrBelowMinimum)
	}
	if !r.HasCompetitor(competitor) {
		return fmt.Errorf("no competitor %q in round %d: %w", competitor, seqNo, ErrBadRequest)
	}
	if staker == "" {
		return fmt.Errorf("staker must not be empty: %w", ErrBadRequest)
	}

	st, err := m.storage.FetchStake(ctx, seqNo, competitor, staker)
	firstStake := false
	switch err {
	case nil:
	case state.ErrNotFound:
		firstStake = true
		st = &model.Stake{
			Competitor: competitor,
			Staker:     staker,
			Index:      r.StakerCounts[competitor],
		}
	default:
		return err
	}

	st.Amount += amount
	if firstStake {
		r.StakerCounts[competitor]++
	}
	r.TotalStaked += amount

	if err := m.storage.RecordStake(ctx, r, st, firstStake); err != nil {
		return err
	}
	m.treasury.Credit(amount)

	stakesRecorded.Add(1)
	m.gossiper.Publish(gossip.Event{
		Type:       gossip.StakeRecorded,
		SeqNo:      seqNo,
		Staker:     staker,
		Competitor: competitor,
		Amount:     amount,
		At:         now,
	})
	return nil
}

// DeclareWinner sets the round's winner.  Legal only after race end, and
// only once.
func (m *Manager) DeclareWinner(ctx context.Context, seqNo int64, competitor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.currentRound(ctx, "declare winner", seqNo)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	if r.Winner != nil {
		return fmt.Errorf("round %d: %w", seqNo, ErrWinnerAlreadyDeclared)
	}
	if !now.After(r.RaceEnd) {
		return phaseErr("declare winner", r.PhaseAt(now, m.clock.Height()),
			"race ends at %v; now %v", r.RaceEnd, now)
	}
	if !r.HasCompetitor(competitor) {
		return fmt.Errorf("no competitor %q in round %d: %w", competitor, seqNo, ErrBadRequest)
	}

	r.Winner = &competitor
	if err := m.storage.SaveRound(ctx, r); err != nil {
		return err
	}

	log.Printf("round %d: winner %q declared (%d stakers to settle)",
		seqNo, competitor, r.WinnerStakerCount())
	m.gossiper.Publish(gossip.Event{
		Type: gossip.WinnerDeclared, SeqNo: seqNo, Competitor: competitor, At: now,
	})
	return nil
}

// AggregateWinnings folds the stakes at winning-side indices [start, end)
// into the round's winner pool.  Already-aggregated indices are skipped, so
// overlapping or retried ranges are harmless.
func (m *Manager) AggregateWinnings(ctx context.Context, seqNo int64, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.currentRound(ctx, "aggregate winnings", seqNo)
	if err != nil {
		return err
	}
	now, height := m.clock.Now(), m.clock.Height()
	if r.FeesFinal {
		return fmt.Errorf("round %d: %w", seqNo, ErrAlreadyFinalized)
	}
	if r.Winner == nil {
		return phaseErr("aggregate winnings", r.PhaseAt(now, height), "no winner declared")
	}
	n := r.WinnerStakerCount()
	if start < 0 || end < start || end > n {
		return fmt.Errorf("range [%d,%d) outside staker list of %d: %w", start, end, n, ErrBadRequest)
	}

	stakes, err := m.storage.FetchStakeRange(ctx, seqNo, *r.Winner, start, end)
	if err != nil {
		return err
	}

	touched := []*model.Stake{}
	for _, st := range stakes {
		if st.Aggregated {
			continue
		}
		st.Aggregated = true
		r.WinnerPool += st.Amount
		r.AggregatedCount++
		touched = append(touched, st)
	}
	if len(touched) == 0 {
		return nil
	}

	if err := m.storage.SaveSettlement(ctx, r, touched); err != nil {
		return err
	}
	log.Printf("round %d: aggregated %d/%d winning stakers, pool %d",
		seqNo, r.AggregatedCount, n, r.WinnerPool)
	return nil
}

// DistributeRewards pays the winning-side indices [start, end) their
// proportional share of the distributable pool.  Aggregation must be
// complete; that's checked once per call, not per index.  Already-paid
// indices are skipped.  Transfer failures are absorbed: the batch marches
// on, and the unpaid amount becomes claimable credit.
func (m *Manager) DistributeRewards(ctx context.Context, seqNo int64, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.currentRound(ctx, "distribute rewards", seqNo)
	if err != nil {
		return err
	}
	now, height := m.clock.Now(), m.clock.Height()
	if r.FeesFinal {
		return fmt.Errorf("round %d: %w", seqNo, ErrAlreadyFinalized)
	}
	if r.Winner == nil {
		return phaseErr("distribute rewards", r.PhaseAt(now, height), "no winner declared")
	}
	n := r.WinnerStakerCount()
	if n == 0 {
		return phaseErr("distribute rewards", r.PhaseAt(now, height),
			"winner has no stakers; finalize fees instead")
	}
	if r.AggregatedCount < n {
		return phaseErr("distribute rewards", r.PhaseAt(now, height),
			"aggregation incomplete (%d/%d)", r.AggregatedCount, n)
	}
	if start < 0 || end < start || end > n {
		return fmt.Errorf("range [%d,%d) outside staker list of %d: %w", start, end, n, ErrBadRequest)
	}

	cut := m.policy.Split(r.TotalStaked, r.WinnerPool)

	stakes, err := m.storage.FetchStakeRange(ctx, seqNo, *r.Winner, start, end)
	if err != nil {
		return err
	}

	type payout struct {
		to     string
		amount int64
	}
	touched := []*model.Stake{}
	payouts := []payout{}
	for _, st := range stakes {
		if st.Paid {
			continue
		}
		st.Paid = true
		r.PaidCount++
		touched = append(touched, st)
		payouts = append(payouts, payout{to: st.Staker, amount: cut.Reward(st.Amount)})
	}
	if len(touched) == 0 {
		return nil
	}

	// Persist the paid flags before moving any money, so a storage failure
	// rejects the whole batch and a retry can never pay twice.
	if err := m.storage.SaveSettlement(ctx, r, touched); err != nil {
		return err
	}

	for _, p := range payouts {
		m.send(p.to, p.amount, seqNo, now)
	}
	log.Printf("round %d: distributed to %d/%d winning stakers", seqNo, r.PaidCount, n)
	return nil
}

// send is the best-effort payout path: success publishes the RewardPaid
// event; failure is logged and parked as a claim, never surfaced to the
// batch.
func (m *Manager) send(to string, amount int64, seqNo int64, at time.Time) {
	if amount <= 0 {
		return
	}
	if m.treasury.BestEffortSend(to, amount) {
		rewardsPaid.Add(1)
		m.gossiper.Publish(gossip.Event{
			Type: gossip.RewardPaid, SeqNo: seqNo, Recipient: to, Amount: amount, At: at,
		})
		return
	}
	transferFailures.Add(1)
	log.Printf("round %d: transfer of %d to %q failed; recording claim", seqNo, amount, to)
	m.treasury.AddClaim(to, amount)
}

// FinalizeFees runs fee/reserve settlement exactly once and closes the
// round.  With no winning-side stakers it also performs the fallback split
// to the winner's own account.
func (m *Manager) FinalizeFees(ctx context.Context, seqNo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.currentRound(ctx, "finalize fees", seqNo)
	if err != nil {
		return err
	}
	now, height := m.clock.Now(), m.clock.Height()
	if r.FeesFinal {
		return fmt.Errorf("round %d: %w", seqNo, ErrAlreadyFinalized)
	}
	if r.Winner == nil {
		return phaseErr("finalize fees", r.PhaseAt(now, height), "no winner declared")
	}

	n := r.WinnerStakerCount()
	var bonus, fallback int64
	if n > 0 {
		if r.PaidCount < n {
			return phaseErr("finalize fees", r.PhaseAt(now, height),
				"distribution incomplete (%d/%d)", r.PaidCount, n)
		}
		cut := m.policy.Split(r.TotalStaked, r.WinnerPool)
		bonus = cut.Bonus
	} else {
		// Nobody bet on the winner: split the house balance with the
		// winner's own account instead.  The rate depends on whether that
		// account ever staked, in any round.
		everStaked, err := m.storage.IsParticipant(ctx, *r.Winner)
		if err != nil {
			return err
		}
		fallback = m.policy.FallbackShare(m.treasury.Balance(), everStaked)
	}

	r.FeesFinal = true
	if err := m.storage.SaveRound(ctx, r); err != nil {
		return err
	}

	if bonus > 0 {
		m.send(*r.Winner, bonus, seqNo, now)
	}
	if fallback > 0 {
		m.send(*r.Winner, fallback, seqNo, now)
	}

	// Pull any claimable external yield in before sweeping.
	m.hooks.RunRoundClose(ctx, seqNo)
	m.sweepReserves(ctx, seqNo, now)

	roundsClosed.Add(1)
	log.Printf("round %d closed", seqNo)
	m.gossiper.Publish(gossip.Event{Type: gossip.RoundClosed, SeqNo: seqNo, At: now})
	return nil
}

// sweepReserves splits what's left of the house balance between the two
// reserve accounts.  Runs once per round close, whichever settlement path
// got us here.
func (m *Manager) sweepReserves(ctx context.Context, seqNo int64, now time.Time) {
	sc, err := m.site.FetchSiteConfig(ctx)
	if err != nil {
		log.Printf("warning: can't fetch site config for reserve sweep: %v", err)
		return
	}
	if sc.PrimaryReserve == "" || sc.SecondaryReserve == "" {
		log.Printf("warning: reserve accounts not configured; skipping sweep for round %d", seqNo)
		return
	}

	primary, secondary := paytable.ReserveSplit(m.treasury.Balance())
	m.send(sc.PrimaryReserve, primary, seqNo, now)
	m.send(sc.SecondaryReserve, secondary, seqNo, now)
}

// Round returns any round, current or historical.
func (m *Manager) Round(ctx context.Context, seqNo int64) (*model.Round, error) {
	return m.storage.FetchRound(ctx, seqNo)
}

func (m *Manager) CurrentRound(ctx context.Context) (*model.Round, error) {
	return m.storage.CurrentRound(ctx)
}

// Stakers pages through a competitor's stakes in staker-list order.
func (m *Manager) Stakers(ctx context.Context, seqNo int64, competitor string, start, end int) ([]*model.Stake, error) {
	return m.storage.FetchStakeRange(ctx, seqNo, competitor, start, end)
}

func (m *Manager) StakeOf(ctx context.Context, seqNo int64, competitor, staker string) (*model.Stake, error) {
	return m.storage.FetchStake(ctx, seqNo, competitor, staker)
}

func (m *Manager) Overview(ctx context.Context, offset, limit int) (*model.Overview, error) {
	return m.storage.FetchOverview(ctx, offset, limit)
}
