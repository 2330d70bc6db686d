package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flarebets/internal/codec"
	"flarebets/internal/gateway"
	"flarebets/internal/model"
	"flarebets/internal/odds"
)

// Store is the session-scoped reconciliation layer: the in-memory model of
// races, bets, and user statistics, merging optimistic local writes with
// authoritative on-chain reads. All mutations run under one mutex so the
// place/claim/settle protocols are atomic with respect to each other; the
// gateway calls are the only suspension points and happen outside the lock,
// guarded per logical target so duplicates are rejected while one is
// outstanding.
type Store struct {
	gw        gateway.Gateway
	estimator *odds.Estimator
	logger    *zap.Logger

	mu            sync.Mutex
	races         map[string]*model.Race
	raceOrder     []string
	bets          []*model.Bet
	byContractID  map[codec.Bytes32]*model.Bet
	byLocalID     map[string]*model.Bet
	totalWinnings float64
	stats         model.UserStats
	inflight      map[string]struct{}
	seq           uint64

	stopOnce      sync.Once
	stop          chan struct{}
	wg            sync.WaitGroup
	unsubscribers []func()
}

// New builds an empty store over a gateway strategy.
func New(gw gateway.Gateway, estimator *odds.Estimator, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		gw:           gw,
		estimator:    estimator,
		logger:       logger,
		races:        make(map[string]*model.Race),
		byContractID: make(map[codec.Bytes32]*model.Bet),
		byLocalID:    make(map[string]*model.Bet),
		inflight:     make(map[string]struct{}),
		stop:         make(chan struct{}),
	}
}

// SeedRaces loads the race calendar, typically once at session start.
// Already-known races keep their state.
func (s *Store) SeedRaces(races []model.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range races {
		race := races[i]
		if _, ok := s.races[race.ID]; ok {
			continue
		}
		copied := race
		copied.Drivers = append([]model.Driver(nil), race.Drivers...)
		s.races[race.ID] = &copied
		s.raceOrder = append(s.raceOrder, race.ID)
	}
}

// Races returns a snapshot of the race collection in seed order.
func (s *Store) Races() []model.Race {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Race, 0, len(s.raceOrder))
	for _, id := range s.raceOrder {
		race := *s.races[id]
		race.Drivers = append([]model.Driver(nil), race.Drivers...)
		out = append(out, race)
	}
	return out
}

// Bets returns a snapshot of every bet seen this session, newest first.
func (s *Store) Bets() []model.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Bet, 0, len(s.bets))
	for i := len(s.bets) - 1; i >= 0; i-- {
		out = append(out, *s.bets[i])
	}
	return out
}

// BetsFor returns the bets owned by one wallet address, newest first.
func (s *Store) BetsFor(owner string) []model.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Bet
	for i := len(s.bets) - 1; i >= 0; i-- {
		if s.bets[i].Owner == owner {
			out = append(out, *s.bets[i])
		}
	}
	return out
}

// Stats returns the current derived user statistics.
func (s *Store) Stats() model.UserStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// PlaceBetResult reports a completed placement. Demo marks the simulated
// path; everything else is identical to the live one.
type PlaceBetResult struct {
	Bet    model.Bet
	TxHash string
	Demo   bool
}

// PlaceBet runs the placement protocol: resolve race and driver locally,
// submit through the gateway, and on confirmation record an optimistic bet
// with the odds captured at submission time. The bet's economics are fixed
// at submission; odds are not re-read after the transaction confirms.
func (s *Store) PlaceBet(ctx context.Context, owner, raceID, driverID string, stake float64) (PlaceBetResult, error) {
	if stake <= 0 {
		return PlaceBetResult{}, model.ErrInvalidStake
	}

	s.mu.Lock()
	race, ok := s.races[raceID]
	if !ok {
		s.mu.Unlock()
		return PlaceBetResult{}, fmt.Errorf("race %s: %w", raceID, model.ErrNotFound)
	}
	driver, ok := race.DriverByID(driverID)
	if !ok {
		s.mu.Unlock()
		return PlaceBetResult{}, fmt.Errorf("driver %s: %w", driverID, model.ErrNotFound)
	}
	if race.Status != model.RaceUpcoming || time.Now().After(race.CutoffTime) {
		s.mu.Unlock()
		return PlaceBetResult{}, model.ErrBettingClosed
	}
	raceName := race.Name
	capturedOdds := driver.Odds
	s.mu.Unlock()

	if capturedOdds < 1 {
		capturedOdds = odds.DefaultOdds
	}

	key := "bet:" + raceID + ":" + driverID
	if err := s.acquire(key); err != nil {
		return PlaceBetResult{}, err
	}
	defer s.release(key)

	placed, gwErr := s.gw.PlaceBet(ctx, raceID, driverID, gateway.ToWei(stake))
	var extraction *model.BetIDExtractionError
	if gwErr != nil && !errors.As(gwErr, &extraction) {
		// Definite failure: no state mutated.
		return PlaceBetResult{}, gwErr
	}

	bet := &model.Bet{
		ID:           s.nextBetID(),
		RaceID:       raceID,
		RaceName:     raceName,
		DriverID:     driverID,
		DriverName:   driver.Name,
		DriverNumber: driver.Number,
		Team:         driver.Team,
		Owner:        owner,
		Stake:        stake,
		Odds:         capturedOdds,
		Status:       model.BetPending,
		Payout:       stake * capturedOdds,
		PlacedAt:     time.Now().UTC(),
		TxHash:       placed.TxHash,
	}
	if !placed.BetID.IsZero() {
		contractID := placed.BetID
		bet.ContractID = &contractID
	}

	s.mu.Lock()
	s.mergeBetLocked(bet)
	s.recomputeStatsLocked()
	result := PlaceBetResult{Bet: *bet, TxHash: placed.TxHash, Demo: s.gw.Demo()}
	s.mu.Unlock()

	s.logger.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("race_id", raceID),
		zap.String("driver_id", driverID),
		zap.Float64("stake", stake),
		zap.Float64("odds", capturedOdds),
		zap.Bool("demo", result.Demo))

	// Degraded success: the bet is on chain but the contract id is unknown
	// until the next reconciliation.
	if gwErr != nil {
		return result, gwErr
	}
	return result, nil
}

// ClaimPayout transitions a won bet to claimed and credits its payout. The
// claim transaction hash replaces the placement hash on the record.
func (s *Store) ClaimPayout(ctx context.Context, betID string) (model.Bet, error) {
	s.mu.Lock()
	bet, ok := s.byLocalID[betID]
	if !ok {
		s.mu.Unlock()
		return model.Bet{}, fmt.Errorf("bet %s: %w", betID, model.ErrNotFound)
	}
	if bet.Status != model.BetWon {
		s.mu.Unlock()
		return model.Bet{}, fmt.Errorf("bet %s in status %s: %w", betID, bet.Status, model.ErrInvalidClaim)
	}
	if bet.ContractID == nil {
		s.mu.Unlock()
		return model.Bet{}, fmt.Errorf("bet %s: %w", betID, model.ErrMissingContractID)
	}
	contractID := *bet.ContractID
	s.mu.Unlock()

	key := "claim:" + betID
	if err := s.acquire(key); err != nil {
		return model.Bet{}, err
	}
	defer s.release(key)

	txHash, err := s.gw.ClaimPayout(ctx, contractID)
	if err != nil {
		return model.Bet{}, err
	}

	s.mu.Lock()
	// Re-check under the lock: a racing claim may have completed first.
	if bet.Status != model.BetWon {
		s.mu.Unlock()
		return model.Bet{}, fmt.Errorf("bet %s in status %s: %w", betID, bet.Status, model.ErrInvalidClaim)
	}
	bet.Status = model.BetClaimed
	bet.TxHash = txHash
	s.totalWinnings += bet.Payout
	s.recomputeStatsLocked()
	out := *bet
	s.mu.Unlock()

	s.logger.Info("payout claimed",
		zap.String("bet_id", betID),
		zap.Float64("payout", out.Payout),
		zap.String("tx_hash", txHash))
	return out, nil
}

// SetRaceResult runs the settlement protocol. Re-settling with the same
// winner is an observable no-op; a different winner is a conflicting write
// and is rejected.
func (s *Store) SetRaceResult(ctx context.Context, raceID, winningDriverID string) error {
	s.mu.Lock()
	race, ok := s.races[raceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("race %s: %w", raceID, model.ErrNotFound)
	}
	if _, ok := race.DriverByID(winningDriverID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("driver %s: %w", winningDriverID, model.ErrNotFound)
	}
	if race.Status == model.RaceSettled {
		defer s.mu.Unlock()
		if race.WinningDriverID == winningDriverID {
			return nil
		}
		return fmt.Errorf("race %s settled with %s: %w", raceID, race.WinningDriverID, model.ErrAlreadySettled)
	}
	s.mu.Unlock()

	key := "settle:" + raceID
	if err := s.acquire(key); err != nil {
		return err
	}
	defer s.release(key)

	if _, err := s.gw.SetRaceResult(ctx, raceID, winningDriverID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A settlement that raced ahead of us already applied; honor the
	// idempotency and conflict rules against its outcome.
	if race.Status == model.RaceSettled {
		if race.WinningDriverID == winningDriverID {
			return nil
		}
		return fmt.Errorf("race %s settled with %s: %w", raceID, race.WinningDriverID, model.ErrAlreadySettled)
	}

	race.Status = model.RaceSettled
	race.WinningDriverID = winningDriverID

	var won, resolved int
	for _, bet := range s.bets {
		if bet.RaceID != raceID || bet.Status != model.BetPending {
			continue
		}
		resolved++
		if bet.DriverID == winningDriverID {
			bet.Status = model.BetWon
			won++
		} else {
			bet.Status = model.BetLost
		}
	}
	s.recomputeStatsLocked()

	s.logger.Info("race settled",
		zap.String("race_id", raceID),
		zap.String("winner", winningDriverID),
		zap.Int("bets_resolved", resolved),
		zap.Int("bets_won", won))
	return nil
}

// Reconcile pulls the connected address's bets from the chain and folds
// them into the local collection. The merge is a set union keyed by
// contract id: existing local records win so optimistic display fields
// survive a refresh, and unknown contract bets are inserted.
func (s *Store) Reconcile(ctx context.Context, owner common.Address) error {
	ids, err := s.gw.UserBets(ctx, owner)
	if err != nil {
		return fmt.Errorf("fetch user bets: %w", err)
	}

	var fetched []*model.Bet
	for _, id := range ids {
		s.mu.Lock()
		_, known := s.byContractID[id]
		s.mu.Unlock()
		if known {
			continue
		}

		info, err := s.gw.BetInfo(ctx, id)
		if err != nil {
			// One unreadable bet should not discard the rest of the
			// reconciliation; the id is retried on the next pass.
			s.logger.Warn("bet fetch failed",
				zap.String("bet_id", id.Hex()),
				zap.Error(err))
			continue
		}

		bet := s.betFromChain(ctx, id, info, owner)
		fetched = append(fetched, bet)
	}

	s.mu.Lock()
	inserted := 0
	for _, bet := range fetched {
		if s.mergeBetLocked(bet) {
			inserted++
		}
	}
	s.recomputeStatsLocked()
	s.mu.Unlock()

	s.logger.Info("reconciled from chain",
		zap.String("owner", owner.Hex()),
		zap.Int("chain_bets", len(ids)),
		zap.Int("inserted", inserted))
	return nil
}

func (s *Store) betFromChain(ctx context.Context, id codec.Bytes32, info gateway.BetInfo, owner common.Address) *model.Bet {
	contractID := id
	stake := gateway.FromWei(info.Amount)
	payout := gateway.FromWei(info.Payout)

	bet := &model.Bet{
		ID:         "chain-" + id.Hex()[2:18],
		ContractID: &contractID,
		RaceID:     info.RaceID,
		RaceName:   info.RaceID,
		DriverID:   info.DriverID,
		DriverName: info.DriverID,
		Owner:      owner.Hex(),
		Stake:      stake,
		Status:     info.Status,
		Payout:     payout,
		PlacedAt:   time.Now().UTC(),
	}
	if stake > 0 && payout > 0 {
		bet.Odds = payout / stake
	} else if bet.Status == model.BetPending {
		// The contract reports payout 0 until settlement; carry the
		// current pool-derived multiplier instead of zero economics.
		bet.Odds = odds.DefaultOdds
		if s.estimator != nil {
			bet.Odds = s.estimator.Estimate(ctx, info.RaceID, info.DriverID)
		}
		bet.Payout = stake * bet.Odds
	}

	// Display enrichment is best effort; the local race cache first, then
	// the contract.
	s.mu.Lock()
	race, ok := s.races[info.RaceID]
	if ok {
		bet.RaceName = race.Name
		if driver, ok := race.DriverByID(info.DriverID); ok {
			bet.DriverName = driver.Name
			bet.DriverNumber = driver.Number
			bet.Team = driver.Team
		}
	}
	s.mu.Unlock()

	if !ok {
		if raceInfo, err := s.gw.RaceInfo(ctx, info.RaceID); err == nil && raceInfo.Name != "" {
			bet.RaceName = raceInfo.Name
		}
	}
	return bet
}

// StartOddsRefresh updates cached driver odds on a fixed interval until
// Teardown. Failures are logged and retried on the next tick.
func (s *Store) StartOddsRefresh(interval time.Duration) {
	if s.estimator == nil || interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.refreshOdds(context.Background())
			}
		}
	}()
}

func (s *Store) refreshOdds(ctx context.Context) {
	s.mu.Lock()
	targets := make([][2]string, 0)
	for _, id := range s.raceOrder {
		race := s.races[id]
		if race.Status != model.RaceUpcoming {
			continue
		}
		for _, driver := range race.Drivers {
			targets = append(targets, [2]string{id, driver.ID})
		}
	}
	s.mu.Unlock()

	for _, target := range targets {
		estimated := s.estimator.Estimate(ctx, target[0], target[1])
		s.mu.Lock()
		if race, ok := s.races[target[0]]; ok {
			for i := range race.Drivers {
				if race.Drivers[i].ID == target[1] {
					race.Drivers[i].Odds = estimated
				}
			}
		}
		s.mu.Unlock()
	}
}

// OnTeardown registers a callback (typically an event unsubscribe) to run
// when the session ends.
func (s *Store) OnTeardown(fn func()) {
	s.mu.Lock()
	s.unsubscribers = append(s.unsubscribers, fn)
	s.mu.Unlock()
}

// Teardown stops background refresh and runs registered unsubscribes. Safe
// to call more than once.
func (s *Store) Teardown() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()

	s.mu.Lock()
	subs := s.unsubscribers
	s.unsubscribers = nil
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *Store) acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return model.ErrInFlight
	}
	s.inflight[key] = struct{}{}
	return nil
}

func (s *Store) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *Store) recomputeStatsLocked() {
	s.stats = model.ComputeStats(s.bets, s.totalWinnings)
}

func (s *Store) nextBetID() string {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	return fmt.Sprintf("bet-%d-%d", time.Now().Unix(), seq)
}
