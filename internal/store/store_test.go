package store

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flarebets/internal/codec"
	"flarebets/internal/gateway"
	"flarebets/internal/model"
	"flarebets/internal/odds"
)

const testOwner = "0x00000000000000000000000000000000000d3110"

func testRace(id string) model.Race {
	return model.Race{
		ID:         id,
		Name:       "Abu Dhabi Grand Prix",
		Circuit:    "Yas Marina Circuit",
		Country:    "UAE",
		Date:       time.Now().Add(48 * time.Hour),
		CutoffTime: time.Now().Add(47 * time.Hour),
		Status:     model.RaceUpcoming,
		Drivers: []model.Driver{
			{ID: "max_verstappen", Name: "Max Verstappen", Number: 1, Team: "Red Bull Racing", Odds: 1.85},
			{ID: "lando_norris", Name: "Lando Norris", Number: 4, Team: "McLaren", Odds: 2.10},
			{ID: "charles_leclerc", Name: "Charles Leclerc", Number: 16, Team: "Ferrari", Odds: 2.50},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sim := gateway.NewSimulated(0, common.HexToAddress(testOwner), nil)
	s := New(sim, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})
	return s
}

func TestPlaceBetOptimisticRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	result, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 0.5)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if !result.Demo {
		t.Fatalf("simulated gateway should mark demo")
	}
	if result.Bet.Status != model.BetPending {
		t.Fatalf("status mismatch: %s", result.Bet.Status)
	}
	if result.Bet.Odds != 1.85 {
		t.Fatalf("odds should be captured at submission: %v", result.Bet.Odds)
	}
	if result.Bet.Payout != 0.5*1.85 {
		t.Fatalf("payout mismatch: %v", result.Bet.Payout)
	}
	if result.Bet.ContractID == nil {
		t.Fatalf("simulated placement should carry a contract id")
	}
	if result.Bet.RaceName != "Abu Dhabi Grand Prix" || result.Bet.Team != "Red Bull Racing" {
		t.Fatalf("display fields not denormalized: %+v", result.Bet)
	}

	stats := s.Stats()
	if stats.TotalBets != 1 || stats.PendingBets != 1 {
		t.Fatalf("stats mismatch: %+v", stats)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 0); !errors.Is(err, model.ErrInvalidStake) {
		t.Fatalf("expected ErrInvalidStake, got %v", err)
	}
	if _, err := s.PlaceBet(ctx, testOwner, "nope", "max_verstappen", 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for race, got %v", err)
	}
	if _, err := s.PlaceBet(ctx, testOwner, "2025-24", "nope", 1); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for driver, got %v", err)
	}

	closed := testRace("2025-25")
	closed.CutoffTime = time.Now().Add(-time.Minute)
	s.SeedRaces([]model.Race{closed})
	if _, err := s.PlaceBet(ctx, testOwner, "2025-25", "max_verstappen", 1); !errors.Is(err, model.ErrBettingClosed) {
		t.Fatalf("expected ErrBettingClosed past cutoff, got %v", err)
	}
}

func TestSettlementResolvesBets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	winner, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1)
	if err != nil {
		t.Fatalf("place winning bet: %v", err)
	}
	loser, err := s.PlaceBet(ctx, testOwner, "2025-24", "lando_norris", 1)
	if err != nil {
		t.Fatalf("place losing bet: %v", err)
	}

	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	byID := make(map[string]model.Bet)
	for _, bet := range s.Bets() {
		byID[bet.ID] = bet
	}
	if byID[winner.Bet.ID].Status != model.BetWon {
		t.Fatalf("winning bet status: %s", byID[winner.Bet.ID].Status)
	}
	if byID[loser.Bet.ID].Status != model.BetLost {
		t.Fatalf("losing bet status: %s", byID[loser.Bet.ID].Status)
	}

	races := s.Races()
	if races[0].Status != model.RaceSettled || races[0].WinningDriverID != "max_verstappen" {
		t.Fatalf("race not settled: %+v", races[0])
	}

	stats := s.Stats()
	if stats.TotalBets != 2 || stats.PendingBets != 0 {
		t.Fatalf("stats mismatch: %+v", stats)
	}
	if stats.WinRate != 50 {
		t.Fatalf("win rate mismatch: %v", stats.WinRate)
	}

	// A lost bet is never claimable.
	if _, err := s.ClaimPayout(ctx, loser.Bet.ID); !errors.Is(err, model.ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim on lost bet, got %v", err)
	}
}

func TestSettlementIdempotencyAndConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1); err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	// Same winner again is a no-op.
	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("idempotent settlement should succeed: %v", err)
	}
	// A different winner is a conflicting write.
	if err := s.SetRaceResult(ctx, "2025-24", "lando_norris"); !errors.Is(err, model.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestClaimPayout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	placed, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	// Claim on a pending bet must fail.
	if _, err := s.ClaimPayout(ctx, placed.Bet.ID); !errors.Is(err, model.ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim before settlement, got %v", err)
	}

	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("settle: %v", err)
	}

	claimed, err := s.ClaimPayout(ctx, placed.Bet.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != model.BetClaimed {
		t.Fatalf("status after claim: %s", claimed.Status)
	}
	if claimed.TxHash == placed.TxHash {
		t.Fatalf("claim should record its own transaction hash")
	}

	stats := s.Stats()
	if stats.TotalWinnings != claimed.Payout {
		t.Fatalf("winnings mismatch: %v != %v", stats.TotalWinnings, claimed.Payout)
	}

	// Second claim rejected.
	if _, err := s.ClaimPayout(ctx, placed.Bet.ID); !errors.Is(err, model.ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim on double claim, got %v", err)
	}
}

func TestBetsForScopesByOwner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if got := s.BetsFor(testOwner); len(got) != 1 {
		t.Fatalf("owner should see their bet, got %d", len(got))
	}
	if got := s.BetsFor("0x1"); len(got) != 0 {
		t.Fatalf("other address should see no bets, got %d", len(got))
	}
}

func TestClaimUnknownBet(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ClaimPayout(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDegradedPlacementAndMissingContractID(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		placeBet: func(context.Context) (gateway.PlaceBetResult, error) {
			return gateway.PlaceBetResult{TxHash: "0xdead"}, &model.BetIDExtractionError{TxHash: "0xdead"}
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	result, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1)
	var extraction *model.BetIDExtractionError
	if !errors.As(err, &extraction) {
		t.Fatalf("expected BetIDExtractionError, got %v", err)
	}
	if result.Bet.ContractID != nil {
		t.Fatalf("degraded placement must not invent a contract id")
	}
	if len(s.Bets()) != 1 {
		t.Fatalf("degraded placement should still be recorded")
	}

	// The bet exists but cannot be claimed until reconciliation attaches
	// its contract id.
	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := s.ClaimPayout(ctx, result.Bet.ID); !errors.Is(err, model.ErrMissingContractID) {
		t.Fatalf("expected ErrMissingContractID, got %v", err)
	}
}

func TestPlaceBetGatewayFailureLeavesNoRecord(t *testing.T) {
	gw := &fakeGateway{
		placeBet: func(context.Context) (gateway.PlaceBetResult, error) {
			return gateway.PlaceBetResult{}, errors.New("transaction reverted")
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	if _, err := s.PlaceBet(context.Background(), testOwner, "2025-24", "max_verstappen", 1); err == nil {
		t.Fatalf("expected gateway error")
	}
	if len(s.Bets()) != 0 {
		t.Fatalf("failed placement must not mutate state")
	}
	if s.Stats().TotalBets != 0 {
		t.Fatalf("failed placement must not count in stats")
	}
}

func TestPlaceBetSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := &fakeGateway{
		placeBet: func(ctx context.Context) (gateway.PlaceBetResult, error) {
			close(started)
			<-release
			id, _ := codec.Encode("bet-1")
			return gateway.PlaceBetResult{TxHash: "0x1", BetID: id}, nil
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	done := make(chan error, 1)
	go func() {
		_, err := s.PlaceBet(context.Background(), testOwner, "2025-24", "max_verstappen", 1)
		done <- err
	}()
	<-started

	// Duplicate target while the first is outstanding.
	if _, err := s.PlaceBet(context.Background(), testOwner, "2025-24", "max_verstappen", 1); !errors.Is(err, model.ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first placement: %v", err)
	}

	// Completion releases the target.
	if err := s.acquire("bet:2025-24:max_verstappen"); err != nil {
		t.Fatalf("key should be released: %v", err)
	}
	s.release("bet:2025-24:max_verstappen")
}

func TestReconcileMergeIsUnion(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testOwner)

	localID, _ := codec.Encode("bet-local")
	chainID, _ := codec.Encode("bet-chain-only")

	gw := &fakeGateway{
		placeBet: func(context.Context) (gateway.PlaceBetResult, error) {
			return gateway.PlaceBetResult{TxHash: "0x1", BetID: localID}, nil
		},
		userBets: func(context.Context) ([]codec.Bytes32, error) {
			return []codec.Bytes32{localID, chainID}, nil
		},
		betInfo: func(_ context.Context, id codec.Bytes32) (gateway.BetInfo, error) {
			return gateway.BetInfo{
				RaceID:   "2025-24",
				DriverID: "lando_norris",
				Amount:   gateway.ToWei(2),
				Status:   model.BetPending,
				Payout:   gateway.ToWei(4),
			}, nil
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	placed, err := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	bets := s.Bets()
	if len(bets) != 2 {
		t.Fatalf("union should hold 2 bets, got %d", len(bets))
	}

	// The locally placed bet keeps its optimistic record.
	byContract := make(map[codec.Bytes32]model.Bet)
	for _, bet := range bets {
		byContract[*bet.ContractID] = bet
	}
	if got := byContract[localID]; got.ID != placed.Bet.ID || got.DriverID != "max_verstappen" {
		t.Fatalf("local record should win the merge: %+v", got)
	}
	// The chain-only bet is inserted with enriched display fields from the
	// seeded race.
	if got := byContract[chainID]; got.DriverName != "Lando Norris" || got.Stake != 2 || got.Odds != 2 {
		t.Fatalf("chain bet mismatch: %+v", got)
	}

	// Reconciling again changes nothing.
	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if len(s.Bets()) != 2 {
		t.Fatalf("reconcile must be idempotent")
	}
}

func TestReconcileHealsDegradedPlacement(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testOwner)
	chainID, _ := codec.Encode("bet-degraded")

	calls := 0
	gw := &fakeGateway{
		placeBet: func(context.Context) (gateway.PlaceBetResult, error) {
			return gateway.PlaceBetResult{TxHash: "0xdead"}, &model.BetIDExtractionError{TxHash: "0xdead"}
		},
		userBets: func(context.Context) ([]codec.Bytes32, error) {
			return []codec.Bytes32{chainID}, nil
		},
		betInfo: func(context.Context, codec.Bytes32) (gateway.BetInfo, error) {
			calls++
			return gateway.BetInfo{RaceID: "2025-24", DriverID: "max_verstappen", Amount: gateway.ToWei(1), Status: model.BetPending}, nil
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	placed, _ := s.PlaceBet(ctx, testOwner, "2025-24", "max_verstappen", 1)
	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// One real bet stays one store entry with the contract id attached.
	bets := s.Bets()
	if len(bets) != 1 {
		t.Fatalf("degraded bet should heal in place, got %d bets", len(bets))
	}
	if bets[0].ID != placed.Bet.ID || bets[0].ContractID == nil || *bets[0].ContractID != chainID {
		t.Fatalf("contract id not attached: %+v", bets[0])
	}
	if calls != 1 {
		t.Fatalf("expected one BetInfo fetch, got %d", calls)
	}

	stats := s.Stats()
	if stats.TotalBets != 1 || stats.TotalStaked != 1 || stats.PendingBets != 1 {
		t.Fatalf("stats must not double-count a healed bet: %+v", stats)
	}

	// The healed bet is now claimable once it wins.
	if err := s.SetRaceResult(ctx, "2025-24", "max_verstappen"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := s.ClaimPayout(ctx, placed.Bet.ID); err != nil {
		t.Fatalf("claim after heal: %v", err)
	}
}

func TestReconcilePendingBetCarriesEstimatedOdds(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testOwner)
	chainID, _ := codec.Encode("bet-chain-pending")

	gw := &fakeGateway{
		userBets: func(context.Context) ([]codec.Bytes32, error) {
			return []codec.Bytes32{chainID}, nil
		},
		betInfo: func(context.Context, codec.Bytes32) (gateway.BetInfo, error) {
			// Pending bets have no payout on chain yet.
			return gateway.BetInfo{
				RaceID:   "2025-24",
				DriverID: "max_verstappen",
				Amount:   gateway.ToWei(2),
				Status:   model.BetPending,
				Payout:   big.NewInt(0),
			}, nil
		},
		impliedOdds: func(context.Context) (float64, error) {
			return 3.0, nil
		},
	}
	estimator := odds.NewEstimator(gw, nil, nil)
	s := New(gw, estimator, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	bets := s.Bets()
	if len(bets) != 1 {
		t.Fatalf("expected 1 bet, got %d", len(bets))
	}
	if bets[0].Odds != 3.0 {
		t.Fatalf("pending chain bet should carry estimated odds, got %v", bets[0].Odds)
	}
	if bets[0].Payout != 6.0 {
		t.Fatalf("potential payout should be stake times odds, got %v", bets[0].Payout)
	}
}

func TestReconcilePendingBetDefaultOddsWithoutEstimator(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testOwner)
	chainID, _ := codec.Encode("bet-chain-pending")

	gw := &fakeGateway{
		userBets: func(context.Context) ([]codec.Bytes32, error) {
			return []codec.Bytes32{chainID}, nil
		},
		betInfo: func(context.Context, codec.Bytes32) (gateway.BetInfo, error) {
			return gateway.BetInfo{RaceID: "2025-24", DriverID: "max_verstappen", Amount: gateway.ToWei(1), Status: model.BetPending}, nil
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	bets := s.Bets()
	if len(bets) != 1 || bets[0].Odds != odds.DefaultOdds || bets[0].Payout != odds.DefaultOdds {
		t.Fatalf("pending bet without estimator should default: %+v", bets)
	}
}

func TestReconcileSkipsUnreadableBet(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress(testOwner)

	goodID, _ := codec.Encode("bet-good")
	badID, _ := codec.Encode("bet-bad")

	gw := &fakeGateway{
		userBets: func(context.Context) ([]codec.Bytes32, error) {
			return []codec.Bytes32{badID, goodID}, nil
		},
		betInfo: func(_ context.Context, id codec.Bytes32) (gateway.BetInfo, error) {
			if id == badID {
				return gateway.BetInfo{}, errors.New("rpc timeout")
			}
			return gateway.BetInfo{RaceID: "2025-24", DriverID: "max_verstappen", Amount: gateway.ToWei(1), Status: model.BetPending}, nil
		},
	}
	s := New(gw, nil, nil)
	s.SeedRaces([]model.Race{testRace("2025-24")})

	if err := s.Reconcile(ctx, owner); err != nil {
		t.Fatalf("one unreadable bet should not fail the reconcile: %v", err)
	}
	if len(s.Bets()) != 1 {
		t.Fatalf("readable bets should still land, got %d", len(s.Bets()))
	}
}

// fakeGateway satisfies gateway.Gateway with overridable hooks; unhooked
// methods return zero values.
type fakeGateway struct {
	placeBet    func(context.Context) (gateway.PlaceBetResult, error)
	userBets    func(context.Context) ([]codec.Bytes32, error)
	betInfo     func(context.Context, codec.Bytes32) (gateway.BetInfo, error)
	impliedOdds func(context.Context) (float64, error)
}

func (f *fakeGateway) PlaceBet(ctx context.Context, _, _ string, _ *big.Int) (gateway.PlaceBetResult, error) {
	if f.placeBet != nil {
		return f.placeBet(ctx)
	}
	return gateway.PlaceBetResult{}, nil
}

func (f *fakeGateway) ClaimPayout(context.Context, codec.Bytes32) (string, error) {
	return "0xc1a1", nil
}

func (f *fakeGateway) SetRaceResult(context.Context, string, string) (string, error) {
	return "0x5e71", nil
}

func (f *fakeGateway) ImpliedOdds(ctx context.Context, _, _ string) (float64, error) {
	if f.impliedOdds != nil {
		return f.impliedOdds(ctx)
	}
	return 0, errors.New("not implemented")
}

func (f *fakeGateway) UserBets(ctx context.Context, _ common.Address) ([]codec.Bytes32, error) {
	if f.userBets != nil {
		return f.userBets(ctx)
	}
	return nil, nil
}

func (f *fakeGateway) BetInfo(ctx context.Context, id codec.Bytes32) (gateway.BetInfo, error) {
	if f.betInfo != nil {
		return f.betInfo(ctx, id)
	}
	return gateway.BetInfo{}, errors.New("not implemented")
}

func (f *fakeGateway) RaceInfo(context.Context, string) (gateway.RaceInfo, error) {
	return gateway.RaceInfo{}, errors.New("not implemented")
}

func (f *fakeGateway) Payout(context.Context, codec.Bytes32) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeGateway) QueryEvents(context.Context, model.EventType, uint64, uint64) ([]model.ContractEvent, error) {
	return nil, nil
}

func (f *fakeGateway) SubscribeEvents(context.Context, func(model.ContractEvent)) (func(), error) {
	return func() {}, nil
}

func (f *fakeGateway) LatestBlock(context.Context) (uint64, error) { return 0, nil }

func (f *fakeGateway) Demo() bool { return false }
