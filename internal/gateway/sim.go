package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flarebets/internal/codec"
	"flarebets/internal/model"
)

// simBet mirrors what the contract would store for one bet.
type simBet struct {
	raceID   string
	driverID string
	owner    common.Address
	amount   *big.Int
	status   model.BetStatus
	payout   *big.Int
}

type simRace struct {
	name    string
	settled bool
	winner  string
	pools   map[string]*big.Int
	total   *big.Int
}

// Simulated runs the bet manager protocol in memory. It exists so the rest
// of the stack behaves identically with no wallet or contract configured:
// same call shapes, same event feed, an artificial confirmation delay, and
// synthetic transaction hashes.
type Simulated struct {
	delay  time.Duration
	owner  common.Address
	logger *zap.Logger

	mu      sync.Mutex
	bets    map[codec.Bytes32]*simBet
	races   map[string]*simRace
	events  []model.ContractEvent
	subs    map[int]func(model.ContractEvent)
	nextSub int
	block   uint64
}

// NewSimulated builds the demo gateway. The owner address is attributed to
// every simulated bet.
func NewSimulated(delay time.Duration, owner common.Address, logger *zap.Logger) *Simulated {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulated{
		delay:  delay,
		owner:  owner,
		logger: logger,
		bets:   make(map[codec.Bytes32]*simBet),
		races:  make(map[string]*simRace),
		subs:   make(map[int]func(model.ContractEvent)),
		block:  1,
	}
}

func (g *Simulated) Demo() bool { return true }

func (g *Simulated) PlaceBet(ctx context.Context, raceID, driverID string, stake *big.Int) (PlaceBetResult, error) {
	if err := g.sleep(ctx); err != nil {
		return PlaceBetResult{}, err
	}
	if stake == nil || stake.Sign() <= 0 {
		return PlaceBetResult{}, model.ErrInvalidStake
	}

	g.mu.Lock()
	race := g.raceLocked(raceID)
	if race.settled {
		g.mu.Unlock()
		return PlaceBetResult{}, fmt.Errorf("race %s already settled", raceID)
	}

	betID := randomID()
	g.bets[betID] = &simBet{
		raceID:   raceID,
		driverID: driverID,
		owner:    g.owner,
		amount:   new(big.Int).Set(stake),
		status:   model.BetPending,
		payout:   new(big.Int),
	}

	pool, ok := race.pools[driverID]
	if !ok {
		pool = new(big.Int)
		race.pools[driverID] = pool
	}
	pool.Add(pool, stake)
	race.total.Add(race.total, stake)

	event := g.emitLocked(model.EventBetPlaced, model.BetPlacedData{
		BetID:    betID.Hex(),
		RaceID:   raceID,
		DriverID: driverID,
		User:     g.owner.Hex(),
		Amount:   stake.String(),
	})
	g.mu.Unlock()

	g.notify(event)
	return PlaceBetResult{TxHash: event.TxHash, BetID: betID}, nil
}

func (g *Simulated) ClaimPayout(ctx context.Context, betID codec.Bytes32) (string, error) {
	if err := g.sleep(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	bet, ok := g.bets[betID]
	if !ok {
		g.mu.Unlock()
		return "", fmt.Errorf("unknown bet %s", betID.Hex())
	}
	if bet.status != model.BetWon {
		g.mu.Unlock()
		return "", fmt.Errorf("bet %s is not claimable", betID.Hex())
	}
	bet.status = model.BetClaimed

	event := g.emitLocked(model.EventPayoutClaimed, model.PayoutClaimedData{
		BetID:  betID.Hex(),
		User:   bet.owner.Hex(),
		Amount: bet.payout.String(),
	})
	g.mu.Unlock()

	g.notify(event)
	return event.TxHash, nil
}

func (g *Simulated) SetRaceResult(ctx context.Context, raceID, winningDriverID string) (string, error) {
	if err := g.sleep(ctx); err != nil {
		return "", err
	}

	g.mu.Lock()
	race := g.raceLocked(raceID)
	if race.settled {
		g.mu.Unlock()
		return "", fmt.Errorf("race %s already settled", raceID)
	}
	race.settled = true
	race.winner = winningDriverID

	winnerPool := race.pools[winningDriverID]
	for _, bet := range g.bets {
		if bet.raceID != raceID || bet.status != model.BetPending {
			continue
		}
		if bet.driverID == winningDriverID {
			bet.status = model.BetWon
			bet.payout = parimutuelPayout(bet.amount, race.total, winnerPool)
		} else {
			bet.status = model.BetLost
		}
	}

	event := g.emitLocked(model.EventRaceResultSet, model.RaceResultSetData{
		RaceID:          raceID,
		WinningDriverID: winningDriverID,
	})
	g.mu.Unlock()

	g.notify(event)
	return event.TxHash, nil
}

func (g *Simulated) ImpliedOdds(ctx context.Context, raceID, driverID string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	race, ok := g.races[raceID]
	if !ok {
		return 0, fmt.Errorf("no pool for race %s", raceID)
	}
	pool, ok := race.pools[driverID]
	if !ok || pool.Sign() == 0 {
		return 0, fmt.Errorf("no pool for driver %s", driverID)
	}

	// Same x100 fixed-point rounding as the contract.
	scaled := new(big.Int).Mul(race.total, big.NewInt(100))
	scaled.Quo(scaled, pool)
	odds := float64(scaled.Uint64()) / 100
	if odds < 1 {
		odds = 1
	}
	return odds, nil
}

func (g *Simulated) UserBets(ctx context.Context, user common.Address) ([]codec.Bytes32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []codec.Bytes32
	for id, bet := range g.bets {
		if bet.owner == user {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (g *Simulated) BetInfo(ctx context.Context, betID codec.Bytes32) (BetInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bet, ok := g.bets[betID]
	if !ok {
		return BetInfo{}, fmt.Errorf("unknown bet %s", betID.Hex())
	}
	return BetInfo{
		RaceID:   bet.raceID,
		DriverID: bet.driverID,
		Amount:   new(big.Int).Set(bet.amount),
		Status:   bet.status,
		Payout:   new(big.Int).Set(bet.payout),
	}, nil
}

func (g *Simulated) RaceInfo(ctx context.Context, raceID string) (RaceInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	race, ok := g.races[raceID]
	if !ok {
		return RaceInfo{}, fmt.Errorf("unknown race %s", raceID)
	}
	return RaceInfo{
		Name:            race.name,
		Settled:         race.settled,
		WinningDriverID: race.winner,
		TotalPool:       new(big.Int).Set(race.total),
	}, nil
}

func (g *Simulated) Payout(ctx context.Context, betID codec.Bytes32) (*big.Int, error) {
	info, err := g.BetInfo(ctx, betID)
	if err != nil {
		return nil, err
	}
	return info.Payout, nil
}

func (g *Simulated) QueryEvents(ctx context.Context, eventType model.EventType, fromBlock, toBlock uint64) ([]model.ContractEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []model.ContractEvent
	for _, event := range g.events {
		if event.Type != eventType {
			continue
		}
		if event.BlockNumber < fromBlock || event.BlockNumber > toBlock {
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func (g *Simulated) SubscribeEvents(ctx context.Context, handler func(model.ContractEvent)) (func(), error) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = handler
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}, nil
}

func (g *Simulated) LatestBlock(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.block, nil
}

func (g *Simulated) raceLocked(raceID string) *simRace {
	race, ok := g.races[raceID]
	if !ok {
		race = &simRace{
			pools: make(map[string]*big.Int),
			total: new(big.Int),
		}
		g.races[raceID] = race
	}
	return race
}

func (g *Simulated) emitLocked(eventType model.EventType, payload model.EventPayload) model.ContractEvent {
	g.block++
	event := model.ContractEvent{
		Type:        eventType,
		TxHash:      randomTxHash(),
		BlockNumber: g.block,
		LogIndex:    0,
		Timestamp:   uint64(time.Now().Unix()),
		Data:        payload,
	}
	g.events = append(g.events, event)
	return event
}

func (g *Simulated) notify(event model.ContractEvent) {
	g.mu.Lock()
	handlers := make([]func(model.ContractEvent), 0, len(g.subs))
	for _, handler := range g.subs {
		handlers = append(handlers, handler)
	}
	g.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (g *Simulated) sleep(ctx context.Context) error {
	if g.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parimutuelPayout(stake, total, winnerPool *big.Int) *big.Int {
	if winnerPool == nil || winnerPool.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(stake, total)
	return out.Quo(out, winnerPool)
}

func randomID() codec.Bytes32 {
	var id codec.Bytes32
	_, _ = rand.Read(id[:])
	return id
}

func randomTxHash() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}
