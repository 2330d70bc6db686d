package gateway

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flarebets/internal/codec"
	"flarebets/internal/model"
)

// PlaceBetResult is the outcome of a confirmed bet placement. BetID is zero
// when the placement was mined but the BetPlaced log could not be located.
type PlaceBetResult struct {
	TxHash string
	BetID  codec.Bytes32
}

// BetInfo is the contract's view of one bet.
type BetInfo struct {
	RaceID   string
	DriverID string
	Amount   *big.Int
	Status   model.BetStatus
	Payout   *big.Int
}

// RaceInfo is the contract's view of one race market.
type RaceInfo struct {
	Name            string
	CutoffTime      time.Time
	Settled         bool
	WinningDriverID string
	TotalPool       *big.Int
}

// Gateway is the capability surface over the bet manager contract. Two
// implementations exist: Live talks to a deployed contract over RPC,
// Simulated runs the same protocol in memory for demo mode. Callers select
// the strategy explicitly instead of null-checking a wallet.
type Gateway interface {
	// PlaceBet submits a value-bearing transaction and blocks until it is
	// mined. A *model.BetIDExtractionError alongside a non-empty TxHash
	// means the bet exists on chain but the id could not be recovered.
	PlaceBet(ctx context.Context, raceID, driverID string, stake *big.Int) (PlaceBetResult, error)

	// ClaimPayout requires a contract-assigned bet id and returns the claim
	// transaction hash after confirmation.
	ClaimPayout(ctx context.Context, betID codec.Bytes32) (string, error)

	// SetRaceResult is the oracle operation. Authorization is enforced by
	// the contract; reverts for that reason surface model.ErrUnauthorized.
	SetRaceResult(ctx context.Context, raceID, winningDriverID string) (string, error)

	// ImpliedOdds returns the pool-derived odds multiplier for a driver.
	ImpliedOdds(ctx context.Context, raceID, driverID string) (float64, error)

	UserBets(ctx context.Context, user common.Address) ([]codec.Bytes32, error)
	BetInfo(ctx context.Context, betID codec.Bytes32) (BetInfo, error)
	RaceInfo(ctx context.Context, raceID string) (RaceInfo, error)
	Payout(ctx context.Context, betID codec.Bytes32) (*big.Int, error)

	// QueryEvents returns decoded events of one category in a block range.
	QueryEvents(ctx context.Context, eventType model.EventType, fromBlock, toBlock uint64) ([]model.ContractEvent, error)

	// SubscribeEvents delivers live events to the handler until the
	// returned unsubscribe function is called.
	SubscribeEvents(ctx context.Context, handler func(model.ContractEvent)) (func(), error)

	LatestBlock(ctx context.Context) (uint64, error)

	// Demo reports whether this gateway is the in-memory simulation.
	Demo() bool
}

var weiPerToken = new(big.Float).SetFloat64(1e18)

// ToWei converts a token amount to wei.
func ToWei(amount float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetFloat64(amount), weiPerToken)
	wei, _ := scaled.Int(nil)
	return wei
}

// FromWei converts wei to a token amount.
func FromWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerToken).Float64()
	return out
}
