package model

import (
	"time"

	"flarebets/internal/codec"
)

// BetStatus is the lifecycle state of a bet. pending -> won|lost via
// settlement, won -> claimed via claim; lost and claimed are terminal.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
	BetClaimed BetStatus = "claimed"
)

// Bet is a stake on one driver winning one race. Display fields are
// denormalized at placement time so the record survives upstream data
// changes. ContractID is assigned once the placement is confirmed on chain
// and never changes afterwards.
type Bet struct {
	ID           string         `json:"id"`
	ContractID   *codec.Bytes32 `json:"contract_id,omitempty"`
	RaceID       string         `json:"race_id"`
	RaceName     string         `json:"race_name"`
	DriverID     string         `json:"driver_id"`
	DriverName   string         `json:"driver_name"`
	DriverNumber int            `json:"driver_number"`
	Team         string         `json:"team"`
	Owner        string         `json:"owner,omitempty"`
	Stake        float64        `json:"stake"`
	Odds         float64        `json:"odds"`
	Status       BetStatus      `json:"status"`
	Payout       float64        `json:"potential_payout"`
	PlacedAt     time.Time      `json:"placed_at"`
	TxHash       string         `json:"tx_hash,omitempty"`
}

// ContractStatus maps the contract's integer status code to a BetStatus.
func ContractStatus(code uint8) (BetStatus, bool) {
	switch code {
	case 0:
		return BetPending, true
	case 1:
		return BetWon, true
	case 2:
		return BetLost, true
	case 3:
		return BetClaimed, true
	default:
		return "", false
	}
}
