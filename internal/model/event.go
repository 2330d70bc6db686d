package model

import "fmt"

// EventType discriminates the contract event categories.
type EventType string

const (
	EventBetPlaced     EventType = "BetPlaced"
	EventRaceResultSet EventType = "RaceResultSet"
	EventPayoutClaimed EventType = "PayoutClaimed"
	EventRaceCreated   EventType = "RaceCreated"
	EventDriverAdded   EventType = "DriverAdded"
)

// EventTypes lists every category in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventBetPlaced,
		EventRaceResultSet,
		EventPayoutClaimed,
		EventRaceCreated,
		EventDriverAdded,
	}
}

// EventPayload is the tagged-union interface over the per-type payloads.
type EventPayload interface {
	eventPayload()
}

// BetPlacedData is the decoded BetPlaced payload.
type BetPlacedData struct {
	BetID    string `json:"bet_id"`
	RaceID   string `json:"race_id"`
	DriverID string `json:"driver_id"`
	User     string `json:"user"`
	Amount   string `json:"amount"`
}

// RaceResultSetData is the decoded RaceResultSet payload.
type RaceResultSetData struct {
	RaceID          string `json:"race_id"`
	WinningDriverID string `json:"winning_driver_id"`
}

// PayoutClaimedData is the decoded PayoutClaimed payload.
type PayoutClaimedData struct {
	BetID  string `json:"bet_id"`
	User   string `json:"user"`
	Amount string `json:"amount"`
}

// RaceCreatedData is the decoded RaceCreated payload.
type RaceCreatedData struct {
	RaceID     string `json:"race_id"`
	Name       string `json:"name"`
	CutoffTime uint64 `json:"cutoff_time"`
}

// DriverAddedData is the decoded DriverAdded payload.
type DriverAddedData struct {
	RaceID   string `json:"race_id"`
	DriverID string `json:"driver_id"`
	Name     string `json:"name"`
}

func (BetPlacedData) eventPayload()     {}
func (RaceResultSetData) eventPayload() {}
func (PayoutClaimedData) eventPayload() {}
func (RaceCreatedData) eventPayload()   {}
func (DriverAddedData) eventPayload()   {}

// ContractEvent is one decoded contract log, immutable once constructed.
// (TxHash, LogIndex) uniquely identifies an event across the feed.
type ContractEvent struct {
	Type        EventType    `json:"type"`
	TxHash      string       `json:"tx_hash"`
	BlockNumber uint64       `json:"block_number"`
	LogIndex    uint64       `json:"log_index"`
	Timestamp   uint64       `json:"timestamp"`
	Data        EventPayload `json:"data"`
}

// Key is the feed identity of the event.
func (e ContractEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}
