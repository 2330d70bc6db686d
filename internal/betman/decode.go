package betman

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flarebets/internal/codec"
	"flarebets/internal/model"
)

// Decoder converts bet manager logs into typed contract events.
type Decoder struct {
	contractABI abi.ABI
	topicToType map[common.Hash]model.EventType
}

// NewDecoder builds a decoder over the bet manager ABI.
func NewDecoder() (*Decoder, error) {
	contractABI, err := ABI()
	if err != nil {
		return nil, err
	}

	topicToType := make(map[common.Hash]model.EventType, len(model.EventTypes()))
	for _, eventType := range model.EventTypes() {
		event, ok := contractABI.Events[string(eventType)]
		if !ok {
			return nil, fmt.Errorf("abi missing event %s", eventType)
		}
		topicToType[event.ID] = eventType
	}

	return &Decoder{
		contractABI: contractABI,
		topicToType: topicToType,
	}, nil
}

// Topic0 returns the log topic for an event type.
func (d *Decoder) Topic0(eventType model.EventType) (common.Hash, bool) {
	event, ok := d.contractABI.Events[string(eventType)]
	if !ok {
		return common.Hash{}, false
	}
	return event.ID, true
}

// CanDecode checks whether the log belongs to a known event category.
func (d *Decoder) CanDecode(log types.Log) bool {
	if len(log.Topics) == 0 {
		return false
	}
	_, ok := d.topicToType[log.Topics[0]]
	return ok
}

// Decode converts a log into a ContractEvent with the given block timestamp.
func (d *Decoder) Decode(log types.Log, timestamp uint64) (*model.ContractEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	eventType, ok := d.topicToType[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var payload model.EventPayload
	var err error
	switch eventType {
	case model.EventBetPlaced:
		payload, err = d.decodeBetPlaced(log)
	case model.EventRaceResultSet:
		payload, err = d.decodeRaceResultSet(log)
	case model.EventPayoutClaimed:
		payload, err = d.decodePayoutClaimed(log)
	case model.EventRaceCreated:
		payload, err = d.decodeRaceCreated(log)
	case model.EventDriverAdded:
		payload, err = d.decodeDriverAdded(log)
	default:
		err = fmt.Errorf("unsupported event type: %s", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}

	return &model.ContractEvent{
		Type:        eventType,
		TxHash:      log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
		LogIndex:    uint64(log.Index),
		Timestamp:   timestamp,
		Data:        payload,
	}, nil
}

func (d *Decoder) decodeBetPlaced(log types.Log) (model.EventPayload, error) {
	event := d.contractABI.Events["BetPlaced"]

	var indexed struct {
		BetId  [32]byte
		RaceId [32]byte
		User   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}

	driverID, err := asBytes32(values[0])
	if err != nil {
		return nil, err
	}
	amount, err := asBigIntString(values[1])
	if err != nil {
		return nil, err
	}

	return model.BetPlacedData{
		BetID:    codec.Bytes32(indexed.BetId).Hex(),
		RaceID:   codec.Decode(codec.Bytes32(indexed.RaceId)),
		DriverID: codec.Decode(driverID),
		User:     indexed.User.Hex(),
		Amount:   amount,
	}, nil
}

func (d *Decoder) decodeRaceResultSet(log types.Log) (model.EventPayload, error) {
	event := d.contractABI.Events["RaceResultSet"]

	var indexed struct {
		RaceId [32]byte
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}

	winner, err := asBytes32(values[0])
	if err != nil {
		return nil, err
	}

	return model.RaceResultSetData{
		RaceID:          codec.Decode(codec.Bytes32(indexed.RaceId)),
		WinningDriverID: codec.Decode(winner),
	}, nil
}

func (d *Decoder) decodePayoutClaimed(log types.Log) (model.EventPayload, error) {
	event := d.contractABI.Events["PayoutClaimed"]

	var indexed struct {
		BetId [32]byte
		User  common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}

	amount, err := asBigIntString(values[0])
	if err != nil {
		return nil, err
	}

	return model.PayoutClaimedData{
		BetID:  codec.Bytes32(indexed.BetId).Hex(),
		User:   indexed.User.Hex(),
		Amount: amount,
	}, nil
}

func (d *Decoder) decodeRaceCreated(log types.Log) (model.EventPayload, error) {
	event := d.contractABI.Events["RaceCreated"]

	var indexed struct {
		RaceId [32]byte
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}

	name, err := asString(values[0])
	if err != nil {
		return nil, err
	}
	cutoff, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}

	return model.RaceCreatedData{
		RaceID:     codec.Decode(codec.Bytes32(indexed.RaceId)),
		Name:       name,
		CutoffTime: cutoff.Uint64(),
	}, nil
}

func (d *Decoder) decodeDriverAdded(log types.Log) (model.EventPayload, error) {
	event := d.contractABI.Events["DriverAdded"]

	var indexed struct {
		RaceId [32]byte
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected values: %d", len(values))
	}

	driverID, err := asBytes32(values[0])
	if err != nil {
		return nil, err
	}
	name, err := asString(values[1])
	if err != nil {
		return nil, err
	}

	return model.DriverAddedData{
		RaceID:   codec.Decode(codec.Bytes32(indexed.RaceId)),
		DriverID: codec.Decode(driverID),
		Name:     name,
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// EventName normalizes a user-supplied event name to an EventType.
func EventName(name string) (model.EventType, bool) {
	for _, eventType := range model.EventTypes() {
		if strings.EqualFold(name, string(eventType)) {
			return eventType, true
		}
	}
	return "", false
}
