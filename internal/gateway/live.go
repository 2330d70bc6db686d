package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"flarebets/internal/betman"
	"flarebets/internal/chain"
	"flarebets/internal/codec"
	"flarebets/internal/model"
)

const fallbackGasLimit = 500000

// Live is the on-chain gateway implementation.
type Live struct {
	chain          *chain.Client
	decoder        *betman.Decoder
	contractABI    abi.ABI
	contract       common.Address
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	logger         *zap.Logger

	// serializes nonce allocation across concurrent writes
	txMu sync.Mutex
}

// NewLive builds a live gateway bound to a deployed contract. privateKeyHex
// may be empty for a read-only gateway; write operations then fail.
func NewLive(
	ctx context.Context,
	chainClient *chain.Client,
	contract common.Address,
	privateKeyHex string,
	confirmTimeout time.Duration,
	logger *zap.Logger,
) (*Live, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}

	contractABI, err := betman.ABI()
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	decoder, err := betman.NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	g := &Live{
		chain:          chainClient,
		decoder:        decoder,
		contractABI:    contractABI,
		contract:       contract,
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		g.key = key
		g.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return g, nil
}

// From returns the signer address, zero when read-only.
func (g *Live) From() common.Address {
	return g.from
}

func (g *Live) Demo() bool { return false }

// PlaceBet submits the placement transaction and extracts the contract bet
// id from the BetPlaced log of the mined receipt.
func (g *Live) PlaceBet(ctx context.Context, raceID, driverID string, stake *big.Int) (PlaceBetResult, error) {
	raceKey, err := codec.Encode(raceID)
	if err != nil {
		return PlaceBetResult{}, err
	}
	driverKey, err := codec.Encode(driverID)
	if err != nil {
		return PlaceBetResult{}, err
	}

	input, err := g.contractABI.Pack("placeBet", [32]byte(raceKey), [32]byte(driverKey))
	if err != nil {
		return PlaceBetResult{}, fmt.Errorf("pack placeBet: %w", err)
	}

	receipt, err := g.transact(ctx, input, stake)
	if err != nil {
		return PlaceBetResult{}, err
	}

	result := PlaceBetResult{TxHash: receipt.TxHash.Hex()}

	betPlacedTopic, _ := g.decoder.Topic0(model.EventBetPlaced)
	for _, log := range receipt.Logs {
		if log.Address != g.contract || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != betPlacedTopic {
			continue
		}
		result.BetID = codec.Bytes32(log.Topics[1])
		return result, nil
	}

	// Mined but no matching log: the write likely succeeded, only local
	// bookkeeping is degraded.
	return result, &model.BetIDExtractionError{TxHash: result.TxHash}
}

func (g *Live) ClaimPayout(ctx context.Context, betID codec.Bytes32) (string, error) {
	if betID.IsZero() {
		return "", model.ErrMissingContractID
	}

	input, err := g.contractABI.Pack("claimPayout", [32]byte(betID))
	if err != nil {
		return "", fmt.Errorf("pack claimPayout: %w", err)
	}

	receipt, err := g.transact(ctx, input, nil)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (g *Live) SetRaceResult(ctx context.Context, raceID, winningDriverID string) (string, error) {
	raceKey, err := codec.Encode(raceID)
	if err != nil {
		return "", err
	}
	winnerKey, err := codec.Encode(winningDriverID)
	if err != nil {
		return "", err
	}

	input, err := g.contractABI.Pack("setRaceResult", [32]byte(raceKey), [32]byte(winnerKey))
	if err != nil {
		return "", fmt.Errorf("pack setRaceResult: %w", err)
	}

	receipt, err := g.transact(ctx, input, nil)
	if err != nil {
		return "", err
	}
	return receipt.TxHash.Hex(), nil
}

func (g *Live) ImpliedOdds(ctx context.Context, raceID, driverID string) (float64, error) {
	raceKey, err := codec.Encode(raceID)
	if err != nil {
		return 0, err
	}
	driverKey, err := codec.Encode(driverID)
	if err != nil {
		return 0, err
	}

	values, err := g.call(ctx, "getImpliedOdds", [32]byte(raceKey), [32]byte(driverKey))
	if err != nil {
		return 0, err
	}
	odds, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected odds type %T", values[0])
	}

	// Contract reports odds as an integer scaled by 100.
	return float64(odds.Uint64()) / 100, nil
}

func (g *Live) UserBets(ctx context.Context, user common.Address) ([]codec.Bytes32, error) {
	values, err := g.call(ctx, "getUserBets", user)
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected bet list type %T", values[0])
	}

	ids := make([]codec.Bytes32, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, codec.Bytes32(id))
	}
	return ids, nil
}

func (g *Live) BetInfo(ctx context.Context, betID codec.Bytes32) (BetInfo, error) {
	values, err := g.call(ctx, "getBetInfo", [32]byte(betID))
	if err != nil {
		return BetInfo{}, err
	}
	if len(values) != 5 {
		return BetInfo{}, fmt.Errorf("unexpected getBetInfo values: %d", len(values))
	}

	raceKey, ok := values[0].([32]byte)
	if !ok {
		return BetInfo{}, fmt.Errorf("unexpected race id type %T", values[0])
	}
	driverKey, ok := values[1].([32]byte)
	if !ok {
		return BetInfo{}, fmt.Errorf("unexpected driver id type %T", values[1])
	}
	amount, ok := values[2].(*big.Int)
	if !ok {
		return BetInfo{}, fmt.Errorf("unexpected amount type %T", values[2])
	}
	code, ok := values[3].(uint8)
	if !ok {
		return BetInfo{}, fmt.Errorf("unexpected status type %T", values[3])
	}
	payout, ok := values[4].(*big.Int)
	if !ok {
		return BetInfo{}, fmt.Errorf("unexpected payout type %T", values[4])
	}

	status, ok := model.ContractStatus(code)
	if !ok {
		return BetInfo{}, fmt.Errorf("unknown contract bet status %d", code)
	}

	return BetInfo{
		RaceID:   codec.Decode(codec.Bytes32(raceKey)),
		DriverID: codec.Decode(codec.Bytes32(driverKey)),
		Amount:   amount,
		Status:   status,
		Payout:   payout,
	}, nil
}

func (g *Live) RaceInfo(ctx context.Context, raceID string) (RaceInfo, error) {
	raceKey, err := codec.Encode(raceID)
	if err != nil {
		return RaceInfo{}, err
	}

	values, err := g.call(ctx, "getRaceInfo", [32]byte(raceKey))
	if err != nil {
		return RaceInfo{}, err
	}
	if len(values) != 5 {
		return RaceInfo{}, fmt.Errorf("unexpected getRaceInfo values: %d", len(values))
	}

	name, ok := values[0].(string)
	if !ok {
		return RaceInfo{}, fmt.Errorf("unexpected name type %T", values[0])
	}
	cutoff, ok := values[1].(*big.Int)
	if !ok {
		return RaceInfo{}, fmt.Errorf("unexpected cutoff type %T", values[1])
	}
	settled, ok := values[2].(bool)
	if !ok {
		return RaceInfo{}, fmt.Errorf("unexpected settled type %T", values[2])
	}
	winnerKey, ok := values[3].([32]byte)
	if !ok {
		return RaceInfo{}, fmt.Errorf("unexpected winner type %T", values[3])
	}
	totalPool, ok := values[4].(*big.Int)
	if !ok {
		return RaceInfo{}, fmt.Errorf("unexpected pool type %T", values[4])
	}

	return RaceInfo{
		Name:            name,
		CutoffTime:      time.Unix(cutoff.Int64(), 0).UTC(),
		Settled:         settled,
		WinningDriverID: codec.Decode(codec.Bytes32(winnerKey)),
		TotalPool:       totalPool,
	}, nil
}

func (g *Live) Payout(ctx context.Context, betID codec.Bytes32) (*big.Int, error) {
	values, err := g.call(ctx, "calculatePayout", [32]byte(betID))
	if err != nil {
		return nil, err
	}
	payout, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected payout type %T", values[0])
	}
	return payout, nil
}

func (g *Live) QueryEvents(ctx context.Context, eventType model.EventType, fromBlock, toBlock uint64) ([]model.ContractEvent, error) {
	topic0, ok := g.decoder.Topic0(eventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type %s", eventType)
	}

	logs, err := g.chain.FilterLogs(ctx, fromBlock, toBlock, []common.Address{g.contract}, []common.Hash{topic0})
	if err != nil {
		return nil, fmt.Errorf("filter %s logs: %w", eventType, err)
	}

	events := make([]model.ContractEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ts, err := g.chain.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		event, err := g.decoder.Decode(log, ts)
		if err != nil {
			g.logger.Warn("skip undecodable log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint64("log_index", uint64(log.Index)),
				zap.Error(err))
			continue
		}
		events = append(events, *event)
	}
	return events, nil
}

func (g *Live) SubscribeEvents(ctx context.Context, handler func(model.ContractEvent)) (func(), error) {
	sink := make(chan types.Log, 64)
	sub, err := g.chain.SubscribeLogs(ctx, []common.Address{g.contract}, sink)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case err := <-sub.Err():
				if err != nil {
					g.logger.Warn("log subscription ended", zap.Error(err))
				}
				return
			case log := <-sink:
				if log.Removed || !g.decoder.CanDecode(log) {
					continue
				}
				ts, err := g.chain.BlockTimestamp(ctx, log.BlockNumber)
				if err != nil {
					g.logger.Warn("live event timestamp fetch failed", zap.Error(err))
					ts = uint64(time.Now().Unix())
				}
				event, err := g.decoder.Decode(log, ts)
				if err != nil {
					g.logger.Warn("live event decode failed", zap.Error(err))
					continue
				}
				handler(*event)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			close(done)
		})
	}, nil
}

func (g *Live) LatestBlock(ctx context.Context) (uint64, error) {
	return g.chain.LatestBlockNumber(ctx)
}

func (g *Live) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &g.contract, Data: input}
	out, err := g.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := g.contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// transact signs, submits, and waits for inclusion of a contract write.
func (g *Live) transact(ctx context.Context, input []byte, value *big.Int) (*types.Receipt, error) {
	if g.key == nil {
		return nil, fmt.Errorf("gateway is read-only: no signing key configured")
	}
	if value == nil {
		value = new(big.Int)
	}

	g.txMu.Lock()
	tx, err := g.signAndSend(ctx, input, value)
	g.txMu.Unlock()
	if err != nil {
		return nil, err
	}

	g.logger.Info("transaction submitted, awaiting confirmation",
		zap.String("tx_hash", tx.Hash().Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	receipt, err := g.chain.WaitMined(waitCtx, tx.Hash())
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: tx %s", model.ErrConfirmationTimeout, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("wait mined: %w", err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		reason := g.revertReason(ctx, input, value, receipt.BlockNumber)
		if isAuthorizationRevert(reason) {
			return nil, fmt.Errorf("%w: %s", model.ErrUnauthorized, reason)
		}
		if reason != "" {
			return nil, fmt.Errorf("transaction reverted: %s", reason)
		}
		return nil, fmt.Errorf("transaction reverted: %s", receipt.TxHash.Hex())
	}

	return receipt, nil
}

func (g *Live) signAndSend(ctx context.Context, input []byte, value *big.Int) (*types.Transaction, error) {
	nonce, err := g.chain.PendingNonceAt(ctx, g.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := g.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: g.from, To: &g.contract, Value: value, Data: input}
	gasLimit, err := g.chain.EstimateGas(ctx, msg)
	if err != nil {
		reason := err.Error()
		if isAuthorizationRevert(reason) {
			return nil, fmt.Errorf("%w: %s", model.ErrUnauthorized, reason)
		}
		g.logger.Warn("gas estimation failed, using fallback limit", zap.Error(err))
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTransaction(nonce, g.contract, value, gasLimit, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := g.chain.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

// revertReason replays the call at the failing block to recover the revert
// string, best effort.
func (g *Live) revertReason(ctx context.Context, input []byte, value *big.Int, block *big.Int) string {
	msg := ethereum.CallMsg{From: g.from, To: &g.contract, Value: value, Data: input}
	_, err := g.chain.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	return err.Error()
}

func isAuthorizationRevert(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "not authorized") ||
		strings.Contains(lower, "only oracle") ||
		strings.Contains(lower, "caller is not the oracle")
}
