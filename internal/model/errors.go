package model

import (
	"errors"
	"fmt"
)

// Validation errors: bad or missing inputs, no state mutated.
var (
	ErrNotFound      = errors.New("race or driver not found")
	ErrInvalidStake  = errors.New("stake must be greater than zero")
	ErrBettingClosed = errors.New("betting is closed for this race")
)

// Consistency errors: conflicting writes rejected without mutation.
var (
	ErrInvalidClaim      = errors.New("bet is not claimable")
	ErrMissingContractID = errors.New("bet has no confirmed contract id")
	ErrAlreadySettled    = errors.New("race already settled with a different winner")
	ErrInFlight          = errors.New("operation already in flight for this target")
)

// Gateway errors.
var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// BetIDExtractionError means the placement transaction was mined but the
// BetPlaced log could not be found in the receipt. The bet exists on chain;
// only local bookkeeping is incomplete, so callers should treat this as a
// degraded success rather than a failure.
type BetIDExtractionError struct {
	TxHash string
}

func (e *BetIDExtractionError) Error() string {
	return fmt.Sprintf("bet placed in tx %s but no BetPlaced log found", e.TxHash)
}
