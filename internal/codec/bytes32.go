package codec

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes32 is the fixed-width identifier format used by the bet manager
// contract for race, driver, and bet ids.
type Bytes32 [32]byte

// OverflowError reports an identifier that does not fit in 32 bytes.
type OverflowError struct {
	ID string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("identifier %q exceeds 32 bytes", e.ID)
}

// Encode converts a string identifier to its on-chain form: raw bytes
// left-aligned, zero-padded to 32. Inputs longer than 32 bytes fail hard
// rather than truncate, since truncation can collide distinct identifiers.
func Encode(id string) (Bytes32, error) {
	if len(id) > 32 {
		return Bytes32{}, &OverflowError{ID: id}
	}
	var out Bytes32
	copy(out[:], id)
	return out, nil
}

// Decode strips trailing zero padding and returns the original string.
// Interior bytes are never altered. Values that were not produced by Encode
// decode on a best-effort basis.
func Decode(id Bytes32) string {
	trimmed := bytes.TrimRight(id[:], "\x00")
	return string(trimmed)
}

// IsZero reports whether the identifier is all zero bytes.
func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

// Hex returns the 0x-prefixed hex form.
func (b Bytes32) Hex() string {
	return hexutil.Encode(b[:])
}
