package betman

import (
	"fmt"
	"math/big"

	"flarebets/internal/codec"
)

func asBigInt(value interface{}) (*big.Int, error) {
	out, ok := value.(*big.Int)
	if !ok || out == nil {
		return nil, fmt.Errorf("expected *big.Int, got %T", value)
	}
	return out, nil
}

func asBigIntString(value interface{}) (string, error) {
	out, err := asBigInt(value)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

func asBytes32(value interface{}) (codec.Bytes32, error) {
	out, ok := value.([32]byte)
	if !ok {
		return codec.Bytes32{}, fmt.Errorf("expected [32]byte, got %T", value)
	}
	return codec.Bytes32(out), nil
}

func asString(value interface{}) (string, error) {
	out, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return out, nil
}
