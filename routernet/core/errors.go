package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Routing unit errors
var (
	ErrAlreadyInitialized    = errors.New("routing unit is already initialized")
	ErrNullOutputAddress     = errors.New("null output address")
	ErrEmptyOutputAddresses  = errors.New("empty output addresses")
	ErrOutputIndexOutOfRange = errors.New("output index out of range")
)

// Network builder errors
var (
	ErrNotOwner                = errors.New("caller is not the owner")
	ErrInvalidLayersMultiplier = errors.New("invalid layers multiplier")
	ErrInvalidNodesCount       = errors.New("invalid nodes count")
	ErrIndivisibleLayer        = errors.New("output count is not a multiple of the layers multiplier")
	ErrLayerTooLarge           = errors.New("layer exceeds maximum unit count")
)

// MinMultiplier is the smallest accepted layers multiplier.
const MinMultiplier = 1

// MaxLayerUnits caps how many units a single layer call may create.
const MaxLayerUnits = 1 << 16

func validateOutput(output common.Address) error {
	if output == (common.Address{}) {
		return ErrNullOutputAddress
	}
	return nil
}

func validateOutputs(outputs []common.Address) error {
	if len(outputs) == 0 {
		return ErrEmptyOutputAddresses
	}
	for i, output := range outputs {
		if output == (common.Address{}) {
			return fmt.Errorf("%w at index %d", ErrNullOutputAddress, i)
		}
	}
	return nil
}

// validateLayerParams checks the multiplier before the input count.
func validateLayerParams(outputCount, multiplier int) error {
	if multiplier < MinMultiplier {
		return fmt.Errorf("%w: %d (min %d)", ErrInvalidLayersMultiplier, multiplier, MinMultiplier)
	}
	if outputCount < 1 {
		return ErrInvalidNodesCount
	}
	return nil
}
