package core

import "github.com/ethereum/go-ethereum/common"

// Layer is the set of units produced by one layer construction call.
type Layer struct {
	Kind       Role             `json:"kind"`
	Nodes      []common.Address `json:"nodes"`
	Inputs     []common.Address `json:"inputs"`
	Multiplier int              `json:"multiplier"`
}

// AggregatorLayerMapping returns, for every unit of an aggregator layer built
// over outputCount addresses, the index of the address that unit forwards to.
// The layer has outputCount*multiplier units and unit i maps to
// i div multiplier, so each address gets multiplier consecutive entry units.
func AggregatorLayerMapping(outputCount, multiplier int) []int {
	if outputCount < 1 || multiplier < 1 {
		return nil
	}

	mapping := make([]int, outputCount*multiplier)
	for i := range mapping {
		mapping[i] = i / multiplier
	}
	return mapping
}

// DisgregatorLayerSize returns how many units a disgregator layer built over
// outputCount addresses has. Every unit fans out to all of the addresses;
// the division truncates.
func DisgregatorLayerSize(outputCount, multiplier int) int {
	if outputCount < 1 || multiplier < 1 {
		return 0
	}
	return outputCount / multiplier
}
