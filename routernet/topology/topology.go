// Package topology deploys multi-layer routing networks from a declarative
// plan.
package topology

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
)

// Common errors for plan validation
var (
	ErrNoOutputs   = errors.New("plan has no outputs")
	ErrNoLayers    = errors.New("plan has no layers")
	ErrUnknownKind = errors.New("unknown layer kind")
)

// LayerSpec describes one layer construction call.
type LayerSpec struct {
	Kind       string `yaml:"kind" json:"kind"`
	Multiplier int    `yaml:"multiplier" json:"multiplier"`
}

// Plan is an ordered list of layers built on top of the final outputs. The
// first layer consumes Outputs; every later layer consumes the nodes of the
// layer before it.
type Plan struct {
	Outputs []common.Address `yaml:"outputs" json:"outputs"`
	Layers  []LayerSpec      `yaml:"layers" json:"layers"`
}

// Validate checks the plan shape. Multipliers are validated by the builder.
func (p Plan) Validate() error {
	if len(p.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(p.Layers) == 0 {
		return ErrNoLayers
	}
	for i, spec := range p.Layers {
		if _, err := core.ParseRole(spec.Kind); err != nil {
			return fmt.Errorf("%w at layer %d: %q", ErrUnknownKind, i, spec.Kind)
		}
	}
	return nil
}

// LayerBuilder is the part of core.NetworkBuilder that Deploy needs.
type LayerBuilder interface {
	CreateAggregatorLayer(caller common.Address, outputs []common.Address, multiplier int) ([]common.Address, error)
	CreateDisgregatorLayer(caller common.Address, outputs []common.Address, multiplier int) ([]common.Address, error)
}

// Network is a deployed plan.
type Network struct {
	Outputs []common.Address `json:"outputs"`
	Layers  []core.Layer     `json:"layers"`
}

// Deploy builds every layer of plan in order on behalf of caller. Layers
// already built stay deployed when a later one fails; the error names the
// failing layer.
func Deploy(builder LayerBuilder, caller common.Address, plan Plan) (*Network, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	network := &Network{
		Outputs: append([]common.Address(nil), plan.Outputs...),
		Layers:  make([]core.Layer, 0, len(plan.Layers)),
	}

	inputs := network.Outputs
	for i, spec := range plan.Layers {
		kind, _ := core.ParseRole(spec.Kind)

		var (
			nodes []common.Address
			err   error
		)
		if kind == core.RoleAggregator {
			nodes, err = builder.CreateAggregatorLayer(caller, inputs, spec.Multiplier)
		} else {
			nodes, err = builder.CreateDisgregatorLayer(caller, inputs, spec.Multiplier)
		}
		if err != nil {
			return network, fmt.Errorf("layer %d (%s x%d): %w", i, kind, spec.Multiplier, err)
		}

		network.Layers = append(network.Layers, core.Layer{
			Kind:       kind,
			Nodes:      nodes,
			Inputs:     inputs,
			Multiplier: spec.Multiplier,
		})
		inputs = nodes
	}

	return network, nil
}

// Entry returns the nodes of the last layer, where value enters the network.
func (n *Network) Entry() []common.Address {
	if n == nil || len(n.Layers) == 0 {
		return nil
	}
	return n.Layers[len(n.Layers)-1].Nodes
}

// UnitCount returns the number of units across all layers.
func (n *Network) UnitCount() int {
	if n == nil {
		return 0
	}
	total := 0
	for _, layer := range n.Layers {
		total += len(layer.Nodes)
	}
	return total
}
