package core

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// Deployer makes routing units reachable as ledger accounts. Deploy must be
// all-or-nothing across its arguments.
type Deployer interface {
	Deploy(contracts ...ledger.Contract) error
}

// BuilderOption configures a NetworkBuilder.
type BuilderOption func(*NetworkBuilder)

// WithCloner replaces the default deterministic cloner.
func WithCloner(cloner InstanceCloner) BuilderOption {
	return func(b *NetworkBuilder) {
		b.cloner = cloner
	}
}

// WithEventSink sets where builder events are delivered.
func WithEventSink(sink EventSink) BuilderOption {
	return func(b *NetworkBuilder) {
		b.events = sink
	}
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *NetworkBuilder) {
		b.logger = logger
	}
}

// WithStrictDivisibility makes CreateDisgregatorLayer fail with
// ErrIndivisibleLayer instead of truncating when the output count is not a
// multiple of the multiplier.
func WithStrictDivisibility(strict bool) BuilderOption {
	return func(b *NetworkBuilder) {
		b.strict = strict
	}
}

// NetworkBuilder is the privileged factory of routing units. Only its owner
// may create units; units it creates record the builder's own address as
// their owner.
type NetworkBuilder struct {
	access   Ownable
	address  common.Address
	deployer Deployer
	cloner   InstanceCloner
	events   EventSink
	logger   *slog.Logger
	strict   bool

	units map[common.Address]*RoutingUnit
	mu    sync.Mutex
}

// NewNetworkBuilder creates a builder owned by owner and living at address.
func NewNetworkBuilder(owner, address common.Address, deployer Deployer, opts ...BuilderOption) *NetworkBuilder {
	b := &NetworkBuilder{
		access:   NewOwnable(owner),
		address:  address,
		deployer: deployer,
		units:    make(map[common.Address]*RoutingUnit),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.cloner == nil {
		b.cloner = NewDeterministicCloner(address)
	}
	if b.events == nil {
		b.events = discardSink{}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With(slog.String("component", "builder"))

	return b
}

// Owner returns the identity allowed to create units.
func (b *NetworkBuilder) Owner() common.Address {
	return b.access.Owner()
}

// Address returns the builder's own ledger identity.
func (b *NetworkBuilder) Address() common.Address {
	return b.address
}

// Unit returns a unit created by this builder.
func (b *NetworkBuilder) Unit(addr common.Address) (*RoutingUnit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	unit, ok := b.units[addr]
	return unit, ok
}

// UnitCount returns how many units the builder has deployed.
func (b *NetworkBuilder) UnitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.units)
}

// CloneAggregatorNode creates one aggregator forwarding to output.
func (b *NetworkBuilder) CloneAggregatorNode(caller, output common.Address) (common.Address, error) {
	if err := b.access.OnlyOwner(caller); err != nil {
		return common.Address{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	unit, err := b.newAggregator(output)
	if err != nil {
		return common.Address{}, err
	}
	if err := b.commit(unit); err != nil {
		return common.Address{}, err
	}

	b.events.Emit(NodeCloned{
		Kind:    RoleAggregator,
		Node:    unit.Address(),
		Outputs: unit.Outputs(),
	})
	b.logger.Debug("aggregator node cloned",
		slog.String("node", unit.Address().Hex()),
		slog.String("output", output.Hex()))

	return unit.Address(), nil
}

// CloneDisgregatorNode creates one disgregator splitting across outputs.
func (b *NetworkBuilder) CloneDisgregatorNode(caller common.Address, outputs []common.Address) (common.Address, error) {
	if err := b.access.OnlyOwner(caller); err != nil {
		return common.Address{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	unit, err := b.newDisgregator(outputs)
	if err != nil {
		return common.Address{}, err
	}
	if err := b.commit(unit); err != nil {
		return common.Address{}, err
	}

	b.events.Emit(NodeCloned{
		Kind:    RoleDisgregator,
		Node:    unit.Address(),
		Outputs: unit.Outputs(),
	})
	b.logger.Debug("disgregator node cloned",
		slog.String("node", unit.Address().Hex()),
		slog.Int("outputs", len(outputs)))

	return unit.Address(), nil
}

// CreateAggregatorLayer creates len(outputs)*multiplier aggregators. The
// unit at position i forwards to outputs[i div multiplier]. Addresses are
// returned in creation order.
func (b *NetworkBuilder) CreateAggregatorLayer(caller common.Address, outputs []common.Address, multiplier int) ([]common.Address, error) {
	if err := b.access.OnlyOwner(caller); err != nil {
		return nil, err
	}
	if err := validateLayerParams(len(outputs), multiplier); err != nil {
		return nil, err
	}
	if len(outputs) > MaxLayerUnits/multiplier {
		return nil, fmt.Errorf("%w: %d x %d", ErrLayerTooLarge, len(outputs), multiplier)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mapping := AggregatorLayerMapping(len(outputs), multiplier)
	units := make([]*RoutingUnit, 0, len(mapping))
	for _, idx := range mapping {
		unit, err := b.newAggregator(outputs[idx])
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	return b.commitLayer(RoleAggregator, units, outputs, multiplier)
}

// CreateDisgregatorLayer creates len(outputs) div multiplier disgregators,
// each fanning out to the complete, unmodified outputs list. Addresses are
// returned in creation order.
func (b *NetworkBuilder) CreateDisgregatorLayer(caller common.Address, outputs []common.Address, multiplier int) ([]common.Address, error) {
	if err := b.access.OnlyOwner(caller); err != nil {
		return nil, err
	}
	if err := validateLayerParams(len(outputs), multiplier); err != nil {
		return nil, err
	}
	size := DisgregatorLayerSize(len(outputs), multiplier)
	if size > MaxLayerUnits {
		return nil, fmt.Errorf("%w: %d outputs / %d", ErrLayerTooLarge, len(outputs), multiplier)
	}

	if rem := len(outputs) % multiplier; rem != 0 {
		if b.strict {
			return nil, fmt.Errorf("%w: %d outputs, multiplier %d", ErrIndivisibleLayer, len(outputs), multiplier)
		}
		b.logger.Warn("disgregator layer truncated",
			slog.Int("outputs", len(outputs)),
			slog.Int("multiplier", multiplier),
			slog.Int("dropped", rem))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	units := make([]*RoutingUnit, 0, size)
	for i := 0; i < size; i++ {
		unit, err := b.newDisgregator(outputs)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	return b.commitLayer(RoleDisgregator, units, outputs, multiplier)
}

// newAggregator clones and initializes a unit without deploying it
// (called with lock held).
func (b *NetworkBuilder) newAggregator(output common.Address) (*RoutingUnit, error) {
	unit, err := b.cloner.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone routing unit: %w", err)
	}
	if err := unit.InitAsAggregator(b.address, output); err != nil {
		return nil, err
	}
	return unit, nil
}

// newDisgregator clones and initializes a unit without deploying it
// (called with lock held).
func (b *NetworkBuilder) newDisgregator(outputs []common.Address) (*RoutingUnit, error) {
	unit, err := b.cloner.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone routing unit: %w", err)
	}
	if err := unit.InitAsDisgregator(b.address, outputs); err != nil {
		return nil, err
	}
	return unit, nil
}

// commit deploys staged units in one step (called with lock held).
func (b *NetworkBuilder) commit(units ...*RoutingUnit) error {
	contracts := make([]ledger.Contract, len(units))
	for i, unit := range units {
		contracts[i] = ledger.Contract{Address: unit.Address(), Receiver: unit}
	}
	if err := b.deployer.Deploy(contracts...); err != nil {
		return fmt.Errorf("failed to deploy routing units: %w", err)
	}
	for _, unit := range units {
		b.units[unit.Address()] = unit
	}
	return nil
}

// commitLayer deploys a staged layer and emits its event (called with lock held).
func (b *NetworkBuilder) commitLayer(kind Role, units []*RoutingUnit, inputs []common.Address, multiplier int) ([]common.Address, error) {
	if err := b.commit(units...); err != nil {
		return nil, err
	}

	nodes := make([]common.Address, len(units))
	for i, unit := range units {
		nodes[i] = unit.Address()
	}

	b.events.Emit(LayerCreated{
		Kind:       kind,
		Nodes:      append([]common.Address(nil), nodes...),
		Inputs:     append([]common.Address(nil), inputs...),
		Multiplier: multiplier,
	})
	b.logger.Info("layer created",
		slog.String("kind", kind.String()),
		slog.Int("nodes", len(nodes)),
		slog.Int("inputs", len(inputs)),
		slog.Int("multiplier", multiplier))

	return nodes, nil
}
