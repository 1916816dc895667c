package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

var builderAddr = ledger.CreateAddress(owner, 0)

func newTestBuilder(t *testing.T, opts ...BuilderOption) (*NetworkBuilder, *ledger.Ledger, *EventLog) {
	t.Helper()
	l := ledger.New(nil)
	events := NewEventLog()
	opts = append([]BuilderOption{WithEventSink(events)}, opts...)
	return NewNetworkBuilder(owner, builderAddr, l, opts...), l, events
}

func TestNewNetworkBuilder(t *testing.T) {
	b, _, _ := newTestBuilder(t)
	assert.Equal(t, owner, b.Owner())
	assert.Equal(t, builderAddr, b.Address())
	assert.Equal(t, 0, b.UnitCount())
}

func TestCloneAggregatorNode(t *testing.T) {
	b, l, events := newTestBuilder(t)

	addr, err := b.CloneAggregatorNode(owner, outX)
	require.NoError(t, err)
	assert.Equal(t, ledger.CreateAddress(builderAddr, 1), addr)
	assert.True(t, l.IsContract(addr))

	unit, ok := b.Unit(addr)
	require.True(t, ok)
	assert.True(t, unit.IsAggregator())
	assert.Equal(t, builderAddr, unit.Owner())

	require.Equal(t, 1, events.Len())
	ev, ok := events.Events()[0].(NodeCloned)
	require.True(t, ok)
	assert.Equal(t, "AggregatorNodeCloned", ev.EventName())
	assert.Equal(t, addr, ev.Node)
	assert.Equal(t, []common.Address{outX}, ev.Outputs)
}

func TestCloneDisgregatorNode(t *testing.T) {
	b, _, events := newTestBuilder(t)

	addr, err := b.CloneDisgregatorNode(owner, []common.Address{outX, outY})
	require.NoError(t, err)

	unit, ok := b.Unit(addr)
	require.True(t, ok)
	assert.True(t, unit.IsDisgregator())
	assert.Equal(t, []common.Address{outX, outY}, unit.Outputs())
	assert.Equal(t, "DisgregatorNodeCloned", events.Events()[0].EventName())
}

func TestCloneNodeValidation(t *testing.T) {
	b, _, events := newTestBuilder(t)

	_, err := b.CloneAggregatorNode(owner, common.Address{})
	assert.ErrorIs(t, err, ErrNullOutputAddress)

	_, err = b.CloneDisgregatorNode(owner, nil)
	assert.ErrorIs(t, err, ErrEmptyOutputAddresses)

	assert.Equal(t, 0, b.UnitCount())
	assert.Equal(t, 0, events.Len())
}

func TestOnlyOwnerMayBuild(t *testing.T) {
	b, _, events := newTestBuilder(t)

	_, err := b.CloneAggregatorNode(intruder, outX)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = b.CloneDisgregatorNode(intruder, []common.Address{outX, outY})
	assert.ErrorIs(t, err, ErrNotOwner)

	// Ownership is checked before argument validation.
	_, err = b.CreateAggregatorLayer(intruder, nil, 0)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = b.CreateDisgregatorLayer(intruder, nil, 0)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.Equal(t, 0, b.UnitCount())
	assert.Equal(t, 0, events.Len())
}

func TestCreateAggregatorLayer(t *testing.T) {
	b, _, events := newTestBuilder(t)

	nodes, err := b.CreateAggregatorLayer(owner, []common.Address{outX, outY}, 2)
	require.NoError(t, err)
	require.Len(t, nodes, 4)

	want := []common.Address{outX, outX, outY, outY}
	for i, addr := range nodes {
		unit, ok := b.Unit(addr)
		require.True(t, ok)
		assert.True(t, unit.IsAggregator())
		out, err := unit.OutputAt(0)
		require.NoError(t, err)
		assert.Equal(t, want[i], out, "node %d", i)
		assert.Equal(t, ledger.CreateAddress(builderAddr, uint64(i+1)), addr)
	}

	// Layers emit a single layer event and no per-node events.
	require.Equal(t, 1, events.Len())
	ev, ok := events.Events()[0].(LayerCreated)
	require.True(t, ok)
	assert.Equal(t, "AggregatorLayerCreated", ev.EventName())
	assert.Equal(t, nodes, ev.Nodes)
	assert.Equal(t, []common.Address{outX, outY}, ev.Inputs)
	assert.Equal(t, 2, ev.Multiplier)
}

func TestCreateDisgregatorLayer(t *testing.T) {
	b, _, events := newTestBuilder(t)
	outputs := []common.Address{outX, outY, outZ, outW}

	nodes, err := b.CreateDisgregatorLayer(owner, outputs, 2)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	for _, addr := range nodes {
		unit, ok := b.Unit(addr)
		require.True(t, ok)
		assert.Equal(t, outputs, unit.Outputs())
	}

	ev := events.Events()[0].(LayerCreated)
	assert.Equal(t, "DisgregatorLayerCreated", ev.EventName())
	assert.Equal(t, nodes, ev.Nodes)
}

func TestCreateDisgregatorLayerTruncates(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	nodes, err := b.CreateDisgregatorLayer(owner, []common.Address{outX, outY, outZ}, 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	// Fewer outputs than the multiplier gives an empty layer.
	nodes, err = b.CreateDisgregatorLayer(owner, []common.Address{outX}, 2)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestCreateDisgregatorLayerStrict(t *testing.T) {
	b, _, events := newTestBuilder(t, WithStrictDivisibility(true))

	_, err := b.CreateDisgregatorLayer(owner, []common.Address{outX, outY, outZ}, 2)
	assert.ErrorIs(t, err, ErrIndivisibleLayer)
	assert.Equal(t, 0, events.Len())

	nodes, err := b.CreateDisgregatorLayer(owner, []common.Address{outX, outY, outZ, outW}, 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestCreateLayerValidation(t *testing.T) {
	tests := []struct {
		name       string
		outputs    []common.Address
		multiplier int
		want       error
	}{
		{"zero multiplier", []common.Address{outX}, 0, ErrInvalidLayersMultiplier},
		{"negative multiplier", []common.Address{outX}, -1, ErrInvalidLayersMultiplier},
		{"no outputs", nil, 1, ErrInvalidNodesCount},
		{"multiplier checked first", nil, 0, ErrInvalidLayersMultiplier},
		{"null output", []common.Address{outX, {}}, 1, ErrNullOutputAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, l, events := newTestBuilder(t)

			_, err := b.CreateAggregatorLayer(owner, tt.outputs, tt.multiplier)
			assert.ErrorIs(t, err, tt.want)
			_, err = b.CreateDisgregatorLayer(owner, tt.outputs, tt.multiplier)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, 0, b.UnitCount())
			assert.Equal(t, 0, events.Len())
			assert.False(t, l.IsContract(ledger.CreateAddress(builderAddr, 1)))
		})
	}
}

func TestCreateAggregatorLayerTooLarge(t *testing.T) {
	b, _, _ := newTestBuilder(t)

	_, err := b.CreateAggregatorLayer(owner, []common.Address{outX, outY}, MaxLayerUnits)
	assert.ErrorIs(t, err, ErrLayerTooLarge)
	assert.Equal(t, 0, b.UnitCount())
}

func TestCreateDisgregatorLayerTooLarge(t *testing.T) {
	b, _, events := newTestBuilder(t)

	outputs := make([]common.Address, MaxLayerUnits+1)
	for i := range outputs {
		outputs[i] = common.BigToAddress(big.NewInt(int64(i + 1)))
	}

	_, err := b.CreateDisgregatorLayer(owner, outputs, 1)
	assert.ErrorIs(t, err, ErrLayerTooLarge)
	assert.Equal(t, 0, b.UnitCount())
	assert.Equal(t, 0, events.Len())
}

type failingCloner struct {
	inner *DeterministicCloner
	after int
	calls int
}

func (c *failingCloner) Clone() (*RoutingUnit, error) {
	c.calls++
	if c.calls > c.after {
		return nil, errors.New("clone failed")
	}
	return c.inner.Clone()
}

func TestLayerCreationIsAtomic(t *testing.T) {
	cloner := &failingCloner{inner: NewDeterministicCloner(builderAddr), after: 3}
	b, l, events := newTestBuilder(t, WithCloner(cloner))

	_, err := b.CreateAggregatorLayer(owner, []common.Address{outX, outY}, 2)
	require.Error(t, err)

	assert.Equal(t, 0, b.UnitCount())
	assert.Equal(t, 0, events.Len())
	for nonce := uint64(1); nonce <= 3; nonce++ {
		assert.False(t, l.IsContract(ledger.CreateAddress(builderAddr, nonce)))
	}
}

func TestLayerDeployCollision(t *testing.T) {
	b, l, _ := newTestBuilder(t)
	taken := ledger.CreateAddress(builderAddr, 2)
	require.NoError(t, l.Deploy(ledger.Contract{Address: taken, Receiver: NewRoutingUnit(taken)}))

	_, err := b.CreateAggregatorLayer(owner, []common.Address{outX, outY}, 2)
	assert.ErrorIs(t, err, ledger.ErrAddressInUse)
	assert.False(t, l.IsContract(ledger.CreateAddress(builderAddr, 1)))
	assert.Equal(t, 0, b.UnitCount())
}

func TestBuiltLayersRouteValue(t *testing.T) {
	b, l, _ := newTestBuilder(t)
	require.NoError(t, l.Fund(owner, ether(1)))

	// One disgregator over two aggregator pairs.
	aggs, err := b.CreateAggregatorLayer(owner, []common.Address{outX, outY}, 2)
	require.NoError(t, err)
	dis, err := b.CreateDisgregatorLayer(owner, aggs, 4)
	require.NoError(t, err)
	require.Len(t, dis, 1)

	receipt, err := l.Send(context.Background(), owner, dis[0], ether(1))
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.MaxDepth())

	half := new(big.Int).Div(ether(1), big.NewInt(2))
	assertAmount(t, half, l.BalanceOf(outX))
	assertAmount(t, half, l.BalanceOf(outY))
	for _, addr := range append(aggs, dis...) {
		assertAmount(t, big.NewInt(0), l.BalanceOf(addr))
	}
}

func TestRemainderCompoundsAlongFirstChildPath(t *testing.T) {
	b, l, _ := newTestBuilder(t)
	require.NoError(t, l.Fund(owner, big.NewInt(10)))

	leaves := make([]common.Address, 9)
	for i := range leaves {
		leaves[i] = common.BigToAddress(big.NewInt(int64(0x300 + i)))
	}

	children := make([]common.Address, 3)
	for i := range children {
		addr, err := b.CloneDisgregatorNode(owner, leaves[i*3:i*3+3])
		require.NoError(t, err)
		children[i] = addr
	}
	root, err := b.CloneDisgregatorNode(owner, children)
	require.NoError(t, err)

	// 10 -> [4, 3, 3]; 4 -> [2, 1, 1]; 3 -> [1, 1, 1].
	receipt, err := l.Send(context.Background(), owner, root, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.MaxDepth())

	want := []int64{2, 1, 1, 1, 1, 1, 1, 1, 1}
	total := new(big.Int)
	for i, leaf := range leaves {
		assertAmount(t, big.NewInt(want[i]), l.BalanceOf(leaf))
		total.Add(total, l.BalanceOf(leaf))
	}
	assertAmount(t, big.NewInt(10), total)
	assertAmount(t, big.NewInt(4), receipt.Received(children[0]))

	for _, addr := range append(children, root) {
		assertAmount(t, big.NewInt(0), l.BalanceOf(addr))
	}
}

func TestRemainderCompoundsThroughDisgregatorLayers(t *testing.T) {
	b, l, _ := newTestBuilder(t)
	require.NoError(t, l.Fund(owner, big.NewInt(100)))

	leaves := make([]common.Address, 9)
	for i := range leaves {
		leaves[i] = common.BigToAddress(big.NewInt(int64(0x400 + i)))
	}

	lower, err := b.CreateDisgregatorLayer(owner, leaves, 3)
	require.NoError(t, err)
	require.Len(t, lower, 3)
	upper, err := b.CreateDisgregatorLayer(owner, lower, 3)
	require.NoError(t, err)
	require.Len(t, upper, 1)

	// 100 -> [34, 33, 33]; 34 -> 10 + 8x3; 33 -> 9 + 8x3.
	_, err = l.Send(context.Background(), owner, upper[0], big.NewInt(100))
	require.NoError(t, err)

	assertAmount(t, big.NewInt(28), l.BalanceOf(leaves[0]))
	total := new(big.Int).Set(l.BalanceOf(leaves[0]))
	for _, leaf := range leaves[1:] {
		assertAmount(t, big.NewInt(9), l.BalanceOf(leaf))
		total.Add(total, l.BalanceOf(leaf))
	}
	assertAmount(t, big.NewInt(100), total)
	assertAmount(t, big.NewInt(0), l.BalanceOf(owner))
}
