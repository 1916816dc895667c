package topology

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

var (
	deployer = common.HexToAddress("0x000000000000000000000000000000000000d00d")
	outputs  = []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000a01"),
		common.HexToAddress("0x0000000000000000000000000000000000000a02"),
		common.HexToAddress("0x0000000000000000000000000000000000000a03"),
		common.HexToAddress("0x0000000000000000000000000000000000000a04"),
	}
)

func newBuilder(t *testing.T) (*core.NetworkBuilder, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(nil)
	b := core.NewNetworkBuilder(deployer, ledger.CreateAddress(deployer, 0), l)
	return b, l
}

func fullNetworkPlan() Plan {
	return Plan{
		Outputs: outputs,
		Layers: []LayerSpec{
			{Kind: "aggregator", Multiplier: 2},
			{Kind: "aggregator", Multiplier: 2},
			{Kind: "aggregator", Multiplier: 1},
			{Kind: "disgregator", Multiplier: 4},
			{Kind: "disgregator", Multiplier: 4},
		},
	}
}

func TestPlanValidate(t *testing.T) {
	assert.NoError(t, fullNetworkPlan().Validate())
	assert.ErrorIs(t, Plan{Layers: []LayerSpec{{Kind: "aggregator", Multiplier: 1}}}.Validate(), ErrNoOutputs)
	assert.ErrorIs(t, Plan{Outputs: outputs}.Validate(), ErrNoLayers)
	assert.ErrorIs(t, Plan{Outputs: outputs, Layers: []LayerSpec{{Kind: "router", Multiplier: 1}}}.Validate(), ErrUnknownKind)
}

func TestDeployFullNetwork(t *testing.T) {
	b, l := newBuilder(t)

	network, err := Deploy(b, deployer, fullNetworkPlan())
	require.NoError(t, err)
	require.Len(t, network.Layers, 5)

	sizes := make([]int, len(network.Layers))
	for i, layer := range network.Layers {
		sizes[i] = len(layer.Nodes)
	}
	// 4 -> 8 -> 16 -> 16 -> 4 -> 1
	assert.Equal(t, []int{8, 16, 16, 4, 1}, sizes)
	assert.Equal(t, 45, network.UnitCount())
	assert.Equal(t, network.Layers[0].Nodes, network.Layers[1].Inputs)

	entry := network.Entry()
	require.Len(t, entry, 1)

	require.NoError(t, l.Fund(deployer, ledger.Ether))
	receipt, err := l.Send(context.Background(), deployer, entry[0], ledger.Ether)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())

	quarter := new(big.Int).Div(ledger.Ether, big.NewInt(4))
	for _, out := range outputs {
		assert.Equal(t, quarter.String(), l.BalanceOf(out).String())
	}
	for _, layer := range network.Layers {
		for _, node := range layer.Nodes {
			assert.Equal(t, "0", l.BalanceOf(node).String())
		}
	}
}

func TestDeployStopsAtFailingLayer(t *testing.T) {
	b, _ := newBuilder(t)
	plan := Plan{
		Outputs: outputs,
		Layers: []LayerSpec{
			{Kind: "aggregator", Multiplier: 1},
			{Kind: "disgregator", Multiplier: 0},
		},
	}

	network, err := Deploy(b, deployer, plan)
	assert.ErrorIs(t, err, core.ErrInvalidLayersMultiplier)
	require.NotNil(t, network)
	assert.Len(t, network.Layers, 1)
}

func TestDeployRequiresOwner(t *testing.T) {
	b, _ := newBuilder(t)

	_, err := Deploy(b, outputs[0], fullNetworkPlan())
	assert.ErrorIs(t, err, core.ErrNotOwner)
}

func TestEntryOfEmptyNetwork(t *testing.T) {
	var network *Network
	assert.Nil(t, network.Entry())
	assert.Equal(t, 0, network.UnitCount())
}
