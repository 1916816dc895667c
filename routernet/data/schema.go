// Package data provides the Apache Arrow schemas used on the wire and in
// exports. Addresses travel as 0x-prefixed hex strings and amounts as
// base-10 wei strings so that full uint256 values survive the round trip.
package data

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// TransferSchema returns the Arrow schema for a batch of transfer requests.
//
// Fields:
//   - from: string - Sender address
//   - to: string - Recipient address, usually a routing unit
//   - amount: string - Amount in wei, base 10
func TransferSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "from", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "to", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "amount", Type: arrow.BinaryTypes.String, Nullable: false},
		},
		nil,
	)
}

// ReceiptSchema returns the Arrow schema for transfer results.
//
// Fields:
//   - id: string - Receipt identifier
//   - from, to, amount: string - Echo of the request
//   - status: string - "succeeded" or "reverted"
//   - error: string (nullable) - Failure reason for reverted rows
//   - legs: int32 - Number of value movements in the cascade
//   - max_depth: int32 - Deepest call depth reached
func ReceiptSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "from", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "to", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "amount", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "status", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "legs", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "max_depth", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		},
		nil,
	)
}

// LayerSchema returns the Arrow schema for a deployed topology, one row per
// routing unit.
//
// Fields:
//   - layer: int32 - Layer index, 0 is closest to the outputs
//   - kind: string - "aggregator" or "disgregator"
//   - multiplier: int32 - Multiplier the layer was built with
//   - position: int32 - Position of the unit within its layer
//   - node: string - Unit address
//   - outputs: list<string> - Addresses the unit forwards to, in order
func LayerSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "layer", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "multiplier", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "position", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
			{Name: "node", Type: arrow.BinaryTypes.String, Nullable: false},
			{Name: "outputs", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: false},
		},
		nil,
	)
}
