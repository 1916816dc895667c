package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// Common errors for conversion operations
var (
	ErrEmptyBatch     = errors.New("empty batch")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// TransferRow is one transfer request.
type TransferRow struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// ReceiptRow is the tabular form of a ledger receipt.
type ReceiptRow struct {
	ID       string         `json:"id"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   *big.Int       `json:"amount"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Legs     int            `json:"legs"`
	MaxDepth int            `json:"max_depth"`
}

// ReceiptRowFrom flattens a receipt. A nil receipt with err produces a
// reverted row carrying the error text.
func ReceiptRowFrom(req TransferRow, receipt *ledger.Receipt, err error) ReceiptRow {
	row := ReceiptRow{
		From:   req.From,
		To:     req.To,
		Amount: req.Amount,
		Status: ledger.StatusReverted.String(),
	}
	if receipt != nil {
		row.ID = receipt.ID
		row.Status = receipt.Status.String()
		row.Legs = len(receipt.Legs)
		row.MaxDepth = receipt.MaxDepth()
	}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

// LayerRow is one routing unit of a deployed topology.
type LayerRow struct {
	Layer      int              `json:"layer"`
	Kind       core.Role        `json:"kind"`
	Multiplier int              `json:"multiplier"`
	Position   int              `json:"position"`
	Node       common.Address   `json:"node"`
	Outputs    []common.Address `json:"outputs"`
}

// LayerRows expands layers into one row per unit. Outputs are derived from
// the layer inputs with the same mapping the builder uses.
func LayerRows(layers []core.Layer) []LayerRow {
	var rows []LayerRow
	for li, layer := range layers {
		mapping := aggregatorMapping(layer)
		for pos, node := range layer.Nodes {
			row := LayerRow{
				Layer:      li,
				Kind:       layer.Kind,
				Multiplier: layer.Multiplier,
				Position:   pos,
				Node:       node,
			}
			if layer.Kind == core.RoleAggregator && pos < len(mapping) {
				row.Outputs = []common.Address{layer.Inputs[mapping[pos]]}
			} else {
				row.Outputs = append([]common.Address(nil), layer.Inputs...)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// aggregatorMapping returns the output index of every unit of an
// aggregator layer, or nil for other kinds.
func aggregatorMapping(layer core.Layer) []int {
	if layer.Kind != core.RoleAggregator {
		return nil
	}
	return core.AggregatorLayerMapping(len(layer.Inputs), layer.Multiplier)
}

// Converter builds and reads Arrow records for the routernet schemas.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{
		allocator: memory.DefaultAllocator,
	}
}

// NewConverterWithAllocator creates a Converter that allocates from mem.
func NewConverterWithAllocator(mem memory.Allocator) *Converter {
	return &Converter{
		allocator: mem,
	}
}

// TransfersToRecord converts transfer requests to an Arrow record.
func (c *Converter) TransfersToRecord(transfers []TransferRow) (arrow.Record, error) {
	if len(transfers) == 0 {
		return nil, ErrEmptyBatch
	}

	builder := array.NewRecordBuilder(c.allocator, TransferSchema())
	defer builder.Release()

	fromBuilder := builder.Field(0).(*array.StringBuilder)
	toBuilder := builder.Field(1).(*array.StringBuilder)
	amountBuilder := builder.Field(2).(*array.StringBuilder)

	for i, tr := range transfers {
		if tr.Amount == nil || tr.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w at row %d", ErrInvalidAmount, i)
		}
		fromBuilder.Append(tr.From.Hex())
		toBuilder.Append(tr.To.Hex())
		amountBuilder.Append(tr.Amount.String())
	}

	return builder.NewRecord(), nil
}

// RecordToTransfers parses a transfer record. Every row must hold valid hex
// addresses and a non-negative base-10 amount.
func (c *Converter) RecordToTransfers(record arrow.Record) ([]TransferRow, error) {
	if err := ValidateSchema(record, TransferSchema()); err != nil {
		return nil, err
	}

	fromCol, ok := record.Column(0).(*array.String)
	if !ok {
		return nil, errors.New("column 0 (from) is not a String array")
	}
	toCol, ok := record.Column(1).(*array.String)
	if !ok {
		return nil, errors.New("column 1 (to) is not a String array")
	}
	amountCol, ok := record.Column(2).(*array.String)
	if !ok {
		return nil, errors.New("column 2 (amount) is not a String array")
	}

	rows := make([]TransferRow, record.NumRows())
	for i := range rows {
		if fromCol.IsNull(i) || toCol.IsNull(i) || amountCol.IsNull(i) {
			return nil, fmt.Errorf("null value at row %d", i)
		}

		from, err := parseAddress(fromCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d from: %w", i, err)
		}
		to, err := parseAddress(toCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d to: %w", i, err)
		}
		amount, err := parseWei(amountCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		rows[i] = TransferRow{From: from, To: to, Amount: amount}
	}

	return rows, nil
}

// ReceiptsToRecord converts receipt rows to an Arrow record.
func (c *Converter) ReceiptsToRecord(receipts []ReceiptRow) (arrow.Record, error) {
	if len(receipts) == 0 {
		return nil, ErrEmptyBatch
	}

	builder := array.NewRecordBuilder(c.allocator, ReceiptSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	fromBuilder := builder.Field(1).(*array.StringBuilder)
	toBuilder := builder.Field(2).(*array.StringBuilder)
	amountBuilder := builder.Field(3).(*array.StringBuilder)
	statusBuilder := builder.Field(4).(*array.StringBuilder)
	errorBuilder := builder.Field(5).(*array.StringBuilder)
	legsBuilder := builder.Field(6).(*array.Int32Builder)
	depthBuilder := builder.Field(7).(*array.Int32Builder)

	for _, r := range receipts {
		idBuilder.Append(r.ID)
		fromBuilder.Append(r.From.Hex())
		toBuilder.Append(r.To.Hex())
		if r.Amount != nil {
			amountBuilder.Append(r.Amount.String())
		} else {
			amountBuilder.Append("0")
		}
		statusBuilder.Append(r.Status)
		if r.Error != "" {
			errorBuilder.Append(r.Error)
		} else {
			errorBuilder.AppendNull()
		}
		legsBuilder.Append(int32(r.Legs))
		depthBuilder.Append(int32(r.MaxDepth))
	}

	return builder.NewRecord(), nil
}

// RecordToReceipts parses a receipt record.
func (c *Converter) RecordToReceipts(record arrow.Record) ([]ReceiptRow, error) {
	if err := ValidateSchema(record, ReceiptSchema()); err != nil {
		return nil, err
	}

	strCols := make([]*array.String, 6)
	for i := range strCols {
		col, ok := record.Column(i).(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %d (%s) is not a String array", i, record.ColumnName(i))
		}
		strCols[i] = col
	}
	legsCol, ok := record.Column(6).(*array.Int32)
	if !ok {
		return nil, errors.New("column 6 (legs) is not an Int32 array")
	}
	depthCol, ok := record.Column(7).(*array.Int32)
	if !ok {
		return nil, errors.New("column 7 (max_depth) is not an Int32 array")
	}

	rows := make([]ReceiptRow, record.NumRows())
	for i := range rows {
		from, err := parseAddress(strCols[1].Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d from: %w", i, err)
		}
		to, err := parseAddress(strCols[2].Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d to: %w", i, err)
		}
		amount, err := parseWei(strCols[3].Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		rows[i] = ReceiptRow{
			ID:       strCols[0].Value(i),
			From:     from,
			To:       to,
			Amount:   amount,
			Status:   strCols[4].Value(i),
			Legs:     int(legsCol.Value(i)),
			MaxDepth: int(depthCol.Value(i)),
		}
		if !strCols[5].IsNull(i) {
			rows[i].Error = strCols[5].Value(i)
		}
	}

	return rows, nil
}

// LayersToRecord converts a deployed topology to an Arrow record with one
// row per unit.
func (c *Converter) LayersToRecord(layers []core.Layer) (arrow.Record, error) {
	rows := LayerRows(layers)
	if len(rows) == 0 {
		return nil, ErrEmptyBatch
	}

	builder := array.NewRecordBuilder(c.allocator, LayerSchema())
	defer builder.Release()

	layerBuilder := builder.Field(0).(*array.Int32Builder)
	kindBuilder := builder.Field(1).(*array.StringBuilder)
	multBuilder := builder.Field(2).(*array.Int32Builder)
	posBuilder := builder.Field(3).(*array.Int32Builder)
	nodeBuilder := builder.Field(4).(*array.StringBuilder)
	outputsBuilder := builder.Field(5).(*array.ListBuilder)
	outputBuilder := outputsBuilder.ValueBuilder().(*array.StringBuilder)

	for _, row := range rows {
		layerBuilder.Append(int32(row.Layer))
		kindBuilder.Append(row.Kind.String())
		multBuilder.Append(int32(row.Multiplier))
		posBuilder.Append(int32(row.Position))
		nodeBuilder.Append(row.Node.Hex())

		outputsBuilder.Append(true)
		for _, out := range row.Outputs {
			outputBuilder.Append(out.Hex())
		}
	}

	return builder.NewRecord(), nil
}

// RecordToLayerRows parses a layer record.
func (c *Converter) RecordToLayerRows(record arrow.Record) ([]LayerRow, error) {
	if err := ValidateSchema(record, LayerSchema()); err != nil {
		return nil, err
	}

	layerCol, ok1 := record.Column(0).(*array.Int32)
	kindCol, ok2 := record.Column(1).(*array.String)
	multCol, ok3 := record.Column(2).(*array.Int32)
	posCol, ok4 := record.Column(3).(*array.Int32)
	nodeCol, ok5 := record.Column(4).(*array.String)
	outputsCol, ok6 := record.Column(5).(*array.List)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, errors.New("layer record has unexpected column types")
	}
	outputValues, ok := outputsCol.ListValues().(*array.String)
	if !ok {
		return nil, errors.New("column 5 (outputs) does not hold strings")
	}

	rows := make([]LayerRow, record.NumRows())
	for i := range rows {
		kind, err := core.ParseRole(kindCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		node, err := parseAddress(nodeCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d node: %w", i, err)
		}

		start, end := outputsCol.ValueOffsets(i)
		outputs := make([]common.Address, 0, end-start)
		for j := start; j < end; j++ {
			out, err := parseAddress(outputValues.Value(int(j)))
			if err != nil {
				return nil, fmt.Errorf("row %d output %d: %w", i, j-start, err)
			}
			outputs = append(outputs, out)
		}

		rows[i] = LayerRow{
			Layer:      int(layerCol.Value(i)),
			Kind:       kind,
			Multiplier: int(multCol.Value(i)),
			Position:   int(posCol.Value(i)),
			Node:       node,
			Outputs:    outputs,
		}
	}

	return rows, nil
}

// JSONToTransferRecord converts a JSON array of transfers to an Arrow record.
func (c *Converter) JSONToTransferRecord(jsonData []byte) (arrow.Record, error) {
	var transfers []TransferRow
	if err := json.Unmarshal(jsonData, &transfers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return c.TransfersToRecord(transfers)
}

// ReceiptRecordToJSON converts a receipt record back to JSON bytes.
func (c *Converter) ReceiptRecordToJSON(record arrow.Record) ([]byte, error) {
	if record == nil || record.NumRows() == 0 {
		return []byte("[]"), nil
	}
	rows, err := c.RecordToReceipts(record)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

func parseWei(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return amount, nil
}
