package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/data"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// Sender executes top-level transfers. *ledger.Ledger implements it.
type Sender interface {
	Send(ctx context.Context, from, to common.Address, amount *big.Int) (*ledger.Receipt, error)
}

// TransferHandler turns Arrow transfer batches into Arrow receipt batches.
type TransferHandler struct {
	sender    Sender
	converter *data.Converter
	ipc       *data.IPCWriter
	metrics   *Metrics
	logger    *slog.Logger
}

// NewTransferHandler creates a handler executing through sender. metrics
// may be nil.
func NewTransferHandler(sender Sender, metrics *Metrics, logger *slog.Logger) *TransferHandler {
	if logger == nil {
		logger = slog.Default()
	}
	mem := memory.NewGoAllocator()
	return &TransferHandler{
		sender:    sender,
		converter: data.NewConverterWithAllocator(mem),
		ipc:       data.NewIPCWriterWithAllocator(mem),
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "transfer_handler")),
	}
}

// ProcessBatch decodes an Arrow IPC transfer batch, executes every row in
// order and returns the encoded receipt batch. A failed row is reported in
// its receipt and does not stop the rows after it. Only a malformed batch
// returns an error.
func (h *TransferHandler) ProcessBatch(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("received empty data")
	}

	start := time.Now()

	record, err := h.ipc.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transfer batch: %w", err)
	}
	defer record.Release()

	transfers, err := h.converter.RecordToTransfers(record)
	if err != nil {
		return nil, fmt.Errorf("invalid transfer batch: %w", err)
	}
	if len(transfers) == 0 {
		return nil, data.ErrEmptyBatch
	}

	rows := h.Execute(ctx, transfers)

	out, err := h.converter.ReceiptsToRecord(rows)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	response, err := h.ipc.Encode(out)
	if err != nil {
		return nil, err
	}

	if h.metrics != nil {
		h.metrics.RecordBatch(len(transfers), time.Since(start))
	}
	h.logger.Debug("batch processed",
		slog.Int("rows", len(transfers)),
		slog.Duration("elapsed", time.Since(start)))

	return response, nil
}

// Execute sends every transfer in order and returns one receipt row each.
func (h *TransferHandler) Execute(ctx context.Context, transfers []data.TransferRow) []data.ReceiptRow {
	rows := make([]data.ReceiptRow, len(transfers))
	for i, tr := range transfers {
		sent := time.Now()
		receipt, err := h.sender.Send(ctx, tr.From, tr.To, tr.Amount)
		if h.metrics != nil {
			h.metrics.RecordTransfer(receipt, time.Since(sent))
		}
		rows[i] = data.ReceiptRowFrom(tr, receipt, err)
	}
	return rows
}
