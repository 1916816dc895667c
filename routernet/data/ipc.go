package data

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when an IPC stream holds no record batch.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCWriter encodes and decodes Arrow IPC streams.
type IPCWriter struct {
	allocator memory.Allocator
}

// NewIPCWriter creates a new IPCWriter.
func NewIPCWriter() *IPCWriter {
	return &IPCWriter{
		allocator: memory.DefaultAllocator,
	}
}

// NewIPCWriterWithAllocator creates an IPCWriter that reads into mem.
func NewIPCWriterWithAllocator(mem memory.Allocator) *IPCWriter {
	return &IPCWriter{
		allocator: mem,
	}
}

// Encode serializes one record to IPC stream bytes.
func (w *IPCWriter) Encode(record arrow.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	var buf bytes.Buffer
	if err := w.WriteStream(&buf, record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteStream writes records as a single IPC stream. All records must share
// the schema of the first one.
func (w *IPCWriter) WriteStream(out io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	writer := ipc.NewWriter(out, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(w.allocator))
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Decode reads the first record of an IPC stream. The caller owns the
// returned record and must release it.
func (w *IPCWriter) Decode(data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, ErrNoRecords
	}

	record := reader.Record()
	record.Retain()
	return record, nil
}

// ReadStream reads every record of an IPC stream. The caller must release
// each returned record.
func (w *IPCWriter) ReadStream(in io.Reader) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(in, ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		for _, r := range records {
			r.Release()
		}
		return nil, reader.Err()
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	return records, nil
}
