package data

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// FuzzJSONToTransferRecord tests the JSON to Arrow conversion with random inputs.
// Run with: go test -fuzz=FuzzJSONToTransferRecord -fuzztime=30s ./routernet/data/
func FuzzJSONToTransferRecord(f *testing.F) {
	f.Add([]byte(`[{"from":"0x00000000000000000000000000000000000000aa","to":"0x00000000000000000000000000000000000000bb","amount":1}]`))
	f.Add([]byte(`[{"from":"0x00","to":"0x01","amount":0}]`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`[{}]`))

	// Malformed inputs
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`[{"amount":-5}]`))
	f.Add([]byte(`[1,2,3]`))

	c := NewConverter()

	f.Fuzz(func(t *testing.T, data []byte) {
		record, err := c.JSONToTransferRecord(data)
		if err == nil && record != nil {
			if _, err := c.RecordToTransfers(record); err != nil {
				t.Errorf("record built from JSON failed to parse back: %v", err)
			}
			record.Release()
		}
	})
}

// FuzzDecodeTransferBatch feeds arbitrary bytes to the IPC decoder and the
// transfer parser.
// Run with: go test -fuzz=FuzzDecodeTransferBatch -fuzztime=30s ./routernet/data/
func FuzzDecodeTransferBatch(f *testing.F) {
	c := NewConverter()
	w := NewIPCWriter()

	record, err := c.TransfersToRecord([]TransferRow{{
		From:   common.HexToAddress("0xaa"),
		To:     common.HexToAddress("0xbb"),
		Amount: big.NewInt(42),
	}})
	if err == nil {
		if payload, err := w.Encode(record); err == nil {
			f.Add(payload)
		}
		record.Release()
	}
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00})

	f.Fuzz(func(t *testing.T, payload []byte) {
		decoded, err := w.Decode(payload)
		if err != nil {
			return
		}
		defer decoded.Release()
		_, _ = c.RecordToTransfers(decoded)
	})
}
