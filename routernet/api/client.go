package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/data"
)

// Client submits transfer batches to an ArrowServer over one connection.
type Client struct {
	conn      net.Conn
	converter *data.Converter
	ipc       *data.IPCWriter
	mu        sync.Mutex
}

// Dial connects to address and authenticates with token when it is set.
func Dial(ctx context.Context, address, token string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if token != "" {
		if err := ClientHandshake(conn, token); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &Client{
		conn:      conn,
		converter: data.NewConverter(),
		ipc:       data.NewIPCWriter(),
	}, nil
}

// Submit sends one batch and waits for its receipts.
func (c *Client) Submit(ctx context.Context, transfers []data.TransferRow) ([]data.ReceiptRow, error) {
	record, err := c.converter.TransfersToRecord(transfers)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	payload, err := c.ipc.Encode(record)
	if err != nil {
		return nil, err
	}

	response, err := c.Roundtrip(ctx, payload)
	if err != nil {
		return nil, err
	}

	out, err := c.ipc.Decode(response)
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipts: %w", err)
	}
	defer out.Release()

	return c.converter.RecordToReceipts(out)
}

// Roundtrip writes one raw frame and reads the reply. Error frames are
// returned as errors wrapping ErrRemote.
func (c *Client) Roundtrip(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := WriteMessage(c.conn, payload); err != nil {
		return nil, err
	}
	response, err := ReadMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if err := CheckError(response); err != nil {
		return nil, err
	}
	return response, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
