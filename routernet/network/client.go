package network

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

// GatewayClient sends transfer requests to a Gateway over a DEALER socket.
// Requests on one client are serialized.
type GatewayClient struct {
	dealer zmq4.Socket
	cancel context.CancelFunc
	mu     sync.Mutex
}

// DialGateway connects to a gateway endpoint such as "tcp://127.0.0.1:5555".
func DialGateway(endpoint, id string) (*GatewayClient, error) {
	ctx, cancel := context.WithCancel(context.Background())
	dealer := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(id)))
	if err := dealer.Dial(endpoint); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return &GatewayClient{dealer: dealer, cancel: cancel}, nil
}

// NewRequest builds a request with a fresh nonce and the current time.
func NewRequest(from, to common.Address, amount *big.Int) TransferRequest {
	return TransferRequest{
		From:      from,
		To:        to,
		Amount:    (*hexutil.Big)(amount),
		Nonce:     uuid.NewString(),
		Timestamp: time.Now(),
	}
}

// Transfer sends req and waits for the gateway's reply or ctx expiry.
func (c *GatewayClient) Transfer(ctx context.Context, req TransferRequest) (*TransferReply, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dealer.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.dealer.Recv()
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		// The pending Recv returns once the socket is closed.
		_ = c.Close()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to receive reply: %w", res.err)
		}
		var reply TransferReply
		if err := json.Unmarshal(res.msg.Bytes(), &reply); err != nil {
			return nil, fmt.Errorf("malformed reply: %w", err)
		}
		return &reply, nil
	}
}

// Close closes the DEALER socket.
func (c *GatewayClient) Close() error {
	c.cancel()
	return c.dealer.Close()
}
