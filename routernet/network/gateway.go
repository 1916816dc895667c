// Package network provides a ZeroMQ ingress for transfers.
//
// This package implements:
//   - Gateway: ROUTER socket accepting JSON transfer requests
//   - GatewayClient: DEALER client for the gateway
//   - ReplayGuard: nonce and timestamp replay protection
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// MaxRequestSize bounds a single JSON request.
const MaxRequestSize = 64 * 1024

// Common errors for gateway operations
var (
	ErrGatewayNotRunning = errors.New("gateway is not running")
	ErrRequestTooLarge   = errors.New("request exceeds maximum size")
	ErrMalformedRequest  = errors.New("malformed request")
)

// Sender executes top-level transfers. *ledger.Ledger implements it.
type Sender interface {
	Send(ctx context.Context, from, to common.Address, amount *big.Int) (*ledger.Receipt, error)
}

// TransferRequest is the JSON body a client sends.
type TransferRequest struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    *hexutil.Big   `json:"amount"`
	Nonce     string         `json:"nonce"`
	Timestamp time.Time      `json:"timestamp"`
}

// TransferReply is the JSON answer to a TransferRequest.
type TransferReply struct {
	Nonce     string `json:"nonce,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`
	Status    string `json:"status"`
	Legs      int    `json:"legs"`
	Error     string `json:"error,omitempty"`
}

// GatewayConfig holds configuration for the ZeroMQ gateway.
type GatewayConfig struct {
	ID              string        `yaml:"id" json:"id"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReplayTolerance time.Duration `yaml:"replay_tolerance" json:"replay_tolerance"`
	CleanInterval   time.Duration `yaml:"clean_interval" json:"clean_interval"`
}

// DefaultGatewayConfig returns default gateway configuration.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		ID:              "gateway-1",
		Host:            "127.0.0.1",
		Port:            5555,
		ReplayTolerance: 60 * time.Second,
		CleanInterval:   30 * time.Second,
	}
}

// Endpoint returns the ZeroMQ endpoint the gateway binds.
func (c *GatewayConfig) Endpoint() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// GatewayStats contains gateway statistics.
type GatewayStats struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	IsRunning bool   `json:"is_running"`
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Nonces    int    `json:"nonces"`
}

// Gateway accepts transfer requests on a ZeroMQ ROUTER socket and answers
// each on the requesting peer's identity.
type Gateway struct {
	config *GatewayConfig
	sender Sender
	replay *ReplayGuard
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	router zmq4.Socket

	accepted uint64
	rejected uint64

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewGateway creates a gateway executing transfers through sender.
func NewGateway(config *GatewayConfig, sender Sender, logger *slog.Logger) *Gateway {
	if config == nil {
		config = DefaultGatewayConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config: config,
		sender: sender,
		replay: NewReplayGuard(config.ReplayTolerance),
		logger: logger.With(slog.String("component", "gateway"), slog.String("id", config.ID)),
	}
}

// Start binds the ROUTER socket and starts serving.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return errors.New("gateway already running")
	}

	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.router = zmq4.NewRouter(g.ctx, zmq4.WithID(zmq4.SocketIdentity(g.config.ID)))

	if err := g.router.Listen(g.config.Endpoint()); err != nil {
		g.cancel()
		return fmt.Errorf("failed to bind router: %w", err)
	}
	g.running = true

	g.wg.Add(1)
	go g.receiverLoop()

	if g.config.CleanInterval > 0 {
		g.wg.Add(1)
		go g.replayCleaner()
	}

	g.logger.Info("gateway listening", slog.String("endpoint", g.Addr().String()))
	return nil
}

// Stop closes the socket and waits for the gateway goroutines.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.cancel()
	if err := g.router.Close(); err != nil {
		g.logger.Debug("router close", slog.String("error", err.Error()))
	}
	g.mu.Unlock()

	g.wg.Wait()
	g.logger.Info("gateway stopped")
}

// Addr returns the bound address. Binding port 0 picks a free port.
func (g *Gateway) Addr() net.Addr {
	if g.router == nil {
		return nil
	}
	return g.router.Addr()
}

// Stats returns current gateway statistics.
func (g *Gateway) Stats() GatewayStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := GatewayStats{
		ID:        g.config.ID,
		Address:   g.config.Endpoint(),
		IsRunning: g.running,
		Accepted:  g.accepted,
		Rejected:  g.rejected,
		Nonces:    g.replay.Size(),
	}
	return stats
}

// receiverLoop reads [identity, payload] frames until the gateway stops.
func (g *Gateway) receiverLoop() {
	defer g.wg.Done()

	for {
		msg, err := g.router.Recv()
		if err != nil {
			if g.ctx.Err() != nil {
				return
			}
			g.logger.Debug("receive failed", slog.String("error", err.Error()))
			continue
		}
		if len(msg.Frames) < 2 {
			continue
		}

		identity := msg.Frames[0]
		reply := g.Handle(g.ctx, msg.Frames[len(msg.Frames)-1])

		payload, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if err := g.router.Send(zmq4.NewMsgFrom(identity, payload)); err != nil {
			g.logger.Debug("reply failed", slog.String("error", err.Error()))
		}
	}
}

// Handle processes one raw request and returns the reply to send.
func (g *Gateway) Handle(ctx context.Context, raw []byte) TransferReply {
	reply, err := g.handle(ctx, raw)

	g.mu.Lock()
	if err != nil {
		g.rejected++
	} else {
		g.accepted++
	}
	g.mu.Unlock()

	if err != nil {
		reply.Status = ledger.StatusReverted.String()
		reply.Error = err.Error()
		g.logger.Debug("request rejected", slog.String("nonce", reply.Nonce), slog.String("error", err.Error()))
	}
	return reply
}

func (g *Gateway) handle(ctx context.Context, raw []byte) (TransferReply, error) {
	if len(raw) > MaxRequestSize {
		return TransferReply{}, fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, len(raw))
	}

	var req TransferRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return TransferReply{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	reply := TransferReply{Nonce: req.Nonce}
	if req.Amount == nil {
		return reply, fmt.Errorf("%w: missing amount", ErrMalformedRequest)
	}

	if err := g.replay.Check(req.Nonce, req.Timestamp); err != nil {
		return reply, err
	}

	receipt, err := g.sender.Send(ctx, req.From, req.To, req.Amount.ToInt())
	if receipt != nil {
		reply.ReceiptID = receipt.ID
		reply.Status = receipt.Status.String()
		reply.Legs = len(receipt.Legs)
	}
	return reply, err
}

// replayCleaner periodically drops expired nonces.
func (g *Gateway) replayCleaner() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.config.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if n := g.replay.Clean(); n > 0 {
				g.logger.Debug("replay cache cleaned", slog.Int("removed", n))
			}
		}
	}
}
