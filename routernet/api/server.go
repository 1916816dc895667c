package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// ServerConfig holds configuration for the Arrow transfer server.
type ServerConfig struct {
	Address string     `yaml:"address" json:"address"`
	Auth    AuthConfig `yaml:"auth" json:"auth"`
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address: "127.0.0.1:50051",
	}
}

// ArrowServer is a TCP server that accepts length-prefixed Arrow IPC
// transfer batches and answers each with a receipt batch.
type ArrowServer struct {
	listener net.Listener
	handler  *TransferHandler
	auth     *Authenticator
	metrics  *Metrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	running bool
	mu      sync.Mutex
}

// NewArrowServer creates a server. auth and metrics may be nil.
func NewArrowServer(handler *TransferHandler, auth *Authenticator, metrics *Metrics, logger *slog.Logger) *ArrowServer {
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArrowServer{
		handler: handler,
		auth:    auth,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "arrow_server")),
	}
}

// Start listens on address and serves until Stop is called.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()

	s.acceptLoop(lis)
	return nil
}

// StartAsync listens on address and serves in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go s.acceptLoop(lis)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *ArrowServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for open connections to finish their
// current batch.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	if err := s.listener.Close(); err != nil {
		s.logger.Debug("listener close", slog.String("error", err.Error()))
	}
	s.mu.Unlock()

	s.conns.Wait()
	s.logger.Info("arrow server stopped")
}

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.logger.Info("arrow server listening",
		slog.String("address", lis.Addr().String()),
		slog.Bool("auth", s.auth.IsEnabled()))
	return lis, nil
}

func (s *ArrowServer) acceptLoop(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.conns.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection serves one client until it disconnects or the server
// stops. Batch errors are reported as error frames and keep the connection.
func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer s.conns.Done()
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()
	}

	// Unblock reads when the server stops.
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	logger := s.logger.With(slog.String("remote", conn.RemoteAddr().String()))

	if err := s.auth.Handshake(conn); err != nil {
		if s.metrics != nil {
			s.metrics.AuthFailures.Inc()
		}
		logger.Warn("authentication failed", slog.String("error", err.Error()))
		return
	}

	for {
		payload, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				logger.Debug("read failed", slog.String("error", err.Error()))
			}
			return
		}

		response, err := s.handler.ProcessBatch(s.ctx, payload)
		if err != nil {
			logger.Warn("batch rejected", slog.String("error", err.Error()))
			if err := WriteError(conn, err); err != nil {
				return
			}
			continue
		}

		if err := WriteMessage(conn, response); err != nil {
			logger.Debug("write failed", slog.String("error", err.Error()))
			return
		}
	}
}
