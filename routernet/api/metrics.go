package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// Metrics holds all Prometheus metrics for a routing network. It doubles as
// a core.EventSink so builder activity is counted as it happens.
type Metrics struct {
	// Topology metrics
	UnitsCreated  *prometheus.CounterVec
	LayersCreated *prometheus.CounterVec

	// Transfer metrics
	TransfersTotal  *prometheus.CounterVec
	TransferLatency prometheus.Histogram
	CascadeLegs     prometheus.Histogram
	CascadeDepth    prometheus.Histogram

	// Batch metrics
	BatchesTotal prometheus.Counter
	BatchSize    prometheus.Histogram
	BatchLatency prometheus.Histogram

	// Connection metrics
	ActiveConnections prometheus.Gauge
	AuthFailures      prometheus.Counter
}

// NewMetrics registers the metrics under namespace with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UnitsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_created_total",
			Help:      "Routing units deployed by the builder, by kind",
		}, []string{"kind"}),
		LayersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_created_total",
			Help:      "Layers created by the builder, by kind",
		}, []string{"kind"}),

		TransfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Top-level transfers by final status",
		}, []string{"status"}),
		TransferLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_latency_seconds",
			Help:      "Time to settle a transfer and its cascade",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		CascadeLegs: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_legs",
			Help:      "Value movements per settled transfer",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CascadeDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_depth",
			Help:      "Deepest call depth reached per settled transfer",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),

		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of transfer batches processed",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of transfers per batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		BatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_latency_seconds",
			Help:      "Batch processing latency in seconds",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open client connections",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentication handshakes",
		}),
	}
}

// Emit implements core.EventSink.
func (m *Metrics) Emit(ev core.Event) {
	switch e := ev.(type) {
	case core.NodeCloned:
		m.UnitsCreated.WithLabelValues(e.Kind.String()).Inc()
	case core.LayerCreated:
		m.LayersCreated.WithLabelValues(e.Kind.String()).Inc()
		m.UnitsCreated.WithLabelValues(e.Kind.String()).Add(float64(len(e.Nodes)))
	}
}

// RecordTransfer records the outcome of one top-level transfer.
func (m *Metrics) RecordTransfer(receipt *ledger.Receipt, duration time.Duration) {
	m.TransferLatency.Observe(duration.Seconds())
	if receipt == nil || !receipt.Succeeded() {
		m.TransfersTotal.WithLabelValues(ledger.StatusReverted.String()).Inc()
		return
	}
	m.TransfersTotal.WithLabelValues(receipt.Status.String()).Inc()
	m.CascadeLegs.Observe(float64(len(receipt.Legs)))
	m.CascadeDepth.Observe(float64(receipt.MaxDepth()))
}

// RecordBatch records a batch processing event.
func (m *Metrics) RecordBatch(size int, duration time.Duration) {
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
	m.BatchLatency.Observe(duration.Seconds())
}

// MetricsServer runs an HTTP server exposing /metrics and /health.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// NewMetricsServer creates a metrics server on addr serving gatherer.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *MetricsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(lis)
}

// StartAsync binds the listen address and serves in a goroutine. Bind
// errors are returned to the caller.
func (s *MetricsServer) StartAsync() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	go func() {
		_ = s.serve(lis)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *MetricsServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *MetricsServer) listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	return lis, nil
}

func (s *MetricsServer) serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
