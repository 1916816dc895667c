package api

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/core"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

func TestMetricsCountsBuilderEvents(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.Emit(core.NodeCloned{Kind: core.RoleAggregator})
	m.Emit(core.LayerCreated{Kind: core.RoleDisgregator, Nodes: make([]common.Address, 3)})

	if got := testutil.ToFloat64(m.UnitsCreated.WithLabelValues("aggregator")); got != 1 {
		t.Errorf("Expected 1 aggregator unit, got %v", got)
	}
	if got := testutil.ToFloat64(m.UnitsCreated.WithLabelValues("disgregator")); got != 3 {
		t.Errorf("Expected 3 disgregator units, got %v", got)
	}
	if got := testutil.ToFloat64(m.LayersCreated.WithLabelValues("disgregator")); got != 1 {
		t.Errorf("Expected 1 disgregator layer, got %v", got)
	}
}

func TestMetricsRecordTransfer(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordTransfer(&ledger.Receipt{Status: ledger.StatusSucceeded, Legs: []ledger.Leg{{Amount: big.NewInt(1)}}}, time.Millisecond)
	m.RecordTransfer(nil, time.Millisecond)

	if got := testutil.ToFloat64(m.TransfersTotal.WithLabelValues("succeeded")); got != 1 {
		t.Errorf("Expected 1 succeeded, got %v", got)
	}
	if got := testutil.ToFloat64(m.TransfersTotal.WithLabelValues("reverted")); got != 1 {
		t.Errorf("Expected 1 reverted, got %v", got)
	}
}

func TestMetricsServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("routernet", reg)
	m.RecordBatch(10, time.Millisecond)

	srv := NewMetricsServer("127.0.0.1:0", reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "routernet_batches_total 1") {
		t.Errorf("Missing batches counter in output")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Body.String() != "OK" {
		t.Errorf("Expected OK, got %q", rec.Body.String())
	}
}

func TestMetricsServerStartAsyncReportsBindError(t *testing.T) {
	first := NewMetricsServer("127.0.0.1:0", prometheus.NewRegistry())
	if err := first.StartAsync(); err != nil {
		t.Fatalf("StartAsync failed: %v", err)
	}
	defer first.Stop()

	addr := first.Addr()
	if addr == nil {
		t.Fatal("Expected bound address")
	}

	resp, err := http.Get("http://" + addr.String() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	second := NewMetricsServer(addr.String(), prometheus.NewRegistry())
	if err := second.StartAsync(); err == nil {
		second.Stop()
		t.Error("Expected bind error on a taken port")
	}
}
