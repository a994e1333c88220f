package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/store"
)

type fakeChains struct {
	connected []uint64
	health    map[uint64]bool
}

func (f *fakeChains) ConnectedChains() []uint64                       { return f.connected }
func (f *fakeChains) HealthCheck(ctx context.Context) map[uint64]bool { return f.health }

type fakeStore struct {
	healthErr error
	stats     store.TransactionStats
	statsErr  error
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeStore) GetStats(ctx context.Context) (store.TransactionStats, error) {
	return f.stats, f.statsErr
}

func newTestServer(chains *fakeChains, st *fakeStore) *Server {
	return New(config.APIConfig{Host: "127.0.0.1", Port: 8090}, chains, st)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestServer(&fakeChains{}, &fakeStore{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
}

func TestHandleReadyReportsServiceUnavailableWhenChainUnhealthy(t *testing.T) {
	chains := &fakeChains{connected: []uint64{1, 2}, health: map[uint64]bool{1: true, 2: false}}
	s := newTestServer(chains, &fakeStore{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	s.handleReady(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body readinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Ready {
		t.Fatal("expected ready=false")
	}
	if len(body.Details) != 2 {
		t.Fatalf("expected 2 chain details, got %d", len(body.Details))
	}
}

func TestHandleReadyReportsOKWhenAllHealthy(t *testing.T) {
	chains := &fakeChains{connected: []uint64{1}, health: map[uint64]bool{1: true}}
	s := newTestServer(chains, &fakeStore{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	s.handleReady(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleChainsReturnsConnectedList(t *testing.T) {
	chains := &fakeChains{connected: []uint64{10, 20}}
	s := newTestServer(chains, &fakeStore{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chains", nil)

	s.handleChains(rec, req)

	var body chainsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(body.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(body.Chains))
	}
}

func TestHandleStatsReturnsStoreStats(t *testing.T) {
	st := &fakeStore{stats: store.TransactionStats{Buffered: 3, Ready: 1, Submitted: 2, Finalized: 5, Failed: 1}}
	s := newTestServer(&fakeChains{}, st)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Buffered != 3 || body.Finalized != 5 {
		t.Fatalf("unexpected stats body: %+v", body)
	}
}

func TestHandleStatsReturnsInternalErrorOnStoreFailure(t *testing.T) {
	st := &fakeStore{statsErr: context.DeadlineExceeded}
	s := newTestServer(&fakeChains{}, st)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	s.handleStats(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
