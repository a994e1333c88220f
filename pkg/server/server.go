// Package server exposes the relayer's admin HTTP API: liveness, readiness,
// status, connected chains, and transaction statistics.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/store"
)

// version is reported by /health and /status.
const version = "0.1.0"

// chainSet is the subset of pkg/chain.Manager the admin API needs.
type chainSet interface {
	ConnectedChains() []uint64
	HealthCheck(ctx context.Context) map[uint64]bool
}

// stateStore is the subset of pkg/store.StateStore the admin API needs.
type stateStore interface {
	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context) (store.TransactionStats, error)
}

// Server serves the admin HTTP API.
type Server struct {
	addr    string
	server  *http.Server
	chains  chainSet
	store   stateStore
	startAt time.Time
	logger  *log.Logger
}

// New creates an admin API server bound to cfg.Host:cfg.Port.
func New(cfg config.APIConfig, chains chainSet, store stateStore) *Server {
	s := &Server{
		addr:    cfg.Host + ":" + strconv.Itoa(int(cfg.Port)),
		chains:  chains,
		store:   store,
		startAt: time.Now(),
		logger:  log.New(os.Stderr, "[AdminServer] ", log.LstdFlags),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/chains", s.handleChains)
	mux.HandleFunc("/stats", s.handleStats)

	s.server = &http.Server{Addr: s.addr, Handler: mux}
	return s
}

// Run starts the admin HTTP server, blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("starting admin API server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version})
}

type chainHealth struct {
	ChainID uint64 `json:"chain_id"`
	Healthy bool   `json:"healthy"`
}

type readinessResponse struct {
	Ready    bool          `json:"ready"`
	Database bool          `json:"database"`
	Chains   bool          `json:"chains"`
	Details  []chainHealth `json:"details"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.HealthCheck(r.Context()) == nil

	health := s.chains.HealthCheck(r.Context())
	chainsOK := true
	details := make([]chainHealth, 0, len(health))
	for id, healthy := range health {
		details = append(details, chainHealth{ChainID: id, Healthy: healthy})
		if !healthy {
			chainsOK = false
		}
	}

	status := http.StatusOK
	if !dbOK || !chainsOK {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, readinessResponse{
		Ready:    dbOK && chainsOK,
		Database: dbOK,
		Chains:   chainsOK,
		Details:  details,
	})
}

type statusResponse struct {
	Version         string        `json:"version"`
	UptimeSeconds   int64         `json:"uptime_seconds"`
	ConnectedChains []uint64      `json:"connected_chains"`
	ChainStatus     []chainHealth `json:"chain_status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	health := s.chains.HealthCheck(r.Context())
	details := make([]chainHealth, 0, len(health))
	for id, healthy := range health {
		details = append(details, chainHealth{ChainID: id, Healthy: healthy})
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Version:         version,
		UptimeSeconds:   int64(time.Since(s.startAt).Seconds()),
		ConnectedChains: s.chains.ConnectedChains(),
		ChainStatus:     details,
	})
}

type chainsResponse struct {
	Chains []uint64 `json:"chains"`
}

func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chainsResponse{Chains: s.chains.ConnectedChains()})
}

type statsResponse struct {
	Buffered  int `json:"buffered"`
	Ready     int `json:"ready"`
	Submitted int `json:"submitted"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Printf("failed to load stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, statsResponse{})
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Buffered:  stats.Buffered,
		Ready:     stats.Ready,
		Submitted: stats.Submitted,
		Finalized: stats.Finalized,
		Failed:    stats.Failed,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
