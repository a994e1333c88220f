// Package metrics exposes Prometheus counters, gauges, and histograms for
// chain connectivity, event throughput, transaction lifecycle, and wallet
// health, served over an HTTP /metrics endpoint.
package metrics

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_chain_connected",
		Help: "Chain connection status (1=connected, 0=disconnected)",
	}, []string{"chain_id"})

	ChainBlockHeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_chain_block_height",
		Help: "Current block height per chain",
	}, []string{"chain_id"})

	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_events_received_total",
		Help: "Total events received by type",
	}, []string{"chain_id", "event_type"})

	TransactionsBuffered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_transactions_buffered_total",
		Help: "Total transactions buffered",
	}, []string{"chain_id"})

	TransactionsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_transactions_submitted_total",
		Help: "Total transactions submitted",
	}, []string{"chain_id"})

	TransactionsFinalized = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_transactions_finalized_total",
		Help: "Total transactions finalized",
	}, []string{"chain_id"})

	TransactionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_transactions_failed_total",
		Help: "Total transactions failed",
	}, []string{"chain_id"})

	TransactionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relayer_transaction_latency_seconds",
		Help:    "Transaction processing latency",
		Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
	}, []string{"chain_id"})

	SwapFills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_swap_fills_total",
		Help: "Total swap fills processed",
	}, []string{"chain_id"})

	ContractPaused = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_contract_paused",
		Help: "Contract pause status (1=paused, 0=active)",
	}, []string{"chain_id"})

	CircuitBreakerTriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_circuit_breaker_triggers_total",
		Help: "Total circuit breaker triggers",
	}, []string{"chain_id"})

	WalletBalanceEth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_wallet_balance_eth",
		Help: "Wallet balance in ETH",
	}, []string{"chain_id"})

	HealthCheckSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_health_check_success_total",
		Help: "Total successful health checks",
	})

	HealthCheckFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relayer_health_check_failure_total",
		Help: "Total failed health checks",
	})
)

func init() {
	prometheus.MustRegister(
		ChainConnected,
		ChainBlockHeight,
		EventsReceived,
		TransactionsBuffered,
		TransactionsSubmitted,
		TransactionsFinalized,
		TransactionsFailed,
		TransactionLatency,
		SwapFills,
		ContractPaused,
		CircuitBreakerTriggers,
		WalletBalanceEth,
		HealthCheckSuccess,
		HealthCheckFailure,
	)
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}

// RecordChainHealth sets the connectivity gauge for chainID.
func RecordChainHealth(chainID uint64, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	ChainConnected.WithLabelValues(chainLabel(chainID)).Set(value)
}

// RecordBlockHeight sets the current block height gauge for chainID.
func RecordBlockHeight(chainID uint64, blockNumber uint64) {
	ChainBlockHeight.WithLabelValues(chainLabel(chainID)).Set(float64(blockNumber))
}

// RecordEvent increments the received-event counter for chainID/eventType.
func RecordEvent(chainID uint64, eventType string) {
	EventsReceived.WithLabelValues(chainLabel(chainID), eventType).Inc()
}

// RecordTransactionBuffered increments the buffered-transaction counter.
func RecordTransactionBuffered(chainID uint64) {
	TransactionsBuffered.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordTransactionSubmitted increments the submitted-transaction counter.
func RecordTransactionSubmitted(chainID uint64) {
	TransactionsSubmitted.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordTransactionFinalized increments the finalized-transaction counter.
func RecordTransactionFinalized(chainID uint64) {
	TransactionsFinalized.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordTransactionFailed increments the failed-transaction counter.
func RecordTransactionFailed(chainID uint64) {
	TransactionsFailed.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordTransactionLatency observes a completed transaction's end-to-end
// latency for chainID.
func RecordTransactionLatency(chainID uint64, latency time.Duration) {
	TransactionLatency.WithLabelValues(chainLabel(chainID)).Observe(latency.Seconds())
}

// RecordSwapFill increments the swap-fill counter for chainID.
func RecordSwapFill(chainID uint64) {
	SwapFills.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordContractPaused sets the pause gauge for chainID.
func RecordContractPaused(chainID uint64, paused bool) {
	value := 0.0
	if paused {
		value = 1.0
	}
	ContractPaused.WithLabelValues(chainLabel(chainID)).Set(value)
}

// RecordCircuitBreaker increments the circuit-breaker counter for chainID.
func RecordCircuitBreaker(chainID uint64) {
	CircuitBreakerTriggers.WithLabelValues(chainLabel(chainID)).Inc()
}

// RecordWalletBalance sets the wallet balance gauge for chainID.
func RecordWalletBalance(chainID uint64, balanceEth float64) {
	WalletBalanceEth.WithLabelValues(chainLabel(chainID)).Set(balanceEth)
}

// RecordHealthCheck increments the appropriate health-check counter.
func RecordHealthCheck(ok bool) {
	if ok {
		HealthCheckSuccess.Inc()
	} else {
		HealthCheckFailure.Inc()
	}
}

// Server serves the /metrics endpoint for Prometheus scraping.
type Server struct {
	addr   string
	server *http.Server
	logger *log.Logger
}

// NewServer creates a metrics server listening on the given port.
func NewServer(port uint16) *Server {
	addr := ":" + strconv.Itoa(int(port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux},
		logger: log.New(os.Stderr, "[MetricsServer] ", log.LstdFlags),
	}
}

// Run starts the metrics HTTP server, blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("starting metrics server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
