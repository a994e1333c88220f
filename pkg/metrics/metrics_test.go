package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordChainHealthSetsGauge(t *testing.T) {
	RecordChainHealth(777, true)
	got := testutil.ToFloat64(ChainConnected.WithLabelValues("777"))
	if got != 1.0 {
		t.Fatalf("expected gauge 1.0, got %f", got)
	}

	RecordChainHealth(777, false)
	got = testutil.ToFloat64(ChainConnected.WithLabelValues("777"))
	if got != 0.0 {
		t.Fatalf("expected gauge 0.0, got %f", got)
	}
}

func TestRecordTransactionBufferedIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(TransactionsBuffered.WithLabelValues("778"))
	RecordTransactionBuffered(778)
	after := testutil.ToFloat64(TransactionsBuffered.WithLabelValues("778"))
	if after != before+1 {
		t.Fatalf("expected counter incremented by 1, got %f -> %f", before, after)
	}
}

func TestRecordHealthCheckRoutesSuccessAndFailure(t *testing.T) {
	beforeSuccess := testutil.ToFloat64(HealthCheckSuccess)
	beforeFailure := testutil.ToFloat64(HealthCheckFailure)

	RecordHealthCheck(true)
	RecordHealthCheck(false)

	if testutil.ToFloat64(HealthCheckSuccess) != beforeSuccess+1 {
		t.Fatal("expected success counter incremented")
	}
	if testutil.ToFloat64(HealthCheckFailure) != beforeFailure+1 {
		t.Fatal("expected failure counter incremented")
	}
}
