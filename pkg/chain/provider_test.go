package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestEip1559FeesDerivesCapAndPriorityFromBaseFee(t *testing.T) {
	header := &types.Header{BaseFee: big.NewInt(10_000_000_000)} // 10 gwei

	maxFee, priorityFee, err := eip1559Fees(header, 1000)
	if err != nil {
		t.Fatalf("eip1559Fees() error: %v", err)
	}

	wantPriority := big.NewInt(2_000_000_000)
	if priorityFee.Cmp(wantPriority) != 0 {
		t.Fatalf("expected priority fee %s, got %s", wantPriority, priorityFee)
	}

	wantMaxFee := new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), wantPriority)
	if maxFee.Cmp(wantMaxFee) != 0 {
		t.Fatalf("expected max fee %s, got %s", wantMaxFee, maxFee)
	}
}

func TestEip1559FeesClampsToMaxGasPriceGwei(t *testing.T) {
	header := &types.Header{BaseFee: big.NewInt(500_000_000_000)} // 500 gwei, would push uncapped fee past the ceiling

	maxFee, _, err := eip1559Fees(header, 100) // ceiling: 100 gwei
	if err != nil {
		t.Fatalf("eip1559Fees() error: %v", err)
	}

	ceiling := big.NewInt(100_000_000_000)
	if maxFee.Cmp(ceiling) != 0 {
		t.Fatalf("expected max fee clamped to %s, got %s", ceiling, maxFee)
	}
}

func TestEip1559FeesErrorsWithoutBaseFee(t *testing.T) {
	header := &types.Header{}

	if _, _, err := eip1559Fees(header, 100); err == nil {
		t.Fatal("expected error for header with nil base fee")
	}
}
