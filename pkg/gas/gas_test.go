package gas

import (
	"context"
	"math/big"
	"testing"

	"github.com/certenio/xchain-relayer/pkg/chain"
)

type fakeProvider struct {
	price chain.GasPrice
}

func (f *fakeProvider) GasPrice(ctx context.Context) (chain.GasPrice, error) {
	return f.price, nil
}

func TestEstimateResolveGasAppliesBuffer(t *testing.T) {
	e := New()
	got := e.EstimateResolveGas()
	want := big.NewInt(120_000)
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestGetGasPriceBuffersLegacy(t *testing.T) {
	e := New()
	fp := &fakeProvider{price: chain.GasPrice{Kind: chain.GasPriceLegacyKind, LegacyPrice: big.NewInt(1000)}}

	got, err := e.GetGasPrice(context.Background(), fp)
	if err != nil {
		t.Fatalf("GetGasPrice() error: %v", err)
	}
	if got.LegacyPrice.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("expected buffered price 1100, got %s", got.LegacyPrice)
	}
}

func TestGetGasPriceBuffersEIP1559(t *testing.T) {
	e := New()
	fp := &fakeProvider{price: chain.GasPrice{
		Kind:                 chain.GasPriceEIP1559Kind,
		MaxFeePerGas:         big.NewInt(2000),
		MaxPriorityFeePerGas: big.NewInt(200),
	}}

	got, err := e.GetGasPrice(context.Background(), fp)
	if err != nil {
		t.Fatalf("GetGasPrice() error: %v", err)
	}
	if got.MaxFeePerGas.Cmp(big.NewInt(2200)) != 0 {
		t.Fatalf("expected buffered max fee 2200, got %s", got.MaxFeePerGas)
	}
	if got.MaxPriorityFeePerGas.Cmp(big.NewInt(220)) != 0 {
		t.Fatalf("expected buffered priority fee 220, got %s", got.MaxPriorityFeePerGas)
	}
}

func TestSpeedUpGasPriceAppliesFactor(t *testing.T) {
	e := New()
	current := chain.GasPrice{Kind: chain.GasPriceLegacyKind, LegacyPrice: big.NewInt(1000)}

	got := e.SpeedUpGasPrice(current, DefaultSpeedUpFactor)
	if got.LegacyPrice.Cmp(big.NewInt(1250)) != 0 {
		t.Fatalf("expected 1250 after 125%% speed-up, got %s", got.LegacyPrice)
	}
}

func TestCalculateCost(t *testing.T) {
	price := chain.GasPrice{Kind: chain.GasPriceLegacyKind, LegacyPrice: big.NewInt(10)}
	cost := CalculateCost(big.NewInt(21000), price)
	if cost.Cmp(big.NewInt(210000)) != 0 {
		t.Fatalf("expected cost 210000, got %s", cost)
	}
}
