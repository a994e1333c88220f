// Package gas estimates gas limits and buffers gas prices for dependency
// resolution transactions.
package gas

import (
	"context"
	"math/big"

	"github.com/certenio/xchain-relayer/pkg/chain"
)

// baseResolveGas is the approximate gas cost of a resolve_dependency call
// before buffering.
var baseResolveGas = big.NewInt(100_000)

const (
	gasLimitBufferPercent = 20
	gasPriceBufferPercent = 10
	speedUpFactorPercent  = 125
)

// Provider is the subset of ChainProvider the estimator needs.
type Provider interface {
	GasPrice(ctx context.Context) (chain.GasPrice, error)
}

// Estimator computes buffered gas limits and prices for transaction
// submission.
type Estimator struct{}

// New creates a gas estimator.
func New() *Estimator {
	return &Estimator{}
}

// EstimateResolveGas returns the buffered gas limit for a
// resolve_dependency call.
func (e *Estimator) EstimateResolveGas() *big.Int {
	return withPercentBuffer(baseResolveGas, gasLimitBufferPercent)
}

// GetGasPrice fetches the chain's current gas price and applies the
// configured safety buffer.
func (e *Estimator) GetGasPrice(ctx context.Context, provider Provider) (chain.GasPrice, error) {
	price, err := provider.GasPrice(ctx)
	if err != nil {
		return chain.GasPrice{}, err
	}
	return bufferGasPrice(price, gasPriceBufferPercent), nil
}

// SpeedUpGasPrice scales current by factorPercent (e.g. 125 for a 25%
// bump), for replacing a stuck transaction.
func (e *Estimator) SpeedUpGasPrice(current chain.GasPrice, factorPercent int64) chain.GasPrice {
	factor := big.NewInt(factorPercent)
	switch current.Kind {
	case chain.GasPriceEIP1559Kind:
		return chain.GasPrice{
			Kind:                 chain.GasPriceEIP1559Kind,
			MaxFeePerGas:         scaleByPercent(current.MaxFeePerGas, factor),
			MaxPriorityFeePerGas: scaleByPercent(current.MaxPriorityFeePerGas, factor),
		}
	default:
		return chain.GasPrice{
			Kind:        chain.GasPriceLegacyKind,
			LegacyPrice: scaleByPercent(current.LegacyPrice, factor),
		}
	}
}

// DefaultSpeedUpFactor is the standard replacement bump (25% above
// current).
const DefaultSpeedUpFactor = speedUpFactorPercent

// CalculateCost returns gasLimit * effective gas price, in wei.
func CalculateCost(gasLimit *big.Int, price chain.GasPrice) *big.Int {
	effective := price.LegacyPrice
	if price.Kind == chain.GasPriceEIP1559Kind {
		effective = price.MaxFeePerGas
	}
	return new(big.Int).Mul(gasLimit, effective)
}

func bufferGasPrice(price chain.GasPrice, bufferPercent int64) chain.GasPrice {
	switch price.Kind {
	case chain.GasPriceEIP1559Kind:
		return chain.GasPrice{
			Kind:                 chain.GasPriceEIP1559Kind,
			MaxFeePerGas:         withPercentBuffer(price.MaxFeePerGas, bufferPercent),
			MaxPriorityFeePerGas: withPercentBuffer(price.MaxPriorityFeePerGas, bufferPercent),
		}
	default:
		return chain.GasPrice{
			Kind:        chain.GasPriceLegacyKind,
			LegacyPrice: withPercentBuffer(price.LegacyPrice, bufferPercent),
		}
	}
}

func withPercentBuffer(value *big.Int, percent int64) *big.Int {
	buffer := new(big.Int).Div(new(big.Int).Mul(value, big.NewInt(percent)), big.NewInt(100))
	return new(big.Int).Add(value, buffer)
}

func scaleByPercent(value *big.Int, percent *big.Int) *big.Int {
	return new(big.Int).Div(new(big.Int).Mul(value, percent), big.NewInt(100))
}
