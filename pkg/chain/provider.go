// Package chain wraps per-chain RPC connectivity (ChainProvider) and owns
// the set of configured chains, their listeners, and the shared event bus
// (ChainManager).
package chain

import (
	"context"
	"log"
	"math/big"
	"os"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// GasPriceKind distinguishes a legacy single gas price from an EIP-1559 fee
// pair, mirroring the upstream GasPrice enum.
type GasPriceKind int

const (
	GasPriceLegacyKind GasPriceKind = iota
	GasPriceEIP1559Kind
)

// GasPrice is either a legacy gas price or an EIP-1559 fee pair, never both.
type GasPrice struct {
	Kind                 GasPriceKind
	LegacyPrice          *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Provider wraps one or more JSON-RPC endpoints for a single chain, with
// round-robin failover on RPC errors.
type Provider struct {
	cfg     config.ChainConfig
	clients []*ethclient.Client

	currentIndex atomic.Int64
	lastBlock    atomic.Uint64

	logger *log.Logger
}

// NewProvider dials every configured RPC URL for cfg. At least one must
// succeed or an error is returned.
func NewProvider(ctx context.Context, cfg config.ChainConfig) (*Provider, error) {
	logger := log.New(os.Stderr, "[ChainProvider] ", log.LstdFlags)

	var clients []*ethclient.Client
	for _, url := range cfg.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			logger.Printf("chain %d: failed to dial rpc endpoint %s: %v", cfg.ChainID, url, err)
			continue
		}
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, relayererr.ChainConnection(cfg.ChainID, "no valid RPC providers")
	}

	p := &Provider{cfg: cfg, clients: clients, logger: logger}

	if block, err := clients[0].BlockNumber(ctx); err == nil {
		p.lastBlock.Store(block)
	}

	return p, nil
}

func (p *Provider) active() *ethclient.Client {
	idx := p.currentIndex.Load()
	return p.clients[int(idx)%len(p.clients)]
}

// Failover advances to the next configured RPC endpoint.
func (p *Provider) Failover() {
	next := (p.currentIndex.Load() + 1) % int64(len(p.clients))
	p.currentIndex.Store(next)
	p.logger.Printf("chain %d: failover to provider %d", p.cfg.ChainID, next)
}

// ChainID returns the configured chain ID.
func (p *Provider) ChainID() uint64 { return p.cfg.ChainID }

// ContractAddress returns the configured TesseractBuffer contract address.
func (p *Provider) ContractAddress() string { return p.cfg.ContractAddress }

// CoordinatorAddress returns the configured AtomicSwapCoordinator address.
func (p *Provider) CoordinatorAddress() string { return p.cfg.CoordinatorAddress }

// ConfirmationBlocks returns the configured confirmation depth for this chain.
func (p *Provider) ConfirmationBlocks() uint64 { return p.cfg.ConfirmationBlocks }

// BlockNumber returns the current block height, retrying across every
// configured endpoint before giving up.
func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	for i := 0; i < len(p.clients); i++ {
		block, err := p.active().BlockNumber(ctx)
		if err == nil {
			p.lastBlock.Store(block)
			return block, nil
		}
		p.logger.Printf("chain %d: failed to get block number: %v", p.cfg.ChainID, err)
		p.Failover()
	}
	return 0, relayererr.ChainConnection(p.cfg.ChainID, "all providers failed")
}

// TransactionReceipt fetches a receipt, or (nil, nil) if not yet mined.
func (p *Provider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := p.active().TransactionReceipt(ctx, txHash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, relayererr.ChainConnection(p.cfg.ChainID, err.Error())
	}
	return receipt, nil
}

// FilterLogs fetches logs matching query, retrying across every endpoint.
func (p *Provider) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	for i := 0; i < len(p.clients); i++ {
		logs, err := p.active().FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}
		p.logger.Printf("chain %d: failed to get logs: %v", p.cfg.ChainID, err)
		p.Failover()
	}
	return nil, relayererr.ChainConnection(p.cfg.ChainID, "all providers failed to get logs")
}

// EstimateGas estimates the gas limit for a call.
func (p *Provider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := p.active().EstimateGas(ctx, msg)
	if err != nil {
		return 0, relayererr.Wrap(relayererr.KindGasEstimation, err.Error(), err)
	}
	return gas, nil
}

// NonceAt returns the next usable account nonce, including pending
// transactions.
func (p *Provider) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := p.active().PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, relayererr.Nonce(p.cfg.ChainID, err.Error())
	}
	return nonce, nil
}

// BalanceAt returns the account balance at the latest block.
func (p *Provider) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := p.active().BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, relayererr.ChainConnection(p.cfg.ChainID, err.Error())
	}
	return balance, nil
}

// GasPrice returns the current gas price for this chain, shaped by its
// configured GasPriceStrategy.
func (p *Provider) GasPrice(ctx context.Context) (GasPrice, error) {
	switch p.cfg.GasPriceStrategy {
	case config.GasPriceLegacy, config.GasPriceArbitrum:
		price, err := p.active().SuggestGasPrice(ctx)
		if err != nil {
			return GasPrice{}, relayererr.Wrap(relayererr.KindGasEstimation, err.Error(), err)
		}
		return GasPrice{Kind: GasPriceLegacyKind, LegacyPrice: price}, nil

	case config.GasPriceEIP1559, config.GasPriceOptimism:
		maxFee, priorityFee, err := p.estimateEIP1559Fees(ctx)
		if err != nil {
			return GasPrice{}, err
		}
		return GasPrice{
			Kind:                 GasPriceEIP1559Kind,
			MaxFeePerGas:         maxFee,
			MaxPriorityFeePerGas: priorityFee,
		}, nil

	default:
		price, err := p.active().SuggestGasPrice(ctx)
		if err != nil {
			return GasPrice{}, relayererr.Wrap(relayererr.KindGasEstimation, err.Error(), err)
		}
		return GasPrice{Kind: GasPriceLegacyKind, LegacyPrice: price}, nil
	}
}

func (p *Provider) estimateEIP1559Fees(ctx context.Context) (maxFee, priorityFee *big.Int, err error) {
	header, headerErr := p.active().HeaderByNumber(ctx, nil)
	if headerErr != nil {
		return nil, nil, relayererr.Wrap(relayererr.KindGasEstimation, "no latest block", headerErr)
	}
	return eip1559Fees(header, p.cfg.MaxGasPriceGwei)
}

// eip1559Fees derives a fee cap and priority fee from header's base fee,
// each clamped to maxGasPriceGwei. Kept as a free function, separate from
// estimateEIP1559Fees's RPC call, so the math is testable without dialing a
// node.
func eip1559Fees(header *types.Header, maxGasPriceGwei uint64) (maxFee, priorityFee *big.Int, err error) {
	if header.BaseFee == nil {
		return nil, nil, relayererr.New(relayererr.KindGasEstimation, "no base fee in block")
	}

	priorityFee = big.NewInt(2_000_000_000) // 2 gwei default

	maxFee = new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFee = new(big.Int).Add(maxFee, priorityFee)

	maxGwei := new(big.Int).Mul(new(big.Int).SetUint64(maxGasPriceGwei), big.NewInt(1_000_000_000))
	if maxFee.Cmp(maxGwei) > 0 {
		maxFee = maxGwei
	}
	if priorityFee.Cmp(maxGwei) > 0 {
		priorityFee = maxGwei
	}

	return maxFee, priorityFee, nil
}

// SendRawTransaction broadcasts a signed transaction.
func (p *Provider) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	return p.active().SendTransaction(ctx, tx)
}

// HealthCheck reports whether this chain's RPC endpoints are reachable.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.BlockNumber(ctx)
	if err != nil {
		p.logger.Printf("chain %d: health check failed: %v", p.cfg.ChainID, err)
		return false
	}
	return true
}

// Close releases the underlying RPC connections.
func (p *Provider) Close() {
	for _, c := range p.clients {
		c.Close()
	}
}
