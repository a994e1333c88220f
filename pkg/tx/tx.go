// Package tx builds, signs, and submits resolve_dependency transactions,
// with retry and stuck-transaction speed-up handling.
package tx

import (
	"context"
	"crypto/ecdsa"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certenio/xchain-relayer/pkg/chain"
	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/dependency"
	"github.com/certenio/xchain-relayer/pkg/events"
	"github.com/certenio/xchain-relayer/pkg/gas"
	"github.com/certenio/xchain-relayer/pkg/nonce"
	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// sendTimeout bounds how long a single raw-transaction submission may
// block before it's treated as a timeout.
const sendTimeout = 30 * time.Second

// Store is the subset of StateStore the sender needs.
type Store interface {
	RecordSubmission(ctx context.Context, txID [32]byte, chainID uint64, ethTxHash string) error
}

// retryProvider is the subset of ChainProvider the retry loop needs: it
// broadcasts the signed transaction and, on a nonce error, resyncs local
// nonce state from the chain. Declared here, rather than taking *chain.Provider
// directly, so sendWithRetry can be exercised with a fake in tests.
type retryProvider interface {
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID() uint64
}

// Sender builds, signs, and submits resolve_dependency transactions
// against the configured coordinator contracts.
type Sender struct {
	manager  *chain.Manager
	store    Store
	nonces   *nonce.Manager
	gas      *gas.Estimator
	settings *config.RelayerConfig

	privateKey *ecdsa.PrivateKey
	address    common.Address

	logger *log.Logger
}

// LoadWallet loads a signing key from the environment variable named by
// privateKeyEnv (defaulting to RELAYER_PRIVATE_KEY).
func LoadWallet(privateKeyEnv string) (*ecdsa.PrivateKey, common.Address, error) {
	if privateKeyEnv == "" {
		privateKeyEnv = "RELAYER_PRIVATE_KEY"
	}
	raw := os.Getenv(privateKeyEnv)
	if raw == "" {
		return nil, common.Address{}, relayererr.New(relayererr.KindWallet, "no wallet configured: set "+privateKeyEnv)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, common.Address{}, relayererr.Wrap(relayererr.KindWallet, "invalid private key", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	return key, address, nil
}

// NewSender creates a transaction sender backed by manager and store,
// initializing nonce state for every connected chain.
func NewSender(ctx context.Context, manager *chain.Manager, store Store, relayerCfg *config.RelayerConfig, privateKeyEnv string) (*Sender, error) {
	key, address, err := LoadWallet(privateKeyEnv)
	if err != nil {
		return nil, err
	}

	s := &Sender{
		manager:    manager,
		store:      store,
		nonces:     nonce.New(address),
		gas:        gas.New(),
		settings:   relayerCfg,
		privateKey: key,
		address:    address,
		logger:     log.New(os.Stderr, "[TransactionSender] ", log.LstdFlags),
	}

	for _, chainID := range manager.ConnectedChains() {
		provider, err := manager.Provider(chainID)
		if err != nil {
			continue
		}
		if err := s.nonces.InitChain(ctx, chainID, provider); err != nil {
			s.logger.Printf("failed to init nonce for chain %d: %v", chainID, err)
		}
	}

	s.logger.Printf("transaction sender initialized with wallet %s", address.Hex())
	return s, nil
}

// WalletAddress returns the sender's signing address.
func (s *Sender) WalletAddress() common.Address {
	return s.address
}

// GetBalance returns the wallet's native-token balance on chainID.
func (s *Sender) GetBalance(ctx context.Context, chainID uint64) (*big.Int, error) {
	provider, err := s.manager.Provider(chainID)
	if err != nil {
		return nil, err
	}
	return provider.BalanceAt(ctx, s.address)
}

// SubmitResolve builds, signs, and sends a resolve_dependency call for
// pendingTx on its target chain, recording the submission once sent.
func (s *Sender) SubmitResolve(ctx context.Context, pendingTx dependency.PendingTransaction) (common.Hash, error) {
	chainID := pendingTx.TargetChain
	provider, err := s.manager.Provider(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	allocatedNonce, err := s.nonces.GetNonce(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit := s.gas.EstimateResolveGas()
	gasPrice, err := s.gas.GetGasPrice(ctx, provider)
	if err != nil {
		s.nonces.ReleaseNonce(chainID, allocatedNonce)
		return common.Hash{}, err
	}

	signed, err := s.sendWithRetry(ctx, provider, chainID, provider.CoordinatorAddress(), pendingTx.TxID, allocatedNonce, gasLimit, gasPrice)
	if err != nil {
		return common.Hash{}, err
	}

	s.nonces.MarkPending(chainID, allocatedNonce, signed.Hex())
	if err := s.store.RecordSubmission(ctx, pendingTx.TxID, chainID, signed.Hex()); err != nil {
		s.logger.Printf("chain %d: failed to record submission for tx %x: %v", chainID, pendingTx.TxID, err)
	}

	return signed, nil
}

// buildResolveTx encodes a resolve_dependency(bytes32) call against the
// chain's coordinator contract.
func buildResolveTx(coordinatorAddress string, chainID uint64, txID [32]byte, n uint64, gasLimit *big.Int, price chain.GasPrice) (*types.Transaction, error) {
	to := common.HexToAddress(coordinatorAddress)

	data := make([]byte, 0, 4+32)
	data = append(data, events.ResolveDependencySelector[:]...)
	data = append(data, txID[:]...)

	chainIDBig := new(big.Int).SetUint64(chainID)

	if price.Kind == chain.GasPriceEIP1559Kind {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainIDBig,
			Nonce:     n,
			GasTipCap: price.MaxPriorityFeePerGas,
			GasFeeCap: price.MaxFeePerGas,
			Gas:       gasLimit.Uint64(),
			To:        &to,
			Data:      data,
		}), nil
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    n,
		GasPrice: price.LegacyPrice,
		Gas:      gasLimit.Uint64(),
		To:       &to,
		Data:     data,
	}), nil
}

// sendWithRetry builds, signs, and sends a resolve_dependency call,
// making at most MaxRetries attempts in all (one when MaxRetries is 0) and
// classifying
// common RPC error strings. A "replacement transaction underpriced" error
// bumps price by gas.DefaultSpeedUpFactor and rebuilds before the next
// attempt, per the relayer's speed-up policy.
func (s *Sender) sendWithRetry(ctx context.Context, provider retryProvider, chainID uint64, coordinatorAddress string, txID [32]byte, n uint64, gasLimit *big.Int, price chain.GasPrice) (common.Hash, error) {
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(chainID))

	var lastErr error
	maxAttempts := s.settings.MaxRetries
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	for attempt := uint32(1); attempt <= maxAttempts; attempt++ {
		unsigned, err := buildResolveTx(coordinatorAddress, chainID, txID, n, gasLimit, price)
		if err != nil {
			s.nonces.ReleaseNonce(chainID, n)
			return common.Hash{}, err
		}

		signed, err := types.SignTx(unsigned, signer, s.privateKey)
		if err != nil {
			lastErr = relayererr.Wrap(relayererr.KindWallet, "failed to sign transaction", err)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = provider.SendRawTransaction(sendCtx, signed)
		cancel()

		if err == nil {
			s.logger.Printf("chain %d: transaction sent %s (attempt %d/%d)", chainID, signed.Hash().Hex(), attempt, maxAttempts)
			return signed.Hash(), nil
		}

		msg := err.Error()
		switch {
		case strings.Contains(msg, "nonce too low"):
			s.logger.Printf("chain %d: nonce too low, resyncing", chainID)
			s.nonces.Sync(ctx, chainID, provider)
			return common.Hash{}, relayererr.Nonce(chainID, "nonce too low")
		case strings.Contains(msg, "replacement transaction underpriced"):
			price = s.gas.SpeedUpGasPrice(price, gas.DefaultSpeedUpFactor)
			s.logger.Printf("chain %d: transaction underpriced, retrying with bumped gas price", chainID)
			lastErr = relayererr.New(relayererr.KindTransaction, msg)
		case strings.Contains(msg, "insufficient funds"):
			return common.Hash{}, relayererr.InsufficientBalance(chainID, "unknown", "unknown")
		default:
			lastErr = relayererr.New(relayererr.KindTransaction, msg)
		}

		if attempt < maxAttempts {
			time.Sleep(time.Duration(s.settings.RetryDelayMs) * time.Millisecond)
		}
	}

	s.nonces.ReleaseNonce(chainID, n)

	if lastErr == nil {
		lastErr = relayererr.New(relayererr.KindTransaction, "unknown error")
	}
	return common.Hash{}, lastErr
}

// SpeedUp rebuilds and resends a stuck transaction at a higher gas price.
func (s *Sender) SpeedUp(ctx context.Context, chainID uint64, n uint64, txID [32]byte) (common.Hash, error) {
	provider, err := s.manager.Provider(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	current, err := s.gas.GetGasPrice(ctx, provider)
	if err != nil {
		return common.Hash{}, err
	}
	bumped := s.gas.SpeedUpGasPrice(current, gas.DefaultSpeedUpFactor)
	gasLimit := s.gas.EstimateResolveGas()

	s.logger.Printf("chain %d: speeding up stuck transaction at nonce %d", chainID, n)
	return s.sendWithRetry(ctx, provider, chainID, provider.CoordinatorAddress(), txID, n, gasLimit, bumped)
}
