// Package finality tracks confirmation depth for submitted transactions on
// a single chain, and detects reorgs that drop a transaction the tracker
// had already counted as finalized.
package finality

import (
	"context"
	"log"
	"os"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// finalizedCacheSize bounds the finalized-result cache. Unlike the
// source's "clear half the map when it gets too big" eviction, a real LRU
// policy evicts the least-recently-used entries first.
const finalizedCacheSize = 10000

// ChainReader is the subset of ChainProvider the tracker needs. Declared
// here (rather than importing pkg/chain) so pkg/chain can depend on
// pkg/finality without a cycle.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Tracker tracks finality for transactions submitted on one chain.
type Tracker struct {
	chainID            uint64
	confirmationBlocks uint64
	provider           ChainReader

	mu      sync.RWMutex
	pending map[common.Hash]uint64 // tx_hash -> block_number first seen

	finalized *lru.Cache[common.Hash, bool]

	logger *log.Logger
}

// NewTracker creates a tracker requiring confirmationBlocks confirmations
// before a transaction on chainID is considered final.
func NewTracker(chainID uint64, confirmationBlocks uint64, provider ChainReader) *Tracker {
	cache, err := lru.New[common.Hash, bool](finalizedCacheSize)
	if err != nil {
		panic("finality: failed to allocate LRU cache: " + err.Error())
	}
	return &Tracker{
		chainID:            chainID,
		confirmationBlocks: confirmationBlocks,
		provider:           provider,
		pending:            make(map[common.Hash]uint64),
		finalized:          cache,
		logger:             log.New(os.Stderr, "[FinalityTracker] ", log.LstdFlags),
	}
}

// Track begins watching txHash, first seen included at blockNumber.
func (t *Tracker) Track(txHash common.Hash, blockNumber uint64) {
	t.mu.Lock()
	t.pending[txHash] = blockNumber
	t.mu.Unlock()
}

// IsFinalized reports whether txHash has accumulated enough confirmations.
// For a tracked transaction that has reached the confirmation depth, the
// receipt is re-fetched to verify it is still included and succeeded (reorg
// protection). If the transaction isn't tracked yet, it looks the receipt
// up directly: it reports true when the receipt is already deep enough
// (without a status check), and otherwise starts tracking it.
func (t *Tracker) IsFinalized(ctx context.Context, txHash common.Hash) (bool, error) {
	if cached, ok := t.finalized.Get(txHash); ok {
		return cached, nil
	}

	currentBlock, err := t.provider.BlockNumber(ctx)
	if err != nil {
		return false, err
	}

	t.mu.RLock()
	txBlock, tracked := t.pending[txHash]
	t.mu.RUnlock()

	if tracked {
		confirmations := saturatingSub(currentBlock, txBlock)
		if confirmations >= t.confirmationBlocks {
			included, err := t.verifyInclusion(ctx, txHash)
			if err != nil {
				return false, err
			}
			if !included {
				t.logger.Printf("chain %d: reorg detected, tx %s no longer included", t.chainID, txHash)
				return false, relayererr.ReorgDetected(t.chainID, "tx no longer included at block "+strconv.FormatUint(txBlock, 10))
			}

			t.finalized.Add(txHash, true)
			t.mu.Lock()
			delete(t.pending, txHash)
			t.mu.Unlock()

			t.logger.Printf("chain %d: tx %s finalized (%d confirmations)", t.chainID, txHash, confirmations)
			return true, nil
		}
		return false, nil
	}

	receipt, err := t.provider.TransactionReceipt(ctx, txHash)
	if err != nil {
		return false, err
	}
	if receipt == nil {
		return false, relayererr.TransactionNotFound(txHash.Hex())
	}

	confirmations := saturatingSub(currentBlock, receipt.BlockNumber.Uint64())
	if confirmations >= t.confirmationBlocks {
		t.finalized.Add(txHash, true)
		return true, nil
	}

	t.Track(txHash, receipt.BlockNumber.Uint64())
	return false, nil
}

func (t *Tracker) verifyInclusion(ctx context.Context, txHash common.Hash) (bool, error) {
	receipt, err := t.provider.TransactionReceipt(ctx, txHash)
	if err != nil {
		return false, err
	}
	if receipt == nil {
		return false, nil
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// PendingCount returns the number of transactions currently being tracked.
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// CheckPending scans every tracked transaction and returns the ones that
// just reached finality.
func (t *Tracker) CheckPending(ctx context.Context) ([]common.Hash, error) {
	currentBlock, err := t.provider.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	snapshot := make(map[common.Hash]uint64, len(t.pending))
	for k, v := range t.pending {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	var newlyFinalized []common.Hash
	for txHash, txBlock := range snapshot {
		if saturatingSub(currentBlock, txBlock) < t.confirmationBlocks {
			continue
		}
		included, err := t.verifyInclusion(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if included {
			newlyFinalized = append(newlyFinalized, txHash)
		}
	}

	t.mu.Lock()
	for _, txHash := range newlyFinalized {
		delete(t.pending, txHash)
	}
	t.mu.Unlock()

	for _, txHash := range newlyFinalized {
		t.finalized.Add(txHash, true)
	}

	return newlyFinalized, nil
}

// CleanupCache is a no-op retained for interface parity with the tracker's
// source contract: eviction is now handled automatically by the bounded LRU
// cache rather than a periodic sweep.
func (t *Tracker) CleanupCache() {}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// RecommendedConfirmations returns a conservative confirmation depth for a
// well-known chain ID, for use when a config entry omits confirmation_blocks.
func RecommendedConfirmations(chainID uint64) uint64 {
	switch chainID {
	case 1: // Ethereum mainnet
		return 32
	case 11155111, 5: // Ethereum testnets (Sepolia, Goerli)
		return 12
	case 137: // Polygon mainnet
		return 128
	case 80001, 80002: // Polygon testnets
		return 32
	case 42161, 421614: // Arbitrum
		return 64
	case 10, 11155420: // Optimism
		return 64
	case 8453, 84532: // Base
		return 64
	case 43114, 43113: // Avalanche (near-instant finality)
		return 1
	default:
		return 64
	}
}
