// Package nonce tracks per-chain transaction nonces so concurrent
// submissions on the same wallet never collide.
package nonce

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// ChainReader is the subset of ChainProvider the nonce manager needs.
// Declared here to avoid pkg/nonce importing pkg/chain.
type ChainReader interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID() uint64
}

type chainState struct {
	mu        sync.Mutex
	current   uint64
	confirmed uint64
	pending   map[uint64]string // nonce -> tx hash
}

// Manager allocates and reconciles nonces for one wallet address across
// every configured chain.
type Manager struct {
	walletAddress common.Address

	mu     sync.RWMutex
	chains map[uint64]*chainState

	logger *log.Logger
}

// New creates a nonce manager for walletAddress.
func New(walletAddress common.Address) *Manager {
	return &Manager{
		walletAddress: walletAddress,
		chains:        make(map[uint64]*chainState),
		logger:        log.New(os.Stderr, "[NonceManager] ", log.LstdFlags),
	}
}

// InitChain seeds chain state from the wallet's current on-chain nonce.
func (m *Manager) InitChain(ctx context.Context, chainID uint64, provider ChainReader) error {
	onChain, err := m.fetchNonce(ctx, provider)
	if err != nil {
		return err
	}

	state := &chainState{
		current:   onChain,
		confirmed: saturatingSub(onChain, 1),
		pending:   make(map[uint64]string),
	}

	m.mu.Lock()
	m.chains[chainID] = state
	m.mu.Unlock()

	m.logger.Printf("initialized nonce for chain %d: %d", chainID, onChain)
	return nil
}

func (m *Manager) get(chainID uint64) (*chainState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.chains[chainID]
	if !ok {
		return nil, relayererr.Nonce(chainID, "chain not initialized")
	}
	return state, nil
}

// GetNonce allocates the next nonce for chainID.
func (m *Manager) GetNonce(chainID uint64) (uint64, error) {
	state, err := m.get(chainID)
	if err != nil {
		return 0, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	allocated := state.current
	state.current++

	m.logger.Printf("allocated nonce %d for chain %d", allocated, chainID)
	return allocated, nil
}

// MarkPending records that nonce was used by txHash.
func (m *Manager) MarkPending(chainID uint64, n uint64, txHash string) error {
	state, err := m.get(chainID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.pending[n] = txHash
	return nil
}

// ConfirmNonce marks nonce as mined, advancing confirmed if needed.
func (m *Manager) ConfirmNonce(chainID uint64, n uint64) error {
	state, err := m.get(chainID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.pending, n)
	if n > state.confirmed {
		state.confirmed = n
	}
	return nil
}

// ReleaseNonce frees nonce for reuse after its transaction failed to send.
// If it was the most recently allocated nonce, current rewinds to reuse it.
func (m *Manager) ReleaseNonce(chainID uint64, n uint64) error {
	state, err := m.get(chainID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.pending, n)
	if state.current > 0 && n == state.current-1 {
		state.current = n
	}
	return nil
}

// Sync reconciles local nonce state with the chain, detecting gaps and
// clearing confirmed pending entries.
func (m *Manager) Sync(ctx context.Context, chainID uint64, provider ChainReader) error {
	onChain, err := m.fetchNonce(ctx, provider)
	if err != nil {
		return err
	}

	state, err := m.get(chainID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if onChain > state.confirmed+1 {
		m.logger.Printf("nonce gap detected on chain %d: expected %d, got %d", chainID, state.confirmed+1, onChain)
	}

	for n := range state.pending {
		if n < onChain {
			delete(state.pending, n)
		}
	}

	state.confirmed = saturatingSub(onChain, 1)
	if state.current < onChain {
		state.current = onChain
	}

	return nil
}

// StuckTransaction is a pending nonce reported by GetStuckTransactions,
// with the hash of the transaction that used it.
type StuckTransaction struct {
	Nonce  uint64
	TxHash string
}

// GetStuckTransactions returns the pending nonces that are at most
// maxPendingNonces above the last confirmed nonce, i.e. the oldest nonces
// still unconfirmed. Pending nonces further above are not returned.
func (m *Manager) GetStuckTransactions(chainID uint64, maxPendingNonces uint64) ([]StuckTransaction, error) {
	state, err := m.get(chainID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	var stuck []StuckTransaction
	threshold := state.confirmed + maxPendingNonces
	for n, txHash := range state.pending {
		if n <= threshold {
			stuck = append(stuck, StuckTransaction{Nonce: n, TxHash: txHash})
		}
	}
	return stuck, nil
}

// PendingCount returns the number of nonces currently in flight for
// chainID.
func (m *Manager) PendingCount(chainID uint64) int {
	state, err := m.get(chainID)
	if err != nil {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.pending)
}

func (m *Manager) fetchNonce(ctx context.Context, provider ChainReader) (uint64, error) {
	n, err := provider.NonceAt(ctx, m.walletAddress)
	if err != nil {
		return 0, relayererr.Nonce(provider.ChainID(), err.Error())
	}
	return n, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
