// Package dependency tracks cross-chain transaction dependencies: which
// transactions are waiting on which, and which transactions belong to the
// same atomic swap group.
package dependency

import (
	"sync"
	"time"
)

// State is a transaction's position in the buffered-to-finalized lifecycle.
type State string

const (
	StateBuffered          State = "buffered"
	StateDependencyPending State = "dependency_pending"
	StateReady             State = "ready"
	StateSubmitted         State = "submitted"
	StateFinalized         State = "finalized"
	StateFailed            State = "failed"
	StateExpired           State = "expired"
)

// PendingTransaction is a single cross-chain transaction tracked by the
// dependency graph.
type PendingTransaction struct {
	TxID         [32]byte
	OriginChain  uint64
	TargetChain  uint64
	DependencyID *[32]byte
	SwapGroupID  *[32]byte
	State        State
	CreatedAt    int64 // unix seconds
}

// Graph tracks transactions, their dependency edges, and swap-group
// membership. Each of the three maps is guarded by its own mutex; per
// spec, no operation holds more than one at a time.
type Graph struct {
	txMu sync.RWMutex
	txs  map[[32]byte]PendingTransaction

	depMu sync.RWMutex
	// dependents[depID] = set of tx_ids waiting on depID
	dependents map[[32]byte]map[[32]byte]struct{}

	groupMu sync.RWMutex
	// swapGroups[groupID] = set of tx_ids in that group
	swapGroups map[[32]byte]map[[32]byte]struct{}
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		txs:        make(map[[32]byte]PendingTransaction),
		dependents: make(map[[32]byte]map[[32]byte]struct{}),
		swapGroups: make(map[[32]byte]map[[32]byte]struct{}),
	}
}

// AddTransaction registers tx for tracking, wiring its dependency and
// swap-group edges if present.
func (g *Graph) AddTransaction(tx PendingTransaction) {
	g.txMu.Lock()
	g.txs[tx.TxID] = tx
	g.txMu.Unlock()

	if tx.DependencyID != nil {
		g.depMu.Lock()
		set, ok := g.dependents[*tx.DependencyID]
		if !ok {
			set = make(map[[32]byte]struct{})
			g.dependents[*tx.DependencyID] = set
		}
		set[tx.TxID] = struct{}{}
		g.depMu.Unlock()
	}

	if tx.SwapGroupID != nil {
		g.groupMu.Lock()
		set, ok := g.swapGroups[*tx.SwapGroupID]
		if !ok {
			set = make(map[[32]byte]struct{})
			g.swapGroups[*tx.SwapGroupID] = set
		}
		set[tx.TxID] = struct{}{}
		g.groupMu.Unlock()
	}
}

// MarkReady transitions txID to Ready.
func (g *Graph) MarkReady(txID [32]byte) {
	g.setState(txID, StateReady)
}

// MarkSubmitted transitions txID to Submitted.
func (g *Graph) MarkSubmitted(txID [32]byte) {
	g.setState(txID, StateSubmitted)
}

// MarkFailed transitions txID to Failed.
func (g *Graph) MarkFailed(txID [32]byte) {
	g.setState(txID, StateFailed)
}

// MarkExpired transitions txID to Expired.
func (g *Graph) MarkExpired(txID [32]byte) {
	g.setState(txID, StateExpired)
}

// MarkFinalized transitions txID to Finalized and promotes any transaction
// that was waiting on it from DependencyPending to Ready.
func (g *Graph) MarkFinalized(txID [32]byte) {
	g.setState(txID, StateFinalized)
	g.notifyDependents(txID)
}

func (g *Graph) setState(txID [32]byte, state State) {
	g.txMu.Lock()
	defer g.txMu.Unlock()
	if tx, ok := g.txs[txID]; ok {
		tx.State = state
		g.txs[txID] = tx
	}
}

func (g *Graph) notifyDependents(resolvedTxID [32]byte) {
	g.depMu.RLock()
	waiting, ok := g.dependents[resolvedTxID]
	g.depMu.RUnlock()
	if !ok {
		return
	}

	g.txMu.Lock()
	defer g.txMu.Unlock()
	for waitingTxID := range waiting {
		if tx, ok := g.txs[waitingTxID]; ok && tx.State == StateDependencyPending {
			tx.State = StateReady
			g.txs[waitingTxID] = tx
		}
	}
}

// GetTransaction returns the transaction with txID, if tracked.
func (g *Graph) GetTransaction(txID [32]byte) (PendingTransaction, bool) {
	g.txMu.RLock()
	defer g.txMu.RUnlock()
	tx, ok := g.txs[txID]
	return tx, ok
}

// GetReadyForChain returns every Ready transaction targeting targetChain.
func (g *Graph) GetReadyForChain(targetChain uint64) []PendingTransaction {
	g.txMu.RLock()
	defer g.txMu.RUnlock()

	var out []PendingTransaction
	for _, tx := range g.txs {
		if tx.TargetChain == targetChain && tx.State == StateReady {
			out = append(out, tx)
		}
	}
	return out
}

// GetSwapGroup returns every tracked transaction belonging to groupID.
func (g *Graph) GetSwapGroup(groupID [32]byte) []PendingTransaction {
	g.groupMu.RLock()
	ids, ok := g.swapGroups[groupID]
	g.groupMu.RUnlock()
	if !ok {
		return nil
	}

	g.txMu.RLock()
	defer g.txMu.RUnlock()
	out := make([]PendingTransaction, 0, len(ids))
	for id := range ids {
		if tx, ok := g.txs[id]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// IsSwapGroupReady reports whether every transaction in groupID is Ready.
// An empty or unknown group is never ready.
func (g *Graph) IsSwapGroupReady(groupID [32]byte) bool {
	members := g.GetSwapGroup(groupID)
	if len(members) == 0 {
		return false
	}
	for _, tx := range members {
		if tx.State != StateReady {
			return false
		}
	}
	return true
}

// GetPending returns every transaction still in an active (non-terminal)
// state.
func (g *Graph) GetPending() []PendingTransaction {
	g.txMu.RLock()
	defer g.txMu.RUnlock()

	var out []PendingTransaction
	for _, tx := range g.txs {
		switch tx.State {
		case StateBuffered, StateDependencyPending, StateReady, StateSubmitted:
			out = append(out, tx)
		}
	}
	return out
}

// Cleanup removes transactions that are terminal (finalized/failed/expired)
// or older than maxAge, measured against now.
func (g *Graph) Cleanup(now time.Time, maxAge time.Duration) {
	cutoff := now.Add(-maxAge).Unix()

	g.txMu.Lock()
	defer g.txMu.Unlock()

	for id, tx := range g.txs {
		terminal := tx.State == StateFinalized || tx.State == StateFailed || tx.State == StateExpired
		if terminal || tx.CreatedAt < cutoff {
			delete(g.txs, id)
		}
	}
}
