package dependency

import (
	"testing"
	"time"
)

func id(b byte) [32]byte {
	var out [32]byte
	out[31] = b
	return out
}

func TestMarkFinalizedPromotesDependent(t *testing.T) {
	g := New()

	depID := id(1)
	origin := PendingTransaction{TxID: depID, OriginChain: 1, TargetChain: 2, State: StateBuffered}
	g.AddTransaction(origin)

	waiterID := id(2)
	waiter := PendingTransaction{TxID: waiterID, OriginChain: 2, TargetChain: 3, DependencyID: &depID, State: StateDependencyPending}
	g.AddTransaction(waiter)

	g.MarkFinalized(depID)

	got, ok := g.GetTransaction(waiterID)
	if !ok {
		t.Fatal("waiter transaction not found")
	}
	if got.State != StateReady {
		t.Fatalf("expected waiter promoted to Ready, got %s", got.State)
	}
}

func TestIsSwapGroupReadyRequiresAllMembers(t *testing.T) {
	g := New()
	group := id(9)

	a := id(10)
	b := id(11)
	g.AddTransaction(PendingTransaction{TxID: a, SwapGroupID: &group, State: StateReady})
	g.AddTransaction(PendingTransaction{TxID: b, SwapGroupID: &group, State: StateBuffered})

	if g.IsSwapGroupReady(group) {
		t.Fatal("expected group not ready while a member is still buffered")
	}

	g.MarkReady(b)
	if !g.IsSwapGroupReady(group) {
		t.Fatal("expected group ready once all members are ready")
	}
}

func TestIsSwapGroupReadyUnknownGroup(t *testing.T) {
	g := New()
	if g.IsSwapGroupReady(id(42)) {
		t.Fatal("expected unknown group to never be ready")
	}
}

func TestGetReadyForChainFiltersByChainAndState(t *testing.T) {
	g := New()
	g.AddTransaction(PendingTransaction{TxID: id(1), TargetChain: 5, State: StateReady})
	g.AddTransaction(PendingTransaction{TxID: id(2), TargetChain: 5, State: StateBuffered})
	g.AddTransaction(PendingTransaction{TxID: id(3), TargetChain: 6, State: StateReady})

	ready := g.GetReadyForChain(5)
	if len(ready) != 1 || ready[0].TxID != id(1) {
		t.Fatalf("expected exactly tx 1 ready for chain 5, got %v", ready)
	}
}

func TestCleanupRemovesTerminalAndStale(t *testing.T) {
	g := New()
	now := time.Unix(1000, 0)

	g.AddTransaction(PendingTransaction{TxID: id(1), State: StateFinalized, CreatedAt: now.Unix()})
	g.AddTransaction(PendingTransaction{TxID: id(2), State: StateBuffered, CreatedAt: now.Add(-2 * time.Hour).Unix()})
	g.AddTransaction(PendingTransaction{TxID: id(3), State: StateReady, CreatedAt: now.Unix()})

	g.Cleanup(now, time.Hour)

	if _, ok := g.GetTransaction(id(1)); ok {
		t.Fatal("expected finalized transaction removed")
	}
	if _, ok := g.GetTransaction(id(2)); ok {
		t.Fatal("expected stale transaction removed")
	}
	if _, ok := g.GetTransaction(id(3)); !ok {
		t.Fatal("expected fresh active transaction to survive cleanup")
	}
}

func TestGetPendingExcludesTerminalStates(t *testing.T) {
	g := New()
	g.AddTransaction(PendingTransaction{TxID: id(1), State: StateReady})
	g.AddTransaction(PendingTransaction{TxID: id(2), State: StateFinalized})
	g.AddTransaction(PendingTransaction{TxID: id(3), State: StateFailed})
	g.AddTransaction(PendingTransaction{TxID: id(4), State: StateBuffered})

	pending := g.GetPending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending transactions, got %d", len(pending))
	}
}
