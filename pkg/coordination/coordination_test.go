package coordination

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/dependency"
	"github.com/certenio/xchain-relayer/pkg/events"
)

type fakeChainSet struct {
	chains []uint64
	ch     chan events.ContractEvent
}

func newFakeChainSet(chains ...uint64) *fakeChainSet {
	return &fakeChainSet{chains: chains, ch: make(chan events.ContractEvent, 8)}
}

func (f *fakeChainSet) ConnectedChains() []uint64 { return f.chains }
func (f *fakeChainSet) SubscribeEvents() (<-chan events.ContractEvent, func()) {
	return f.ch, func() {}
}

type fakeStore struct {
	stored []dependency.PendingTransaction
	seed   []dependency.PendingTransaction
}

func (f *fakeStore) StorePendingTransaction(ctx context.Context, tx dependency.PendingTransaction) error {
	f.stored = append(f.stored, tx)
	return nil
}

func (f *fakeStore) GetPendingTransactions(ctx context.Context) ([]dependency.PendingTransaction, error) {
	return f.seed, nil
}

type fakeSender struct {
	submitted []dependency.PendingTransaction
	err       error
}

func (f *fakeSender) SubmitResolve(ctx context.Context, pendingTx dependency.PendingTransaction) (common.Hash, error) {
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.submitted = append(f.submitted, pendingTx)
	return common.HexToHash("0x01"), nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		Chains: map[string]config.ChainConfig{
			"origin": {ChainID: 1, Name: "origin"},
			"target": {ChainID: 2, Name: "target"},
		},
	}
}

func newTestEngine(t *testing.T, manager engineChainSet, store engineStore, sender engineSender) *Engine {
	t.Helper()
	e, err := New(context.Background(), manager, store, sender, testSettings())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func txID(b byte) [32]byte {
	var id [32]byte
	id[31] = b
	return id
}

func TestNewRehydratesGraphFromStore(t *testing.T) {
	seed := []dependency.PendingTransaction{
		{TxID: txID(1), OriginChain: 1, TargetChain: 2, State: dependency.StateBuffered},
	}
	store := &fakeStore{seed: seed}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	if _, ok := e.Graph().GetTransaction(txID(1)); !ok {
		t.Fatal("expected rehydrated transaction present in graph")
	}
}

func TestHandleTransactionBufferedPersistsAndMapsTargetChain(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	event := events.ContractEvent{
		Kind:         events.KindTransactionBuffered,
		ChainID:      1,
		TxID:         txID(5),
		TargetRollup: common.HexToAddress("0xaaaa"),
	}
	e.settings.Chains = map[string]config.ChainConfig{
		"origin": {ChainID: 1, Name: "origin", RollupAddress: "0xbbbb"},
		"target": {ChainID: 2, Name: "target", RollupAddress: "0xaaaa"},
	}

	if err := e.handleEvent(context.Background(), event); err != nil {
		t.Fatalf("handleEvent() error: %v", err)
	}

	tx, ok := e.Graph().GetTransaction(txID(5))
	if !ok {
		t.Fatal("expected transaction added to graph")
	}
	if tx.State != dependency.StateBuffered {
		t.Fatalf("expected state buffered, got %v", tx.State)
	}
	if tx.TargetChain != 2 {
		t.Fatalf("expected target chain 2, got %d", tx.TargetChain)
	}
	if len(store.stored) != 1 {
		t.Fatalf("expected 1 persisted transaction, got %d", len(store.stored))
	}
}

func TestHandleTransactionBufferedUnmappedRollupErrors(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	event := events.ContractEvent{
		Kind:         events.KindTransactionBuffered,
		ChainID:      1,
		TxID:         txID(9),
		TargetRollup: common.HexToAddress("0xdead"),
	}

	if err := e.handleEvent(context.Background(), event); err == nil {
		t.Fatal("expected error for unmapped target rollup")
	}
	if len(store.stored) != 0 {
		t.Fatal("expected no persisted transaction on mapping failure")
	}
}

func TestHandleEventDependencyResolvedMarksReady(t *testing.T) {
	seed := []dependency.PendingTransaction{
		{TxID: txID(2), OriginChain: 1, TargetChain: 2, State: dependency.StateDependencyPending},
	}
	store := &fakeStore{seed: seed}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	event := events.ContractEvent{Kind: events.KindDependencyResolved, TxID: txID(2)}
	if err := e.handleEvent(context.Background(), event); err != nil {
		t.Fatalf("handleEvent() error: %v", err)
	}

	tx, _ := e.Graph().GetTransaction(txID(2))
	if tx.State != dependency.StateReady {
		t.Fatalf("expected state ready, got %v", tx.State)
	}
}

func TestHandleEventTransactionExecutedFinalizes(t *testing.T) {
	seed := []dependency.PendingTransaction{
		{TxID: txID(3), OriginChain: 1, TargetChain: 2, State: dependency.StateSubmitted},
	}
	store := &fakeStore{seed: seed}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	event := events.ContractEvent{Kind: events.KindTransactionExecuted, TxID: txID(3), ChainID: 2}
	if err := e.handleEvent(context.Background(), event); err != nil {
		t.Fatalf("handleEvent() error: %v", err)
	}

	tx, _ := e.Graph().GetTransaction(txID(3))
	if tx.State != dependency.StateFinalized {
		t.Fatalf("expected state finalized, got %v", tx.State)
	}
}

func TestProcessPendingSubmitsReadyTransactions(t *testing.T) {
	seed := []dependency.PendingTransaction{
		{TxID: txID(4), OriginChain: 1, TargetChain: 2, State: dependency.StateReady},
	}
	store := &fakeStore{seed: seed}
	sender := &fakeSender{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, sender)

	if err := e.processPending(context.Background()); err != nil {
		t.Fatalf("processPending() error: %v", err)
	}

	if len(sender.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(sender.submitted))
	}
	tx, _ := e.Graph().GetTransaction(txID(4))
	if tx.State != dependency.StateSubmitted {
		t.Fatalf("expected state submitted, got %v", tx.State)
	}
}

func TestProcessPendingHoldsBackIncompleteSwapGroup(t *testing.T) {
	group := txID(99)
	seed := []dependency.PendingTransaction{
		{TxID: txID(6), OriginChain: 1, TargetChain: 2, State: dependency.StateReady, SwapGroupID: &group},
	}
	store := &fakeStore{seed: seed}
	sender := &fakeSender{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, sender)

	if err := e.processPending(context.Background()); err != nil {
		t.Fatalf("processPending() error: %v", err)
	}

	if len(sender.submitted) != 0 {
		t.Fatalf("expected swap-group member held back, got %d submissions", len(sender.submitted))
	}
	tx, _ := e.Graph().GetTransaction(txID(6))
	if tx.State != dependency.StateReady {
		t.Fatalf("expected state unchanged (ready), got %v", tx.State)
	}
}

func TestProcessPendingSubmitsCompleteSwapGroupTogether(t *testing.T) {
	group := txID(100)
	seed := []dependency.PendingTransaction{
		{TxID: txID(7), OriginChain: 1, TargetChain: 2, State: dependency.StateReady, SwapGroupID: &group},
		{TxID: txID(8), OriginChain: 1, TargetChain: 2, State: dependency.StateReady, SwapGroupID: &group},
	}
	store := &fakeStore{seed: seed}
	sender := &fakeSender{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, sender)

	if err := e.processPending(context.Background()); err != nil {
		t.Fatalf("processPending() error: %v", err)
	}

	if len(sender.submitted) != 2 {
		t.Fatalf("expected both swap-group members submitted, got %d", len(sender.submitted))
	}
}

func TestProcessPendingMarksFailedOnNonRetryableError(t *testing.T) {
	seed := []dependency.PendingTransaction{
		{TxID: txID(10), OriginChain: 1, TargetChain: 2, State: dependency.StateReady},
	}
	store := &fakeStore{seed: seed}
	sender := &fakeSender{err: errNonRetryable{}}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, sender)

	if err := e.processPending(context.Background()); err != nil {
		t.Fatalf("processPending() error: %v", err)
	}

	tx, _ := e.Graph().GetTransaction(txID(10))
	if tx.State != dependency.StateFailed {
		t.Fatalf("expected state failed, got %v", tx.State)
	}
}

type errNonRetryable struct{}

func (errNonRetryable) Error() string { return "boom: unrecoverable" }

func TestStopHaltsRunLoop(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, newFakeChainSet(1, 2), store, &fakeSender{})

	e.Stop()
	if !e.isShutdown() {
		t.Fatal("expected engine to report shutdown after Stop()")
	}
}
