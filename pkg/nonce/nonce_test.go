package nonce

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeChain struct {
	chainID uint64
	nonce   uint64
}

func (f *fakeChain) ChainID() uint64 { return f.chainID }
func (f *fakeChain) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func TestGetNonceAllocatesMonotonically(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	chain := &fakeChain{chainID: 1, nonce: 10}
	if err := m.InitChain(context.Background(), 1, chain); err != nil {
		t.Fatalf("InitChain() error: %v", err)
	}

	first, err := m.GetNonce(1)
	if err != nil {
		t.Fatalf("GetNonce() error: %v", err)
	}
	second, err := m.GetNonce(1)
	if err != nil {
		t.Fatalf("GetNonce() error: %v", err)
	}
	if first != 10 || second != 11 {
		t.Fatalf("expected nonces 10 then 11, got %d then %d", first, second)
	}
}

func TestGetNonceUninitializedChainErrors(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	if _, err := m.GetNonce(999); err == nil {
		t.Fatal("expected error for uninitialized chain")
	}
}

func TestReleaseNonceRewindsOnlyLastAllocated(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	chain := &fakeChain{chainID: 1, nonce: 5}
	m.InitChain(context.Background(), 1, chain)

	n1, _ := m.GetNonce(1) // 5
	n2, _ := m.GetNonce(1) // 6
	m.MarkPending(1, n1, "0xaaa")
	m.MarkPending(1, n2, "0xbbb")

	if err := m.ReleaseNonce(1, n2); err != nil {
		t.Fatalf("ReleaseNonce() error: %v", err)
	}

	n3, err := m.GetNonce(1)
	if err != nil {
		t.Fatalf("GetNonce() error: %v", err)
	}
	if n3 != n2 {
		t.Fatalf("expected released nonce %d reused, got %d", n2, n3)
	}

	if m.PendingCount(1) != 1 {
		t.Fatalf("expected 1 pending nonce remaining, got %d", m.PendingCount(1))
	}
}

func TestConfirmNonceAdvancesConfirmed(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	chain := &fakeChain{chainID: 1, nonce: 0}
	m.InitChain(context.Background(), 1, chain)

	n, _ := m.GetNonce(1)
	m.MarkPending(1, n, "0xccc")
	if err := m.ConfirmNonce(1, n); err != nil {
		t.Fatalf("ConfirmNonce() error: %v", err)
	}
	if m.PendingCount(1) != 0 {
		t.Fatalf("expected 0 pending after confirmation, got %d", m.PendingCount(1))
	}
}

func TestSyncDetectsGapAndClearsConfirmedPending(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	chain := &fakeChain{chainID: 1, nonce: 0}
	m.InitChain(context.Background(), 1, chain)

	for i := 0; i < 3; i++ {
		n, _ := m.GetNonce(1)
		m.MarkPending(1, n, "0xddd")
	}
	if m.PendingCount(1) != 3 {
		t.Fatalf("expected 3 pending before sync, got %d", m.PendingCount(1))
	}

	chain.nonce = 2
	if err := m.Sync(context.Background(), 1, chain); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if m.PendingCount(1) != 1 {
		t.Fatalf("expected 1 pending after sync clears nonces below 2, got %d", m.PendingCount(1))
	}
}

func TestGetStuckTransactions(t *testing.T) {
	m := New(common.HexToAddress("0xabc"))
	chain := &fakeChain{chainID: 1, nonce: 0}
	m.InitChain(context.Background(), 1, chain)

	n, _ := m.GetNonce(1)
	m.MarkPending(1, n, "0xeee")

	stuck, err := m.GetStuckTransactions(1, 5)
	if err != nil {
		t.Fatalf("GetStuckTransactions() error: %v", err)
	}
	if len(stuck) != 1 || stuck[0].TxHash != "0xeee" {
		t.Fatalf("expected 1 stuck transaction, got %v", stuck)
	}
}
