// Package coordination runs the cross-chain coordination engine: it
// consumes contract events, advances the dependency graph, and submits
// resolve_dependency transactions once a transaction (or its whole swap
// group) becomes ready.
package coordination

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/dependency"
	"github.com/certenio/xchain-relayer/pkg/events"
	"github.com/certenio/xchain-relayer/pkg/metrics"
	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// cleanupInterval is how often the engine prunes terminal/stale
// transactions from the dependency graph.
const cleanupInterval = 5 * time.Minute

// maxTransactionAge bounds how long a transaction may remain active
// before cleanup drops it regardless of state.
const maxTransactionAge = 24 * time.Hour

// Engine dispatches contract events onto the dependency graph and
// periodically submits ready transactions.
type Engine struct {
	manager  engineChainSet
	store    engineStore
	sender   engineSender
	settings *config.Settings
	graph    *dependency.Graph

	mu       sync.RWMutex
	shutdown bool

	logger *log.Logger
}

// engineChainSet, engineStore, and engineSender are declared as the
// concrete interfaces actually implemented by pkg/chain.Manager,
// pkg/store.StateStore, and pkg/tx.Sender, kept narrow here to avoid
// coordination depending on their full surface.
type engineChainSet interface {
	ConnectedChains() []uint64
	SubscribeEvents() (<-chan events.ContractEvent, func())
}

type engineStore interface {
	StorePendingTransaction(ctx context.Context, tx dependency.PendingTransaction) error
	GetPendingTransactions(ctx context.Context) ([]dependency.PendingTransaction, error)
}

type engineSender interface {
	SubmitResolve(ctx context.Context, pendingTx dependency.PendingTransaction) (txHash common.Hash, err error)
}

// New creates a coordination engine, rehydrating the dependency graph
// from persisted pending transactions.
func New(ctx context.Context, manager engineChainSet, store engineStore, sender engineSender, settings *config.Settings) (*Engine, error) {
	graph := dependency.New()

	pending, err := store.GetPendingTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for _, tx := range pending {
		graph.AddTransaction(tx)
	}

	return &Engine{
		manager:  manager,
		store:    store,
		sender:   sender,
		settings: settings,
		graph:    graph,
		logger:   log.New(os.Stderr, "[CoordinationEngine] ", log.LstdFlags),
	}, nil
}

// Graph exposes the dependency graph for the admin /stats endpoint.
func (e *Engine) Graph() *dependency.Graph { return e.graph }

// Run consumes the chain manager's event bus and periodically processes
// and cleans up pending transactions, until ctx is cancelled or Stop is
// called.
func (e *Engine) Run(ctx context.Context) error {
	eventCh, unsubscribe := e.manager.SubscribeEvents()
	defer unsubscribe()

	processInterval := time.Duration(e.settings.Relayer.PollIntervalMs) * time.Millisecond
	if processInterval <= 0 {
		processInterval = time.Second
	}
	processTicker := time.NewTicker(processInterval)
	defer processTicker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	e.logger.Println("coordination engine started")

	for {
		if e.isShutdown() {
			break
		}

		select {
		case <-ctx.Done():
			e.logger.Println("coordination engine stopped")
			return nil

		case event := <-eventCh:
			if err := e.handleEvent(ctx, event); err != nil {
				e.logger.Printf("error handling event: %v", err)
			}

		case <-processTicker.C:
			if err := e.processPending(ctx); err != nil {
				e.logger.Printf("error processing pending transactions: %v", err)
			}

		case <-cleanupTicker.C:
			e.cleanup()
		}
	}

	e.logger.Println("coordination engine stopped")
	return nil
}

// Stop signals Run to exit its loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()
	e.logger.Println("coordination engine shutdown initiated")
}

func (e *Engine) isShutdown() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.shutdown
}

func (e *Engine) handleEvent(ctx context.Context, event events.ContractEvent) error {
	metrics.RecordEvent(event.ChainID, event.Name())

	if event.RequiresAction() {
		e.logger.Printf("chain %d: %s requires coordination action", event.ChainID, event.Name())
	}

	switch event.Kind {
	case events.KindTransactionBuffered:
		return e.handleTransactionBuffered(ctx, event)

	case events.KindTransactionReady:
		e.graph.MarkReady(event.TxID)
		return nil

	case events.KindDependencyResolved:
		e.graph.MarkReady(event.TxID)
		return nil

	case events.KindTransactionExecuted:
		e.graph.MarkFinalized(event.TxID)
		metrics.RecordTransactionFinalized(event.ChainID)
		e.logger.Printf("transaction %x executed successfully", event.TxID)
		return nil

	case events.KindTransactionFailed:
		e.graph.MarkFailed(event.TxID)
		metrics.RecordTransactionFailed(event.ChainID)
		e.logger.Printf("transaction %x failed: %s", event.TxID, event.Reason)
		return nil

	case events.KindSwapFillCreated:
		return e.handleSwapFill(event)

	case events.KindContractPaused:
		e.logger.Printf("contract paused on chain %d", event.ChainID)
		metrics.RecordContractPaused(event.ChainID, true)
		return nil

	case events.KindContractUnpaused:
		metrics.RecordContractPaused(event.ChainID, false)
		return nil

	case events.KindCircuitBreakerTriggered:
		e.logger.Printf("circuit breaker triggered on chain %d after %d failures", event.ChainID, event.FailureCount)
		metrics.RecordCircuitBreaker(event.ChainID)
		return nil

	default:
		return nil
	}
}

func (e *Engine) handleTransactionBuffered(ctx context.Context, event events.ContractEvent) error {
	e.logger.Printf("new transaction buffered: %x on chain %d", event.TxID, event.ChainID)

	targetChain, ok := e.settings.ResolveTargetChain(event.TargetRollup.Hex())
	if !ok {
		return relayererr.New(relayererr.KindCoordination, fmt.Sprintf("no chain registered for rollup %s", event.TargetRollup.Hex()))
	}

	pendingTx := dependency.PendingTransaction{
		TxID:        event.TxID,
		OriginChain: event.ChainID,
		TargetChain: targetChain,
		State:       dependency.StateBuffered,
		CreatedAt:   int64(event.Timestamp),
	}

	e.graph.AddTransaction(pendingTx)
	if err := e.store.StorePendingTransaction(ctx, pendingTx); err != nil {
		return err
	}

	metrics.RecordTransactionBuffered(event.ChainID)
	return nil
}

func (e *Engine) handleSwapFill(event events.ContractEvent) error {
	e.logger.Printf("swap fill created: order %x fill %x on chain %d", event.OrderID, event.FillID, event.ChainID)
	metrics.RecordSwapFill(event.ChainID)
	return nil
}

// processPending submits resolve_dependency for every ready transaction on
// every connected chain, holding swap-group members back until every
// member in the group is ready.
func (e *Engine) processPending(ctx context.Context) error {
	// Group readiness is decided once per tick, before any member is marked
	// Submitted, so every member of a ready group goes out in the same tick.
	groupReady := make(map[[32]byte]bool)

	for _, chainID := range e.manager.ConnectedChains() {
		ready := e.graph.GetReadyForChain(chainID)

		for _, pendingTx := range ready {
			if pendingTx.SwapGroupID != nil {
				groupID := *pendingTx.SwapGroupID
				isReady, seen := groupReady[groupID]
				if !seen {
					isReady = e.graph.IsSwapGroupReady(groupID)
					groupReady[groupID] = isReady
				}
				if !isReady {
					continue
				}
			}

			txHash, err := e.sender.SubmitResolve(ctx, pendingTx)
			if err != nil {
				if re, ok := relayererr.As(err); ok && re.Retryable() {
					e.logger.Printf("retryable error submitting tx %x: %v", pendingTx.TxID, err)
					continue
				}
				e.logger.Printf("failed to submit tx %x: %v", pendingTx.TxID, err)
				e.graph.MarkFailed(pendingTx.TxID)
				continue
			}

			e.graph.MarkSubmitted(pendingTx.TxID)
			metrics.RecordTransactionSubmitted(chainID)
			e.logger.Printf("submitted resolve for %x on chain %d: %x", pendingTx.TxID, chainID, txHash)
		}
	}

	return nil
}

func (e *Engine) cleanup() {
	e.graph.Cleanup(time.Now(), maxTransactionAge)
}
