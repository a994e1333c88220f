// Package events defines the ContractEvent tagged union emitted by the
// TesseractBuffer and AtomicSwapCoordinator contracts, and the parser that
// decodes raw logs into them.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind tags which ContractEvent variant a decoded log represents.
type Kind string

const (
	KindTransactionBuffered     Kind = "transaction_buffered"
	KindDependencyResolved      Kind = "dependency_resolved"
	KindTransactionReady        Kind = "transaction_ready"
	KindTransactionExecuted     Kind = "transaction_executed"
	KindTransactionFailed       Kind = "transaction_failed"
	KindTransactionExpired      Kind = "transaction_expired"
	KindTransactionRefunded     Kind = "transaction_refunded"
	KindSwapGroupCreated        Kind = "swap_group_created"
	KindSwapOrderCreated        Kind = "swap_order_created"
	KindSwapFillCreated         Kind = "swap_fill_created"
	KindSwapCompleted           Kind = "swap_completed"
	KindContractPaused          Kind = "contract_paused"
	KindContractUnpaused        Kind = "contract_unpaused"
	KindCircuitBreakerTriggered Kind = "circuit_breaker_triggered"
	KindUnknown                 Kind = "unknown"
)

// ContractEvent is the decoded form of a single contract log, carrying only
// the fields relevant to its Kind. Unused fields for a given Kind are left
// at their zero value rather than split into fifteen Go types, matching how
// a single log-derived struct is handled the rest of the pipeline.
type ContractEvent struct {
	Kind        Kind
	ChainID     uint64
	BlockNumber uint64
	TxHash      common.Hash

	TxID         [32]byte
	DependencyID [32]byte
	OrderID      [32]byte
	FillID       [32]byte
	SwapGroupID  [32]byte

	OriginRollup common.Address
	TargetRollup common.Address
	Maker        common.Address
	Taker        common.Address
	Recipient    common.Address

	Timestamp          uint64
	OfferAmount        *big.Int
	WantAmount         *big.Int
	OfferAmountFilled  *big.Int
	WantAmountFilled   *big.Int
	Deadline           uint64
	FailureCount       uint64
	Reason             string

	Topic common.Hash // set only for Kind == KindUnknown
}

// Name returns the metric-label form of the event kind.
func (e ContractEvent) Name() string {
	return string(e.Kind)
}

// RequiresAction reports whether the coordination engine must act on this
// event, as opposed to merely recording it (transaction-expired,
// transaction-refunded, swap-group-created, swap-order-created, swap-
// completed, contract-unpaused, and unknown events are logged but otherwise
// inert).
func (e ContractEvent) RequiresAction() bool {
	switch e.Kind {
	case KindTransactionBuffered, KindTransactionReady, KindDependencyResolved,
		KindTransactionExecuted, KindTransactionFailed, KindSwapFillCreated,
		KindContractPaused, KindCircuitBreakerTriggered:
		return true
	default:
		return false
	}
}
