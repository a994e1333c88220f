// Package relayererr defines the closed error taxonomy used across the
// relayer. Every fallible operation returns an *Error (or wraps one), so
// callers can branch on Kind instead of matching on message strings.
package relayererr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a relayer error.
type Kind string

const (
	KindConfig                Kind = "config"
	KindDatabase              Kind = "database"
	KindChainConnection       Kind = "chain_connection"
	KindTransaction           Kind = "transaction"
	KindNonce                 Kind = "nonce"
	KindGasEstimation         Kind = "gas_estimation"
	KindEventParsing          Kind = "event_parsing"
	KindCoordination          Kind = "coordination"
	KindWallet                Kind = "wallet"
	KindContract              Kind = "contract"
	KindTimeout               Kind = "timeout"
	KindChainNotFound         Kind = "chain_not_found"
	KindTransactionNotFound   Kind = "transaction_not_found"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindFinalityNotReached    Kind = "finality_not_reached"
	KindReorgDetected         Kind = "reorg_detected"
	KindInsufficientBalance   Kind = "insufficient_balance"
	KindRateLimited           Kind = "rate_limited"
	KindInternal              Kind = "internal"
)

// Error is the relayer's single error type. ChainID and TxID are populated
// when the failing operation was scoped to a chain or a tracked transaction;
// zero values mean "not applicable."
type Error struct {
	Kind    Kind
	ChainID uint64
	TxID    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindChainConnection:
		return fmt.Sprintf("chain connection error for chain %d: %s", e.ChainID, e.Message)
	case KindNonce:
		return fmt.Sprintf("nonce error for chain %d: %s", e.ChainID, e.Message)
	case KindTimeout:
		return fmt.Sprintf("timeout waiting for %s", e.Message)
	case KindChainNotFound:
		return fmt.Sprintf("chain %d not found", e.ChainID)
	case KindTransactionNotFound:
		return fmt.Sprintf("transaction %s not found", e.TxID)
	case KindInvalidStateTransition:
		return fmt.Sprintf("invalid state transition: %s", e.Message)
	case KindFinalityNotReached:
		return fmt.Sprintf("finality not reached for tx %s on chain %d", e.TxID, e.ChainID)
	case KindReorgDetected:
		return fmt.Sprintf("reorg detected on chain %d: %s", e.ChainID, e.Message)
	case KindInsufficientBalance:
		return fmt.Sprintf("insufficient balance on chain %d: %s", e.ChainID, e.Message)
	case KindRateLimited:
		return fmt.Sprintf("rate limited on chain %d", e.ChainID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, &Error{Kind: K}) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the caller should retry the operation that
// produced this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindChainConnection, KindTimeout, KindRateLimited, KindFinalityNotReached:
		return true
	default:
		return false
	}
}

// ShouldAlert reports whether this error warrants paging an operator.
func (e *Error) ShouldAlert() bool {
	switch e.Kind {
	case KindInsufficientBalance, KindReorgDetected, KindWallet:
		return true
	default:
		return false
	}
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ChainConnection(chainID uint64, message string) *Error {
	return &Error{Kind: KindChainConnection, ChainID: chainID, Message: message}
}

func Nonce(chainID uint64, message string) *Error {
	return &Error{Kind: KindNonce, ChainID: chainID, Message: message}
}

func ChainNotFound(chainID uint64) *Error {
	return &Error{Kind: KindChainNotFound, ChainID: chainID}
}

func TransactionNotFound(txID string) *Error {
	return &Error{Kind: KindTransactionNotFound, TxID: txID}
}

func FinalityNotReached(chainID uint64, txID string) *Error {
	return &Error{Kind: KindFinalityNotReached, ChainID: chainID, TxID: txID}
}

func ReorgDetected(chainID uint64, message string) *Error {
	return &Error{Kind: KindReorgDetected, ChainID: chainID, Message: message}
}

func InsufficientBalance(chainID uint64, have, need string) *Error {
	return &Error{Kind: KindInsufficientBalance, ChainID: chainID, Message: fmt.Sprintf("have %s, need %s", have, need)}
}

func RateLimited(chainID uint64) *Error {
	return &Error{Kind: KindRateLimited, ChainID: chainID}
}

func Timeout(operation string) *Error {
	return &Error{Kind: KindTimeout, Message: operation}
}

// As is a thin convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
