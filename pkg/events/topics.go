package events

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// signature hashes the Solidity event signature the way solc computes a log
// topic: keccak256 of the canonical "Name(type,type,...)" string.
func signature(sig string) [32]byte {
	return crypto.Keccak256Hash([]byte(sig))
}

// Event topic0 signatures for the TesseractBuffer and AtomicSwapCoordinator
// contracts. Computed at init time rather than hardcoded, since the
// canonical signature string is the only source of truth for a topic hash.
var (
	TopicTransactionBuffered     = signature("TransactionBuffered(bytes32,address,address,uint256)")
	TopicDependencyResolved      = signature("DependencyResolved(bytes32,bytes32)")
	TopicTransactionReady        = signature("TransactionReady(bytes32)")
	TopicTransactionExecuted     = signature("TransactionExecuted(bytes32)")
	TopicTransactionFailed       = signature("TransactionFailed(bytes32,string)")
	TopicTransactionExpired      = signature("TransactionExpired(bytes32)")
	TopicTransactionRefunded     = signature("TransactionRefunded(bytes32,address)")
	TopicSwapGroupCreated        = signature("SwapGroupCreated(bytes32)")
	TopicSwapOrderCreated        = signature("SwapOrderCreated(bytes32,address,address,address,uint256,uint256,uint256)")
	TopicSwapFillCreated         = signature("SwapFillCreated(bytes32,bytes32,address,uint256,uint256)")
	TopicSwapCompleted           = signature("SwapCompleted(bytes32)")
	TopicContractPaused          = signature("ContractPaused()")
	TopicContractUnpaused        = signature("ContractUnpaused()")
	TopicCircuitBreakerTriggered = signature("CircuitBreakerTriggered(uint256)")
)

// kindByTopic maps a log's topic0 to the ContractEvent Kind it decodes to.
var kindByTopic = map[[32]byte]Kind{
	TopicTransactionBuffered:     KindTransactionBuffered,
	TopicDependencyResolved:      KindDependencyResolved,
	TopicTransactionReady:        KindTransactionReady,
	TopicTransactionExecuted:     KindTransactionExecuted,
	TopicTransactionFailed:       KindTransactionFailed,
	TopicTransactionExpired:      KindTransactionExpired,
	TopicTransactionRefunded:     KindTransactionRefunded,
	TopicSwapGroupCreated:        KindSwapGroupCreated,
	TopicSwapOrderCreated:        KindSwapOrderCreated,
	TopicSwapFillCreated:         KindSwapFillCreated,
	TopicSwapCompleted:           KindSwapCompleted,
	TopicContractPaused:          KindContractPaused,
	TopicContractUnpaused:        KindContractUnpaused,
	TopicCircuitBreakerTriggered: KindCircuitBreakerTriggered,
}

// ResolveDependencySelector is the real 4-byte function selector for
// resolve_dependency(bytes32), replacing the source's placeholder 0x12345678.
var ResolveDependencySelector = func() [4]byte {
	hash := crypto.Keccak256([]byte("resolve_dependency(bytes32)"))
	var sel [4]byte
	copy(sel[:], hash[:4])
	return sel
}()
