package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// Parser decodes raw contract logs from a single chain into ContractEvent
// values. A Parser is scoped to one chain ID, since topic dispatch is
// chain-independent but every decoded event must carry its origin chain.
type Parser struct {
	chainID uint64
}

// NewParser creates a parser that stamps every decoded event with chainID.
func NewParser(chainID uint64) *Parser {
	return &Parser{chainID: chainID}
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("events: invalid abi type %q: %v", t, err))
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

var (
	uint256Args              = mustArgs("uint256")
	stringArgs                = mustArgs("string")
	uint256x3Args             = mustArgs("uint256", "uint256", "uint256")
	uint256x2Args             = mustArgs("uint256", "uint256")
)

// Parse decodes a single log into a ContractEvent. Unrecognized topics
// decode to KindUnknown rather than an error, matching the upstream
// contract surface evolving independently of the relayer's event list.
func (p *Parser) Parse(log types.Log) (ContractEvent, error) {
	blockNumber := log.BlockNumber
	txHash := log.TxHash

	if len(log.Topics) == 0 {
		return ContractEvent{}, relayererr.New(relayererr.KindEventParsing, "log has no topics")
	}
	topic0 := log.Topics[0]

	kind, known := kindByTopic[topic0]
	if !known {
		return ContractEvent{
			Kind:        KindUnknown,
			ChainID:     p.chainID,
			BlockNumber: blockNumber,
			TxHash:      txHash,
			Topic:       topic0,
		}, nil
	}

	base := ContractEvent{
		Kind:        kind,
		ChainID:     p.chainID,
		BlockNumber: blockNumber,
		TxHash:      txHash,
	}

	switch kind {
	case KindTransactionBuffered:
		return p.parseTransactionBuffered(base, log)
	case KindDependencyResolved:
		return p.parseDependencyResolved(base, log)
	case KindTransactionReady:
		base.TxID = topicBytes32(log, 1)
		return base, nil
	case KindTransactionExecuted:
		base.TxID = topicBytes32(log, 1)
		return base, nil
	case KindTransactionFailed:
		return p.parseTransactionFailed(base, log)
	case KindTransactionExpired:
		base.TxID = topicBytes32(log, 1)
		return base, nil
	case KindTransactionRefunded:
		base.TxID = topicBytes32(log, 1)
		base.Recipient = topicAddress(log, 2)
		return base, nil
	case KindSwapGroupCreated:
		base.SwapGroupID = topicBytes32(log, 1)
		return base, nil
	case KindSwapOrderCreated:
		return p.parseSwapOrderCreated(base, log)
	case KindSwapFillCreated:
		return p.parseSwapFillCreated(base, log)
	case KindSwapCompleted:
		base.OrderID = topicBytes32(log, 1)
		return base, nil
	case KindContractPaused, KindContractUnpaused:
		return base, nil
	case KindCircuitBreakerTriggered:
		return p.parseCircuitBreakerTriggered(base, log)
	default:
		base.Kind = KindUnknown
		base.Topic = topic0
		return base, nil
	}
}

func topicBytes32(log types.Log, idx int) [32]byte {
	var out [32]byte
	if idx < len(log.Topics) {
		copy(out[:], log.Topics[idx].Bytes())
	}
	return out
}

func topicAddress(log types.Log, idx int) common.Address {
	if idx >= len(log.Topics) {
		return common.Address{}
	}
	return common.BytesToAddress(log.Topics[idx].Bytes())
}

func (p *Parser) parseTransactionBuffered(base ContractEvent, log types.Log) (ContractEvent, error) {
	base.TxID = topicBytes32(log, 1)
	base.OriginRollup = topicAddress(log, 2)
	base.TargetRollup = topicAddress(log, 3)

	values, err := uint256Args.Unpack(log.Data)
	if err != nil {
		return ContractEvent{}, relayererr.Wrap(relayererr.KindEventParsing, "failed to decode TransactionBuffered data", err)
	}
	base.Timestamp = values[0].(*big.Int).Uint64()
	return base, nil
}

func (p *Parser) parseDependencyResolved(base ContractEvent, log types.Log) (ContractEvent, error) {
	base.TxID = topicBytes32(log, 1)
	base.DependencyID = topicBytes32(log, 2)
	return base, nil
}

func (p *Parser) parseTransactionFailed(base ContractEvent, log types.Log) (ContractEvent, error) {
	base.TxID = topicBytes32(log, 1)

	values, err := stringArgs.Unpack(log.Data)
	if err != nil {
		return ContractEvent{}, relayererr.Wrap(relayererr.KindEventParsing, "failed to decode TransactionFailed data", err)
	}
	base.Reason = values[0].(string)
	return base, nil
}

func (p *Parser) parseSwapOrderCreated(base ContractEvent, log types.Log) (ContractEvent, error) {
	base.OrderID = topicBytes32(log, 1)
	base.Maker = topicAddress(log, 2)

	values, err := mustArgs("address", "address", "uint256", "uint256", "uint256").Unpack(log.Data)
	if err != nil {
		return ContractEvent{}, relayererr.Wrap(relayererr.KindEventParsing, "failed to decode SwapOrderCreated data", err)
	}
	base.OriginRollup = values[0].(common.Address) // offer_chain
	base.TargetRollup = values[1].(common.Address) // want_chain
	base.OfferAmount = values[2].(*big.Int)
	base.WantAmount = values[3].(*big.Int)
	base.Deadline = values[4].(*big.Int).Uint64()
	return base, nil
}

func (p *Parser) parseSwapFillCreated(base ContractEvent, log types.Log) (ContractEvent, error) {
	base.OrderID = topicBytes32(log, 1)
	base.FillID = topicBytes32(log, 2)

	values, err := mustArgs("address", "uint256", "uint256").Unpack(log.Data)
	if err != nil {
		return ContractEvent{}, relayererr.Wrap(relayererr.KindEventParsing, "failed to decode SwapFillCreated data", err)
	}
	base.Taker = values[0].(common.Address)
	base.OfferAmountFilled = values[1].(*big.Int)
	base.WantAmountFilled = values[2].(*big.Int)
	return base, nil
}

func (p *Parser) parseCircuitBreakerTriggered(base ContractEvent, log types.Log) (ContractEvent, error) {
	values, err := uint256Args.Unpack(log.Data)
	if err != nil {
		return ContractEvent{}, relayererr.Wrap(relayererr.KindEventParsing, "failed to decode CircuitBreakerTriggered data", err)
	}
	base.FailureCount = values[0].(*big.Int).Uint64()
	return base, nil
}
