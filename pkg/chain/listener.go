package chain

import (
	"context"
	"log"
	"math/big"
	"os"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/events"
)

// maxBlockWindow bounds how many blocks a single poll iteration requests,
// to avoid overloading the RPC endpoint with one huge filter.
const maxBlockWindow = 1000

// pollInterval is the delay between successive poll iterations.
const pollInterval = 2 * time.Second

// Listener polls one chain for logs emitted by its configured contract
// address (the coordinator address is not watched), decodes them, publishes
// them to the shared bus, persists them, and advances the chain's checkpoint.
type Listener struct {
	chainID   uint64
	address   common.Address
	provider  *Provider
	bus       *events.Bus
	store     Store
	parser    *events.Parser
	logger    *log.Logger
	lastBlock uint64
}

// NewListener creates a listener for chainCfg, loading its last checkpoint
// from store.
func NewListener(chainCfg config.ChainConfig, provider *Provider, bus *events.Bus, store Store) (*Listener, error) {
	address := common.HexToAddress(chainCfg.ContractAddress)

	checkpoint, err := store.GetCheckpoint(context.Background(), chainCfg.ChainID)
	if err != nil {
		checkpoint = 0
	}

	return &Listener{
		chainID:   chainCfg.ChainID,
		address:   address,
		provider:  provider,
		bus:       bus,
		store:     store,
		parser:    events.NewParser(chainCfg.ChainID),
		logger:    log.New(os.Stderr, "[ChainListener] ", log.LstdFlags),
		lastBlock: checkpoint,
	}, nil
}

// ChainID returns the chain this listener watches.
func (l *Listener) ChainID() uint64 { return l.chainID }

// Listen runs the polling loop until ctx is cancelled.
func (l *Listener) Listen(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.pollOnce(ctx); err != nil {
				l.logger.Printf("chain %d: poll iteration failed: %v", l.chainID, err)
			}
		}
	}
}

func (l *Listener) pollOnce(ctx context.Context) error {
	currentBlock, err := l.provider.BlockNumber(ctx)
	if err != nil {
		return err
	}

	if currentBlock <= l.lastBlock {
		return nil
	}

	fromBlock := l.lastBlock + 1
	toBlock := currentBlock
	if toBlock > fromBlock+maxBlockWindow {
		toBlock = fromBlock + maxBlockWindow
	}

	l.logger.Printf("chain %d: processing blocks %d to %d", l.chainID, fromBlock, toBlock)

	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.address},
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}

	logs, err := l.provider.FilterLogs(ctx, query)
	if err != nil {
		return err
	}

	for _, raw := range logs {
		if err := l.processLog(ctx, raw); err != nil {
			l.logger.Printf("chain %d: failed to process log: %v", l.chainID, err)
		}
	}

	l.lastBlock = toBlock
	if err := l.store.SaveCheckpoint(ctx, l.chainID, toBlock); err != nil {
		l.logger.Printf("chain %d: failed to save checkpoint: %v", l.chainID, err)
	}

	return nil
}

func (l *Listener) processLog(ctx context.Context, raw types.Log) error {
	event, err := l.parser.Parse(raw)
	if err != nil {
		return err
	}

	l.logger.Printf("chain %d event: %s", l.chainID, event.Name())

	l.bus.Publish(event)

	return l.store.StoreEvent(ctx, event)
}
