package chain

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/events"
	"github.com/certenio/xchain-relayer/pkg/finality"
	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

// Store is the subset of the state store ChainManager's listeners need, kept
// narrow so chain doesn't import the store package directly.
type Store interface {
	GetCheckpoint(ctx context.Context, chainID uint64) (uint64, error)
	SaveCheckpoint(ctx context.Context, chainID uint64, blockNumber uint64) error
	StoreEvent(ctx context.Context, event events.ContractEvent) error
}

// reconnectDelay is how long a listener sleeps after its poll loop returns
// an error, before retrying.
const reconnectDelay = 5 * time.Second

// Manager owns every configured chain's Provider, FinalityTracker, and
// poll loop, and fans decoded events out through a shared Bus.
type Manager struct {
	providers  map[uint64]*Provider
	trackers   map[uint64]*finality.Tracker
	bus        *events.Bus
	store      Store
	logger     *log.Logger

	mu       sync.Mutex
	shutdown bool
}

// NewManager dials every enabled chain in settings and prepares its
// finality tracker. Listener goroutines are not started until RunListeners
// is called.
func NewManager(ctx context.Context, settings *config.Settings, store Store) (*Manager, error) {
	logger := log.New(os.Stderr, "[ChainManager] ", log.LstdFlags)

	m := &Manager{
		providers: make(map[uint64]*Provider),
		trackers:  make(map[uint64]*finality.Tracker),
		bus:       events.NewBus(),
		store:     store,
		logger:    logger,
	}

	for name, chainCfg := range settings.EnabledChains() {
		if chainCfg.ContractAddress == "" {
			logger.Printf("skipping chain %s: no contract address configured", name)
			continue
		}

		logger.Printf("initializing chain %s (id %d)", chainCfg.Name, chainCfg.ChainID)

		provider, err := NewProvider(ctx, chainCfg)
		if err != nil {
			return nil, err
		}
		m.providers[chainCfg.ChainID] = provider
		m.trackers[chainCfg.ChainID] = finality.NewTracker(chainCfg.ChainID, chainCfg.ConfirmationBlocks, provider)

		logger.Printf("chain %s initialized successfully", chainCfg.Name)
	}

	return m, nil
}

// Provider returns the provider for chainID, or a ChainNotFound error.
func (m *Manager) Provider(chainID uint64) (*Provider, error) {
	p, ok := m.providers[chainID]
	if !ok {
		return nil, relayererr.ChainNotFound(chainID)
	}
	return p, nil
}

// FinalityTracker returns the finality tracker for chainID, or a
// ChainNotFound error.
func (m *Manager) FinalityTracker(chainID uint64) (*finality.Tracker, error) {
	t, ok := m.trackers[chainID]
	if !ok {
		return nil, relayererr.ChainNotFound(chainID)
	}
	return t, nil
}

// ConnectedChains returns every chain ID this manager dialed successfully.
func (m *Manager) ConnectedChains() []uint64 {
	ids := make([]uint64, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	return ids
}

// SubscribeEvents registers a new receiver on the shared event bus.
func (m *Manager) SubscribeEvents() (<-chan events.ContractEvent, func()) {
	return m.bus.Subscribe()
}

// Bus exposes the manager's event bus for components (e.g. the listener)
// that publish decoded events directly.
func (m *Manager) Bus() *events.Bus { return m.bus }

// RunListeners starts one poll loop per configured chain and blocks until
// ctx is cancelled. Listener errors are logged and the loop is retried after
// reconnectDelay, rather than aborting every chain. The shutdown flag set by
// Stop is checked only before a poll loop is started or restarted; a running
// poll loop does not observe it and exits only when ctx is cancelled.
func (m *Manager) RunListeners(ctx context.Context, settings *config.Settings) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for name, chainCfg := range settings.EnabledChains() {
		chainCfg := chainCfg
		provider, ok := m.providers[chainCfg.ChainID]
		if !ok {
			continue
		}

		listener, err := NewListener(chainCfg, provider, m.bus, m.store)
		if err != nil {
			m.logger.Printf("failed to create listener for chain %s: %v", name, err)
			continue
		}

		group.Go(func() error {
			for {
				if m.isShutdown() {
					return nil
				}
				if err := listener.Listen(groupCtx); err != nil {
					if groupCtx.Err() != nil {
						return nil
					}
					m.logger.Printf("listener error for chain %d: %v", listener.ChainID(), err)
					select {
					case <-time.After(reconnectDelay):
					case <-groupCtx.Done():
						return nil
					}
					continue
				}
				return nil
			}
		})
	}

	return group.Wait()
}

// HealthCheck probes every connected chain concurrently and returns its
// reachability.
func (m *Manager) HealthCheck(ctx context.Context) map[uint64]bool {
	results := make(map[uint64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for id, provider := range m.providers {
		id, provider := id, provider
		wg.Add(1)
		go func() {
			defer wg.Done()
			healthy := provider.HealthCheck(ctx)
			mu.Lock()
			results[id] = healthy
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

func (m *Manager) isShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Stop sets the shutdown flag and closes provider connections. It does not
// interrupt poll loops that are already running; those exit when the context
// passed to RunListeners is cancelled.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	for _, p := range m.providers {
		p.Close()
	}
	m.logger.Printf("chain manager stopped")
}
