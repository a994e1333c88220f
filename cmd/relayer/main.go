// Command relayer runs the cross-chain coordination relayer: it connects to
// every configured chain, persists and advances cross-chain transaction
// state, and submits resolve_dependency transactions once a transaction (or
// its whole swap group) becomes ready.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certenio/xchain-relayer/pkg/chain"
	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/coordination"
	"github.com/certenio/xchain-relayer/pkg/metrics"
	"github.com/certenio/xchain-relayer/pkg/server"
	"github.com/certenio/xchain-relayer/pkg/store"
	"github.com/certenio/xchain-relayer/pkg/tx"
)

func main() {
	logger := log.New(os.Stderr, "[Relayer] ", log.LstdFlags)

	settings, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}
	logger.Printf("loaded configuration for %d chains", len(settings.EnabledChains()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stateStore, err := store.Open(settings.Database)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer stateStore.Close()
	logger.Println("database connection established")

	if err := stateStore.Migrate(ctx); err != nil {
		logger.Fatalf("failed to run database migrations: %v", err)
	}
	logger.Println("database migrations complete")

	manager, err := chain.NewManager(ctx, settings, stateStore)
	if err != nil {
		logger.Fatalf("failed to initialize chain manager: %v", err)
	}
	logger.Println("chain connections initialized")

	sender, err := tx.NewSender(ctx, manager, stateStore, &settings.Relayer, settings.Wallet.PrivateKeyEnv)
	if err != nil {
		logger.Fatalf("failed to initialize transaction sender: %v", err)
	}
	logger.Printf("transaction sender ready with wallet %s", sender.WalletAddress().Hex())

	engine, err := coordination.New(ctx, manager, stateStore, sender, settings)
	if err != nil {
		logger.Fatalf("failed to initialize coordination engine: %v", err)
	}
	logger.Println("coordination engine initialized")

	go func() {
		if err := manager.RunListeners(ctx, settings); err != nil {
			logger.Printf("chain listeners stopped: %v", err)
		}
	}()

	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Printf("coordination engine stopped: %v", err)
		}
	}()

	if settings.Metrics.Enabled {
		metricsServer := metrics.NewServer(settings.Metrics.Port)
		go func() {
			if err := metricsServer.Run(ctx); err != nil {
				logger.Printf("metrics server error: %v", err)
			}
		}()
		logger.Printf("metrics listening on port %d", settings.Metrics.Port)
	}

	adminServer := server.New(settings.API, manager, stateStore)
	go func() {
		if err := adminServer.Run(ctx); err != nil {
			logger.Printf("admin API server error: %v", err)
		}
	}()
	logger.Printf("admin API listening on %s:%d", settings.API.Host, settings.API.Port)

	go runHealthCheckLoop(ctx, settings, manager, stateStore, logger)

	logger.Println("relayer is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutdown signal received, stopping")

	engine.Stop()
	manager.Stop()
	cancel()

	logger.Println("relayer stopped")
}

func runHealthCheckLoop(ctx context.Context, settings *config.Settings, manager *chain.Manager, stateStore *store.StateStore, logger *log.Logger) {
	interval := time.Duration(settings.Relayer.HealthCheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := manager.HealthCheck(ctx)
			allHealthy := true
			for chainID, healthy := range health {
				metrics.RecordChainHealth(chainID, healthy)
				if !healthy {
					allHealthy = false
					logger.Printf("chain %d health check failed", chainID)
				}
			}

			dbErr := stateStore.HealthCheck(ctx)
			if dbErr != nil {
				logger.Printf("database health check failed: %v", dbErr)
			}

			metrics.RecordHealthCheck(allHealthy && dbErr == nil)
		}
	}
}
