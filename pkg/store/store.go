// Package store persists chain checkpoints, contract events, pending
// transactions, and submission records behind a PostgreSQL-backed
// StateStore.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/certenio/xchain-relayer/pkg/config"
	"github.com/certenio/xchain-relayer/pkg/dependency"
	"github.com/certenio/xchain-relayer/pkg/events"
	"github.com/certenio/xchain-relayer/pkg/relayererr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TransactionStats counts the persisted pending_transactions rows by state,
// as surfaced by the admin /stats endpoint. Buffered includes
// dependency_pending rows and Failed includes expired rows.
type TransactionStats struct {
	Buffered  int `json:"buffered"`
	Ready     int `json:"ready"`
	Submitted int `json:"submitted"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
}

// StateStore is the durable backing for checkpoints, contract events,
// pending transactions, and their on-chain submissions.
type StateStore struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to cfg.URL, configures the connection pool, and
// verifies connectivity.
func Open(cfg config.DatabaseConfig) (*StateStore, error) {
	if cfg.URL == "" {
		return nil, relayererr.New(relayererr.KindConfig, "database URL is empty")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, relayererr.Wrap(relayererr.KindDatabase, "failed to open database", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConnections))
	db.SetMaxIdleConns(int(cfg.MinConnections))
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, relayererr.Wrap(relayererr.KindDatabase, "failed to ping database", err)
	}

	return &StateStore{
		db:     db,
		logger: log.New(os.Stderr, "[StateStore] ", log.LstdFlags),
	}, nil
}

// Close closes the underlying connection pool.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// HealthCheck reports whether the database connection is alive.
func (s *StateStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// MIGRATIONS
// ============================================================================

type migration struct {
	version string
	sql     string
}

// Migrate applies every embedded migration that hasn't already run,
// tracked in a schema_migrations bookkeeping table.
func (s *StateStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to create schema_migrations", err)
	}

	migrations, err := s.loadMigrations()
	if err != nil {
		return err
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to read schema_migrations", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return relayererr.Wrap(relayererr.KindDatabase, "failed to scan schema_migrations row", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		s.logger.Printf("applying migration %s", m.version)
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return relayererr.Wrap(relayererr.KindDatabase, "failed to begin migration transaction", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return relayererr.Wrap(relayererr.KindDatabase, fmt.Sprintf("failed to apply migration %s", m.version), err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			tx.Rollback()
			return relayererr.Wrap(relayererr.KindDatabase, fmt.Sprintf("failed to record migration %s", m.version), err)
		}
		if err := tx.Commit(); err != nil {
			return relayererr.Wrap(relayererr.KindDatabase, fmt.Sprintf("failed to commit migration %s", m.version), err)
		}
	}

	return nil
}

func (s *StateStore) loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, migration{
			version: strings.TrimSuffix(d.Name(), ".sql"),
			sql:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, relayererr.Wrap(relayererr.KindDatabase, "failed to walk migrations", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// ============================================================================
// CHECKPOINTS
// ============================================================================

// GetCheckpoint returns the last processed block for chainID, or 0 if none
// is recorded.
func (s *StateStore) GetCheckpoint(ctx context.Context, chainID uint64) (uint64, error) {
	var blockNumber uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT block_number FROM chain_checkpoints WHERE chain_id = $1",
		chainID,
	).Scan(&blockNumber)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, relayererr.Wrap(relayererr.KindDatabase, "failed to get checkpoint", err)
	}
	return blockNumber, nil
}

// SaveCheckpoint upserts the last processed block for chainID.
func (s *StateStore) SaveCheckpoint(ctx context.Context, chainID uint64, blockNumber uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_checkpoints (chain_id, block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (chain_id) DO UPDATE SET block_number = $2, updated_at = NOW()`,
		chainID, blockNumber,
	)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to save checkpoint", err)
	}
	return nil
}

// ============================================================================
// CONTRACT EVENTS
// ============================================================================

// StoreEvent persists a decoded contract event for audit and replay.
func (s *StateStore) StoreEvent(ctx context.Context, event events.ContractEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to serialize event", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contract_events (chain_id, block_number, tx_hash, event_type, event_data)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ChainID, event.BlockNumber, event.TxHash.Hex(), string(event.Kind), data,
	)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to store event", err)
	}
	return nil
}

// ============================================================================
// PENDING TRANSACTIONS
// ============================================================================

// StorePendingTransaction upserts a tracked cross-chain transaction.
func (s *StateStore) StorePendingTransaction(ctx context.Context, tx dependency.PendingTransaction) error {
	var depID, groupID interface{}
	if tx.DependencyID != nil {
		depID = tx.DependencyID[:]
	}
	if tx.SwapGroupID != nil {
		groupID = tx.SwapGroupID[:]
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_transactions (tx_id, origin_chain, target_chain, dependency_id, swap_group_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, to_timestamp($7), NOW())
		ON CONFLICT (tx_id) DO UPDATE SET state = $6, updated_at = NOW()`,
		tx.TxID[:], tx.OriginChain, tx.TargetChain, depID, groupID, string(tx.State), tx.CreatedAt,
	)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to store pending transaction", err)
	}
	return nil
}

// GetPendingTransactions returns every transaction not yet in a terminal
// state, for rehydrating the in-memory dependency graph on startup.
func (s *StateStore) GetPendingTransactions(ctx context.Context) ([]dependency.PendingTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, origin_chain, target_chain, dependency_id, swap_group_id, state, EXTRACT(EPOCH FROM created_at)::BIGINT
		FROM pending_transactions
		WHERE state NOT IN ('finalized', 'failed', 'expired')`,
	)
	if err != nil {
		return nil, relayererr.Wrap(relayererr.KindDatabase, "failed to query pending transactions", err)
	}
	defer rows.Close()

	var out []dependency.PendingTransaction
	for rows.Next() {
		var (
			txIDBytes, depIDBytes, groupIDBytes []byte
			state                               string
			tx                                  dependency.PendingTransaction
		)
		if err := rows.Scan(&txIDBytes, &tx.OriginChain, &tx.TargetChain, &depIDBytes, &groupIDBytes, &state, &tx.CreatedAt); err != nil {
			return nil, relayererr.Wrap(relayererr.KindDatabase, "failed to scan pending transaction", err)
		}
		copy(tx.TxID[:], txIDBytes)
		tx.State = dependency.State(state)
		if depIDBytes != nil {
			var depID [32]byte
			copy(depID[:], depIDBytes)
			tx.DependencyID = &depID
		}
		if groupIDBytes != nil {
			var groupID [32]byte
			copy(groupID[:], groupIDBytes)
			tx.SwapGroupID = &groupID
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// ============================================================================
// SUBMISSIONS
// ============================================================================

// RecordSubmission records that txID was submitted on chainID as
// ethTxHash.
func (s *StateStore) RecordSubmission(ctx context.Context, txID [32]byte, chainID uint64, ethTxHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tx_submissions (tx_id, chain_id, ethereum_tx_hash, status, submitted_at)
		VALUES ($1, $2, $3, 'pending', NOW())`,
		txID[:], chainID, ethTxHash,
	)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to record submission", err)
	}
	return nil
}

// UpdateSubmissionStatus marks the submission for ethTxHash with status,
// stamping confirmed_at when the status is terminal.
func (s *StateStore) UpdateSubmissionStatus(ctx context.Context, ethTxHash string, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tx_submissions
		SET status = $2, confirmed_at = CASE WHEN $2 IN ('confirmed', 'failed') THEN NOW() ELSE confirmed_at END
		WHERE ethereum_tx_hash = $1`,
		ethTxHash, status,
	)
	if err != nil {
		return relayererr.Wrap(relayererr.KindDatabase, "failed to update submission status", err)
	}
	return nil
}

// GetStats summarizes pending_transactions by state for the admin /stats
// endpoint.
func (s *StateStore) GetStats(ctx context.Context) (TransactionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM pending_transactions GROUP BY state`,
	)
	if err != nil {
		return TransactionStats{}, relayererr.Wrap(relayererr.KindDatabase, "failed to query stats", err)
	}
	defer rows.Close()

	var stats TransactionStats
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return TransactionStats{}, relayererr.Wrap(relayererr.KindDatabase, "failed to scan stats row", err)
		}
		switch dependency.State(state) {
		case dependency.StateBuffered, dependency.StateDependencyPending:
			stats.Buffered += count
		case dependency.StateReady:
			stats.Ready = count
		case dependency.StateSubmitted:
			stats.Submitted = count
		case dependency.StateFinalized:
			stats.Finalized = count
		case dependency.StateFailed, dependency.StateExpired:
			stats.Failed += count
		}
	}
	return stats, rows.Err()
}
