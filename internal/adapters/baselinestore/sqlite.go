package baselinestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// SQLiteStore is a SQLite implementation of the BaselineStore interface.
// Baselines are stored as JSON documents keyed by (tenant, sender).
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	// SQLite permits one writer at a time; serializing writes here
	// avoids SQLITE_BUSY churn under concurrent observations
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite baseline store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sender_baselines (
			tenant_id TEXT NOT NULL,
			sender_email TEXT NOT NULL,
			baseline TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, sender_email)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the baseline for a sender within a tenant
func (s *SQLiteStore) Get(ctx context.Context, tenantID, senderEmail string) (*core.UserBaseline, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT baseline
		FROM sender_baselines
		WHERE tenant_id = ? AND sender_email = ?
	`, tenantID, senderEmail).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrBaselineNotFound
		}
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}

	var baseline core.UserBaseline
	if err := json.Unmarshal([]byte(raw), &baseline); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	return &baseline, nil
}

// Update applies merge to the stored baseline, seeding a fresh one on
// first observation
func (s *SQLiteStore) Update(ctx context.Context, tenantID, senderEmail string, seed *core.UserBaseline, merge core.MergeFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	working := seed.Clone()
	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT baseline
		FROM sender_baselines
		WHERE tenant_id = ? AND sender_email = ?
	`, tenantID, senderEmail).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to query baseline: %w", err)
	default:
		working = &core.UserBaseline{}
		if err := json.Unmarshal([]byte(raw), working); err != nil {
			return fmt.Errorf("failed to decode baseline: %w", err)
		}
	}

	merge(working)

	encoded, err := json.Marshal(working)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sender_baselines (tenant_id, sender_email, baseline, updated_at)
		VALUES (?, ?, ?, ?)
	`, tenantID, senderEmail, string(encoded), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}
