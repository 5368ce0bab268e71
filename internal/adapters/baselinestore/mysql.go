package baselinestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the BaselineStore interface.
// Concurrent updates to the same sender are serialized with a row lock.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore creates a new MySQL baseline store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sender_baselines (
			tenant_id VARCHAR(128) NOT NULL,
			sender_email VARCHAR(320) NOT NULL,
			baseline JSON NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, sender_email)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MySQLStore{
		db:     db,
		logger: logger,
	}, nil
}

// Get retrieves the baseline for a sender within a tenant
func (s *MySQLStore) Get(ctx context.Context, tenantID, senderEmail string) (*core.UserBaseline, error) {
	var raw []byte
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
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}
	return &baseline, nil
}

// Update applies merge to the stored baseline inside a transaction,
// locking the row so no other writer interleaves
func (s *MySQLStore) Update(ctx context.Context, tenantID, senderEmail string, seed *core.UserBaseline, merge core.MergeFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	working := seed.Clone()
	var raw []byte
	err = tx.QueryRowContext(ctx, `
		SELECT baseline
		FROM sender_baselines
		WHERE tenant_id = ? AND sender_email = ?
		FOR UPDATE
	`, tenantID, senderEmail).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to query baseline: %w", err)
	default:
		working = &core.UserBaseline{}
		if err := json.Unmarshal(raw, working); err != nil {
			return fmt.Errorf("failed to decode baseline: %w", err)
		}
	}

	merge(working)

	encoded, err := json.Marshal(working)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sender_baselines (tenant_id, sender_email, baseline)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE baseline = VALUES(baseline)
	`, tenantID, senderEmail, encoded)
	if err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close MySQL database: %w", err)
	}
	return nil
}
