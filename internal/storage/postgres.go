package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const createSubmissionsTable = `
	CREATE TABLE IF NOT EXISTS signature_submissions (
		cycle_id       TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		schema_name    TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		signer         TEXT NOT NULL,
		contract       TEXT NOT NULL,
		method         TEXT NOT NULL,
		nonce          NUMERIC(78, 0) NOT NULL,
		deadline       TIMESTAMPTZ,
		digest         TEXT NOT NULL,
		signature      TEXT NOT NULL,
		tx_hash        TEXT,
		status         TEXT NOT NULL,
		gas_used       BIGINT NOT NULL DEFAULT 0,
		submitted_at   TIMESTAMPTZ NOT NULL
	)
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and makes sure the submissions table exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{db: db, logger: cfg.Logger}
	err = p.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// Migrate creates the submissions table if missing.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, createSubmissionsTable)
	if err != nil {
		return fmt.Errorf("create signature_submissions: %w", err)
	}
	return nil
}

// RecordSubmission inserts one submission row.
func (p *PostgresStorage) RecordSubmission(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO signature_submissions (
			cycle_id, session_id, schema_name, schema_version, signer,
			contract, method, nonce, deadline, digest,
			signature, tx_hash, status, gas_used, submitted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	var deadline sql.NullTime
	if !sub.Deadline.IsZero() {
		deadline = sql.NullTime{Time: sub.Deadline, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		sub.CycleID,
		sub.SessionID,
		sub.Schema,
		sub.SchemaVersion,
		sub.Signer,
		sub.Contract,
		sub.Method,
		sub.Nonce,
		deadline,
		sub.Digest,
		sub.Signature,
		sub.TxHash,
		sub.Status,
		int64(sub.GasUsed),
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	p.logger.Debug("submission-stored",
		zap.String("cycle-id", sub.CycleID),
		zap.String("schema", sub.Schema),
		zap.String("status", sub.Status))

	return nil
}

// Ping checks the database connection.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
