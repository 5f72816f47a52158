package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"sampletrace/internal/models"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// schemaDDL is applied on startup; every statement is idempotent
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS samples (
		sample_id    TEXT PRIMARY KEY,
		patient_id   TEXT NOT NULL,
		status       TEXT NOT NULL,
		current_step INT  NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timeline_entries (
		sample_id             TEXT NOT NULL REFERENCES samples(sample_id),
		step                  INT  NOT NULL,
		name                  TEXT NOT NULL,
		hash                  TEXT NOT NULL,
		transaction_id        TEXT NOT NULL DEFAULT '',
		verified              BOOLEAN NOT NULL DEFAULT FALSE,
		onchain_hash_recorded BOOLEAN NOT NULL DEFAULT FALSE,
		details               JSONB NOT NULL DEFAULT '{}',
		entry_timestamp       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (sample_id, step)
	)`,
	`CREATE TABLE IF NOT EXISTS step_transactions (
		id              TEXT PRIMARY KEY,
		sample_id       TEXT NOT NULL,
		step            INT  NOT NULL,
		hash            TEXT NOT NULL,
		transaction_id  TEXT NOT NULL DEFAULT '',
		payload_digest  TEXT NOT NULL,
		signer_identity TEXT NOT NULL,
		failure_reason  TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_step_transactions_sample_time
		ON step_transactions (sample_id, created_at)`,
}

// PostgresStore is the durable replica implementation backed by a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ Store = (*PostgresStore)(nil) // Compile-time interface check

// NewPostgresStore connects the pool, applies the schema and returns the store
func NewPostgresStore(ctx context.Context, dsn string, minConns, maxConns int, logger *log.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid database DSN: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Printf("Postgres store initialized (min_conns=%d, max_conns=%d)", minConns, maxConns)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CreateSample persists a freshly collected sample in one transaction
func (s *PostgresStore) CreateSample(ctx context.Context, sample *models.Sample, stepTx *models.StepTransaction) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO samples (sample_id, patient_id, status, current_step, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sample.SampleID, sample.PatientID, string(sample.Status), int(sample.CurrentStep),
			sample.CreatedAt, sample.UpdatedAt)
		if err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, sample.SampleID, sample.Timeline[0]); err != nil {
			return err
		}
		return insertAudit(ctx, tx, stepTx)
	})
	if err != nil {
		return &WriteError{Op: "CreateSample", Err: err}
	}
	return nil
}

// AppendStep records one step transition, idempotently per (sampleID, step)
func (s *PostgresStore) AppendStep(ctx context.Context, sampleID string, entry models.TimelineEntry, stepTx *models.StepTransaction) (*models.Sample, error) {
	var conflict error
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var currentStep int
		err := tx.QueryRow(ctx,
			`SELECT current_step FROM samples WHERE sample_id = $1 FOR UPDATE`,
			sampleID).Scan(&currentStep)
		if errors.Is(err, pgx.ErrNoRows) {
			conflict = ErrSampleNotFound
			return conflict
		}
		if err != nil {
			return err
		}

		switch {
		case int(entry.Step) <= currentStep:
			// Replay: patch anchor fields only when an id arrived late
			_, err = tx.Exec(ctx,
				`UPDATE timeline_entries
				 SET transaction_id = $3, verified = $4, onchain_hash_recorded = $5
				 WHERE sample_id = $1 AND step = $2 AND transaction_id = '' AND $3 <> ''`,
				sampleID, int(entry.Step), entry.TransactionID, entry.Verified, entry.OnChainHashRecorded)
			if err != nil {
				return err
			}
		case int(entry.Step) == currentStep+1:
			if err := insertEntry(ctx, tx, sampleID, entry); err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE samples SET current_step = $2, status = $3, updated_at = $4 WHERE sample_id = $1`,
				sampleID, int(entry.Step), string(models.StatusForStep(entry.Step)), time.Now())
			if err != nil {
				return err
			}
		default:
			conflict = ErrStepGap
			return conflict
		}

		return insertAudit(ctx, tx, stepTx)
	})
	if conflict != nil {
		return nil, conflict
	}
	if err != nil {
		return nil, &WriteError{Op: "AppendStep", Err: err}
	}
	return s.GetSample(ctx, sampleID)
}

// UpdateStepAnchor patches the anchor fields of a recorded step
func (s *PostgresStore) UpdateStepAnchor(ctx context.Context, sampleID string, step models.StepType, txID string, hashRecorded bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE timeline_entries
		 SET transaction_id = $3, verified = $4, onchain_hash_recorded = $5
		 WHERE sample_id = $1 AND step = $2`,
		sampleID, int(step), txID, txID != "", hashRecorded)
	if err != nil {
		return &WriteError{Op: "UpdateStepAnchor", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrSampleNotFound
	}
	return nil
}

// GetSample loads the full aggregate: sample row plus ordered timeline
func (s *PostgresStore) GetSample(ctx context.Context, sampleID string) (*models.Sample, error) {
	sample := &models.Sample{SampleID: sampleID}
	var status string
	var currentStep int
	err := s.pool.QueryRow(ctx,
		`SELECT patient_id, status, current_step, created_at, updated_at
		 FROM samples WHERE sample_id = $1`, sampleID).
		Scan(&sample.PatientID, &status, &currentStep, &sample.CreatedAt, &sample.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSampleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sample %s: %w", sampleID, err)
	}
	sample.Status = models.SampleStatus(status)
	sample.CurrentStep = models.StepType(currentStep)

	rows, err := s.pool.Query(ctx,
		`SELECT step, name, hash, transaction_id, verified, onchain_hash_recorded, details, entry_timestamp
		 FROM timeline_entries WHERE sample_id = $1 ORDER BY step`, sampleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline for sample %s: %w", sampleID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.TimelineEntry
		var step int
		var details []byte
		if err := rows.Scan(&step, &entry.Name, &entry.Hash, &entry.TransactionID,
			&entry.Verified, &entry.OnChainHashRecorded, &details, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		entry.Step = models.StepType(step)
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("corrupt details for sample %s step %d: %w", sampleID, step, err)
		}
		sample.Timeline = append(sample.Timeline, entry)
		sample.HashChain = append(sample.HashChain, entry.Hash)
		sample.TransactionIDs = append(sample.TransactionIDs, entry.TransactionID)
	}
	return sample, rows.Err()
}

// ListSamples returns matching samples, newest first
func (s *PostgresStore) ListSamples(ctx context.Context, filter SampleFilter) ([]*models.Sample, error) {
	query := `SELECT sample_id FROM samples WHERE ($1 = '' OR patient_id = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`
	args := []any{filter.PatientID, string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	samples := make([]*models.Sample, 0, len(ids))
	for _, id := range ids {
		sample, err := s.GetSample(ctx, id)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// ListTransactions returns the audit log for a sample, time-bounded
func (s *PostgresStore) ListTransactions(ctx context.Context, sampleID string, from, to time.Time) ([]*models.StepTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, step, hash, transaction_id, payload_digest, signer_identity, failure_reason, created_at
		 FROM step_transactions
		 WHERE sample_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at <= $3)
		 ORDER BY created_at`,
		sampleID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for sample %s: %w", sampleID, err)
	}
	defer rows.Close()

	var result []*models.StepTransaction
	for rows.Next() {
		tx := &models.StepTransaction{SampleID: sampleID}
		var step int
		if err := rows.Scan(&tx.ID, &step, &tx.Hash, &tx.TransactionID,
			&tx.PayloadDigest, &tx.SignerIdentity, &tx.FailureReason, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step transaction: %w", err)
		}
		tx.StepType = models.StepType(step)
		result = append(result, tx)
	}
	return result, rows.Err()
}

// inTx runs fn inside a transaction with commit/rollback handling
func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertEntry(ctx context.Context, tx pgx.Tx, sampleID string, entry models.TimelineEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to serialize entry details: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO timeline_entries
			(sample_id, step, name, hash, transaction_id, verified, onchain_hash_recorded, details, entry_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sampleID, int(entry.Step), entry.Name, entry.Hash, entry.TransactionID,
		entry.Verified, entry.OnChainHashRecorded, details, entry.Timestamp)
	return err
}

func insertAudit(ctx context.Context, tx pgx.Tx, stepTx *models.StepTransaction) error {
	if stepTx == nil {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO step_transactions
			(id, sample_id, step, hash, transaction_id, payload_digest, signer_identity, failure_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stepTx.ID, stepTx.SampleID, int(stepTx.StepType), stepTx.Hash, stepTx.TransactionID,
		stepTx.PayloadDigest, stepTx.SignerIdentity, stepTx.FailureReason, stepTx.Timestamp)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
