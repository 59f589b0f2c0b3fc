package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mbd888/fraudguard/internal/retry"
)

// Bounded retry budget for statements that can lose a serialization race.
const (
	blockRetryAttempts = 3
	blockRetryDelay    = 10 * time.Millisecond
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the fraud_attempts table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fraud_attempts (
			id              VARCHAR(36) PRIMARY KEY,
			transaction_id  VARCHAR(255) NOT NULL,
			user_ip         VARCHAR(100) NOT NULL,
			device_id       VARCHAR(255),
			user_id         VARCHAR(255) NOT NULL,
			risk_level      VARCHAR(10) NOT NULL CHECK (risk_level IN ('low', 'medium', 'high', 'critical')),
			additional_data JSONB,
			is_blocked      BOOLEAN NOT NULL DEFAULT FALSE,
			block_reason    TEXT,
			attempt_count   INTEGER NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_fraud_attempts_transaction
			ON fraud_attempts (transaction_id, created_at ASC);

		CREATE INDEX IF NOT EXISTS idx_fraud_attempts_user
			ON fraud_attempts (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_fraud_attempts_created
			ON fraud_attempts (created_at DESC);
	`)
	return err
}

const attemptColumns = `id, transaction_id, user_ip, COALESCE(device_id, ''), user_id,
	risk_level, additional_data, is_blocked, block_reason, attempt_count, created_at, updated_at`

func (p *PostgresStore) Insert(ctx context.Context, rec *AttemptRecord) error {
	var dataJSON []byte
	if rec.AdditionalData != nil {
		var err error
		dataJSON, err = json.Marshal(rec.AdditionalData)
		if err != nil {
			return fmt.Errorf("marshal additional data: %w", err)
		}
	}

	var deviceID *string
	if rec.DeviceID != "" {
		deviceID = &rec.DeviceID
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO fraud_attempts
			(id, transaction_id, user_ip, device_id, user_id, risk_level,
			 additional_data, is_blocked, block_reason, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.TransactionID, rec.UserIP, deviceID, rec.UserID,
		string(rec.RiskLevel), dataJSON, rec.IsBlocked, rec.BlockReason,
		rec.AttemptCount, rec.CreatedAt, rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateID
	}
	if err != nil {
		return fmt.Errorf("insert fraud attempt: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByID(ctx context.Context, id string) (*AttemptRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM fraud_attempts WHERE id = $1
	`, id)
	return scanAttempt(row)
}

func (p *PostgresStore) GetByTransactionID(ctx context.Context, transactionID string) (*AttemptRecord, error) {
	// Oldest match wins when several attempts share a transaction id.
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM fraud_attempts
		WHERE transaction_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, transactionID)
	return scanAttempt(row)
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*AttemptRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM fraud_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list fraud attempts by user: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAttempts(rows)
}

func (p *PostgresStore) List(ctx context.Context, offset, limit int) ([]*AttemptRecord, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fraud_attempts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fraud attempts: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM fraud_attempts
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list fraud attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanAttempts(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (p *PostgresStore) ApplyUpdate(ctx context.Context, id string, upd Update) (*AttemptRecord, error) {
	set := []string{"updated_at = NOW()"}
	args := []any{id}

	appendSet := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.RiskLevel != nil {
		appendSet("risk_level", string(*upd.RiskLevel))
	}
	if upd.IsBlocked != nil {
		appendSet("is_blocked", *upd.IsBlocked)
	}
	if upd.BlockReason != nil {
		appendSet("block_reason", *upd.BlockReason)
	}
	if upd.AttemptCount != nil {
		appendSet("attempt_count", *upd.AttemptCount)
	}

	row := p.db.QueryRowContext(ctx, `
		UPDATE fraud_attempts SET `+strings.Join(set, ", ")+`
		WHERE id = $1
		RETURNING `+attemptColumns, args...)
	return scanAttempt(row)
}

// ApplyBlock applies the blocked transition as one atomic statement: the
// row lock taken by UPDATE serializes concurrent blocks, each applying a
// full reason overwrite and increment. Serialization failures are retried
// a bounded number of times, then surfaced as ErrConflict.
func (p *PostgresStore) ApplyBlock(ctx context.Context, id, reason string) (*AttemptRecord, error) {
	var rec *AttemptRecord

	err := retry.Do(ctx, blockRetryAttempts, blockRetryDelay, func() error {
		row := p.db.QueryRowContext(ctx, `
			UPDATE fraud_attempts SET
				is_blocked    = TRUE,
				block_reason  = $2,
				risk_level    = 'critical',
				attempt_count = attempt_count + 1,
				updated_at    = NOW()
			WHERE id = $1
			RETURNING `+attemptColumns, id, reason)

		var scanErr error
		rec, scanErr = scanAttempt(row)
		if scanErr == nil {
			return nil
		}
		if isSerializationFailure(scanErr) {
			return scanErr
		}
		return retry.Permanent(scanErr)
	})
	if err != nil {
		if isSerializationFailure(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return rec, nil
}

func scanAttempts(rows *sql.Rows) ([]*AttemptRecord, error) {
	var result []*AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud attempts: %w", err)
	}
	return result, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*AttemptRecord, error) {
	var (
		rec       AttemptRecord
		riskLevel string
		dataJSON  []byte
	)
	err := row.Scan(
		&rec.ID, &rec.TransactionID, &rec.UserIP, &rec.DeviceID, &rec.UserID,
		&riskLevel, &dataJSON, &rec.IsBlocked, &rec.BlockReason,
		&rec.AttemptCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan fraud attempt: %w", err)
	}

	rec.RiskLevel = RiskLevel(riskLevel)
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &rec.AdditionalData); err != nil {
			return nil, fmt.Errorf("unmarshal additional data: %w", err)
		}
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure and deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
