// Package fraud implements transaction risk assessment and blocking.
//
// Every submitted attempt is assigned a risk level derived from how many
// attempts the same user has made before. The per-user count is claimed
// through an atomic counter so that two concurrent attempts never evaluate
// against the same prior count. Records are immutable after creation except
// for their risk/blocked status, which administrative updates and block
// operations may change.
package fraud

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("fraud record not found")
	ErrDuplicateID      = errors.New("fraud record id already exists")
	ErrInvalidRiskLevel = errors.New("invalid risk level")
	ErrEmptyBlockReason = errors.New("block reason must not be empty")
	ErrConflict         = errors.New("concurrent update conflict")
)

// RiskLevel classifies an attempt. Levels are ordered from least to most
// severe; the ordering is documentation only and never coerced.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel validates a caller-supplied risk level string.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return RiskLevel(s), nil
	}
	return "", ErrInvalidRiskLevel
}

// AttemptRecord is one submitted transaction attempt and its current
// risk/blocked status.
type AttemptRecord struct {
	ID             string         `json:"id"`
	TransactionID  string         `json:"transactionId"`
	UserIP         string         `json:"userIp"`
	DeviceID       string         `json:"deviceId,omitempty"`
	UserID         string         `json:"userId"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
	IsBlocked      bool           `json:"isBlocked"`
	BlockReason    *string        `json:"blockReason,omitempty"`
	AttemptCount   int            `json:"attemptCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Update carries a partial mutation of an AttemptRecord. Nil fields are
// left untouched; supplied fields are applied verbatim.
type Update struct {
	RiskLevel    *RiskLevel
	IsBlocked    *bool
	BlockReason  *string
	AttemptCount *int
}

// IsZero reports whether the update supplies no fields at all.
func (u Update) IsZero() bool {
	return u.RiskLevel == nil && u.IsBlocked == nil && u.BlockReason == nil && u.AttemptCount == nil
}

// Store persists attempt records.
//
// ApplyBlock must apply its transition as a single atomic read-modify-write
// per record id: concurrent blocks serialize, each applying a full reason
// overwrite and increment, never a torn update.
type Store interface {
	Insert(ctx context.Context, rec *AttemptRecord) error
	GetByID(ctx context.Context, id string) (*AttemptRecord, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*AttemptRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*AttemptRecord, error)
	List(ctx context.Context, offset, limit int) ([]*AttemptRecord, int, error)
	ApplyUpdate(ctx context.Context, id string, upd Update) (*AttemptRecord, error)
	ApplyBlock(ctx context.Context, id, reason string) (*AttemptRecord, error)
}

// Counter hands out per-user attempt ordinals.
//
// NextOrdinal returns the number of attempts the user had before this call
// and increments the stored count in the same atomic step. For any set of
// concurrent callers with the same user id the returned ordinals form a
// gapless, duplicate-free run.
type Counter interface {
	NextOrdinal(ctx context.Context, userID string) (int, error)
}

// Telemetry receives attempt and block events. Implementations are
// best-effort sinks: the engine never lets a sink failure abort a request.
type Telemetry interface {
	RecordAttempt(success bool, duration time.Duration, riskLevel string)
	RecordBlocked(riskLevel string)
}
