package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/fraudguard/internal/idgen"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/traces"
)

// riskUnknown labels telemetry for attempts that failed before a risk
// level could be assigned.
const riskUnknown = "unknown"

// CreateInput carries the caller-supplied fields of a new attempt.
type CreateInput struct {
	TransactionID  string
	UserIP         string
	DeviceID       string
	UserID         string
	AdditionalData map[string]any
}

// Service is the decision engine: it claims an ordinal for the user,
// evaluates risk, persists the record, and reports the outcome.
type Service struct {
	store     Store
	counter   Counter
	telemetry Telemetry
}

// NewService creates a decision engine. telemetry may be nil, in which case
// no events are emitted.
func NewService(store Store, counter Counter, telemetry Telemetry) *Service {
	return &Service{store: store, counter: counter, telemetry: telemetry}
}

// Create assesses and records a new transaction attempt.
//
// The ordinal is claimed before the insert; risk for attempt N+1 therefore
// always accounts for attempt N having been claimed, regardless of which
// insert lands first. On any failure the whole operation aborts with no
// partial record visible, and a failure event is reported.
func (s *Service) Create(ctx context.Context, in CreateInput) (*AttemptRecord, error) {
	start := time.Now()

	ctx, span := traces.StartSpan(ctx, "fraud.create",
		traces.UserID(in.UserID),
		traces.TransactionID(in.TransactionID),
	)
	defer span.End()

	ordinal, err := s.counter.NextOrdinal(ctx, in.UserID)
	if err != nil {
		s.reportAttempt(ctx, false, time.Since(start), riskUnknown)
		return nil, fmt.Errorf("claim attempt ordinal: %w", err)
	}

	risk := EvaluateRisk(ordinal)
	span.SetAttributes(traces.Risk(string(risk)))

	now := time.Now().UTC()
	rec := &AttemptRecord{
		ID:             idgen.New(),
		TransactionID:  in.TransactionID,
		UserIP:         in.UserIP,
		DeviceID:       in.DeviceID,
		UserID:         in.UserID,
		RiskLevel:      risk,
		AdditionalData: in.AdditionalData,
		IsBlocked:      false,
		AttemptCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		s.reportAttempt(ctx, false, time.Since(start), riskUnknown)
		return nil, fmt.Errorf("insert attempt record: %w", err)
	}

	s.reportAttempt(ctx, true, time.Since(start), string(risk))
	return rec, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*AttemptRecord, error) {
	return s.store.GetByID(ctx, id)
}

// GetByTransaction returns the oldest record referencing the transaction
// id, or ErrNotFound.
func (s *Service) GetByTransaction(ctx context.Context, transactionID string) (*AttemptRecord, error) {
	return s.store.GetByTransactionID(ctx, transactionID)
}

// ListByUser returns all of a user's records, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*AttemptRecord, error) {
	return s.store.ListByUser(ctx, userID)
}

// List returns one page of records, newest first, plus the total count.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*AttemptRecord, int, error) {
	return s.store.List(ctx, offset, limit)
}

// Update applies an administrative partial update. Only supplied fields
// change; ordinals are not re-evaluated. A supplied risk level has already
// been validated by the caller (ParseRiskLevel) and is reported to
// telemetry as an attempt event.
func (s *Service) Update(ctx context.Context, id string, upd Update) (*AttemptRecord, error) {
	start := time.Now()

	rec, err := s.store.ApplyUpdate(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	if upd.RiskLevel != nil {
		s.reportAttempt(ctx, true, time.Since(start), string(*upd.RiskLevel))
	}
	return rec, nil
}

// Block forces the record into (critical, blocked) and increments its
// attempt count. Every call is a full re-application: a second block
// overwrites the reason and increments again rather than no-opping.
func (s *Service) Block(ctx context.Context, id, reason string) (*AttemptRecord, error) {
	start := time.Now()

	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyBlockReason
	}

	ctx, span := traces.StartSpan(ctx, "fraud.block", traces.RecordID(id))
	defer span.End()

	rec, err := s.store.ApplyBlock(ctx, id, reason)
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		s.reportAttempt(ctx, false, time.Since(start), riskUnknown)
		return nil, fmt.Errorf("apply block: %w", err)
	}

	s.reportAttempt(ctx, true, time.Since(start), string(RiskCritical))
	s.reportBlocked(ctx, string(RiskCritical))
	return rec, nil
}

// reportAttempt emits an attempt event. Sink failures are logged and
// swallowed; they must never fail the caller's request.
func (s *Service) reportAttempt(ctx context.Context, success bool, duration time.Duration, riskLevel string) {
	if s.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Warn("telemetry sink failed", "event", "attempt", "error", r)
		}
	}()
	s.telemetry.RecordAttempt(success, duration, riskLevel)
}

func (s *Service) reportBlocked(ctx context.Context, riskLevel string) {
	if s.telemetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Warn("telemetry sink failed", "event", "blocked", "error", r)
		}
	}()
	s.telemetry.RecordBlocked(riskLevel)
}
