package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event type tags written by the funnel.
const (
	TypeCheckoutInitiated      = "checkout_initiated"
	TypePaymentSucceeded       = "payment_succeeded"
	TypeCheckoutExpired        = "checkout_expired"
	TypePaymentFailed          = "payment_failed"
	TypeQuestionnaireSubmitted = "questionnaire_submitted"
)

// Appender is the write side of the audit log.
type Appender interface {
	Append(ctx context.Context, eventType string, payload map[string]any) error
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store appends entries through the log_event stored procedure so the table
// stays append-only from the application's point of view.
type Store struct {
	db rowQuerier
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("eventlog: pgx pool required")
	}
	return &Store{db: pool}
}

func newStoreWithQuerier(db rowQuerier) *Store {
	if db == nil {
		panic("eventlog: querier required")
	}
	return &Store{db: db}
}

// Append writes one entry. A nil payload is stored as an empty object.
func (s *Store) Append(ctx context.Context, eventType string, payload map[string]any) error {
	if eventType == "" {
		return fmt.Errorf("eventlog: event type required")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventlog: marshal payload: %w", err)
	}
	var id string
	if err := s.db.QueryRow(ctx, `SELECT log_event($1, $2::jsonb)::text`, eventType, data).Scan(&id); err != nil {
		return fmt.Errorf("eventlog: log_event %s: %w", eventType, err)
	}
	return nil
}
