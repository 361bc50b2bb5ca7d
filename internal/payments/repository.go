package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPaymentNotFound is returned when no record matches the lookup key.
var ErrPaymentNotFound = errors.New("payment not found")

// Record is one checkout attempt (table coach_payments).
type Record struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	StripeSessionID string    `json:"stripe_session_id"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewRecord is the input for Insert.
type NewRecord struct {
	Email           string
	Name            string
	StripeSessionID string
}

// ListFilter pages through records for the admin API.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists payment records with pgx.
type PostgresRepository struct {
	db dbtx
}

// NewPostgresRepository creates a repository backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newRepositoryWithDB(db dbtx) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new record in pending status.
func (r *PostgresRepository) Insert(ctx context.Context, in NewRecord) (*Record, error) {
	rec := &Record{
		ID:              uuid.New(),
		Email:           in.Email,
		Name:            in.Name,
		StripeSessionID: in.StripeSessionID,
		Status:          StatusPending,
	}
	query := `
		INSERT INTO coach_payments (id, email, name, stripe_session_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.Email,
		rec.Name,
		rec.StripeSessionID,
		string(rec.Status),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("payments: insert failed: %w", err)
	}
	return rec, nil
}

// UpdateStatusBySession moves the record for sessionID to status. The write
// only applies when CanTransition allows it; applied is false when the record
// is missing or the transition was refused.
func (r *PostgresRepository) UpdateStatusBySession(ctx context.Context, sessionID string, status Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("payments: invalid status %q", status)
	}
	query := `
		UPDATE coach_payments
		SET status = $1, updated_at = now()
		WHERE stripe_session_id = $2 AND status = ANY($3)
	`
	tag, err := r.db.Exec(ctx, query, string(status), sessionID, allowedSources(status))
	if err != nil {
		return false, fmt.Errorf("payments: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetBySession fetches a record by its Stripe checkout session id.
func (r *PostgresRepository) GetBySession(ctx context.Context, sessionID string) (*Record, error) {
	query := `
		SELECT id::text, email, name, stripe_session_id, status, created_at, updated_at
		FROM coach_payments
		WHERE stripe_session_id = $1
	`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payments: select failed: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT id::text, email, name, stripe_session_id, status, created_at, updated_at
		FROM coach_payments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("payments: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan failed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec    Record
		id     string
		status string
	)
	if err := row.Scan(&id, &rec.Email, &rec.Name, &rec.StripeSessionID, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("payments: invalid id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Status = Status(status)
	return &rec, nil
}
