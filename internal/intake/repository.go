package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists intake records.
type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
}

// ListFilter pages through intakes for the admin API.
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

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db dbtx
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("intake: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newRepositoryWithDB(db dbtx) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `
	id::text, coach_payment_id::text,
	full_name, business_name, email, phone,
	program_link, intake_form_url, need_intake_form, faq_document, custom_resource,
	email_tone, upcoming_events, email_signature, question_handling, other_handling,
	status, created_at, updated_at`

// Insert stores rec and fills in the database timestamps.
func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = StatusSubmitted
	}
	query := `
		INSERT INTO coach_intake (
			id, coach_payment_id,
			full_name, business_name, email, phone,
			program_link, intake_form_url, need_intake_form, faq_document, custom_resource,
			email_tone, upcoming_events, email_signature, question_handling, other_handling,
			status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`
	var paymentID *string
	if rec.CoachPaymentID != nil {
		s := rec.CoachPaymentID.String()
		paymentID = &s
	}
	err := r.db.QueryRow(ctx, query,
		rec.ID.String(),
		paymentID,
		rec.FullName,
		rec.BusinessName,
		rec.Email,
		rec.Phone,
		rec.ProgramLink,
		rec.IntakeFormURL,
		rec.NeedIntakeForm,
		rec.FAQDocument,
		rec.CustomResource,
		rec.EmailTone,
		rec.UpcomingEvents,
		rec.EmailSignature,
		rec.QuestionHandling,
		rec.OtherHandling,
		string(rec.Status),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("intake: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches one intake.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM coach_intake WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("intake: select failed: %w", err)
	}
	return rec, nil
}

// List returns intakes newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + selectColumns + `
		FROM coach_intake
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("intake: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("intake: scan failed: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec       Record
		id        string
		paymentID *string
		status    string
	)
	err := row.Scan(
		&id, &paymentID,
		&rec.FullName, &rec.BusinessName, &rec.Email, &rec.Phone,
		&rec.ProgramLink, &rec.IntakeFormURL, &rec.NeedIntakeForm, &rec.FAQDocument, &rec.CustomResource,
		&rec.EmailTone, &rec.UpcomingEvents, &rec.EmailSignature, &rec.QuestionHandling, &rec.OtherHandling,
		&status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("intake: invalid id %q: %w", id, err)
	}
	rec.ID = parsed
	if paymentID != nil {
		pid, err := uuid.Parse(*paymentID)
		if err != nil {
			return nil, fmt.Errorf("intake: invalid payment id %q: %w", *paymentID, err)
		}
		rec.CoachPaymentID = &pid
	}
	rec.Status = Status(status)
	return &rec, nil
}
