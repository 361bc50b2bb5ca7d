package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intakeColumns = []string{
	"id", "coach_payment_id",
	"full_name", "business_name", "email", "phone",
	"program_link", "intake_form_url", "need_intake_form", "faq_document", "custom_resource",
	"email_tone", "upcoming_events", "email_signature", "question_handling", "other_handling",
	"status", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func TestRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithDB(mock)
	now := time.Now().UTC()
	paymentID := uuid.MustParse("5b0d8c7e-2b7a-4d8e-9a55-0f4f6d3a2c11")
	rec := validSubmission().ToRecord()
	rec.CoachPaymentID = &paymentID

	mock.ExpectQuery("INSERT INTO coach_intake").
		WithArgs(
			rec.ID.String(), pgxmock.AnyArg(),
			"Jane Doe", "Jane Coaching", "jane@example.com", "+1 555 123 4567",
			"https://janecoaching.com/program", rec.IntakeFormURL, true, "https://docs.example.com/faq", rec.CustomResource,
			"friendly", rec.UpcomingEvents, "Jane, Head Coach", "forward", rec.OtherHandling,
			"submitted",
		).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO coach_intake").WillReturnError(errors.New("relation does not exist"))
	err = newRepositoryWithDB(mock).Insert(context.Background(), validSubmission().ToRecord())
	assert.Error(t, err)
}

func TestRepositoryGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepositoryWithDB(mock)
	id := uuid.MustParse("7c4b9d1e-3f6a-4e2b-8c9d-1a2b3c4d5e6f")
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM coach_intake WHERE id").
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(intakeColumns).AddRow(
			id.String(), strPtr("5b0d8c7e-2b7a-4d8e-9a55-0f4f6d3a2c11"),
			"Jane Doe", "Jane Coaching", "jane@example.com", "555",
			"https://program", nil, false, "https://faq", nil,
			"professional", strPtr("Summit in May"), "Jane", "other", strPtr("Send to assistant"),
			"submitted", now, now,
		))

	rec, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	require.NotNil(t, rec.CoachPaymentID)
	assert.Equal(t, "5b0d8c7e-2b7a-4d8e-9a55-0f4f6d3a2c11", rec.CoachPaymentID.String())
	assert.Nil(t, rec.IntakeFormURL)
	require.NotNil(t, rec.OtherHandling)
	assert.Equal(t, "Send to assistant", *rec.OtherHandling)
	assert.Equal(t, StatusSubmitted, rec.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM coach_intake").WithArgs(id.String()).WillReturnError(pgx.ErrNoRows)

	_, err = newRepositoryWithDB(mock).GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM coach_intake").
		WithArgs("", 10, 20).
		WillReturnRows(pgxmock.NewRows(intakeColumns).AddRow(
			uuid.NewString(), nil,
			"Sam", "Sam Co", "sam@example.com", "555",
			"https://program", nil, true, "https://faq", nil,
			"motivational", nil, "Sam", "flag", nil,
			"processed", now, now,
		))

	records, err := newRepositoryWithDB(mock).List(context.Background(), ListFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].CoachPaymentID)
	assert.Equal(t, StatusProcessed, records[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
