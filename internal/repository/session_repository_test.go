package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
)

func pendingSession() *models.TutoringSession {
	return &models.TutoringSession{
		UserID:          "student-1",
		OwnerID:         "tutor-1",
		SubjectID:       "sub-math",
		SessionDate:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMinute:     540,
		DurationMinutes: 60,
		BaseCost:        decimal.NewFromInt(100),
		PointsSpent:     20,
		Status:          models.SessionRequested,
	}
}

func TestSessionRepositoryCreateIfSlotFree(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))")).
		WithArgs("tutor-1", "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tutoring_sessions WHERE owner_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tutoring_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session := pendingSession()
	created, err := repo.CreateIfSlotFree(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateIfSlotFreeConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tutoring_sessions WHERE owner_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-other"))
	mock.ExpectRollback()

	created, err := repo.CreateIfSlotFree(context.Background(), pendingSession())
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The conflict re-check alone cannot serialise two requests for an
// empty slot: both would read zero rows and both would insert. The
// advisory lock must be taken first, and the request that acquires it
// second must see the winner's committed row and back off.
func TestSessionRepositoryCreateIfSlotFreeLockPrecedesRecheck(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	// Ordered expectations: acquiring the lock before the re-check is
	// the whole guarantee.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))")).
		WithArgs("tutor-1", "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM tutoring_sessions WHERE owner_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-winner"))
	mock.ExpectRollback()

	created, err := repo.CreateIfSlotFree(context.Background(), pendingSession())
	require.NoError(t, err)
	assert.False(t, created, "the request that lost the lock must not insert")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListOccupyingEmptyOwners(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	sessions, err := repo.ListOccupying(context.Background(), nil, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, sessions)
}

func TestSessionRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tutoring_sessions SET status = $1")).
		WithArgs(models.SessionDenied, &now, nil, sqlmock.AnyArg(), "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "sess-1", models.SessionDenied, &now, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListPinsFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "owner_id", "subject_id", "session_date", "start_minute", "duration_minutes", "base_cost", "points_spent", "status", "cancellation_date", "paid_date", "created_at", "updated_at"}).
		AddRow("sess-1", "student-1", "tutor-1", "sub-math", time.Now(), 540, 60, "100", 20, "REQUESTED", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("owner_id = $1")).
		WithArgs("tutor-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("tutor-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{OwnerID: "tutor-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
