package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	// Rebound queries must come out with $n placeholders like postgres.
	sqlx.BindDriver("sqlmock", sqlx.DOLLAR)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func spentReceipt(reference string) *models.PointsReceipt {
	return &models.PointsReceipt{
		UserID:    "u1",
		IssuerID:  "tutor-1",
		Type:      models.ReceiptSpent,
		Amount:    -20,
		Reference: &reference,
	}
}

func TestReceiptRepositoryInsertSpentIdempotentInserts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM points_receipts WHERE reference = $1 AND type = $2")).
		WithArgs("TS-sess-1", string(models.ReceiptSpent)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO points_receipts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, inserted, err := repo.InsertSpentIdempotent(context.Background(), spentReceipt("TS-sess-1"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositoryInsertSpentIdempotentReturnsExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM points_receipts WHERE reference = $1 AND type = $2")).
		WithArgs("TS-sess-1", string(models.ReceiptSpent)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rcpt-existing"))
	mock.ExpectRollback()

	id, inserted, err := repo.InsertSpentIdempotent(context.Background(), spentReceipt("TS-sess-1"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "rcpt-existing", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositoryInsertSpentIdempotentResolvesRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM points_receipts WHERE reference = $1 AND type = $2")).
		WithArgs("TS-sess-1", string(models.ReceiptSpent)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO points_receipts")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM points_receipts WHERE reference = $1 AND type = $2")).
		WithArgs("TS-sess-1", string(models.ReceiptSpent)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("rcpt-winner"))

	id, inserted, err := repo.InsertSpentIdempotent(context.Background(), spentReceipt("TS-sess-1"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "rcpt-winner", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositoryInsertSpentRequiresReference(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	_, _, err := repo.InsertSpentIdempotent(context.Background(), &models.PointsReceipt{UserID: "u1", Type: models.ReceiptSpent, Amount: -10})
	require.Error(t, err)
}

func TestReceiptRepositoryDeleteByReference(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM points_receipts WHERE reference = $1")).
		WithArgs("TS-sess-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.DeleteByReference(context.Background(), "TS-sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositorySumBalances(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	mock.ExpectQuery("SELECT").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"earned", "spent"}).AddRow(120, -30))

	earned, spent, err := repo.SumBalances(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 120, earned)
	assert.Equal(t, -30, spent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositoryAggregateWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"user_id", "username", "points_total", "spent_positive"}).
		AddRow("u1", "alice", 100, 20).
		AddRow("u2", "bob", 0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN points_receipts")).
		WithArgs(start, end).
		WillReturnRows(rows)

	aggregates, err := repo.AggregateWindow(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, aggregates, 2)
	assert.Equal(t, 20, aggregates[0].SpentPositive)
	assert.Equal(t, "bob", aggregates[1].Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReceiptRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "issuer_id", "receipt_date", "type", "amount", "reason", "reference", "notes"}).
		AddRow("r1", "u1", "admin-1", time.Now(), "EARNED", 50, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("user_id = $1 AND type = $2")).
		WithArgs("u1", models.ReceiptEarned).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("u1", models.ReceiptEarned).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	receipts, total, err := repo.List(context.Background(), models.ReceiptFilter{UserID: "u1", Type: models.ReceiptEarned})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, receipts, 1)
	assert.Equal(t, 50, receipts[0].Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}
