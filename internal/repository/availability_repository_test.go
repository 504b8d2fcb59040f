package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
)

func TestAvailabilityRepositoryListRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	from := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "block_date", "start_minute", "end_minute", "created_at"}).
		AddRow("blk-1", "tutor-1", from, 540, 720, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("block_date >= $1 AND block_date <= $2 AND owner_id = $3")).
		WithArgs(from, to, "tutor-1").
		WillReturnRows(rows)

	blocks, err := repo.ListRange(context.Background(), models.AvailabilityFilter{OwnerID: "tutor-1", DateFrom: from, DateTo: to})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 540, blocks[0].StartMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListRangeWithoutOwner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	from := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("block_date >= $1 AND block_date <= $2 ORDER BY")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "block_date", "start_minute", "end_minute", "created_at"}))

	blocks, err := repo.ListRange(context.Background(), models.AvailabilityFilter{DateFrom: from, DateTo: to})
	require.NoError(t, err)
	assert.Empty(t, blocks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_blocks")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	block := &models.AvailabilityBlock{
		OwnerID:     "tutor-1",
		BlockDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMinute: 540,
		EndMinute:   720,
	}
	require.NoError(t, repo.Create(context.Background(), block))
	assert.NotEmpty(t, block.ID)
	assert.False(t, block.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPricingRepositoryEffectiveRule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPricingRepository(db)

	rows := sqlmock.NewRows([]string{"id", "subject_id", "hourly_rate", "min_hours", "max_hours", "max_point_discount_percent", "created_at"}).
		AddRow("rule-1", "sub-math", "100", 1.0, 3.0, 25.0, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM pricing_rules WHERE subject_id = $1 ORDER BY created_at DESC")).
		WithArgs("sub-math").
		WillReturnRows(rows)

	rule, err := repo.EffectiveRule(context.Background(), "sub-math")
	require.NoError(t, err)
	assert.Equal(t, 60, rule.MinMinutes())
	assert.Equal(t, 180, rule.MaxMinutes())
	assert.Equal(t, "100", rule.HourlyRate.String())
	require.NoError(t, mock.ExpectationsWereMet())
}
