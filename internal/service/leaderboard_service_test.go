package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
)

type fakeAggregateReader struct {
	aggregates []models.UserPointsAggregate
	calls      int
}

func (f *fakeAggregateReader) AggregateWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]models.UserPointsAggregate, error) {
	f.calls++
	return f.aggregates, nil
}

func rankWindow() (time.Time, time.Time) {
	return day(2026, 3, 1), day(2026, 4, 1)
}

func TestRankAggregatesTiesShareRankAndLeaveGaps(t *testing.T) {
	rows := rankAggregates([]models.UserPointsAggregate{
		{UserID: "u1", Username: "alice", PointsTotal: 10},
		{UserID: "u2", Username: "Bob", PointsTotal: 10},
		{UserID: "u3", Username: "carol", PointsTotal: 5},
		{UserID: "u4", Username: "dave", PointsTotal: 0},
	}, models.LeaderboardTotal)

	require.Len(t, rows, 4)
	assert.Equal(t, []int{1, 1, 3, 4}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank, rows[3].Rank})
	// Tie-break is case-insensitive username order.
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, "Bob", rows[1].Username)
}

func TestRankAggregatesCurrentSubtractsSpends(t *testing.T) {
	rows := rankAggregates([]models.UserPointsAggregate{
		{UserID: "u1", Username: "alice", PointsTotal: 100, SpentPositive: 80},
		{UserID: "u2", Username: "bob", PointsTotal: 50, SpentPositive: 0},
	}, models.LeaderboardCurrent)

	assert.Equal(t, "bob", rows[0].Username)
	assert.Equal(t, 50, rows[0].Metric)
	assert.Equal(t, 20, rows[1].Metric)

	total := rankAggregates([]models.UserPointsAggregate{
		{UserID: "u1", Username: "alice", PointsTotal: 100, SpentPositive: 80},
		{UserID: "u2", Username: "bob", PointsTotal: 50, SpentPositive: 0},
	}, models.LeaderboardTotal)
	assert.Equal(t, "alice", total[0].Username, "spends do not affect the total mode")
}

func TestRankIncludesInactiveUsers(t *testing.T) {
	reader := &fakeAggregateReader{aggregates: []models.UserPointsAggregate{
		{UserID: "u1", Username: "alice", PointsTotal: 10},
		{UserID: "u2", Username: "bob", PointsTotal: 0, SpentPositive: 0},
	}}
	svc := NewLeaderboardService(reader, nil, time.Minute, 20, nil, nil)

	start, end := rankWindow()
	rows, total, err := svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardCurrent, WindowStart: start, WindowEnd: end})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, rows[1].Metric)
	assert.Equal(t, 2, rows[1].Rank)
}

func TestRankPagination(t *testing.T) {
	reader := &fakeAggregateReader{aggregates: []models.UserPointsAggregate{
		{UserID: "u1", Username: "a", PointsTotal: 30},
		{UserID: "u2", Username: "b", PointsTotal: 20},
		{UserID: "u3", Username: "c", PointsTotal: 10},
	}}
	svc := NewLeaderboardService(reader, nil, time.Minute, 2, nil, nil)
	start, end := rankWindow()

	page1, total, err := svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardTotal, WindowStart: start, WindowEnd: end, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "a", page1[0].Username)

	page2, _, err := svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardTotal, WindowStart: start, WindowEnd: end, Page: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "c", page2[0].Username)
	assert.Equal(t, 3, page2[0].Rank, "rank is absolute, not per page")

	beyond, _, err := svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardTotal, WindowStart: start, WindowEnd: end, Page: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestRankRejectsInvertedWindow(t *testing.T) {
	svc := NewLeaderboardService(&fakeAggregateReader{}, nil, time.Minute, 20, nil, nil)
	start, end := rankWindow()

	_, _, err := svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardTotal, WindowStart: end, WindowEnd: start})
	require.Error(t, err)

	_, _, err = svc.Rank(context.Background(), RankQuery{Mode: "weekly", WindowStart: start, WindowEnd: end})
	require.Error(t, err)
}

func TestRankCachesFullRanking(t *testing.T) {
	reader := &fakeAggregateReader{aggregates: []models.UserPointsAggregate{
		{UserID: "u1", Username: "alice", PointsTotal: 10},
	}}
	cache := &fakeCache{}
	svc := NewLeaderboardService(reader, cache, time.Minute, 20, nil, nil)
	start, end := rankWindow()

	query := RankQuery{Mode: models.LeaderboardTotal, WindowStart: start, WindowEnd: end}
	_, _, err := svc.Rank(context.Background(), query)
	require.NoError(t, err)
	_, _, err = svc.Rank(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, 1, reader.calls)

	// A different mode is a different cache entry.
	_, _, err = svc.Rank(context.Background(), RankQuery{Mode: models.LeaderboardCurrent, WindowStart: start, WindowEnd: end})
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}
