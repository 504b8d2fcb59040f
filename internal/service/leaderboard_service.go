package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type aggregateReader interface {
	AggregateWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]models.UserPointsAggregate, error)
}

// RankQuery selects the window, metric, and page of a leaderboard.
type RankQuery struct {
	Mode        models.LeaderboardMode `json:"mode" validate:"required,oneof=current total"`
	WindowStart time.Time              `json:"window_start" validate:"required"`
	WindowEnd   time.Time              `json:"window_end" validate:"required"`
	Page        int                    `json:"page"`
	PageSize    int                    `json:"page_size"`
}

// LeaderboardService derives ranked standings from ledger aggregates.
// Rankings are a pure projection of the receipt log; the cache layer
// is dropped by the ledger on every write.
type LeaderboardService struct {
	aggregates      aggregateReader
	cache           gridCache
	cacheTTL        time.Duration
	defaultPageSize int
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewLeaderboardService constructs LeaderboardService.
func NewLeaderboardService(aggregates aggregateReader, cache gridCache, cacheTTL time.Duration, defaultPageSize int, validate *validator.Validate, logger *zap.Logger) *LeaderboardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultPageSize <= 0 {
		defaultPageSize = 20
	}
	return &LeaderboardService{
		aggregates:      aggregates,
		cache:           cache,
		cacheTTL:        cacheTTL,
		defaultPageSize: defaultPageSize,
		validator:       validate,
		logger:          logger,
	}
}

// Rank returns one page of the ranked standings plus the total row
// count. Every user appears, including those with no window activity.
func (s *LeaderboardService) Rank(ctx context.Context, query RankQuery) ([]models.LeaderboardRow, int, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leaderboard query")
	}
	if !query.WindowEnd.After(query.WindowStart) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "window_end must be after window_start")
	}

	rows, err := s.fullRanking(ctx, query.Mode, query.WindowStart, query.WindowEnd)
	if err != nil {
		return nil, 0, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = s.defaultPageSize
	}
	offset := (page - 1) * size
	if offset >= len(rows) {
		return []models.LeaderboardRow{}, len(rows), nil
	}
	end := offset + size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], len(rows), nil
}

// fullRanking computes or retrieves the complete ranked list. The full
// list is cached rather than single pages so every page view shares one
// computation.
func (s *LeaderboardService) fullRanking(ctx context.Context, mode models.LeaderboardMode, start, end time.Time) ([]models.LeaderboardRow, error) {
	key := fmt.Sprintf("leaderboard:%s:%d:%d", mode, start.Unix(), end.Unix())
	if s.cache != nil {
		var cached []models.LeaderboardRow
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	aggregates, err := s.aggregates.AggregateWindow(ctx, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate ledger window")
	}

	rows := rankAggregates(aggregates, mode)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rows, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache leaderboard", zap.String("key", key), zap.Error(err))
		}
	}
	return rows, nil
}

// rankAggregates orders users by metric descending with a deterministic
// case-insensitive username tie-break, then assigns ranks: equal
// metrics share a rank, and the next distinct metric takes the 1-based
// position of its first row, so ties leave gaps rather than compressing
// the sequence.
func rankAggregates(aggregates []models.UserPointsAggregate, mode models.LeaderboardMode) []models.LeaderboardRow {
	rows := make([]models.LeaderboardRow, 0, len(aggregates))
	for _, agg := range aggregates {
		metric := agg.PointsTotal
		if mode == models.LeaderboardCurrent {
			metric = agg.PointsTotal - agg.SpentPositive
		}
		rows = append(rows, models.LeaderboardRow{
			UserID:   agg.UserID,
			Username: agg.Username,
			Metric:   metric,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Metric != rows[j].Metric {
			return rows[i].Metric > rows[j].Metric
		}
		return strings.ToLower(rows[i].Username) < strings.ToLower(rows[j].Username)
	})

	for i := range rows {
		if i > 0 && rows[i].Metric == rows[i-1].Metric {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
	return rows
}
