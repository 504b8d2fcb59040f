package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/dto"
	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type availabilityRepo interface {
	ListRange(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilityBlock, error)
	ListByDate(ctx context.Context, date time.Time, ownerID string) ([]models.AvailabilityBlock, error)
	FindByID(ctx context.Context, id string) (*models.AvailabilityBlock, error)
	Create(ctx context.Context, block *models.AvailabilityBlock) error
	Delete(ctx context.Context, id string) error
}

type occupancyReader interface {
	ListOccupying(ctx context.Context, ownerIDs []string, dateFrom, dateTo time.Time) ([]models.TutoringSession, error)
}

type durationClamper interface {
	EffectiveRule(ctx context.Context, subjectID string) (*models.PricingRule, error)
	ClampDuration(rule *models.PricingRule, requestedMinutes int) int
}

type gridCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// MonthGridQuery selects the month projection to build.
type MonthGridQuery struct {
	OwnerID         string `json:"owner_id"`
	SubjectID       string `json:"subject_id" validate:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Year            int    `json:"year" validate:"required,gte=2000,lte=2200"`
	Month           int    `json:"month" validate:"required,gte=1,lte=12"`
}

// CreateBlockRequest declares a new availability window.
type CreateBlockRequest struct {
	OwnerID   string    `json:"owner_id" validate:"required"`
	BlockDate time.Time `json:"block_date" validate:"required"`
	StartTime string    `json:"start_time" validate:"required"`
	EndTime   string    `json:"end_time" validate:"required"`
}

// AvailabilityService builds the bookable month grid and manages the
// availability blocks behind it.
type AvailabilityService struct {
	blocks    availabilityRepo
	sessions  occupancyReader
	pricing   durationClamper
	cache     gridCache
	leadDays  int
	gridStep  int
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAvailabilityService constructs AvailabilityService.
func NewAvailabilityService(blocks availabilityRepo, sessions occupancyReader, pricing durationClamper, cache gridCache, leadDays, gridStep int, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if leadDays < 0 {
		leadDays = 0
	}
	if gridStep <= 0 {
		gridStep = 30
	}
	return &AvailabilityService{
		blocks:    blocks,
		sessions:  sessions,
		pricing:   pricing,
		cache:     cache,
		leadDays:  leadDays,
		gridStep:  gridStep,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// bookingCutoff returns the first date bookings may target. With a lead
// of N days, today plus N full days must pass before the session date.
func bookingCutoff(now time.Time, leadDays int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, leadDays+1)
}

func dayKey(ownerID string, date time.Time) string {
	return ownerID + "|" + date.Format("2006-01-02")
}

// MonthGrid projects one month of availability into bookable start
// times for the requested subject and duration. Read-only; results are
// cached briefly because staleness is resolved by the commit-time
// conflict re-check.
func (s *AvailabilityService) MonthGrid(ctx context.Context, query MonthGridQuery) (*dto.MonthGridResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grid query")
	}

	rule, err := s.pricing.EffectiveRule(ctx, query.SubjectID)
	if err != nil {
		return nil, err
	}
	duration := s.pricing.ClampDuration(rule, query.DurationMinutes)

	cacheKey := fmt.Sprintf("grid:%s:%s:%d:%04d-%02d", query.OwnerID, query.SubjectID, duration, query.Year, query.Month)
	if s.cache != nil {
		var cached dto.MonthGridResponse
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	grid, err := s.buildMonthGrid(ctx, query, duration)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, grid, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache month grid", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return grid, nil
}

func (s *AvailabilityService) buildMonthGrid(ctx context.Context, query MonthGridQuery, duration int) (*dto.MonthGridResponse, error) {
	grid := &dto.MonthGridResponse{
		Year:            query.Year,
		Month:           query.Month,
		SubjectID:       query.SubjectID,
		DurationMinutes: duration,
		Days:            []dto.GridDay{},
	}

	monthStart := time.Date(query.Year, time.Month(query.Month), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	cutoff := bookingCutoff(s.now(), s.leadDays)

	dateFrom := monthStart
	if dateFrom.Before(cutoff) {
		dateFrom = cutoff
	}
	if monthEnd.Before(dateFrom) {
		return grid, nil
	}

	blocks, err := s.blocks.ListRange(ctx, models.AvailabilityFilter{OwnerID: query.OwnerID, DateFrom: dateFrom, DateTo: monthEnd})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability blocks")
	}
	if len(blocks) == 0 {
		return grid, nil
	}

	ownerSet := make(map[string]struct{})
	var ownerIDs []string
	for _, block := range blocks {
		if _, seen := ownerSet[block.OwnerID]; !seen {
			ownerSet[block.OwnerID] = struct{}{}
			ownerIDs = append(ownerIDs, block.OwnerID)
		}
	}

	occupying, err := s.sessions.ListOccupying(ctx, ownerIDs, dateFrom, monthEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list occupying sessions")
	}
	byOwnerDay := make(map[string][]models.TutoringSession)
	for _, session := range occupying {
		key := dayKey(session.OwnerID, session.SessionDate)
		byOwnerDay[key] = append(byOwnerDay[key], session)
	}

	var currentDay *dto.GridDay
	for _, block := range blocks {
		starts := s.openStartTimes(block, duration, byOwnerDay[dayKey(block.OwnerID, block.BlockDate)])
		if len(starts) == 0 {
			continue
		}
		if currentDay == nil || !currentDay.Date.Equal(block.BlockDate) {
			grid.Days = append(grid.Days, dto.GridDay{Date: block.BlockDate, Blocks: []dto.GridBlock{}})
			currentDay = &grid.Days[len(grid.Days)-1]
		}
		currentDay.Blocks = append(currentDay.Blocks, dto.GridBlock{Block: block, StartTimes: starts})
	}
	return grid, nil
}

// openStartTimes steps candidate starts through the block at the grid
// granularity and keeps those whose window overlaps no occupying
// session. Touching endpoints do not conflict.
func (s *AvailabilityService) openStartTimes(block models.AvailabilityBlock, duration int, occupying []models.TutoringSession) []string {
	if block.Span() < duration {
		return nil
	}
	var starts []string
	for start := block.StartMinute; start+duration <= block.EndMinute; start += s.gridStep {
		end := start + duration
		conflict := false
		for _, session := range occupying {
			if session.Overlaps(start, end) {
				conflict = true
				break
			}
		}
		if !conflict {
			starts = append(starts, models.FormatClock(start))
		}
	}
	return starts
}

// InvalidateGrid drops every cached month grid. Called after any write
// that changes availability or occupancy.
func (s *AvailabilityService) InvalidateGrid(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "grid:*"); err != nil {
		s.logger.Warn("failed to invalidate grid cache", zap.Error(err))
	}
}

// ListBlocks returns raw availability blocks for admin views.
func (s *AvailabilityService) ListBlocks(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilityBlock, error) {
	blocks, err := s.blocks.ListRange(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability blocks")
	}
	return blocks, nil
}

// CreateBlock declares a new availability window for an owner.
func (s *AvailabilityService) CreateBlock(ctx context.Context, req CreateBlockRequest) (*models.AvailabilityBlock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block payload")
	}
	startMinute, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.ErrInvalidTimeFormat
	}
	endMinute, err := models.ParseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.ErrInvalidTimeFormat
	}
	if endMinute <= startMinute {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	block := &models.AvailabilityBlock{
		OwnerID:     req.OwnerID,
		BlockDate:   time.Date(req.BlockDate.Year(), req.BlockDate.Month(), req.BlockDate.Day(), 0, 0, 0, 0, time.UTC),
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
	if err := s.blocks.Create(ctx, block); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability block")
	}
	s.InvalidateGrid(ctx)
	return block, nil
}

// DeleteBlock removes an availability window. Existing sessions keep
// their slot; only future grid projections change. Non-admin actors may
// only delete their own blocks.
func (s *AvailabilityService) DeleteBlock(ctx context.Context, actorID string, actorRole models.UserRole, id string) error {
	block, err := s.blocks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability block not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability block")
	}
	if actorRole != models.RoleAdmin && block.OwnerID != actorID {
		return appErrors.ErrForbidden
	}
	if err := s.blocks.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability block")
	}
	s.InvalidateGrid(ctx)
	return nil
}
