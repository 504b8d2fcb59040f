package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error)
}

type blockFinder interface {
	ListByDate(ctx context.Context, date time.Time, ownerID string) ([]models.AvailabilityBlock, error)
}

type slotWriter interface {
	CreateIfSlotFree(ctx context.Context, session *models.TutoringSession) (created bool, err error)
}

type gridInvalidator interface {
	InvalidateGrid(ctx context.Context)
}

type bookingObserver interface {
	RecordBooking(outcome string)
}

// BookingRequest carries everything needed to commit a booking. The
// price fields are requests, not promises; the committed values come
// from the authoritative quote computed here.
type BookingRequest struct {
	SubjectID       string    `json:"subject_id" validate:"required"`
	SessionDate     time.Time `json:"session_date" validate:"required"`
	StartTime       string    `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes"`
	DiscountPercent int       `json:"discount_percent"`
	OwnerID         string    `json:"owner_id"`
}

// BookingService commits bookings. Every step is a hard gate; failing
// any gate leaves no partial state behind.
type BookingService struct {
	pricing   quoter
	blocks    blockFinder
	sessions  slotWriter
	grid      gridInvalidator
	metrics   bookingObserver
	leadDays  int
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService constructs BookingService.
func NewBookingService(pricing quoter, blocks blockFinder, sessions slotWriter, grid gridInvalidator, metrics bookingObserver, leadDays int, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if leadDays < 0 {
		leadDays = 0
	}
	return &BookingService{
		pricing:   pricing,
		blocks:    blocks,
		sessions:  sessions,
		grid:      grid,
		metrics:   metrics,
		leadDays:  leadDays,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *BookingService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordBooking(outcome)
	}
}

// RequestBooking runs the commit protocol:
// quote with clamped inputs, lead-time gate, containing-block lookup,
// then a transactional conflict re-check plus insert. The re-check is
// mandatory even though the grid already filtered candidates, because
// another booking may have landed between preview and submit.
func (s *BookingService) RequestBooking(ctx context.Context, userID string, req BookingRequest) (*models.TutoringSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	quote, err := s.pricing.Quote(ctx, QuoteRequest{
		SubjectID:       req.SubjectID,
		DurationMinutes: req.DurationMinutes,
		DiscountPercent: req.DiscountPercent,
	})
	if err != nil {
		s.recordOutcome("subject_not_configured")
		return nil, err
	}

	startMinute, err := models.ParseClock(req.StartTime)
	if err != nil {
		s.recordOutcome("invalid_time")
		return nil, appErrors.ErrInvalidTimeFormat
	}

	date := time.Date(req.SessionDate.Year(), req.SessionDate.Month(), req.SessionDate.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(bookingCutoff(s.now(), s.leadDays)) {
		s.recordOutcome("too_soon")
		return nil, appErrors.ErrTooSoon
	}

	blocks, err := s.blocks.ListByDate(ctx, date, req.OwnerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability blocks")
	}
	var host *models.AvailabilityBlock
	for i := range blocks {
		if blocks[i].Contains(startMinute, quote.DurationMinutes) {
			host = &blocks[i]
			break
		}
	}
	if host == nil {
		s.recordOutcome("outside_availability")
		return nil, appErrors.ErrOutsideAvailability
	}

	// The block's owner hosts the session regardless of how loosely
	// the caller filtered.
	session := &models.TutoringSession{
		UserID:          userID,
		OwnerID:         host.OwnerID,
		SubjectID:       req.SubjectID,
		SessionDate:     date,
		StartMinute:     startMinute,
		DurationMinutes: quote.DurationMinutes,
		BaseCost:        quote.BaseCost,
		PointsSpent:     quote.PointsToCharge,
		Status:          models.SessionRequested,
	}

	created, err := s.sessions.CreateIfSlotFree(ctx, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit booking")
	}
	if !created {
		s.recordOutcome("slot_taken")
		return nil, appErrors.ErrSlotTaken
	}

	if s.grid != nil {
		s.grid.InvalidateGrid(ctx)
	}
	s.recordOutcome("booked")
	s.logger.Info("booking committed",
		zap.String("session_id", session.ID),
		zap.String("owner_id", session.OwnerID),
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("start_minute", startMinute),
	)
	return session, nil
}
