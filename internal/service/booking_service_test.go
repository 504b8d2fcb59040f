package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type fakeQuoter struct {
	quote *models.Quote
	err   error
}

func (f *fakeQuoter) Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.quote, nil
}

type fakeSlotWriter struct {
	created  bool
	inserted []*models.TutoringSession
}

func (f *fakeSlotWriter) CreateIfSlotFree(ctx context.Context, session *models.TutoringSession) (bool, error) {
	if !f.created {
		return false, nil
	}
	session.ID = "sess-1"
	f.inserted = append(f.inserted, session)
	return true, nil
}

type fakeGridInvalidator struct {
	calls int
}

func (f *fakeGridInvalidator) InvalidateGrid(ctx context.Context) {
	f.calls++
}

type fakeBookingObserver struct {
	outcomes []string
}

func (f *fakeBookingObserver) RecordBooking(outcome string) {
	f.outcomes = append(f.outcomes, outcome)
}

func standardQuote() *models.Quote {
	return &models.Quote{
		SubjectID:       "sub-math",
		DurationMinutes: 60,
		DiscountPercent: 20,
		BaseCost:        decimal.NewFromInt(100),
		MoneyDiscount:   decimal.NewFromInt(20),
		FinalCost:       decimal.NewFromInt(80),
		PointsToCharge:  20,
	}
}

// bookingFixture freezes the clock at 2026-03-01 with a two day lead,
// so the first bookable date is 2026-03-04.
func bookingFixture(quoter *fakeQuoter, blocks blockFinder, slots *fakeSlotWriter) (*BookingService, *fakeGridInvalidator, *fakeBookingObserver) {
	grid := &fakeGridInvalidator{}
	metrics := &fakeBookingObserver{}
	svc := NewBookingService(quoter, blocks, slots, grid, metrics, 2, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc, grid, metrics
}

func hostBlocks(date time.Time) *mockBlockRepo {
	return &mockBlockRepo{blocks: map[string]*models.AvailabilityBlock{
		"blk-1": {ID: "blk-1", OwnerID: "tutor-1", BlockDate: date, StartMinute: 540, EndMinute: 720},
	}}
}

func TestRequestBookingSuccess(t *testing.T) {
	date := day(2026, 3, 10)
	slots := &fakeSlotWriter{created: true}
	svc, grid, metrics := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), slots)

	session, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID:       "sub-math",
		SessionDate:     date,
		StartTime:       "09:30",
		DurationMinutes: 60,
		DiscountPercent: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, "student-1", session.UserID)
	assert.Equal(t, "tutor-1", session.OwnerID, "owner comes from the hosting block")
	assert.Equal(t, models.SessionRequested, session.Status)
	assert.Equal(t, 570, session.StartMinute)
	assert.Equal(t, 60, session.DurationMinutes)
	assert.Equal(t, 20, session.PointsSpent)
	assert.True(t, decimal.NewFromInt(100).Equal(session.BaseCost))
	assert.Equal(t, 1, grid.calls)
	assert.Equal(t, []string{"booked"}, metrics.outcomes)
	require.Len(t, slots.inserted, 1)
}

func TestRequestBookingTooSoon(t *testing.T) {
	date := day(2026, 3, 3)
	svc, grid, metrics := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), &fakeSlotWriter{created: true})

	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "09:30", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, appErrors.ErrTooSoon)
	assert.Zero(t, grid.calls)
	assert.Equal(t, []string{"too_soon"}, metrics.outcomes)
}

func TestRequestBookingCutoffBoundary(t *testing.T) {
	// Exactly the cutoff date is bookable.
	date := day(2026, 3, 4)
	slots := &fakeSlotWriter{created: true}
	svc, _, _ := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), slots)

	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "09:00", DurationMinutes: 60,
	})
	require.NoError(t, err)
}

func TestRequestBookingOutsideAvailability(t *testing.T) {
	date := day(2026, 3, 10)
	svc, _, metrics := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), &fakeSlotWriter{created: true})

	// 11:30 + 60min spills past the 12:00 block end.
	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "11:30", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, appErrors.ErrOutsideAvailability)
	assert.Equal(t, []string{"outside_availability"}, metrics.outcomes)
}

func TestRequestBookingSlotTaken(t *testing.T) {
	date := day(2026, 3, 10)
	svc, grid, metrics := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), &fakeSlotWriter{created: false})

	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "09:00", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, appErrors.ErrSlotTaken)
	assert.Zero(t, grid.calls)
	assert.Equal(t, []string{"slot_taken"}, metrics.outcomes)
}

func TestRequestBookingInvalidTime(t *testing.T) {
	date := day(2026, 3, 10)
	svc, _, metrics := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), &fakeSlotWriter{created: true})

	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "half past nine", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTimeFormat)
	assert.Equal(t, []string{"invalid_time"}, metrics.outcomes)
}

func TestRequestBookingUnconfiguredSubject(t *testing.T) {
	date := day(2026, 3, 10)
	svc, _, metrics := bookingFixture(&fakeQuoter{err: appErrors.ErrSubjectNotConfigured}, hostBlocks(date), &fakeSlotWriter{created: true})

	_, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-unknown", SessionDate: date, StartTime: "09:00", DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, appErrors.ErrSubjectNotConfigured)
	assert.Equal(t, []string{"subject_not_configured"}, metrics.outcomes)
}

func TestRequestBookingUsesQuotedDuration(t *testing.T) {
	// The client asks for 45 minutes; the quote clamps it to 60, and
	// the committed session carries the clamped value.
	date := day(2026, 3, 10)
	slots := &fakeSlotWriter{created: true}
	svc, _, _ := bookingFixture(&fakeQuoter{quote: standardQuote()}, hostBlocks(date), slots)

	session, err := svc.RequestBooking(context.Background(), "student-1", BookingRequest{
		SubjectID: "sub-math", SessionDate: date, StartTime: "09:00", DurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, 60, session.DurationMinutes)
}
