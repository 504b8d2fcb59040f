package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus enumerates the lifecycle states of a tutoring session.
type SessionStatus string

const (
	SessionRequested SessionStatus = "REQUESTED"
	SessionAccepted  SessionStatus = "ACCEPTED"
	SessionPaid      SessionStatus = "PAID"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionDenied    SessionStatus = "DENIED"
	SessionNoShow    SessionStatus = "NO_SHOW"
	SessionCompleted SessionStatus = "COMPLETED"
)

// OccupyingStatuses are the statuses that make a session block its time
// slot for everyone else. Cancelled and denied sessions free the slot; a
// paid session still occupies it because the session still happens.
var OccupyingStatuses = []SessionStatus{SessionRequested, SessionAccepted, SessionPaid}

// TutoringSession is a booked session between a learner and an owner
// (tutor/admin). The interval [StartMinute, StartMinute+DurationMinutes)
// lay inside an availability block of the owner at creation time.
type TutoringSession struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id"`
	OwnerID          string          `db:"owner_id" json:"owner_id"`
	SubjectID        string          `db:"subject_id" json:"subject_id"`
	SessionDate      time.Time       `db:"session_date" json:"session_date"`
	StartMinute      int             `db:"start_minute" json:"start_minute"`
	DurationMinutes  int             `db:"duration_minutes" json:"duration_minutes"`
	BaseCost         decimal.Decimal `db:"base_cost" json:"base_cost"`
	PointsSpent      int             `db:"points_spent" json:"points_spent"`
	Status           SessionStatus   `db:"status" json:"status"`
	CancellationDate *time.Time      `db:"cancellation_date" json:"cancellation_date,omitempty"`
	PaidDate         *time.Time      `db:"paid_date" json:"paid_date,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// EndMinute returns the exclusive end of the session interval.
func (s TutoringSession) EndMinute() int {
	return s.StartMinute + s.DurationMinutes
}

// Overlaps applies the half-open interval test against another window.
// Touching endpoints do not overlap.
func (s TutoringSession) Overlaps(startMinute, endMinute int) bool {
	return startMinute < s.EndMinute() && endMinute > s.StartMinute
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	UserID   string
	OwnerID  string
	Status   SessionStatus
	DateFrom time.Time
	DateTo   time.Time
	Page     int
	PageSize int
}
