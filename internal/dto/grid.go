package dto

import (
	"time"

	"github.com/campushq/tutorhub-api/internal/models"
)

// GridBlock is one availability block with the start times still open
// for the requested duration. Blocks with no open start times are never
// emitted.
type GridBlock struct {
	Block      models.AvailabilityBlock `json:"block"`
	StartTimes []string                 `json:"start_times"`
}

// GridDay groups the bookable blocks of one calendar day.
type GridDay struct {
	Date   time.Time   `json:"date"`
	Blocks []GridBlock `json:"blocks"`
}

// MonthGridResponse is the bookable projection of one month.
type MonthGridResponse struct {
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	SubjectID       string    `json:"subject_id"`
	DurationMinutes int       `json:"duration_minutes"`
	Days            []GridDay `json:"days"`
}
