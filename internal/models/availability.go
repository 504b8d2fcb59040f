package models

import (
	"fmt"
	"time"
)

// AvailabilityBlock is an owner-declared contiguous window during which
// sessions may be hosted. Blocks are never mutated in place; edits are a
// delete followed by a recreate. Sessions do not consume or shrink a
// block; conflicts are computed against booked sessions instead.
type AvailabilityBlock struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	BlockDate   time.Time `db:"block_date" json:"block_date"`
	StartMinute int       `db:"start_minute" json:"start_minute"`
	EndMinute   int       `db:"end_minute" json:"end_minute"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Span returns the block length in minutes.
func (b AvailabilityBlock) Span() int {
	return b.EndMinute - b.StartMinute
}

// Contains reports whether [startMinute, startMinute+duration) lies
// fully inside the block.
func (b AvailabilityBlock) Contains(startMinute, durationMinutes int) bool {
	return startMinute >= b.StartMinute && startMinute+durationMinutes <= b.EndMinute
}

// AvailabilityFilter narrows block listings.
type AvailabilityFilter struct {
	OwnerID  string
	DateFrom time.Time
	DateTo   time.Time
}

// FormatClock renders minutes-from-midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseClock converts "HH:MM" into minutes from midnight. The input
// must be exactly five characters with zero-padded fields; "9:30" and
// "12:34xyz" are rejected.
func ParseClock(raw string) (int, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, fmt.Errorf("clock %q must be HH:MM", raw)
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
