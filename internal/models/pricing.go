package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingRule configures how sessions for a subject are priced. The
// newest rule for a subject is the effective one; older rows are kept
// for history and never updated.
type PricingRule struct {
	ID                      string          `db:"id" json:"id"`
	SubjectID               string          `db:"subject_id" json:"subject_id"`
	HourlyRate              decimal.Decimal `db:"hourly_rate" json:"hourly_rate"`
	MinHours                float64         `db:"min_hours" json:"min_hours"`
	MaxHours                float64         `db:"max_hours" json:"max_hours"`
	MaxPointDiscountPercent float64         `db:"max_point_discount_percent" json:"max_point_discount_percent"`
	CreatedAt               time.Time       `db:"created_at" json:"created_at"`
}

// MinMinutes returns the lower duration bound in whole minutes.
func (r PricingRule) MinMinutes() int {
	return int(r.MinHours * 60)
}

// MaxMinutes returns the upper duration bound in whole minutes.
func (r PricingRule) MaxMinutes() int {
	return int(r.MaxHours * 60)
}

// Quote is the authoritative price computation for a booking request.
// It is produced both for previews and at commit time; identical inputs
// always yield identical quotes.
type Quote struct {
	SubjectID       string          `json:"subject_id"`
	DurationMinutes int             `json:"duration_minutes"`
	DiscountPercent int             `json:"discount_percent"`
	BaseCost        decimal.Decimal `json:"base_cost"`
	MoneyDiscount   decimal.Decimal `json:"money_discount"`
	FinalCost       decimal.Decimal `json:"final_cost"`
	PointsToCharge  int             `json:"points_to_charge"`
}

// SubjectConfig bundles a subject with its effective pricing rule for
// the booking UI.
type SubjectConfig struct {
	Subject                 Subject         `json:"subject"`
	HourlyRate              decimal.Decimal `json:"hourly_rate"`
	MinMinutes              int             `json:"min_minutes"`
	MaxMinutes              int             `json:"max_minutes"`
	DurationStepMinutes     int             `json:"duration_step_minutes"`
	MaxPointDiscountPercent int             `json:"max_point_discount_percent"`
	DiscountStepPercent     int             `json:"discount_step_percent"`
}
