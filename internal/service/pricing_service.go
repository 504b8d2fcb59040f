package service

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type subjectReader interface {
	ListActive(ctx context.Context) ([]models.Subject, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type pricingRuleRepo interface {
	EffectiveRule(ctx context.Context, subjectID string) (*models.PricingRule, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.PricingRule, error)
	Create(ctx context.Context, rule *models.PricingRule) error
}

// QuoteRequest carries the raw client inputs for a price computation.
// Out-of-range values are clamped, never rejected; the only failure
// mode is a subject without a pricing rule.
type QuoteRequest struct {
	SubjectID       string `json:"subject_id" validate:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	DiscountPercent int    `json:"discount_percent"`
}

// CreatePricingRuleRequest appends a new effective rule for a subject.
type CreatePricingRuleRequest struct {
	SubjectID               string  `json:"subject_id" validate:"required"`
	HourlyRate              string  `json:"hourly_rate" validate:"required"`
	MinHours                float64 `json:"min_hours" validate:"required,gt=0"`
	MaxHours                float64 `json:"max_hours" validate:"required,gt=0"`
	MaxPointDiscountPercent float64 `json:"max_point_discount_percent" validate:"gte=0,lte=100"`
}

// PricingService resolves pricing rules and computes quotes. Quote is
// pure: identical inputs always produce identical outputs, so it is
// safe to call once for preview and again at commit time.
type PricingService struct {
	subjects            subjectReader
	rules               pricingRuleRepo
	durationStepMinutes int
	discountStepPercent int
	validator           *validator.Validate
	logger              *zap.Logger
}

// NewPricingService constructs PricingService.
func NewPricingService(subjects subjectReader, rules pricingRuleRepo, durationStep, discountStep int, validate *validator.Validate, logger *zap.Logger) *PricingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if durationStep <= 0 {
		durationStep = 30
	}
	if discountStep <= 0 {
		discountStep = 10
	}
	return &PricingService{
		subjects:            subjects,
		rules:               rules,
		durationStepMinutes: durationStep,
		discountStepPercent: discountStep,
		validator:           validate,
		logger:              logger,
	}
}

// clampToStep snaps value into [min, max] on the grid anchored at min.
// The offset from min is rounded to the nearest step multiple; results
// above max fall back to the largest grid point not exceeding max.
func clampToStep(value, min, max, step int) int {
	if max < min {
		max = min
	}
	offset := value - min
	snapped := min + int(math.Round(float64(offset)/float64(step)))*step
	if snapped > max {
		snapped = min + ((max-min)/step)*step
	}
	if snapped < min {
		snapped = min
	}
	return snapped
}

// ClampDuration snaps a requested duration into the rule's bounds.
func (s *PricingService) ClampDuration(rule *models.PricingRule, requestedMinutes int) int {
	return clampToStep(requestedMinutes, rule.MinMinutes(), rule.MaxMinutes(), s.durationStepMinutes)
}

// ClampDiscount snaps a requested discount percentage into [0, floor(max)].
func (s *PricingService) ClampDiscount(rule *models.PricingRule, requestedPercent int) int {
	return clampToStep(requestedPercent, 0, int(math.Floor(rule.MaxPointDiscountPercent)), s.discountStepPercent)
}

// EffectiveRule loads the subject's current pricing rule.
func (s *PricingService) EffectiveRule(ctx context.Context, subjectID string) (*models.PricingRule, error) {
	rule, err := s.rules.EffectiveRule(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSubjectNotConfigured
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pricing rule")
	}
	return rule, nil
}

// Quote computes the authoritative price for a booking request.
// Duration and discount are clamped to the rule's bounds first; one
// point buys one percent of discount, so points charged equal the
// applied percentage.
func (s *PricingService) Quote(ctx context.Context, req QuoteRequest) (*models.Quote, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quote payload")
	}

	rule, err := s.EffectiveRule(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}

	duration := s.ClampDuration(rule, req.DurationMinutes)
	discount := s.ClampDiscount(rule, req.DiscountPercent)

	baseCost := rule.HourlyRate.Mul(decimal.NewFromInt(int64(duration))).Div(decimal.NewFromInt(60)).Round(2)
	moneyDiscount := baseCost.Mul(decimal.NewFromInt(int64(discount))).Div(decimal.NewFromInt(100)).Round(2)
	finalCost := baseCost.Sub(moneyDiscount)

	return &models.Quote{
		SubjectID:       req.SubjectID,
		DurationMinutes: duration,
		DiscountPercent: discount,
		BaseCost:        baseCost,
		MoneyDiscount:   moneyDiscount,
		FinalCost:       finalCost,
		PointsToCharge:  discount,
	}, nil
}

// SubjectsForBooking lists active subjects that carry a pricing rule,
// bundled with the bounds the booking form needs.
func (s *PricingService) SubjectsForBooking(ctx context.Context) ([]models.SubjectConfig, error) {
	subjects, err := s.subjects.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}

	configs := make([]models.SubjectConfig, 0, len(subjects))
	for _, subject := range subjects {
		rule, err := s.rules.EffectiveRule(ctx, subject.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pricing rule")
		}
		configs = append(configs, s.buildConfig(subject, rule))
	}
	return configs, nil
}

// SubjectConfig returns the booking bounds for one subject.
func (s *PricingService) SubjectConfig(ctx context.Context, subjectID string) (*models.SubjectConfig, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	rule, err := s.EffectiveRule(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	config := s.buildConfig(*subject, rule)
	return &config, nil
}

func (s *PricingService) buildConfig(subject models.Subject, rule *models.PricingRule) models.SubjectConfig {
	return models.SubjectConfig{
		Subject:                 subject,
		HourlyRate:              rule.HourlyRate,
		MinMinutes:              rule.MinMinutes(),
		MaxMinutes:              rule.MaxMinutes(),
		DurationStepMinutes:     s.durationStepMinutes,
		MaxPointDiscountPercent: int(math.Floor(rule.MaxPointDiscountPercent)),
		DiscountStepPercent:     s.discountStepPercent,
	}
}

// RuleHistory returns all rules ever configured for a subject.
func (s *PricingService) RuleHistory(ctx context.Context, subjectID string) ([]models.PricingRule, error) {
	rules, err := s.rules.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pricing rules")
	}
	return rules, nil
}

// CreateRule appends a new effective pricing rule.
func (s *PricingService) CreateRule(ctx context.Context, req CreatePricingRuleRequest) (*models.PricingRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pricing rule payload")
	}
	if req.MinHours > req.MaxHours {
		return nil, appErrors.Clone(appErrors.ErrValidation, "min_hours must not exceed max_hours")
	}
	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil || rate.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hourly_rate must be a non-negative decimal")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	rule := &models.PricingRule{
		SubjectID:               req.SubjectID,
		HourlyRate:              rate,
		MinHours:                req.MinHours,
		MaxHours:                req.MaxHours,
		MaxPointDiscountPercent: req.MaxPointDiscountPercent,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pricing rule")
	}
	return rule, nil
}
