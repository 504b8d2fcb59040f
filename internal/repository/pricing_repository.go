package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/tutorhub-api/internal/models"
)

// PricingRepository handles persistence for pricing rules. Rules are
// append-only; the newest row per subject is the effective one.
type PricingRepository struct {
	db *sqlx.DB
}

// NewPricingRepository creates a new repository instance.
func NewPricingRepository(db *sqlx.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

const pricingColumns = `id, subject_id, hourly_rate, min_hours, max_hours, max_point_discount_percent, created_at`

// EffectiveRule returns the latest pricing rule for a subject, or
// sql.ErrNoRows when the subject has never been configured.
func (r *PricingRepository) EffectiveRule(ctx context.Context, subjectID string) (*models.PricingRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM pricing_rules WHERE subject_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, pricingColumns)
	var rule models.PricingRule
	if err := r.db.GetContext(ctx, &rule, query, subjectID); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListBySubject returns the full rule history for a subject, newest first.
func (r *PricingRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.PricingRule, error) {
	query := fmt.Sprintf(`SELECT %s FROM pricing_rules WHERE subject_id = $1 ORDER BY created_at DESC, id DESC`, pricingColumns)
	var rules []models.PricingRule
	if err := r.db.SelectContext(ctx, &rules, query, subjectID); err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	return rules, nil
}

// Create appends a new pricing rule, making it the effective one.
func (r *PricingRepository) Create(ctx context.Context, rule *models.PricingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO pricing_rules (id, subject_id, hourly_rate, min_hours, max_hours, max_point_discount_percent, created_at)
VALUES (:id, :subject_id, :hourly_rate, :min_hours, :max_hours, :max_point_discount_percent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create pricing rule: %w", err)
	}
	return nil
}
