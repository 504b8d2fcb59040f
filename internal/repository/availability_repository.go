package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/tutorhub-api/internal/models"
)

// AvailabilityRepository handles persistence for availability blocks.
// Blocks are immutable: edits are modelled as delete plus recreate.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new repository instance.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

const availabilityColumns = `id, owner_id, block_date, start_minute, end_minute, created_at`

// ListRange returns blocks in [DateFrom, DateTo], optionally narrowed
// to one owner, ordered by date then start.
func (r *AvailabilityRepository) ListRange(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilityBlock, error) {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("SELECT %s FROM availability_blocks WHERE block_date >= $1 AND block_date <= $2", availabilityColumns))
	args := []interface{}{filter.DateFrom, filter.DateTo}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		builder.WriteString(fmt.Sprintf(" AND owner_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY block_date ASC, start_minute ASC")

	var blocks []models.AvailabilityBlock
	if err := r.db.SelectContext(ctx, &blocks, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	return blocks, nil
}

// ListByDate returns blocks on one date, optionally narrowed to one owner.
func (r *AvailabilityRepository) ListByDate(ctx context.Context, date time.Time, ownerID string) ([]models.AvailabilityBlock, error) {
	return r.ListRange(ctx, models.AvailabilityFilter{OwnerID: ownerID, DateFrom: date, DateTo: date})
}

// FindByID returns a block by id.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilityBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_blocks WHERE id = $1`, availabilityColumns)
	var block models.AvailabilityBlock
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// Create persists a new availability block.
func (r *AvailabilityRepository) Create(ctx context.Context, block *models.AvailabilityBlock) error {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO availability_blocks (id, owner_id, block_date, start_minute, end_minute, created_at)
VALUES (:id, :owner_id, :block_date, :start_minute, :end_minute, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, block); err != nil {
		return fmt.Errorf("create availability block: %w", err)
	}
	return nil
}

// Delete removes a block.
func (r *AvailabilityRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM availability_blocks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	return nil
}
