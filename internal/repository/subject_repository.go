package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/tutorhub-api/internal/models"
)

// SubjectRepository handles persistence for bookable subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// ListActive returns active subjects ordered by name.
func (r *SubjectRepository) ListActive(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, code, name, active, created_at, updated_at FROM subjects WHERE active = TRUE ORDER BY name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	return subjects, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, code, name, active, created_at, updated_at FROM subjects WHERE id = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const query = `INSERT INTO subjects (id, code, name, active, created_at, updated_at)
VALUES (:id, :code, :name, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}
