package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/tutorhub-api/internal/models"
)

// SessionRepository handles persistence for tutoring sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new repository instance.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, owner_id, subject_id, session_date, start_minute, duration_minutes, base_cost, points_spent, status, cancellation_date, paid_date, created_at, updated_at`

func statusStrings(statuses []models.SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// ListOccupying returns every slot-blocking session for the owners and
// date range, ordered by date and start time.
func (r *SessionRepository) ListOccupying(ctx context.Context, ownerIDs []string, dateFrom, dateTo time.Time) ([]models.TutoringSession, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM tutoring_sessions WHERE owner_id IN (?) AND session_date >= ? AND session_date <= ? AND status IN (?) ORDER BY session_date ASC, start_minute ASC`, sessionColumns),
		ownerIDs, dateFrom, dateTo, statusStrings(models.OccupyingStatuses),
	)
	if err != nil {
		return nil, fmt.Errorf("build occupying sessions query: %w", err)
	}
	query = r.db.Rebind(query)

	var sessions []models.TutoringSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list occupying sessions: %w", err)
	}
	return sessions, nil
}

// CreateIfSlotFree re-checks the conflict window and inserts the
// session inside a single transaction. Bookings serialise on a
// transaction-scoped advisory lock keyed by owner and day: row locks
// cannot cover an empty slot, so without it two concurrent requests
// would both see zero conflicts and both insert. The loser of the lock
// re-checks after the winner commits and observes the winning row.
// Returns false without inserting when the slot is already taken.
func (r *SessionRepository) CreateIfSlotFree(ctx context.Context, session *models.TutoringSession) (created bool, err error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, fmt.Errorf("begin booking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		session.OwnerID, session.SessionDate.Format("2006-01-02"),
	); err != nil {
		return false, fmt.Errorf("acquire slot lock: %w", err)
	}

	conflictQuery, args, err := sqlx.In(
		`SELECT id FROM tutoring_sessions WHERE owner_id = ? AND session_date = ? AND status IN (?) AND start_minute < ? AND start_minute + duration_minutes > ?`,
		session.OwnerID, session.SessionDate, statusStrings(models.OccupyingStatuses), session.EndMinute(), session.StartMinute,
	)
	if err != nil {
		return false, fmt.Errorf("build conflict query: %w", err)
	}
	conflictQuery = tx.Rebind(conflictQuery)

	var conflicting []string
	if err = tx.SelectContext(ctx, &conflicting, conflictQuery, args...); err != nil {
		return false, fmt.Errorf("check slot conflicts: %w", err)
	}
	if len(conflicting) > 0 {
		_ = tx.Rollback()
		err = nil
		return false, nil
	}

	const insertQuery = `INSERT INTO tutoring_sessions (id, user_id, owner_id, subject_id, session_date, start_minute, duration_minutes, base_cost, points_spent, status, created_at, updated_at)
VALUES (:id, :user_id, :owner_id, :subject_id, :session_date, :start_minute, :duration_minutes, :base_cost, :points_spent, :status, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, session); err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit booking transaction: %w", err)
	}
	return true, nil
}

// FindByID returns a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.TutoringSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM tutoring_sessions WHERE id = $1`, sessionColumns)
	var session models.TutoringSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateStatus transitions a session and stamps the relevant dates.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, cancellationDate, paidDate *time.Time) error {
	const query = `UPDATE tutoring_sessions SET status = $1, cancellation_date = $2, paid_date = $3, updated_at = $4 WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query, status, cancellationDate, paidDate, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// List returns sessions matching the filter with pagination metadata.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.TutoringSession, int, error) {
	base := "FROM tutoring_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("session_date >= $%d", len(args)))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("session_date <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY session_date DESC, start_minute DESC LIMIT %d OFFSET %d", sessionColumns, base, size, offset)
	var sessions []models.TutoringSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}
