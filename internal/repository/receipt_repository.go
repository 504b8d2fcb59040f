package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushq/tutorhub-api/internal/models"
)

const pqUniqueViolation = "23505"

// ReceiptRepository handles persistence for points receipts. The table
// is append-only: rows are never updated, and the only delete path is
// reversal by reference.
type ReceiptRepository struct {
	db *sqlx.DB
}

// NewReceiptRepository creates a new repository instance.
func NewReceiptRepository(db *sqlx.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

const receiptColumns = `id, user_id, issuer_id, receipt_date, type, amount, reason, reference, notes`

// Insert appends a receipt.
func (r *ReceiptRepository) Insert(ctx context.Context, receipt *models.PointsReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.ReceiptDate.IsZero() {
		receipt.ReceiptDate = time.Now().UTC()
	}

	const query = `INSERT INTO points_receipts (id, user_id, issuer_id, receipt_date, type, amount, reason, reference, notes)
VALUES (:id, :user_id, :issuer_id, :receipt_date, :type, :amount, :reason, :reference, :notes)`
	if _, err := r.db.NamedExecContext(ctx, query, receipt); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// InsertSpentIdempotent appends a SPENT receipt unless one already
// carries the same reference, in which case the existing receipt id is
// returned and nothing is written. The existence check and the insert
// run in one transaction, and a partial unique index on SPENT
// references backstops the race between two concurrent attempts: the
// loser's unique violation resolves to the winner's row.
func (r *ReceiptRepository) InsertSpentIdempotent(ctx context.Context, receipt *models.PointsReceipt) (id string, inserted bool, err error) {
	if receipt.Reference == nil || *receipt.Reference == "" {
		return "", false, fmt.Errorf("spent receipt requires a reference")
	}
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.ReceiptDate.IsZero() {
		receipt.ReceiptDate = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin spend transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing string
	err = tx.GetContext(ctx, &existing, `SELECT id FROM points_receipts WHERE reference = $1 AND type = $2 LIMIT 1`, *receipt.Reference, models.ReceiptSpent)
	if err == nil {
		_ = tx.Rollback()
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("check existing spend: %w", err)
	}

	const insertQuery = `INSERT INTO points_receipts (id, user_id, issuer_id, receipt_date, type, amount, reason, reference, notes)
VALUES (:id, :user_id, :issuer_id, :receipt_date, :type, :amount, :reason, :reference, :notes)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertQuery, receipt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			_ = tx.Rollback()
			var winner string
			if selErr := r.db.GetContext(ctx, &winner, `SELECT id FROM points_receipts WHERE reference = $1 AND type = $2 LIMIT 1`, *receipt.Reference, models.ReceiptSpent); selErr != nil {
				return "", false, fmt.Errorf("resolve concurrent spend: %w", selErr)
			}
			err = nil
			return winner, false, nil
		}
		return "", false, fmt.Errorf("insert spent receipt: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit spend transaction: %w", err)
	}
	return receipt.ID, true, nil
}

// DeleteByReference removes every receipt carrying the reference and
// returns the number of rows deleted. This is the reversal mechanism;
// it intentionally sweeps historical duplicates sharing the reference.
func (r *ReceiptRepository) DeleteByReference(ctx context.Context, reference string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM points_receipts WHERE reference = $1`, reference)
	if err != nil {
		return 0, fmt.Errorf("delete receipts by reference: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted receipts: %w", err)
	}
	return removed, nil
}

// balanceRow carries the two fold sums used to derive balances.
type balanceRow struct {
	Earned int `db:"earned"`
	Spent  int `db:"spent"`
}

// SumBalances folds the receipt log for one user. earned sums EARNED
// and ADJUSTMENT amounts; spent sums SPENT amounts (stored negative).
func (r *ReceiptRepository) SumBalances(ctx context.Context, userID string) (earned int, spent int, err error) {
	const query = `SELECT
COALESCE(SUM(CASE WHEN type IN ('EARNED', 'ADJUSTMENT') THEN amount ELSE 0 END), 0) AS earned,
COALESCE(SUM(CASE WHEN type = 'SPENT' THEN amount ELSE 0 END), 0) AS spent
FROM points_receipts WHERE user_id = $1`
	var row balanceRow
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		return 0, 0, fmt.Errorf("sum balances: %w", err)
	}
	return row.Earned, row.Spent, nil
}

// AggregateWindow folds receipts inside [windowStart, windowEnd) for
// every user. The LEFT JOIN keeps users with no ledger activity in the
// result with zero sums.
func (r *ReceiptRepository) AggregateWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]models.UserPointsAggregate, error) {
	const query = `SELECT u.id AS user_id, u.username,
COALESCE(SUM(CASE WHEN r.type IN ('EARNED', 'ADJUSTMENT') THEN r.amount ELSE 0 END), 0) AS points_total,
COALESCE(SUM(CASE WHEN r.type = 'SPENT' THEN -r.amount ELSE 0 END), 0) AS spent_positive
FROM users u
LEFT JOIN points_receipts r ON r.user_id = u.id AND r.receipt_date >= $1 AND r.receipt_date < $2
GROUP BY u.id, u.username`
	var aggregates []models.UserPointsAggregate
	if err := r.db.SelectContext(ctx, &aggregates, query, windowStart, windowEnd); err != nil {
		return nil, fmt.Errorf("aggregate receipts window: %w", err)
	}
	return aggregates, nil
}

// List returns receipts matching the filter, newest first.
func (r *ReceiptRepository) List(ctx context.Context, filter models.ReceiptFilter) ([]models.PointsReceipt, int, error) {
	base := "FROM points_receipts WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("receipt_date >= $%d", len(args)))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("receipt_date < $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY receipt_date DESC, id DESC LIMIT %d OFFSET %d", receiptColumns, base, size, offset)
	var receipts []models.PointsReceipt
	if err := r.db.SelectContext(ctx, &receipts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count receipts: %w", err)
	}

	return receipts, total, nil
}
