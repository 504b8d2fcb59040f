package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type receiptRepo interface {
	Insert(ctx context.Context, receipt *models.PointsReceipt) error
	InsertSpentIdempotent(ctx context.Context, receipt *models.PointsReceipt) (id string, inserted bool, err error)
	DeleteByReference(ctx context.Context, reference string) (int64, error)
	SumBalances(ctx context.Context, userID string) (earned int, spent int, err error)
	List(ctx context.Context, filter models.ReceiptFilter) ([]models.PointsReceipt, int, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type receiptObserver interface {
	RecordReceipt(receiptType string)
}

// AdjustmentRequest appends a signed correction to a user's ledger.
// Negative adjustments are allowed and may push a balance into debt.
type AdjustmentRequest struct {
	UserID    string  `json:"user_id" validate:"required"`
	Amount    int     `json:"amount" validate:"required"`
	Reason    *string `json:"reason,omitempty"`
	Reference *string `json:"reference,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// EarnRequest awards points, typically for session attendance or events.
type EarnRequest struct {
	UserID    string  `json:"user_id" validate:"required"`
	Amount    int     `json:"amount" validate:"required"`
	Reason    *string `json:"reason,omitempty"`
	Reference *string `json:"reference,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// LedgerService is the append-only points accounting core. Balances
// are always folds over the receipt log, never stored, so the log is
// the single source of truth under concurrent writes.
type LedgerService struct {
	receipts  receiptRepo
	cache     cacheInvalidator
	metrics   receiptObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLedgerService constructs LedgerService.
func NewLedgerService(receipts receiptRepo, cache cacheInvalidator, metrics receiptObserver, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		receipts:  receipts,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// invalidate drops cached leaderboard pages after any ledger write.
func (s *LedgerService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "leaderboard:*"); err != nil {
		s.logger.Warn("failed to invalidate leaderboard cache", zap.Error(err))
	}
}

func (s *LedgerService) record(receiptType models.ReceiptType) {
	if s.metrics != nil {
		s.metrics.RecordReceipt(string(receiptType))
	}
}

// Balance folds the user's receipt log into both derived balances.
// Total counts earn and adjustment receipts; Current additionally
// subtracts spends. Current may legitimately be negative after a
// corrective adjustment.
func (s *LedgerService) Balance(ctx context.Context, userID string) (*models.PointsBalance, error) {
	earned, spent, err := s.receipts.SumBalances(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute balance")
	}
	return &models.PointsBalance{
		UserID:  userID,
		Total:   earned,
		Current: earned + spent,
	}, nil
}

// Total returns the lifetime earned balance.
func (s *LedgerService) Total(ctx context.Context, userID string) (int, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance.Total, nil
}

// Current returns the spendable balance.
func (s *LedgerService) Current(ctx context.Context, userID string) (int, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return balance.Current, nil
}

// CreateAdjustment appends a signed adjustment receipt. The ledger does
// not guard against negative balances here; corrections may intentionally
// push a user into debt.
func (s *LedgerService) CreateAdjustment(ctx context.Context, issuerID string, req AdjustmentRequest) (*models.PointsReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}

	receipt := &models.PointsReceipt{
		UserID:    req.UserID,
		IssuerID:  issuerID,
		Type:      models.ReceiptAdjustment,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if err := s.receipts.Insert(ctx, receipt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create adjustment")
	}
	s.record(models.ReceiptAdjustment)
	s.invalidate(ctx)
	return receipt, nil
}

// CreateEarned appends an award receipt. The amount must be positive.
func (s *LedgerService) CreateEarned(ctx context.Context, issuerID string, req EarnRequest) (*models.PointsReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid earn payload")
	}
	if req.Amount <= 0 {
		return nil, appErrors.ErrInvalidAmount
	}

	receipt := &models.PointsReceipt{
		UserID:    req.UserID,
		IssuerID:  issuerID,
		Type:      models.ReceiptEarned,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Reference: req.Reference,
		Notes:     req.Notes,
	}
	if err := s.receipts.Insert(ctx, receipt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create earn receipt")
	}
	s.record(models.ReceiptEarned)
	s.invalidate(ctx)
	return receipt, nil
}

// CreateSpentForSession charges points against a session, at most once.
// The deterministic reference makes retries safe: a second call for the
// same session returns the existing receipt id without writing.
func (s *LedgerService) CreateSpentForSession(ctx context.Context, userID, issuerID, sessionID string, positiveAmount int) (string, error) {
	if positiveAmount <= 0 {
		return "", appErrors.ErrInvalidAmount
	}

	reference := models.SessionReference(sessionID)
	receipt := &models.PointsReceipt{
		UserID:    userID,
		IssuerID:  issuerID,
		Type:      models.ReceiptSpent,
		Amount:    -positiveAmount,
		Reference: &reference,
	}
	id, inserted, err := s.receipts.InsertSpentIdempotent(ctx, receipt)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to charge points")
	}
	if inserted {
		s.record(models.ReceiptSpent)
		s.invalidate(ctx)
	}
	return id, nil
}

// DeleteByReference hard-deletes every receipt sharing the reference
// and returns the count removed. This is the sole reversal mechanism;
// it sweeps any historical duplicates along with the canonical receipt.
func (s *LedgerService) DeleteByReference(ctx context.Context, reference string) (int64, error) {
	removed, err := s.receipts.DeleteByReference(ctx, reference)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reverse receipts")
	}
	if removed > 0 {
		s.invalidate(ctx)
		s.logger.Info("receipts reversed", zap.String("reference", reference), zap.Int64("removed", removed))
	}
	return removed, nil
}

// ListReceipts returns a page of the receipt log.
func (s *LedgerService) ListReceipts(ctx context.Context, filter models.ReceiptFilter) ([]models.PointsReceipt, int, error) {
	receipts, total, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list receipts")
	}
	return receipts, total, nil
}
