package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type fakeReceiptRepo struct {
	receipts []models.PointsReceipt
	nextID   int
}

func (f *fakeReceiptRepo) assignID(receipt *models.PointsReceipt) {
	if receipt.ID == "" {
		f.nextID++
		receipt.ID = fmt.Sprintf("rcpt-%d", f.nextID)
	}
}

func (f *fakeReceiptRepo) Insert(ctx context.Context, receipt *models.PointsReceipt) error {
	f.assignID(receipt)
	f.receipts = append(f.receipts, *receipt)
	return nil
}

func (f *fakeReceiptRepo) InsertSpentIdempotent(ctx context.Context, receipt *models.PointsReceipt) (string, bool, error) {
	for _, existing := range f.receipts {
		if existing.Type == models.ReceiptSpent && existing.Reference != nil && *existing.Reference == *receipt.Reference {
			return existing.ID, false, nil
		}
	}
	f.assignID(receipt)
	f.receipts = append(f.receipts, *receipt)
	return receipt.ID, true, nil
}

func (f *fakeReceiptRepo) DeleteByReference(ctx context.Context, reference string) (int64, error) {
	var kept []models.PointsReceipt
	var removed int64
	for _, r := range f.receipts {
		if r.Reference != nil && *r.Reference == reference {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	f.receipts = kept
	return removed, nil
}

func (f *fakeReceiptRepo) SumBalances(ctx context.Context, userID string) (int, int, error) {
	var earned, spent int
	for _, r := range f.receipts {
		if r.UserID != userID {
			continue
		}
		switch r.Type {
		case models.ReceiptEarned, models.ReceiptAdjustment:
			earned += r.Amount
		case models.ReceiptSpent:
			spent += r.Amount
		}
	}
	return earned, spent, nil
}

func (f *fakeReceiptRepo) List(ctx context.Context, filter models.ReceiptFilter) ([]models.PointsReceipt, int, error) {
	var list []models.PointsReceipt
	for _, r := range f.receipts {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		list = append(list, r)
	}
	return list, len(list), nil
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

type fakeReceiptObserver struct {
	types []string
}

func (f *fakeReceiptObserver) RecordReceipt(receiptType string) {
	f.types = append(f.types, receiptType)
}

func ledgerFixture() (*LedgerService, *fakeReceiptRepo, *fakeInvalidator, *fakeReceiptObserver) {
	repo := &fakeReceiptRepo{}
	cache := &fakeInvalidator{}
	metrics := &fakeReceiptObserver{}
	return NewLedgerService(repo, cache, metrics, nil, nil), repo, cache, metrics
}

func strPtr(s string) *string {
	return &s
}

func TestLedgerBalanceFold(t *testing.T) {
	svc, repo, _, _ := ledgerFixture()
	repo.receipts = []models.PointsReceipt{
		{ID: "r1", UserID: "u1", Type: models.ReceiptEarned, Amount: 100},
		{ID: "r2", UserID: "u1", Type: models.ReceiptAdjustment, Amount: 20},
		{ID: "r3", UserID: "u1", Type: models.ReceiptSpent, Amount: -30},
		{ID: "r4", UserID: "u2", Type: models.ReceiptEarned, Amount: 500},
	}

	balance, err := svc.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 120, balance.Total, "spends never reduce the lifetime total")
	assert.Equal(t, 90, balance.Current)
}

func TestLedgerBalanceMayGoNegative(t *testing.T) {
	svc, repo, _, _ := ledgerFixture()
	repo.receipts = []models.PointsReceipt{
		{ID: "r1", UserID: "u1", Type: models.ReceiptEarned, Amount: 10},
		{ID: "r2", UserID: "u1", Type: models.ReceiptSpent, Amount: -25},
	}

	current, err := svc.Current(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, -15, current)
}

func TestLedgerCreateAdjustmentInvalidates(t *testing.T) {
	svc, repo, cache, metrics := ledgerFixture()

	receipt, err := svc.CreateAdjustment(context.Background(), "admin-1", AdjustmentRequest{
		UserID: "u1", Amount: -40, Reason: strPtr("correction"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptAdjustment, receipt.Type)
	assert.Equal(t, "admin-1", receipt.IssuerID)
	assert.Len(t, repo.receipts, 1)
	assert.Contains(t, cache.patterns, "leaderboard:*")
	assert.Equal(t, []string{"ADJUSTMENT"}, metrics.types)
}

func TestLedgerCreateEarnedRejectsNonPositive(t *testing.T) {
	svc, repo, _, _ := ledgerFixture()

	_, err := svc.CreateEarned(context.Background(), "admin-1", EarnRequest{UserID: "u1", Amount: -5})
	assert.ErrorIs(t, err, appErrors.ErrInvalidAmount)
	assert.Empty(t, repo.receipts)
}

func TestLedgerSpendForSessionIsIdempotent(t *testing.T) {
	svc, repo, cache, metrics := ledgerFixture()

	first, err := svc.CreateSpentForSession(context.Background(), "u1", "tutor-1", "sess-1", 20)
	require.NoError(t, err)
	second, err := svc.CreateSpentForSession(context.Background(), "u1", "tutor-1", "sess-1", 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, repo.receipts, 1)
	assert.Equal(t, -20, repo.receipts[0].Amount, "spends are stored negative")
	require.NotNil(t, repo.receipts[0].Reference)
	assert.Equal(t, "TS-sess-1", *repo.receipts[0].Reference)

	// Only the write that actually landed invalidates and records.
	assert.Equal(t, []string{"leaderboard:*"}, cache.patterns)
	assert.Equal(t, []string{"SPENT"}, metrics.types)
}

func TestLedgerSpendRejectsNonPositive(t *testing.T) {
	svc, _, _, _ := ledgerFixture()

	_, err := svc.CreateSpentForSession(context.Background(), "u1", "tutor-1", "sess-1", 0)
	assert.ErrorIs(t, err, appErrors.ErrInvalidAmount)
}

func TestLedgerDeleteByReferenceSweepsAll(t *testing.T) {
	svc, repo, cache, _ := ledgerFixture()
	ref := "TS-sess-1"
	repo.receipts = []models.PointsReceipt{
		{ID: "r1", UserID: "u1", Type: models.ReceiptSpent, Amount: -20, Reference: &ref},
		{ID: "r2", UserID: "u1", Type: models.ReceiptSpent, Amount: -20, Reference: &ref},
		{ID: "r3", UserID: "u1", Type: models.ReceiptEarned, Amount: 50},
	}

	removed, err := svc.DeleteByReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Len(t, repo.receipts, 1)
	assert.Contains(t, cache.patterns, "leaderboard:*")
}

func TestLedgerDeleteByReferenceMissingIsZero(t *testing.T) {
	svc, _, cache, _ := ledgerFixture()

	removed, err := svc.DeleteByReference(context.Background(), "TS-ghost")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, cache.patterns, "no write, no invalidation")
}
