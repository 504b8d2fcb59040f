package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type fakeSessionRepo struct {
	sessions map[string]*models.TutoringSession
}

func (f *fakeSessionRepo) FindByID(ctx context.Context, id string) (*models.TutoringSession, error) {
	if s, ok := f.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, cancellationDate, paidDate *time.Time) error {
	s, ok := f.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	s.CancellationDate = cancellationDate
	s.PaidDate = paidDate
	return nil
}

func (f *fakeSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.TutoringSession, int, error) {
	var list []models.TutoringSession
	for _, s := range f.sessions {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.OwnerID != "" && s.OwnerID != filter.OwnerID {
			continue
		}
		list = append(list, *s)
	}
	return list, len(list), nil
}

type fakeLedger struct {
	current    int
	currentErr error
	charges    []string
	refunds    []string
}

func (f *fakeLedger) Current(ctx context.Context, userID string) (int, error) {
	return f.current, f.currentErr
}

func (f *fakeLedger) CreateSpentForSession(ctx context.Context, userID, issuerID, sessionID string, positiveAmount int) (string, error) {
	f.charges = append(f.charges, sessionID)
	return "rcpt-1", nil
}

func (f *fakeLedger) DeleteByReference(ctx context.Context, reference string) (int64, error) {
	f.refunds = append(f.refunds, reference)
	return 1, nil
}

func sessionFixture(status models.SessionStatus, points int) (*SessionService, *fakeSessionRepo, *fakeLedger, *fakeGridInvalidator) {
	repo := &fakeSessionRepo{sessions: map[string]*models.TutoringSession{
		"sess-1": {
			ID:              "sess-1",
			UserID:          "student-1",
			OwnerID:         "tutor-1",
			SubjectID:       "sub-math",
			SessionDate:     day(2026, 3, 10),
			StartMinute:     540,
			DurationMinutes: 60,
			PointsSpent:     points,
			Status:          status,
		},
	}}
	ledger := &fakeLedger{current: 100}
	grid := &fakeGridInvalidator{}
	return NewSessionService(repo, ledger, grid, nil), repo, ledger, grid
}

func TestSessionAcceptChargesPoints(t *testing.T) {
	svc, repo, ledger, _ := sessionFixture(models.SessionRequested, 20)

	session, err := svc.Accept(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAccepted, session.Status)
	assert.Equal(t, []string{"sess-1"}, ledger.charges)
	assert.Equal(t, models.SessionAccepted, repo.sessions["sess-1"].Status)
}

func TestSessionAcceptInsufficientPoints(t *testing.T) {
	svc, repo, ledger, _ := sessionFixture(models.SessionRequested, 20)
	ledger.current = 10

	_, err := svc.Accept(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPoints)
	assert.Empty(t, ledger.charges)
	assert.Equal(t, models.SessionRequested, repo.sessions["sess-1"].Status)
}

func TestSessionAcceptFreeSessionSkipsLedger(t *testing.T) {
	svc, _, ledger, _ := sessionFixture(models.SessionRequested, 0)
	ledger.current = 0

	session, err := svc.Accept(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAccepted, session.Status)
	assert.Empty(t, ledger.charges)
}

func TestSessionAcceptRequiresOwner(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionRequested, 20)

	_, err := svc.Accept(context.Background(), "tutor-2", models.RoleTutor, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Accept(context.Background(), "admin-1", models.RoleAdmin, "sess-1")
	require.NoError(t, err)
}

func TestSessionAcceptInvalidTransition(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionPaid, 20)

	_, err := svc.Accept(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestSessionDenyRefundsAndFreesSlot(t *testing.T) {
	svc, repo, ledger, grid := sessionFixture(models.SessionRequested, 20)

	session, err := svc.Deny(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionDenied, session.Status)
	require.NotNil(t, session.CancellationDate)
	assert.Equal(t, []string{"TS-sess-1"}, ledger.refunds)
	assert.Equal(t, 1, grid.calls)
	assert.Equal(t, models.SessionDenied, repo.sessions["sess-1"].Status)
}

func TestSessionCancelByLearner(t *testing.T) {
	svc, _, ledger, grid := sessionFixture(models.SessionAccepted, 20)

	session, err := svc.Cancel(context.Background(), "student-1", models.RoleStudent, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, session.Status)
	assert.Equal(t, []string{"TS-sess-1"}, ledger.refunds)
	assert.Equal(t, 1, grid.calls)
}

func TestSessionCancelForbiddenForStranger(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionAccepted, 20)

	_, err := svc.Cancel(context.Background(), "student-2", models.RoleStudent, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSessionCancelTerminalStates(t *testing.T) {
	for _, status := range []models.SessionStatus{models.SessionCompleted, models.SessionDenied, models.SessionCancelled, models.SessionNoShow} {
		svc, _, _, _ := sessionFixture(status, 20)
		_, err := svc.Cancel(context.Background(), "student-1", models.RoleStudent, "sess-1")
		assert.ErrorIs(t, err, appErrors.ErrInvalidTransition, "status %s", status)
	}
}

func TestSessionMarkPaidStampsDate(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionAccepted, 20)

	session, err := svc.MarkPaid(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaid, session.Status)
	require.NotNil(t, session.PaidDate)
}

func TestSessionNoShowKeepsPoints(t *testing.T) {
	svc, _, ledger, grid := sessionFixture(models.SessionPaid, 20)

	session, err := svc.MarkNoShow(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionNoShow, session.Status)
	assert.Empty(t, ledger.refunds, "no-shows forfeit their points")
	assert.Equal(t, 1, grid.calls)
}

func TestSessionCompleteRequiresPaid(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionAccepted, 20)
	_, err := svc.Complete(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	svc, _, _, _ = sessionFixture(models.SessionPaid, 20)
	session, err := svc.Complete(context.Background(), "tutor-1", models.RoleTutor, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, session.Status)
}

func TestSessionListPinsNonAdmins(t *testing.T) {
	svc, repo, _, _ := sessionFixture(models.SessionRequested, 0)
	repo.sessions["sess-2"] = &models.TutoringSession{ID: "sess-2", UserID: "student-2", OwnerID: "tutor-2", Status: models.SessionRequested}

	mine, total, err := svc.List(context.Background(), "student-1", models.RoleStudent, models.SessionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, "sess-1", mine[0].ID)

	hosted, _, err := svc.List(context.Background(), "tutor-2", models.RoleTutor, models.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, hosted, 1)
	assert.Equal(t, "sess-2", hosted[0].ID)

	all, _, err := svc.List(context.Background(), "admin-1", models.RoleAdmin, models.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSessionFindVisibility(t *testing.T) {
	svc, _, _, _ := sessionFixture(models.SessionRequested, 0)

	_, err := svc.Find(context.Background(), "student-1", models.RoleStudent, "sess-1")
	require.NoError(t, err)

	_, err = svc.Find(context.Background(), "student-2", models.RoleStudent, "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Find(context.Background(), "student-1", models.RoleStudent, "sess-missing")
	require.Error(t, err)
}
