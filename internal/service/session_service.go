package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
)

type sessionRepo interface {
	FindByID(ctx context.Context, id string) (*models.TutoringSession, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, cancellationDate, paidDate *time.Time) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.TutoringSession, int, error)
}

type pointsLedger interface {
	Current(ctx context.Context, userID string) (int, error)
	CreateSpentForSession(ctx context.Context, userID, issuerID, sessionID string, positiveAmount int) (string, error)
	DeleteByReference(ctx context.Context, reference string) (int64, error)
}

// SessionService drives the session lifecycle after booking. Status
// transitions carry the ledger side effects: acceptance charges the
// learner's points, denial and cancellation reverse them.
type SessionService struct {
	sessions sessionRepo
	ledger   pointsLedger
	grid     gridInvalidator
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs SessionService.
func NewSessionService(sessions sessionRepo, ledger pointsLedger, grid gridInvalidator, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		ledger:   ledger,
		grid:     grid,
		logger:   logger,
		now:      time.Now,
	}
}

// Find returns a session visible to the actor.
func (s *SessionService) Find(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actorID, actorRole, session) {
		return nil, appErrors.ErrForbidden
	}
	return session, nil
}

// List returns sessions matching the filter. Non-admin actors are
// pinned to their own sessions.
func (s *SessionService) List(ctx context.Context, actorID string, actorRole models.UserRole, filter models.SessionFilter) ([]models.TutoringSession, int, error) {
	switch actorRole {
	case models.RoleAdmin:
	case models.RoleTutor:
		filter.OwnerID = actorID
	default:
		filter.UserID = actorID
	}
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, total, nil
}

// Accept moves a requested session to accepted and charges the points
// the booking committed to. The charge is idempotent per session, so a
// retried accept cannot double-spend.
func (s *SessionService) Accept(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.loadForOwner(ctx, actorID, actorRole, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionRequested {
		return nil, appErrors.ErrInvalidTransition
	}

	if session.PointsSpent > 0 {
		current, err := s.ledger.Current(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if current < session.PointsSpent {
			return nil, appErrors.ErrInsufficientPoints
		}
		if _, err := s.ledger.CreateSpentForSession(ctx, session.UserID, actorID, session.ID, session.PointsSpent); err != nil {
			return nil, err
		}
	}

	return s.transition(ctx, session, models.SessionAccepted, nil, nil)
}

// Deny rejects a requested session and reverses any charged points.
func (s *SessionService) Deny(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.loadForOwner(ctx, actorID, actorRole, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionRequested {
		return nil, appErrors.ErrInvalidTransition
	}
	if err := s.refund(ctx, session); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updated, err := s.transition(ctx, session, models.SessionDenied, &now, session.PaidDate)
	if err != nil {
		return nil, err
	}
	s.invalidateGrid(ctx)
	return updated, nil
}

// Cancel withdraws a session that has not happened yet and reverses any
// charged points. Learners may cancel their own sessions; owners and
// admins may cancel any session they host.
func (s *SessionService) Cancel(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin && actorID != session.UserID && actorID != session.OwnerID {
		return nil, appErrors.ErrForbidden
	}
	switch session.Status {
	case models.SessionRequested, models.SessionAccepted, models.SessionPaid:
	default:
		return nil, appErrors.ErrInvalidTransition
	}
	if err := s.refund(ctx, session); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updated, err := s.transition(ctx, session, models.SessionCancelled, &now, session.PaidDate)
	if err != nil {
		return nil, err
	}
	s.invalidateGrid(ctx)
	return updated, nil
}

// MarkPaid records payment for an accepted session.
func (s *SessionService) MarkPaid(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.loadForOwner(ctx, actorID, actorRole, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionAccepted {
		return nil, appErrors.ErrInvalidTransition
	}
	now := s.now().UTC()
	return s.transition(ctx, session, models.SessionPaid, session.CancellationDate, &now)
}

// MarkNoShow records that the learner did not attend. Charged points
// are not refunded.
func (s *SessionService) MarkNoShow(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.loadForOwner(ctx, actorID, actorRole, id)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case models.SessionAccepted, models.SessionPaid:
	default:
		return nil, appErrors.ErrInvalidTransition
	}
	updated, err := s.transition(ctx, session, models.SessionNoShow, session.CancellationDate, session.PaidDate)
	if err != nil {
		return nil, err
	}
	s.invalidateGrid(ctx)
	return updated, nil
}

// Complete closes out a paid session after it happened.
func (s *SessionService) Complete(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.loadForOwner(ctx, actorID, actorRole, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaid {
		return nil, appErrors.ErrInvalidTransition
	}
	return s.transition(ctx, session, models.SessionCompleted, session.CancellationDate, session.PaidDate)
}

func (s *SessionService) load(ctx context.Context, id string) (*models.TutoringSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) loadForOwner(ctx context.Context, actorID string, actorRole models.UserRole, id string) (*models.TutoringSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorRole != models.RoleAdmin && actorID != session.OwnerID {
		return nil, appErrors.ErrForbidden
	}
	return session, nil
}

func (s *SessionService) canView(actorID string, actorRole models.UserRole, session *models.TutoringSession) bool {
	return actorRole == models.RoleAdmin || actorID == session.UserID || actorID == session.OwnerID
}

func (s *SessionService) refund(ctx context.Context, session *models.TutoringSession) error {
	if session.PointsSpent == 0 {
		return nil
	}
	_, err := s.ledger.DeleteByReference(ctx, models.SessionReference(session.ID))
	return err
}

func (s *SessionService) transition(ctx context.Context, session *models.TutoringSession, status models.SessionStatus, cancellationDate, paidDate *time.Time) (*models.TutoringSession, error) {
	if err := s.sessions.UpdateStatus(ctx, session.ID, status, cancellationDate, paidDate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	session.Status = status
	session.CancellationDate = cancellationDate
	session.PaidDate = paidDate
	s.logger.Info("session transitioned", zap.String("session_id", session.ID), zap.String("status", string(status)))
	return session, nil
}

func (s *SessionService) invalidateGrid(ctx context.Context) {
	if s.grid != nil {
		s.grid.InvalidateGrid(ctx)
	}
}
