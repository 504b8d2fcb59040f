package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/tutorhub-api/internal/models"
	"github.com/campushq/tutorhub-api/internal/service"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
	"github.com/campushq/tutorhub-api/pkg/response"
)

// SessionHandler exposes the session lifecycle endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List sessions
// @Description List sessions visible to the caller, with filters and pagination
// @Tags Sessions
// @Produce json
// @Param status query string false "Filter by status"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.SessionFilter{
		Status: models.SessionStatus(c.Query("status")),
	}
	if raw := c.Query("date_from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD"))
			return
		}
		filter.DateFrom = parsed
	}
	if raw := c.Query("date_to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD"))
			return
		}
		filter.DateTo = parsed
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	sessions, total, err := h.service.List(c.Request.Context(), claims.UserID, claims.Role, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Find godoc
// @Summary Session detail
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Find(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.service.Find(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

type transitionFunc func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error)

func (h *SessionHandler) transition(c *gin.Context, fn transitionFunc) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := fn(c, claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Accept godoc
// @Summary Accept a requested session
// @Description Accept a session and charge the committed points
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /sessions/{id}/accept [post]
func (h *SessionHandler) Accept(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.Accept(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}

// Deny godoc
// @Summary Deny a requested session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/deny [post]
func (h *SessionHandler) Deny(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.Deny(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}

// Cancel godoc
// @Summary Cancel a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.Cancel(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}

// MarkPaid godoc
// @Summary Mark a session paid
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/paid [post]
func (h *SessionHandler) MarkPaid(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.MarkPaid(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}

// MarkNoShow godoc
// @Summary Mark a session as a no-show
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/no-show [post]
func (h *SessionHandler) MarkNoShow(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.MarkNoShow(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}

// Complete godoc
// @Summary Complete a paid session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	h.transition(c, func(c *gin.Context, claims *models.JWTClaims, id string) (*models.TutoringSession, error) {
		return h.service.Complete(c.Request.Context(), claims.UserID, claims.Role, id)
	})
}
