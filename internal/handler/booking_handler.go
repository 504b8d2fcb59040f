package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/tutorhub-api/internal/service"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
	"github.com/campushq/tutorhub-api/pkg/response"
)

// BookingHandler exposes the booking commit endpoint.
type BookingHandler struct {
	service *service.BookingService
}

// NewBookingHandler creates a new handler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

type bookingPayload struct {
	SubjectID       string `json:"subject_id" binding:"required"`
	SessionDate     string `json:"session_date" binding:"required"`
	StartTime       string `json:"start_time" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	DiscountPercent int    `json:"discount_percent"`
	OwnerID         string `json:"owner_id"`
}

// Request godoc
// @Summary Request a booking
// @Description Commit a booking for an open slot; the price is recomputed server-side
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body bookingPayload true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload bookingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	date, err := time.Parse("2006-01-02", payload.SessionDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session_date must be YYYY-MM-DD"))
		return
	}

	session, err := h.service.RequestBooking(c.Request.Context(), claims.UserID, service.BookingRequest{
		SubjectID:       payload.SubjectID,
		SessionDate:     date,
		StartTime:       payload.StartTime,
		DurationMinutes: payload.DurationMinutes,
		DiscountPercent: payload.DiscountPercent,
		OwnerID:         payload.OwnerID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}
