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

// AvailabilityHandler exposes the month grid and admin block management.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// MonthGrid godoc
// @Summary Bookable month grid
// @Description Project one month of availability into open start times for a subject and duration
// @Tags Availability
// @Produce json
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Param subject_id query string true "Subject ID"
// @Param duration_minutes query int false "Requested duration in minutes"
// @Param owner_id query string false "Restrict to one owner"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /availability/grid [get]
func (h *AvailabilityHandler) MonthGrid(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be an integer"))
		return
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month must be an integer"))
		return
	}
	duration := 0
	if raw := c.Query("duration_minutes"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration_minutes must be an integer"))
			return
		}
	}

	grid, err := h.service.MonthGrid(c.Request.Context(), service.MonthGridQuery{
		OwnerID:         c.Query("owner_id"),
		SubjectID:       c.Query("subject_id"),
		DurationMinutes: duration,
		Year:            year,
		Month:           month,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}

// ListBlocks godoc
// @Summary List availability blocks
// @Tags Availability
// @Produce json
// @Param date_from query string true "Start date (YYYY-MM-DD)"
// @Param date_to query string true "End date (YYYY-MM-DD)"
// @Param owner_id query string false "Restrict to one owner"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability/blocks [get]
func (h *AvailabilityHandler) ListBlocks(c *gin.Context) {
	dateFrom, err := time.Parse("2006-01-02", c.Query("date_from"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD"))
		return
	}
	dateTo, err := time.Parse("2006-01-02", c.Query("date_to"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD"))
		return
	}

	blocks, err := h.service.ListBlocks(c.Request.Context(), models.AvailabilityFilter{
		OwnerID:  c.Query("owner_id"),
		DateFrom: dateFrom,
		DateTo:   dateTo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

type createBlockPayload struct {
	OwnerID   string `json:"owner_id"`
	BlockDate string `json:"block_date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
}

// CreateBlock godoc
// @Summary Declare an availability block
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body createBlockPayload true "Block payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /availability/blocks [post]
func (h *AvailabilityHandler) CreateBlock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload createBlockPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid block payload"))
		return
	}
	date, err := time.Parse("2006-01-02", payload.BlockDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "block_date must be YYYY-MM-DD"))
		return
	}

	// Tutors may only declare their own blocks; admins may declare for
	// any owner.
	ownerID := payload.OwnerID
	if ownerID == "" || claims.Role != models.RoleAdmin {
		ownerID = claims.UserID
	}

	block, err := h.service.CreateBlock(c.Request.Context(), service.CreateBlockRequest{
		OwnerID:   ownerID,
		BlockDate: date,
		StartTime: payload.StartTime,
		EndTime:   payload.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, block)
}

// DeleteBlock godoc
// @Summary Delete an availability block
// @Tags Availability
// @Produce json
// @Param id path string true "Block ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /availability/blocks/{id} [delete]
func (h *AvailabilityHandler) DeleteBlock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteBlock(c.Request.Context(), claims.UserID, claims.Role, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
