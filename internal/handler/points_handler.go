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

// PointsHandler exposes ledger balances, receipts and admin writes.
type PointsHandler struct {
	service *service.LedgerService
}

// NewPointsHandler creates a new handler.
func NewPointsHandler(svc *service.LedgerService) *PointsHandler {
	return &PointsHandler{service: svc}
}

// MyBalance godoc
// @Summary Current user's points balance
// @Tags Points
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /points/balance [get]
func (h *PointsHandler) MyBalance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Balance godoc
// @Summary Points balance for any user
// @Tags Points
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /points/balance/{id} [get]
func (h *PointsHandler) Balance(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Receipts godoc
// @Summary List points receipts
// @Description List receipts; non-admin callers only see their own
// @Tags Points
// @Produce json
// @Param user_id query string false "Filter by user (admin only)"
// @Param type query string false "Filter by receipt type"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /points/receipts [get]
func (h *PointsHandler) Receipts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ReceiptFilter{
		UserID: c.Query("user_id"),
		Type:   models.ReceiptType(c.Query("type")),
	}
	if claims.Role != models.RoleAdmin {
		filter.UserID = claims.UserID
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
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	receipts, total, err := h.service.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipts, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Adjust godoc
// @Summary Create a points adjustment
// @Description Append a signed adjustment receipt; negative amounts may push a user into debt
// @Tags Points
// @Accept json
// @Produce json
// @Param payload body service.AdjustmentRequest true "Adjustment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /points/adjustments [post]
func (h *PointsHandler) Adjust(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}

	receipt, err := h.service.CreateAdjustment(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// Award godoc
// @Summary Award earned points
// @Description Issue an EARNED receipt for attendance or events
// @Tags Points
// @Accept json
// @Produce json
// @Param payload body service.EarnRequest true "Award payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /points/awards [post]
func (h *PointsHandler) Award(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid award payload"))
		return
	}

	receipt, err := h.service.CreateEarned(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// Reverse godoc
// @Summary Reverse receipts by reference
// @Description Hard-delete every receipt sharing a reference string
// @Tags Points
// @Produce json
// @Param reference path string true "Reference string"
// @Success 200 {object} response.Envelope
// @Router /points/references/{reference} [delete]
func (h *PointsHandler) Reverse(c *gin.Context) {
	removed, err := h.service.DeleteByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed}, nil)
}
