package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/tutorhub-api/internal/service"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
	"github.com/campushq/tutorhub-api/pkg/response"
)

// PricingHandler exposes subject configuration and quote endpoints.
type PricingHandler struct {
	service *service.PricingService
}

// NewPricingHandler creates a new handler.
func NewPricingHandler(svc *service.PricingService) *PricingHandler {
	return &PricingHandler{service: svc}
}

// Subjects godoc
// @Summary List bookable subjects
// @Description List active subjects with their pricing bounds
// @Tags Pricing
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *PricingHandler) Subjects(c *gin.Context) {
	configs, err := h.service.SubjectsForBooking(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, configs, nil)
}

// SubjectConfig godoc
// @Summary Subject booking configuration
// @Tags Pricing
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /subjects/{id}/config [get]
func (h *PricingHandler) SubjectConfig(c *gin.Context) {
	config, err := h.service.SubjectConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, config, nil)
}

// Quote godoc
// @Summary Compute a price quote
// @Description Compute the authoritative quote for a duration and discount; out-of-range input is clamped
// @Tags Pricing
// @Accept json
// @Produce json
// @Param payload body service.QuoteRequest true "Quote payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bookings/quote [post]
func (h *PricingHandler) Quote(c *gin.Context) {
	var req service.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quote payload"))
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// CreateRule godoc
// @Summary Create a pricing rule
// @Description Append a new effective pricing rule for a subject
// @Tags Pricing
// @Accept json
// @Produce json
// @Param payload body service.CreatePricingRuleRequest true "Pricing rule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pricing/rules [post]
func (h *PricingHandler) CreateRule(c *gin.Context) {
	var req service.CreatePricingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pricing rule payload"))
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// RuleHistory godoc
// @Summary Pricing rule history
// @Tags Pricing
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /pricing/rules/{id} [get]
func (h *PricingHandler) RuleHistory(c *gin.Context) {
	rules, err := h.service.RuleHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}
