package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/tutorhub-api/internal/service"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	service *service.MetricsService
}

// NewMetricsHandler creates a new handler.
func NewMetricsHandler(svc *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{service: svc}
}

// Scrape serves the Prometheus exposition payload.
func (h *MetricsHandler) Scrape(c *gin.Context) {
	h.service.Handler().ServeHTTP(c.Writer, c.Request)
}
