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

// LeaderboardHandler exposes ranked standings.
type LeaderboardHandler struct {
	service *service.LeaderboardService
}

// NewLeaderboardHandler creates a new handler.
func NewLeaderboardHandler(svc *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: svc}
}

// Rank godoc
// @Summary Points leaderboard
// @Description Rank every user by windowed ledger metric; ties share a rank
// @Tags Leaderboard
// @Produce json
// @Param mode query string false "current or total (default current)"
// @Param window_start query string false "Window start (YYYY-MM-DD, default month start)"
// @Param window_end query string false "Window end exclusive (YYYY-MM-DD, default tomorrow)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /leaderboard [get]
func (h *LeaderboardHandler) Rank(c *gin.Context) {
	mode := models.LeaderboardMode(c.DefaultQuery("mode", string(models.LeaderboardCurrent)))

	now := time.Now().UTC()
	windowStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	if raw := c.Query("window_start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "window_start must be YYYY-MM-DD"))
			return
		}
		windowStart = parsed
	}
	if raw := c.Query("window_end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "window_end must be YYYY-MM-DD"))
			return
		}
		windowEnd = parsed
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	rows, total, err := h.service.Rank(c.Request.Context(), service.RankQuery{
		Mode:        mode,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}
