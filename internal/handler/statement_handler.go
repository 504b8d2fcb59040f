package handler

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/tutorhub-api/internal/models"
	"github.com/campushq/tutorhub-api/internal/service"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
	"github.com/campushq/tutorhub-api/pkg/response"
)

// StatementHandler exposes asynchronous receipt statement exports.
type StatementHandler struct {
	service *service.StatementService
}

// NewStatementHandler creates a new handler.
func NewStatementHandler(svc *service.StatementService) *StatementHandler {
	return &StatementHandler{service: svc}
}

type statementPayload struct {
	Format   string `json:"format" binding:"required"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// Request godoc
// @Summary Request a points statement
// @Description Enqueue a CSV or PDF export of the caller's receipts
// @Tags Statements
// @Accept json
// @Produce json
// @Param payload body statementPayload true "Statement payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /statements [post]
func (h *StatementHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload statementPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid statement payload"))
		return
	}

	dateFrom := time.Time{}
	dateTo := time.Time{}
	var err error
	if payload.DateFrom != "" {
		if dateFrom, err = time.Parse("2006-01-02", payload.DateFrom); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be YYYY-MM-DD"))
			return
		}
	}
	if payload.DateTo != "" {
		if dateTo, err = time.Parse("2006-01-02", payload.DateTo); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be YYYY-MM-DD"))
			return
		}
	}

	job, err := h.service.Request(c.Request.Context(), claims.UserID, models.StatementFormat(strings.ToLower(payload.Format)), dateFrom, dateTo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Statement job status
// @Tags Statements
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /statements/{id} [get]
func (h *StatementHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleAdmin && job.UserID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a rendered statement
// @Description Stream the statement file referenced by a signed token
// @Tags Statements
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /statements/download/{token} [get]
func (h *StatementHandler) Download(c *gin.Context) {
	file, relPath, err := h.service.OpenByToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	name := filepath.Base(relPath)
	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(name, ".pdf"):
		contentType = "application/pdf"
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", contentType)
	c.File(file.Name())
}
