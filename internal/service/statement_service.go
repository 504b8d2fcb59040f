package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushq/tutorhub-api/internal/models"
	appErrors "github.com/campushq/tutorhub-api/pkg/errors"
	"github.com/campushq/tutorhub-api/pkg/export"
	"github.com/campushq/tutorhub-api/pkg/jobs"
	"github.com/campushq/tutorhub-api/pkg/storage"
)

type statementReceiptReader interface {
	List(ctx context.Context, filter models.ReceiptFilter) ([]models.PointsReceipt, int, error)
	SumBalances(ctx context.Context, userID string) (earned int, spent int, err error)
}

type statementUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// StatementConfig tunes statement generation.
type StatementConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// StatementService renders per-user receipt statements asynchronously.
// Requests enqueue a job; workers fold the ledger into a CSV or PDF
// file served through signed, expiring download tokens.
type StatementService struct {
	receipts statementReceiptReader
	users    statementUserReader
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	logger   *zap.Logger
	cfg      StatementConfig

	mu      sync.RWMutex
	tracked map[string]*models.StatementJob
}

// NewStatementService constructs a StatementService. Call Start before
// accepting requests so the worker queue is running.
func NewStatementService(receipts statementReceiptReader, users statementUserReader, store fileStorage, signer *storage.SignedURLSigner, queueCfg jobs.QueueConfig, cfg StatementConfig, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	s := &StatementService{
		receipts: receipts,
		users:    users,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		tracked:  map[string]*models.StatementJob{},
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("statements", s.process, queueCfg)
	return s
}

// Start launches the statement workers.
func (s *StatementService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the statement workers.
func (s *StatementService) Stop() {
	s.queue.Stop()
}

// Request enqueues a statement export for a user and window.
func (s *StatementService) Request(ctx context.Context, userID string, format models.StatementFormat, dateFrom, dateTo time.Time) (*models.StatementJob, error) {
	switch format {
	case models.StatementFormatCSV, models.StatementFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	job := &models.StatementJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Format:      format,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
		Status:      models.StatementPending,
		RequestedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.tracked[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "statement", Payload: job.ID}); err != nil {
		s.mu.Lock()
		delete(s.tracked, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue statement")
	}
	return s.snapshot(job.ID), nil
}

// Job returns the tracked state of one statement job.
func (s *StatementService) Job(id string) (*models.StatementJob, error) {
	job := s.snapshot(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "statement job not found")
	}
	return job, nil
}

// OpenByToken validates a download token and opens the rendered file.
func (s *StatementService) OpenByToken(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "statement file not found")
	}
	return file, relPath, nil
}

// Cleanup removes rendered files older than the result TTL.
func (s *StatementService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// process is the queue handler: it folds the user's receipts into a
// dataset, renders the requested format, stores the file and attaches a
// signed download token to the job.
func (s *StatementService) process(ctx context.Context, qj jobs.Job) error {
	id, _ := qj.Payload.(string)
	job := s.lookup(id)
	if job == nil {
		return fmt.Errorf("statement job %s not tracked", id)
	}
	s.setStatus(id, models.StatementProcessing, "")

	user, err := s.users.FindByID(ctx, job.UserID)
	if err != nil {
		s.setStatus(id, models.StatementFailed, "user lookup failed")
		return fmt.Errorf("load statement user: %w", err)
	}

	dataset, subtitle, err := s.buildDataset(ctx, job, user)
	if err != nil {
		s.setStatus(id, models.StatementFailed, "dataset build failed")
		return err
	}

	title := fmt.Sprintf("Points Statement %s", user.Username)
	var payload []byte
	switch job.Format {
	case models.StatementFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.StatementFormatPDF:
		payload, err = s.pdf.Render(dataset, title, subtitle)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		s.setStatus(id, models.StatementFailed, "render failed")
		return err
	}

	filename := fmt.Sprintf("statement_%s_%s.%s", sanitizeFilename(user.Username), time.Now().UTC().Format("20060102_150405"), job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.setStatus(id, models.StatementFailed, "storage failed")
		return err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.setStatus(id, models.StatementFailed, "token signing failed")
		return err
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	downloadURL := fmt.Sprintf("%s/statements/download/%s", prefix, token)

	completedAt := time.Now().UTC()
	s.mu.Lock()
	if tracked, ok := s.tracked[id]; ok {
		tracked.Status = models.StatementCompleted
		tracked.FilePath = relPath
		tracked.DownloadURL = downloadURL
		tracked.ExpiresAt = &expiresAt
		tracked.CompletedAt = &completedAt
		tracked.Error = ""
	}
	s.mu.Unlock()

	s.logger.Info("statement rendered", zap.String("job_id", id), zap.String("file", relPath))
	return nil
}

func (s *StatementService) buildDataset(ctx context.Context, job *models.StatementJob, user *models.User) (export.Dataset, string, error) {
	receipts, _, err := s.receipts.List(ctx, models.ReceiptFilter{
		UserID:   job.UserID,
		DateFrom: job.DateFrom,
		DateTo:   job.DateTo,
		Page:     1,
		PageSize: 200,
	})
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("list statement receipts: %w", err)
	}

	rows := make([]map[string]string, 0, len(receipts))
	for _, receipt := range receipts {
		rows = append(rows, map[string]string{
			"Date":      receipt.ReceiptDate.UTC().Format("2006-01-02 15:04"),
			"Type":      string(receipt.Type),
			"Amount":    fmt.Sprintf("%d", receipt.Amount),
			"Reason":    derefString(receipt.Reason),
			"Reference": derefString(receipt.Reference),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Type", "Amount", "Reason", "Reference"},
		Rows:    rows,
	}

	earned, spent, err := s.receipts.SumBalances(ctx, job.UserID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("sum statement balances: %w", err)
	}
	subtitle := fmt.Sprintf("Total %d points, current %d points", earned, earned+spent)
	return dataset, subtitle, nil
}

func (s *StatementService) lookup(id string) *models.StatementJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracked[id]
}

func (s *StatementService) snapshot(id string) *models.StatementJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.tracked[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func (s *StatementService) setStatus(id string, status models.StatementStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.tracked[id]; ok {
		job.Status = status
		job.Error = errMsg
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
