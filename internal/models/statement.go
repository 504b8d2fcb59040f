package models

import "time"

// StatementFormat selects the rendered output of a statement export.
type StatementFormat string

const (
	StatementFormatCSV StatementFormat = "csv"
	StatementFormatPDF StatementFormat = "pdf"
)

// StatementStatus tracks a statement job through the worker queue.
type StatementStatus string

const (
	StatementPending    StatementStatus = "PENDING"
	StatementProcessing StatementStatus = "PROCESSING"
	StatementCompleted  StatementStatus = "COMPLETED"
	StatementFailed     StatementStatus = "FAILED"
)

// StatementJob is an asynchronous receipt statement export for one
// user. Jobs live in memory; the rendered file and its signed download
// token are the durable artifacts.
type StatementJob struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Format      StatementFormat `json:"format"`
	DateFrom    time.Time       `json:"date_from"`
	DateTo      time.Time       `json:"date_to"`
	Status      StatementStatus `json:"status"`
	FilePath    string          `json:"-"`
	DownloadURL string          `json:"download_url,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
