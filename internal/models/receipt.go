package models

import (
	"fmt"
	"time"
)

// ReceiptType classifies a points receipt.
type ReceiptType string

const (
	ReceiptEarned     ReceiptType = "EARNED"
	ReceiptSpent      ReceiptType = "SPENT"
	ReceiptAdjustment ReceiptType = "ADJUSTMENT"
)

// PointsReceipt is one immutable entry in the append-only points
// ledger. Receipts are never updated; the only removal path is a
// reversal keyed by the reference string.
//
// SPENT receipts store a negative amount. EARNED and ADJUSTMENT store
// the signed amount directly (adjustments may be negative).
type PointsReceipt struct {
	ID          string      `db:"id" json:"id"`
	UserID      string      `db:"user_id" json:"user_id"`
	IssuerID    string      `db:"issuer_id" json:"issuer_id"`
	ReceiptDate time.Time   `db:"receipt_date" json:"receipt_date"`
	Type        ReceiptType `db:"type" json:"type"`
	Amount      int         `db:"amount" json:"amount"`
	Reason      *string     `db:"reason" json:"reason,omitempty"`
	Reference   *string     `db:"reference" json:"reference,omitempty"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`
}

// SessionReference builds the deterministic reference linking a spend
// receipt to its tutoring session. Uniqueness of this string is what
// makes session charges idempotent and reversible in bulk.
func SessionReference(sessionID string) string {
	return fmt.Sprintf("TS-%s", sessionID)
}

// PointsBalance carries the derived balances for a user. Both values
// are folds over the receipt log; nothing is stored.
type PointsBalance struct {
	UserID  string `json:"user_id"`
	Total   int    `json:"total"`
	Current int    `json:"current"`
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	UserID   string
	Type     ReceiptType
	DateFrom time.Time
	DateTo   time.Time
	Page     int
	PageSize int
}
