package entity

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// Transaction is one validated income or expense record.
// ID is zero until the record has been persisted.
type Transaction struct {
	ID               int64            `json:"id"`
	Date             time.Time        `json:"date"`
	Type             constants.TxType `json:"type"`
	Category         string           `json:"category"`
	VendorOrCustomer string           `json:"vendor_or_customer"`
	Description      string           `json:"description,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	TaxAmount        decimal.Decimal  `json:"tax_amount"`
	SourceDocument   string           `json:"source_document"`
	Fingerprint      string           `json:"fingerprint"`
	Provider         string           `json:"provider,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Flags            []string         `json:"flags,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ModifiedAt       time.Time        `json:"modified_at"`
}

// DateString renders the transaction date as YYYY-MM-DD.
func (t *Transaction) DateString() string {
	if t.Date.IsZero() {
		return ""
	}
	return t.Date.Format(time.DateOnly)
}

// HasFlag reports whether the record carries a review flag.
func (t *Transaction) HasFlag(flag string) bool {
	return slices.Contains(t.Flags, flag)
}

// DateOnly truncates a timestamp to a UTC calendar date.
func DateOnly(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
