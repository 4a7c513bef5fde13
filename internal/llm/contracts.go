package llm

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// Document is a loaded input file ready to hand to a provider.
type Document struct {
	Path     string
	Name     string
	Ext      string // normalized, no dot
	Format   constants.FileFormat
	MIMEType string
	Data     []byte
}

// RawFields is the provider answer before validation. Every value is the
// provider's string; amounts are rewritten to plain fixed-point text by DecodeFields.
type RawFields struct {
	Date        string `json:"date"`
	Vendor      string `json:"vendor"`
	Amount      string `json:"amount"`
	TaxAmount   string `json:"tax_amount,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Notes       string `json:"notes,omitempty"`
}

// Result is what every Provider returns. Exactly one of (Err == nil) or (Err != nil) holds;
// expected failures never surface as Go errors or panics.
type Result struct {
	Provider    string
	Fields      RawFields
	Amount      decimal.Decimal
	TaxAmount   decimal.Decimal
	Notes       string
	RawResponse []byte
	Err         *ExtractionError
}

// Success reports whether the provider produced fields.
func (r Result) Success() bool { return r.Err == nil }

// Failed is a convenience constructor for a failed result.
func Failed(provider string, err *ExtractionError) Result {
	if err.Provider == "" {
		err.Provider = provider
	}
	return Result{Provider: provider, Err: err, RawResponse: err.Raw}
}

// Provider is the extraction capability each vendor adapter implements.
// Categories are passed through to the prompt unmodified and in order.
type Provider interface {
	Name() string
	Extract(ctx context.Context, doc Document, categories []string) Result
}
