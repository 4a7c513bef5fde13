// Package normalize turns raw provider fields into a valid Transaction or a list of violations.
package normalize

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/categories"
	"github.com/joseph-ayodele/bookkeeper/internal/common"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

const (
	maxVendorLen      = 200
	maxDescriptionLen = 500
)

// Unambiguous layouts only. Day/month order is never guessed.
var dateLayouts = []string{
	time.DateOnly,
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
}

// Outcome is the normalizer verdict. Record is nil whenever Violations is non-empty.
type Outcome struct {
	Record     *entity.Transaction
	Violations []common.ValidationError
	Flags      []string
}

// Valid reports whether a record was produced.
func (o Outcome) Valid() bool { return len(o.Violations) == 0 && o.Record != nil }

// Normalizer enforces transaction rules against a caller-supplied category list.
type Normalizer struct {
	Categories []string
}

func New(categoryList []string) *Normalizer {
	return &Normalizer{Categories: categoryList}
}

// Normalize validates raw and builds an unsaved Transaction. It never panics on bad input;
// every problem becomes a violation.
func (n *Normalizer) Normalize(raw llm.RawFields, source string) Outcome {
	v := common.NewValidator()
	var flags []string

	date, dateOK := parseDate(raw.Date)
	v.Field("date", raw.Date, common.Required)
	if strings.TrimSpace(raw.Date) != "" && !dateOK {
		v.Add("date", raw.Date, "must be a calendar date in YYYY-MM-DD form")
	}

	txType, typeOK := constants.CanonicalizeTxType(raw.Type)
	if !typeOK {
		v.Add("type", raw.Type, "must be income or expense")
	}

	amount, amountOK := parseMoney(v, "amount", raw.Amount, false)
	tax, taxOK := parseMoney(v, "tax_amount", raw.TaxAmount, true)

	vendor := strings.TrimSpace(raw.Vendor)
	v.Field("vendor_or_customer", vendor, common.Required, common.MaxLength(maxVendorLen))

	category := strings.TrimSpace(raw.Category)
	v.Field("category", category, common.Required)
	if category != "" && len(n.Categories) > 0 {
		if canon, ok := categories.Canonical(n.Categories, category); ok {
			category = canon
		} else {
			flags = append(flags, constants.FlagUnknownCategory)
		}
	}

	description := strings.TrimSpace(raw.Description)
	v.Field("description", description, common.MaxLength(maxDescriptionLen))

	if amountOK && amount.IsZero() {
		flags = append(flags, constants.FlagZeroAmount)
	}

	if v.HasErrors() || !dateOK || !typeOK || !amountOK || !taxOK {
		return Outcome{Violations: v.Errors(), Flags: flags}
	}

	return Outcome{
		Record: &entity.Transaction{
			Date:             date,
			Type:             txType,
			Category:         category,
			VendorOrCustomer: vendor,
			Description:      description,
			Amount:           amount,
			TaxAmount:        tax,
			SourceDocument:   source,
			Notes:            strings.TrimSpace(raw.Notes),
			Flags:            flags,
		},
		Flags: flags,
	}
}

// ValidateRecord is the last check before a record is written: the stored shape of every
// field plus the identity columns Normalize does not set. The error wraps common.ErrValidation.
func ValidateRecord(t *entity.Transaction) error {
	if t == nil {
		return common.ErrInvalidInput
	}
	return common.NewValidator().
		Field("date", t.DateString(), common.ISODate).
		Field("type", string(t.Type), common.OneOf(string(constants.Income), string(constants.Expense))).
		Field("amount", t.Amount, common.NonNegative).
		Field("tax_amount", t.TaxAmount, common.NonNegative).
		Field("vendor_or_customer", t.VendorOrCustomer, common.Required, common.MaxLength(maxVendorLen)).
		Field("category", t.Category, common.Required).
		Field("description", t.Description, common.MaxLength(maxDescriptionLen)).
		Field("source_document", t.SourceDocument, common.Required).
		Field("fingerprint", t.Fingerprint, common.Required).
		Error()
}

// ToRawFields renders a record back into the raw shape (used by edit flows).
func ToRawFields(t *entity.Transaction) llm.RawFields {
	return llm.RawFields{
		Date:        t.DateString(),
		Vendor:      t.VendorOrCustomer,
		Amount:      t.Amount.String(),
		TaxAmount:   t.TaxAmount.String(),
		Category:    t.Category,
		Description: t.Description,
		Type:        string(t.Type),
		Notes:       t.Notes,
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// tolerate a full timestamp ("2025-10-20T00:00:00Z") by taking its date part
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return entity.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

// parseMoney records violations on v and reports whether the value is usable.
func parseMoney(v *common.Validator, field, s string, optional bool) (decimal.Decimal, bool) {
	if strings.TrimSpace(s) == "" {
		if optional {
			return decimal.Zero, true
		}
		v.Add(field, s, "is required")
		return decimal.Zero, false
	}
	d, err := llm.ParseAmount(s)
	if err != nil {
		v.Add(field, s, "must be a number")
		return decimal.Zero, false
	}
	if verr := common.NonNegative(field, d); verr != nil {
		v.Add(verr.Field, verr.Value, verr.Message)
		return d, false
	}
	return d.Round(2), true
}
