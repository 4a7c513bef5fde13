package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var reAmountNoise = regexp.MustCompile(`[\s$€£¥₹]|(?i:usd|eur|gbp|cad|aud|chf)`)

// ParseAmount turns vendor free text ("$1,234.50", "(12.00)", "52.52 USD") into a fixed-point value.
// Empty input is an error; callers decide whether a missing value defaults.
func ParseAmount(s string) (decimal.Decimal, error) {
	orig := s
	s = reAmountNoise.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.ReplaceAll(s, ",", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", orig, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// DecodeFields turns a cleaned model answer into RawFields plus fixed-point amounts.
// Any amount that cannot be parsed is a malformed_response, never a silent zero.
func DecodeFields(content []byte) (RawFields, decimal.Decimal, decimal.Decimal, *ExtractionError) {
	var f RawFields
	if err := json.Unmarshal(content, &f); err != nil {
		return RawFields{}, decimal.Zero, decimal.Zero, &ExtractionError{Kind: KindMalformedResponse, Message: "unmarshal fields", Raw: content, Cause: err}
	}

	amount, err := ParseAmount(f.Amount)
	if err != nil {
		return f, decimal.Zero, decimal.Zero, &ExtractionError{Kind: KindMalformedResponse, Message: "amount is not a number", Raw: content, Cause: err}
	}
	f.Amount = amount.String()

	tax := decimal.Zero
	if strings.TrimSpace(f.TaxAmount) != "" {
		tax, err = ParseAmount(f.TaxAmount)
		if err != nil {
			return f, amount, decimal.Zero, &ExtractionError{Kind: KindMalformedResponse, Message: "tax_amount is not a number", Raw: content, Cause: err}
		}
		f.TaxAmount = tax.String()
	}
	return f, amount, tax, nil
}

// ParseModelAnswer is the shared tail of every adapter: clean, sanitize, validate, decode.
func ParseModelAnswer(provider, text string, categories []string, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	raw := []byte(text)
	cleaned := CleanModelJSON(text)
	if cleaned == "" {
		return Failed(provider, &ExtractionError{Kind: KindMalformedResponse, Message: "empty model answer", Raw: raw})
	}

	sanitized, dropped, err := NormalizeAndSanitizeJSON([]byte(cleaned), logger)
	if err != nil {
		logger.Error("llm.extract.sanitize_failed", "provider", provider, "error", err, "content", truncate(cleaned, 2000))
		return Failed(provider, &ExtractionError{Kind: KindMalformedResponse, Message: "model answer is not a JSON object", Raw: raw, Cause: err})
	}

	schema := BuildTransactionJSONSchema(categories)
	if err := ValidateJSONAgainstSchema(schema, sanitized); err != nil {
		logger.Error("llm.extract.schema_validation_failed", "provider", provider, "error", err, "content", string(sanitized))
		return Failed(provider, &ExtractionError{Kind: KindMalformedResponse, Message: "schema validation failed", Raw: raw, Cause: err})
	}

	fields, amount, tax, ee := DecodeFields(sanitized)
	if ee != nil {
		ee.Raw = raw
		logger.Error("llm.extract.decode_failed", "provider", provider, "error", ee)
		return Failed(provider, ee)
	}

	if len(dropped) > 0 {
		logger.Warn("llm.extract.lenient_sanitize_applied", "provider", provider, "dropped", dropped)
	}
	return Result{
		Provider:    provider,
		Fields:      fields,
		Amount:      amount,
		TaxAmount:   tax,
		Notes:       fields.Notes,
		RawResponse: raw,
	}
}
