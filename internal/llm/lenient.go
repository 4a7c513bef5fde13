package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
)

// NormalizeAndSanitizeJSON reshapes a model answer toward our schema before strict validation:
// - renames known synonyms (merchant_name -> vendor, total -> amount, ...)
// - coerces numbers and booleans to strings, keeping the literal digits
// - drops nulls and unknown keys
// - trims strings
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("sanitize: not a JSON object")
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms
	for _, from := range []string{"merchant_name", "merchant", "vendor_or_customer", "customer", "payee", "counterparty"} {
		renamed(from, "vendor")
	}
	for _, from := range []string{"total", "total_amount", "grand_total"} {
		renamed(from, "amount")
	}
	renamed("tax", "tax_amount")
	renamed("vat", "tax_amount")
	renamed("tx_date", "date")
	renamed("transaction_date", "date")
	renamed("transaction_type", "type")
	renamed("confidence_or_notes", "notes")

	// 2) coerce scalars to strings; drop nulls
	for k, v := range maps.Clone(m) {
		switch t := v.(type) {
		case json.Number:
			m[k] = t.String()
		case bool:
			m[k] = fmt.Sprintf("%t", t)
		case nil:
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		case string:
			m[k] = strings.TrimSpace(t)
		case map[string]any, []any:
			if k != "notes" {
				delete(m, k)
				dropped = append(dropped, k+"(type)")
				continue
			}
			b, _ := json.Marshal(t)
			m[k] = string(b)
		}
	}

	// 3) remove unknown keys
	allowed := map[string]struct{}{
		"date": {}, "vendor": {}, "amount": {}, "tax_amount": {},
		"category": {}, "description": {}, "type": {}, "notes": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
