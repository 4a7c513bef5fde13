package constants

import (
	"strings"
)

// TxType is the direction of money for a transaction.
type TxType string

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// DefaultJurisdiction is the category set used when none is configured.
const DefaultJurisdiction = "us-schedule-c"

// CanonicalizeTxType folds case and a handful of synonyms into income/expense.
func CanonicalizeTxType(input string) (TxType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	// synonyms map
	synonyms := map[string]TxType{
		"income":   Income,
		"credit":   Income,
		"sale":     Income,
		"sales":    Income,
		"revenue":  Income,
		"deposit":  Income,
		"refund":   Income,
		"expense":  Expense,
		"expenses": Expense,
		"debit":    Expense,
		"purchase": Expense,
		"payment":  Expense,
		"bill":     Expense,
		"receipt":  Expense,
		"cost":     Expense,
	}

	if t, ok := synonyms[normalized]; ok {
		return t, true
	}
	return "", false
}

// IsValid reports whether t is one of the two canonical values.
func (t TxType) IsValid() bool {
	return t == Income || t == Expense
}
