package export

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bookkeeper/constants"
	"github.com/joseph-ayodele/bookkeeper/internal/entity"
)

// CategoryTotal aggregates one category on one side of the ledger.
type CategoryTotal struct {
	Type     constants.TxType
	Category string
	Count    int
	Total    decimal.Decimal
	Tax      decimal.Decimal
}

// Summary is a cash-basis view: amounts count in the period they are dated.
type Summary struct {
	From, To     *time.Time
	Income       decimal.Decimal
	Expenses     decimal.Decimal
	Net          decimal.Decimal
	TaxCollected decimal.Decimal // tax on income records
	TaxPaid      decimal.Decimal // tax on expense records
	Count        int
	Flagged      int
	Categories   []CategoryTotal // income first, then expense; each by category name
}

func CashBasisSummary(recs []*entity.Transaction) Summary {
	sum := Summary{
		Income:       decimal.Zero,
		Expenses:     decimal.Zero,
		TaxCollected: decimal.Zero,
		TaxPaid:      decimal.Zero,
	}
	byKey := map[string]*CategoryTotal{}
	for _, r := range recs {
		if r == nil {
			continue
		}
		sum.Count++
		if len(r.Flags) > 0 {
			sum.Flagged++
		}
		switch r.Type {
		case constants.Income:
			sum.Income = sum.Income.Add(r.Amount)
			sum.TaxCollected = sum.TaxCollected.Add(r.TaxAmount)
		case constants.Expense:
			sum.Expenses = sum.Expenses.Add(r.Amount)
			sum.TaxPaid = sum.TaxPaid.Add(r.TaxAmount)
		default:
			continue
		}
		key := string(r.Type) + "\x00" + strings.ToLower(r.Category)
		ct, ok := byKey[key]
		if !ok {
			ct = &CategoryTotal{Type: r.Type, Category: r.Category, Total: decimal.Zero, Tax: decimal.Zero}
			byKey[key] = ct
		}
		ct.Count++
		ct.Total = ct.Total.Add(r.Amount)
		ct.Tax = ct.Tax.Add(r.TaxAmount)
	}
	sum.Net = sum.Income.Sub(sum.Expenses)

	for _, ct := range byKey {
		sum.Categories = append(sum.Categories, *ct)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		a, b := sum.Categories[i], sum.Categories[j]
		if a.Type != b.Type {
			return a.Type == constants.Income
		}
		return strings.ToLower(a.Category) < strings.ToLower(b.Category)
	})
	return sum
}

func joinFlags(flags []string) string {
	return strings.Join(flags, ", ")
}
