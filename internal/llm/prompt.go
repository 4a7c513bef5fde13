package llm

import (
	"encoding/json"
	"strings"
)

// BuildSystemPrompt composes the system message: the field contract, the allowed
// categories (verbatim, in order), and formatting rules.
func BuildSystemPrompt(categories []string) string {
	var catLine string
	if len(categories) > 0 {
		catLine = "'category' MUST be exactly one of these labels, copied verbatim: " + strings.Join(categories, "; ") + ". "
	} else {
		catLine = "'category' must be a short bookkeeping label. "
	}
	rubric := buildCategoryRubric(categories)

	parts := []string{
		"You are a bookkeeping assistant that reads one receipt or invoice and returns ONLY a JSON object.",
		"Fields: date, vendor, amount, tax_amount, category, description, type.",
		"'date' is the transaction date as YYYY-MM-DD. If the date cannot be read, return an empty string; never guess.",
		"'vendor' is the merchant on a receipt or the customer on an invoice you issued.",
		"'amount' is the total paid or received as a plain decimal string such as \"52.52\"; no currency symbols or thousands separators.",
		"'tax_amount' is the sales tax or VAT shown, as a plain decimal string; use \"0\" if none is shown.",
		"'type' is \"expense\" for money paid out and \"income\" for money received.",
		catLine,
		"Category guidance: " + rubric,
		"'description' is a short, tax-appropriate summary of what was bought or sold (about 5-12 words). Avoid personal names, addresses, or card numbers.",
		"You may add 'notes' with anything a human reviewer should double-check.",
		"Never output null. Do NOT wrap the response in code fences.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt describes the attached document. The document itself travels as an image/file part.
func BuildUserPrompt(doc Document) string {
	var b strings.Builder
	if name := strings.TrimSpace(doc.Name); name != "" {
		b.WriteString("Filename: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("Document type: ")
	b.WriteString(strings.ToLower(string(doc.Format)))
	b.WriteString("\n\nExtract the transaction from the attached document and return ONLY JSON that matches the provided schema.")
	return b.String()
}

// SchemaInstruction renders the JSON schema as prompt text for vendors without native schema support.
func SchemaInstruction(schema map[string]any) string {
	return "JSON Schema:\n" + mustJSON(schema)
}

// buildCategoryRubric emits short hints only for categories present in the list.
func buildCategoryRubric(allowed []string) string {
	if len(allowed) == 0 {
		return "Pick the narrowest sensible label."
	}

	defs := map[string]string{
		"Advertising":                     "ads, promotion, listings, business cards.",
		"Car and truck expenses":          "fuel, parking, tolls, vehicle repairs for business use.",
		"Commissions and fees":            "platform fees, payment processor fees, agent commissions.",
		"Contract labor":                  "payments to freelancers and contractors.",
		"Insurance":                       "business insurance premiums (not health).",
		"Legal and professional services": "lawyers, accountants, tax preparers.",
		"Office expense":                  "consumables and small items used up in daily work: paper, pens, toner, postage.",
		"Rent or lease":                   "office or equipment rent.",
		"Repairs and maintenance":         "repairs to business property or equipment.",
		"Supplies":                        "materials and supplies not for resale.",
		"Taxes and licenses":              "business licenses, permits, business taxes.",
		"Travel":                          "airfare, lodging, ride-share, transit while travelling for business.",
		"Meals":                           "food or drink with a business purpose.",
		"Utilities":                       "phone, internet, electricity for the business.",
		"Other expenses":                  "software subscriptions, education, bank fees; use only when nothing else fits.",
		"Gross receipts or sales":         "money received from customers for goods or services.",
		"Other income":                    "interest, refunds, or income not from sales.",
	}

	var parts []string
	for _, c := range allowed {
		if d, ok := defs[c]; ok {
			parts = append(parts, c+": "+d)
		}
	}
	if hasAll(allowed, "Office expense", "Supplies") {
		parts = append(parts, "Tie-breaker: stationery and postage go to 'Office expense'; materials consumed to deliver work go to 'Supplies'.")
	}
	if len(parts) == 0 {
		return "Use the item names to pick the closest label."
	}
	return strings.Join(parts, " | ")
}

func hasAll(list []string, a, b string) bool {
	foundA, foundB := false, false
	for _, x := range list {
		if x == a {
			foundA = true
		} else if x == b {
			foundB = true
		}
	}
	return foundA && foundB
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
