package schema

import "github.com/finbot/finbot/internal/notion"

// Fallback returns the static snapshot used when a live fetch fails.
func Fallback() map[string]Schema {
	return map[string]Schema{
		"expenses": {
			"Name":       notion.KindTitle,
			"Amount":     notion.KindNumber,
			"Date":       notion.KindDate,
			"Accounts":   notion.KindRelation,
			"Categories": notion.KindRelation,
			"Year":       notion.KindFormula,
			"Monthly":    notion.KindFormula,
			"Weekly":     notion.KindFormula,
			"Misc":       notion.KindFormula,
		},
		"income": {
			"Name":     notion.KindTitle,
			"Amount":   notion.KindNumber,
			"Date":     notion.KindDate,
			"Accounts": notion.KindRelation,
			"Misc":     notion.KindText,
		},
		"categories": {
			"Name":            notion.KindTitle,
			"Monthly Budget":  notion.KindNumber,
			"Monthly Expense": notion.KindFormula,
			"Status Bar":      notion.KindFormula,
			"Expenses":        notion.KindRelation,
			"Status":          notion.KindFormula,
		},
		"accounts": {
			"Name":               notion.KindTitle,
			"Current Balance":    notion.KindFormula,
			"Initial Amount":     notion.KindNumber,
			"Total Income":       notion.KindFormula,
			"Total Expense":      notion.KindFormula,
			"Total Transfer Out": notion.KindFormula,
			"Total Transfer In":  notion.KindFormula,
			"Account Type":       notion.KindSelect,
			"Credit Limit":       notion.KindNumber,
			"Credit Utilization": notion.KindFormula,
			"Date":               notion.KindDate,
			"Payment Account":    notion.KindRelation,
			"Utilization":        notion.KindNumber,
		},
		"subscriptions": {
			"Name":         notion.KindTitle,
			"Type":         notion.KindSelect,
			"Amount":       notion.KindNumber,
			"Monthly Cost": notion.KindFormula,
			"Account":      notion.KindRelation,
			"Category":     notion.KindRelation,
			"Checkbox":     notion.KindCheckbox,
		},
		"transfers": {
			"Name":         notion.KindTitle,
			"Amount":       notion.KindNumber,
			"Date":         notion.KindDate,
			"From Account": notion.KindRelation,
			"To Account":   notion.KindRelation,
		},
		"loans": {
			"Name":     notion.KindTitle,
			"Amount":   notion.KindNumber,
			"Date":     notion.KindDate,
			"Due Date": notion.KindDate,
			"Lender":   notion.KindText,
			"Account":  notion.KindRelation,
			"Status":   notion.KindSelect,
			"Repaid":   notion.KindCheckbox,
		},
	}
}
