package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/finbot/finbot/internal/operation"
)

// tableKeywords hint which logical table a chat message is about. Order in each
// list does not matter; every hit scores one point.
var tableKeywords = map[string][]string{
	operation.TableExpenses: {
		"spent", "spend", "paid", "pay", "bought", "buy", "expense", "cost",
		"lunch", "dinner", "breakfast", "coffee", "grocery", "groceries",
		"uber", "taxi", "bus", "fuel", "bill", "rent",
	},
	operation.TableIncome: {
		"income", "salary", "earned", "received", "got paid", "bonus",
		"freelance", "refund", "dividend", "interest",
	},
	operation.TableTransfers: {
		"transfer", "transferred", "moved", "move money", "from account",
		"to account", "top up", "topup", "withdraw", "deposit",
	},
	operation.TableSubscriptions: {
		"subscription", "subscriptions", "netflix", "spotify", "youtube premium",
		"membership", "renewal", "recurring",
	},
	operation.TableCategories: {
		"category", "categories", "budget", "budgets", "over budget", "limit",
	},
	operation.TableAccounts: {
		"account", "accounts", "balance", "credit card", "bank", "wallet",
		"utilization", "credit limit",
	},
	operation.TableLoans: {
		"loan", "loans", "borrowed", "lent", "owe", "owes", "debt", "repay",
	},
}

// RoutingResult contains table routing info
type RoutingResult struct {
	Table      string
	Confidence float64
	Scores     map[string]int
	Reasoning  string
}

// TableRouter guesses the logical table a free-text message refers to. The
// guess is only a hint for the language model.
type TableRouter struct{}

func NewTableRouter() *TableRouter {
	return &TableRouter{}
}

// Route scores the message against each table's keywords
func (r *TableRouter) Route(message string) RoutingResult {
	lower := strings.ToLower(message)

	scores := make(map[string]int, len(tableKeywords))
	total := 0
	for table, kws := range tableKeywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				scores[table]++
				total++
			}
		}
	}

	if total == 0 {
		return RoutingResult{
			Table:      operation.TableExpenses,
			Confidence: 0.5,
			Scores:     scores,
			Reasoning:  "no strong keywords, defaulting to expenses",
		}
	}

	best := ""
	for _, table := range rankTables(scores) {
		best = table
		break
	}
	return RoutingResult{
		Table:      best,
		Confidence: float64(scores[best]) / float64(total),
		Scores:     scores,
		Reasoning:  fmt.Sprintf("message contains %s-related keywords", best),
	}
}

// rankTables orders tables by score, breaking ties by the fixed table order.
func rankTables(scores map[string]int) []string {
	order := make(map[string]int, len(operation.Tables))
	for i, t := range operation.Tables {
		order[t] = i
	}
	tables := make([]string, 0, len(scores))
	for t, s := range scores {
		if s > 0 {
			tables = append(tables, t)
		}
	}
	sort.Slice(tables, func(i, j int) bool {
		if scores[tables[i]] != scores[tables[j]] {
			return scores[tables[i]] > scores[tables[j]]
		}
		return order[tables[i]] < order[tables[j]]
	})
	return tables
}
