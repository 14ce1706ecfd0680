package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/service"
)

// MonthlySummaryTool reports this month's income, spend per category and remaining money.
func MonthlySummaryTool(tracker *budget.Tracker) Tool {
	return Tool{
		Name:        "monthly_summary",
		Description: "Get the current month's financial summary: total income, total spent, remaining money and spend per category against its budget.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			sum, err := tracker.MonthlySummary(ctx)
			if err != nil {
				return "", fmt.Errorf("monthly summary: %w", err)
			}
			return encode(sum)
		},
	}
}

// BudgetImpactTool checks what a planned expense would do to a category budget.
func BudgetImpactTool(tracker *budget.Tracker) Tool {
	return Tool{
		Name:        "budget_impact",
		Description: "Check whether spending an amount in a category keeps it within this month's budget. Use before purchases the user is considering.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Category name, e.g. Food",
				},
				"amount": map[string]interface{}{
					"type":        "number",
					"description": "Planned expense amount",
				},
			},
			"required": []string{"category", "amount"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			category, _ := input["category"].(string)
			if strings.TrimSpace(category) == "" {
				return "", fmt.Errorf("category is required")
			}
			amount, ok := input["amount"].(float64)
			if !ok {
				return "", fmt.Errorf("amount must be a number")
			}
			impact, err := tracker.BudgetImpact(ctx, category, amount)
			if err != nil {
				return "", fmt.Errorf("budget impact: %w", err)
			}
			return encode(impact)
		},
	}
}

// TitleLister lists record names in a database. *notion.Client satisfies it.
type TitleLister interface {
	ListTitles(ctx context.Context, databaseID string) ([]string, error)
}

// ListNamesTool lists the names in a table so the model can pick valid relation values.
func ListNamesTool(lister TitleLister, databases map[string]string) Tool {
	return Tool{
		Name:        "list_names",
		Description: "List the record names in a table, e.g. all account or category names.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"table": map[string]interface{}{
					"type": "string",
					"enum": operation.Tables,
				},
			},
			"required": []string{"table"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			table, _ := input["table"].(string)
			dbID := databases[table]
			if dbID == "" {
				return "", fmt.Errorf("table '%s' not configured", table)
			}
			names, err := lister.ListTitles(ctx, dbID)
			if err != nil {
				return "", fmt.Errorf("list %s: %w", table, err)
			}
			if names == nil {
				names = []string{}
			}
			return encode(map[string]any{"table": table, "names": names})
		},
	}
}

// DeleteLatestTool removes the most recent expense or income. The delete goes
// through the operation service, so it is confirmed like any other delete.
func DeleteLatestTool(svc *service.OperationService, tracker *budget.Tracker) Tool {
	return Tool{
		Name:        "delete_latest",
		Description: "Delete the most recently added expense or income, e.g. when the user says 'undo' or 'delete my last expense'.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"table": map[string]interface{}{
					"type": "string",
					"enum": []string{operation.TableExpenses, operation.TableIncome},
				},
			},
			"required": []string{"table"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			table, _ := input["table"].(string)
			if table != operation.TableExpenses && table != operation.TableIncome {
				return "", fmt.Errorf("table must be expenses or income")
			}
			page, err := tracker.Latest(ctx, table)
			if errors.Is(err, notion.ErrNotFound) {
				return encode(service.Envelope{Success: false, Message: fmt.Sprintf("No %s found to delete.", table)})
			}
			if err != nil {
				return "", fmt.Errorf("latest %s: %w", table, err)
			}

			kind := "expense"
			if table == operation.TableIncome {
				kind = "income"
			}
			amount, _ := page.Number("Amount")
			summary := fmt.Sprintf("%s - %.2f", page.Title(), amount)

			env := svc.Handle(ctx, UserID(ctx), operation.Operation{
				Type:      operation.TypeDelete,
				Table:     table,
				RecordID:  page.ID,
				Reasoning: fmt.Sprintf("Delete latest %s: %s", kind, summary),
			})
			if env.Success {
				env.Message = fmt.Sprintf("Deleted %s: %s", kind, summary)
			}
			return encode(env)
		},
	}
}

// All returns every finance tool.
func All(svc *service.OperationService, tracker *budget.Tracker, lister TitleLister, databases map[string]string, opts OperationOptions) []Tool {
	return []Tool{
		NotionOperationTool(svc, tracker, opts),
		MonthlySummaryTool(tracker),
		BudgetImpactTool(tracker),
		ListNamesTool(lister, databases),
		DeleteLatestTool(svc, tracker),
	}
}
