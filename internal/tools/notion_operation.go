package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/schema"
	"github.com/finbot/finbot/internal/security"
	"github.com/finbot/finbot/internal/service"
	"github.com/rs/zerolog/log"
)

// Bookkeeper runs the finance checks around expense and income creation.
// *budget.Tracker satisfies it.
type Bookkeeper interface {
	FindDuplicate(ctx context.Context, table, name string) (*budget.Duplicate, error)
	TickSubscription(ctx context.Context, expenseName string) (bool, error)
	OverBudgetWarning(ctx context.Context, category string) (string, error)
}

type SchemaSource interface {
	Get(ctx context.Context, table string) schema.Schema
}

// OperationOptions fills in values the model tends to leave out.
type OperationOptions struct {
	Schemas        SchemaSource
	DefaultAccount string
	Now            func() time.Time
	// Masker, when set, masks sensitive fields in query rows returned to the model.
	Masker *security.DataMasker
}

type operationResult struct {
	service.Envelope
	Duplicate       bool   `json:"duplicate,omitempty"`
	BudgetWarning   string `json:"budget_warning,omitempty"`
	ChecklistTicked string `json:"checklist_ticked,omitempty"`
}

// NotionOperationTool exposes the operation entry point to the model.
func NotionOperationTool(svc *service.OperationService, books Bookkeeper, opts OperationOptions) Tool {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return Tool{
		Name: "notion_operation",
		Description: "Run one structured operation against the finance workspace. " +
			"Use query to read records, create to add one, update to change records (by record_id or filters), " +
			"delete to archive one record by record_id, and analyze to sum, average or count Amount. " +
			"Relation fields such as Categories and Accounts accept names; they are resolved automatically. " +
			"Delete and update ask the user to confirm before running.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"operation_type": map[string]interface{}{
					"type": "string",
					"enum": []string{"query", "create", "update", "delete", "analyze"},
				},
				"table": map[string]interface{}{
					"type": "string",
					"enum": operation.Tables,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Notion filter object, e.g. {\"property\":\"Amount\",\"number\":{\"greater_than\":100}} or {\"and\":[...]}",
				},
				"data": map[string]interface{}{
					"type":        "object",
					"description": "Field values keyed by property name, e.g. {\"Name\":\"Lunch\",\"Amount\":150,\"Categories\":\"Food\"}",
				},
				"record_id": map[string]interface{}{
					"type":        "string",
					"description": "Record id for update or delete, taken from an earlier query result",
				},
				"analysis_type": map[string]interface{}{
					"type": "string",
					"enum": []string{"sum", "average", "count"},
				},
				"reasoning": map[string]interface{}{
					"type":        "string",
					"description": "One sentence describing what this operation does, shown to the user when confirmation is needed",
				},
				"is_retry": map[string]interface{}{
					"type":        "boolean",
					"description": "Set to true when repeating an operation whose previous result had retry_suggested",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Set to true to add a record even though a duplicate was reported this month",
				},
			},
			"required": []string{"operation_type", "table"},
		},
		Execute: func(ctx context.Context, input map[string]interface{}) (string, error) {
			op, err := operation.Parse(input)
			if err != nil {
				return "", fmt.Errorf("parse operation: %w", err)
			}
			retry, _ := input["is_retry"].(bool)
			force, _ := input["force"].(bool)
			userID := UserID(ctx)

			if op.Type == operation.TypeCreate {
				applyDefaults(ctx, &op, opts)
				if books != nil && !force {
					if d := findDuplicate(ctx, books, op); d != nil {
						return encode(operationResult{
							Envelope:  service.Envelope{Success: false, Message: d.Message(op.Table)},
							Duplicate: true,
						})
					}
				}
			}

			var env service.Envelope
			if retry {
				env = svc.Retry(ctx, userID, op)
			} else {
				env = svc.Handle(ctx, userID, op)
			}
			if rows, ok := env.Data.([]map[string]any); ok && opts.Masker != nil {
				env.Data = opts.Masker.MaskRows(rows)
			}
			res := operationResult{Envelope: env}

			if env.Success && op.Type == operation.TypeCreate && op.Table == operation.TableExpenses && books != nil {
				name := titleValue(op.Data)
				if ok, err := books.TickSubscription(ctx, name); err != nil {
					log.Warn().Err(err).Str("expense", name).Msg("subscription tick failed")
				} else if ok {
					res.ChecklistTicked = fmt.Sprintf("✅ Marked '%s' as paid in Fixed Expenses Checklist", name)
				}
				if cat := categoryValue(op.Data); cat != "" {
					warn, err := books.OverBudgetWarning(ctx, cat)
					if err != nil {
						log.Warn().Err(err).Str("category", cat).Msg("budget check failed")
					}
					res.BudgetWarning = warn
				}
			}
			return encode(res)
		},
	}
}

// findDuplicate applies the monthly duplicate rule: every income and any
// expense that looks like a recurring bill.
func findDuplicate(ctx context.Context, books Bookkeeper, op operation.Operation) *budget.Duplicate {
	name := titleValue(op.Data)
	switch {
	case name == "":
		return nil
	case op.Table == operation.TableIncome:
	case op.Table == operation.TableExpenses && budget.IsRecurring(name):
	default:
		return nil
	}
	d, err := books.FindDuplicate(ctx, op.Table, name)
	if err != nil {
		log.Warn().Err(err).Str("table", op.Table).Msg("duplicate check failed")
		return nil
	}
	return d
}

func applyDefaults(ctx context.Context, op *operation.Operation, opts OperationOptions) {
	if op.Table != operation.TableExpenses && op.Table != operation.TableIncome {
		return
	}
	if op.Data == nil {
		return
	}
	var sch schema.Schema
	if opts.Schemas != nil {
		sch = opts.Schemas.Get(ctx, op.Table)
	}
	has := func(field string) bool { return sch == nil || sch.Has(field) }

	if _, ok := op.Data["Date"]; !ok && has("Date") {
		op.Data["Date"] = opts.Now().Format("2006-01-02")
	}
	if opts.DefaultAccount != "" && has("Accounts") {
		if _, ok := op.Data["Accounts"]; !ok {
			op.Data["Accounts"] = opts.DefaultAccount
		}
	}
}

func titleValue(data map[string]any) string {
	s, _ := data["Name"].(string)
	return s
}

func categoryValue(data map[string]any) string {
	for _, f := range []string{"Categories", "Category"} {
		switch v := data[f].(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				s, _ := v[0].(string)
				return s
			}
		}
	}
	return ""
}
