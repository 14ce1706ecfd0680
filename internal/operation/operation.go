// Package operation defines the structured operations proposed by the language
// model and the rules they must satisfy before execution.
package operation

import (
	"fmt"
	"slices"
)

// Type is the verb of an operation.
type Type string

const (
	TypeQuery   Type = "query"
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
	TypeDelete  Type = "delete"
	TypeAnalyze Type = "analyze"
)

func (t Type) Valid() bool {
	switch t {
	case TypeQuery, TypeCreate, TypeUpdate, TypeDelete, TypeAnalyze:
		return true
	}
	return false
}

// Destructive operations require an explicit confirmation before they run.
func (t Type) Destructive() bool {
	return t == TypeUpdate || t == TypeDelete
}

// AnalysisType selects the reduction applied by an analyze operation.
type AnalysisType string

const (
	AnalysisSum     AnalysisType = "sum"
	AnalysisAverage AnalysisType = "average"
	AnalysisCount   AnalysisType = "count"
)

func (a AnalysisType) Valid() bool {
	return a == AnalysisSum || a == AnalysisAverage || a == AnalysisCount
}

// Logical table names.
const (
	TableExpenses      = "expenses"
	TableIncome        = "income"
	TableCategories    = "categories"
	TableAccounts      = "accounts"
	TableSubscriptions = "subscriptions"
	TableTransfers     = "transfers"
	TableLoans         = "loans"
)

// Tables lists every logical table in display order.
var Tables = []string{
	TableExpenses, TableIncome, TableCategories, TableAccounts,
	TableSubscriptions, TableTransfers, TableLoans,
}

func KnownTable(name string) bool {
	return slices.Contains(Tables, name)
}

// Operation is one structured intent against a logical table.
type Operation struct {
	Type         Type           `json:"operation_type"`
	Table        string         `json:"table"`
	Filters      map[string]any `json:"filters,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	RecordID     string         `json:"record_id,omitempty"`
	AnalysisType AnalysisType   `json:"analysis_type,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"`
	// RetryCount is set by the operation service, never parsed from input.
	// It travels with a pending operation so a confirmed retry stays final.
	RetryCount   int            `json:"retry_count,omitempty"`
}

func (o Operation) String() string {
	if o.RecordID != "" {
		return fmt.Sprintf("%s %s/%s", o.Type, o.Table, o.RecordID)
	}
	return fmt.Sprintf("%s %s", o.Type, o.Table)
}

// Parse builds an Operation from loosely typed input, such as a tool call's
// arguments. Missing fields are left empty for the validator to report.
// The legacy keys "database" and "page_id" are accepted for table and record_id.
func Parse(input map[string]any) (Operation, error) {
	in, _ := Sanitize(input).(map[string]any)
	if in == nil {
		return Operation{}, fmt.Errorf("operation must be an object")
	}

	op := Operation{
		Type:         Type(str(in["operation_type"])),
		Table:        str(in["table"]),
		RecordID:     str(in["record_id"]),
		AnalysisType: AnalysisType(str(in["analysis_type"])),
		Reasoning:    str(in["reasoning"]),
	}
	if op.Table == "" {
		op.Table = str(in["database"])
	}
	if op.RecordID == "" {
		op.RecordID = str(in["page_id"])
	}

	var err error
	if op.Filters, err = object(in, "filters"); err != nil {
		return Operation{}, err
	}
	if op.Data, err = object(in, "data"); err != nil {
		return Operation{}, err
	}
	return op, nil
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func object(in map[string]any, key string) (map[string]any, error) {
	v, ok := in[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", key, v)
	}
	return m, nil
}
