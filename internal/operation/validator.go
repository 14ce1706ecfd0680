package operation

import (
	"context"
	"fmt"
	"sort"

	"github.com/finbot/finbot/internal/schema"
)

// SchemaSource supplies table schemas. *schema.Cache satisfies it.
type SchemaSource interface {
	Get(ctx context.Context, table string) schema.Schema
}

// ValidationResult contains validation outcome
type ValidationResult struct {
	Valid   bool
	Message string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// Validator checks operations against the live table schema.
type Validator struct {
	schemas SchemaSource
}

func NewValidator(schemas SchemaSource) *Validator {
	return &Validator{schemas: schemas}
}

// Validate applies the rules in order and reports the first violation.
func (v *Validator) Validate(ctx context.Context, op Operation) ValidationResult {
	if op.Table == "" {
		return invalid("Missing 'table' field")
	}
	if op.Type == "" {
		return invalid("Missing 'operation_type' field")
	}
	if !KnownTable(op.Table) {
		return invalid("Unknown table: %s", op.Table)
	}
	if !op.Type.Valid() {
		return invalid("Unknown operation type: %s", op.Type)
	}

	sch := v.schemas.Get(ctx, op.Table)

	switch op.Type {
	case TypeCreate:
		if msg := checkData(sch, op); msg != "" {
			return invalid("%s", msg)
		}
	case TypeUpdate:
		switch {
		case op.RecordID != "":
			if msg := checkData(sch, op); msg != "" {
				return invalid("%s", msg)
			}
		case len(op.Filters) > 0:
			if msg := checkData(sch, op); msg != "" {
				return invalid("%s", msg)
			}
			if msg := checkFilter(sch, op.Table, op.Filters); msg != "" {
				return invalid("%s", msg)
			}
		default:
			return invalid("Update operation requires 'record_id' or 'filters'")
		}
	case TypeDelete:
		if op.RecordID == "" {
			return invalid("Delete operation requires 'record_id'")
		}
	case TypeQuery, TypeAnalyze:
		if msg := checkFilter(sch, op.Table, op.Filters); msg != "" {
			return invalid("%s", msg)
		}
		if op.Type == TypeAnalyze && !op.AnalysisType.Valid() {
			return invalid("Unknown analysis type: %s", op.AnalysisType)
		}
	}

	return ValidationResult{Valid: true, Message: "ok"}
}

func checkData(sch schema.Schema, op Operation) string {
	if len(op.Data) == 0 {
		return fmt.Sprintf("No data provided for %s operation", op.Type)
	}
	fields := make([]string, 0, len(op.Data))
	for f := range op.Data {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if !sch.Has(f) {
			return fmt.Sprintf("Property '%s' does not exist in %s", f, op.Table)
		}
	}
	return ""
}

// checkFilter walks compound filters and checks every leaf names a declared
// property. The condition key of a leaf is not checked against the field kind.
func checkFilter(sch schema.Schema, table string, f map[string]any) string {
	if len(f) == 0 {
		return ""
	}
	compound := false
	for _, key := range []string{"and", "or"} {
		members, ok := f[key]
		if !ok {
			continue
		}
		compound = true
		list, ok := members.([]any)
		if !ok {
			return fmt.Sprintf("Compound filter '%s' must be a list", key)
		}
		for _, m := range list {
			leaf, ok := m.(map[string]any)
			if !ok {
				return "Filter entries must be objects"
			}
			if msg := checkFilter(sch, table, leaf); msg != "" {
				return msg
			}
		}
	}
	if compound {
		return ""
	}
	if _, ok := f["timestamp"]; ok {
		return ""
	}

	prop, _ := f["property"].(string)
	if prop == "" {
		return "Filter missing 'property' field"
	}
	if !sch.Has(prop) {
		return fmt.Sprintf("Property '%s' does not exist in %s", prop, table)
	}
	return ""
}
