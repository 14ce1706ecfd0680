// Package executor runs validated operations against the remote store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/schema"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Remote is the subset of the Notion client the executor drives.
type Remote interface {
	Query(ctx context.Context, databaseID string, filter map[string]any) ([]notion.Page, error)
	Create(ctx context.Context, databaseID string, props map[string]any) (*notion.Page, error)
	Update(ctx context.Context, pageID string, props map[string]any) error
	Archive(ctx context.Context, pageID string) error
	FindByTitle(ctx context.Context, databaseID, name string) (string, error)
}

type SchemaSource interface {
	Get(ctx context.Context, table string) schema.Schema
}

// Resolver maps relation names to identifiers.
type Resolver interface {
	ResolveAll(ctx context.Context, field string, value any) (ids, unresolved []string, err error)
	RewriteFilter(ctx context.Context, filter map[string]any) (map[string]any, error)
}

// Result is the outcome of one execution attempt.
type Result struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Data           any    `json:"data,omitempty"`
	RetrySuggested bool   `json:"retry_suggested,omitempty"`
}

type Executor struct {
	remote    Remote
	schemas   SchemaSource
	resolver  Resolver
	databases map[string]string
}

func New(remote Remote, schemas SchemaSource, resolver Resolver, databases map[string]string) *Executor {
	return &Executor{remote: remote, schemas: schemas, resolver: resolver, databases: databases}
}

// Execute dispatches op. attempt is 0 for the first try; a failed first try
// checks whether the work already landed before suggesting a retry.
func (e *Executor) Execute(ctx context.Context, op operation.Operation, attempt int) Result {
	op.Filters = operation.SanitizeMap(op.Filters)
	op.Data = operation.SanitizeMap(op.Data)

	res, err := e.dispatch(ctx, op)
	if err == nil {
		return res
	}

	log.Warn().Err(err).Str("op", op.String()).Int("attempt", attempt).Msg("operation failed")

	if attempt == 0 {
		var sent *writeError
		if errors.As(err, &sent) {
			done, cerr := e.alreadyCompleted(ctx, op)
			if cerr != nil {
				log.Warn().Err(cerr).Str("op", op.String()).Msg("completion check failed")
			}
			if done {
				return Result{Success: true, Message: "Operation already completed"}
			}
		}
		return Result{Success: false, Message: "Operation failed: " + err.Error(), RetrySuggested: true}
	}
	return Result{Success: false, Message: "Operation failed after retry: " + err.Error()}
}

func (e *Executor) dispatch(ctx context.Context, op operation.Operation) (Result, error) {
	dbID := e.databases[op.Table]
	if dbID == "" {
		return Result{Success: false, Message: fmt.Sprintf("Table '%s' not configured", op.Table)}, nil
	}

	switch op.Type {
	case operation.TypeQuery:
		return e.query(ctx, dbID, op)
	case operation.TypeCreate:
		return e.create(ctx, dbID, op)
	case operation.TypeUpdate:
		return e.update(ctx, dbID, op)
	case operation.TypeDelete:
		return e.delete(ctx, op)
	case operation.TypeAnalyze:
		return e.analyze(ctx, dbID, op)
	}
	return Result{Success: false, Message: fmt.Sprintf("Unknown operation type: %s", op.Type)}, nil
}

func (e *Executor) fetch(ctx context.Context, dbID string, filters map[string]any) ([]notion.Page, error) {
	filter, err := e.resolver.RewriteFilter(ctx, filters)
	if err != nil {
		return nil, err
	}
	return e.remote.Query(ctx, dbID, filter)
}

func (e *Executor) query(ctx context.Context, dbID string, op operation.Operation) (Result, error) {
	pages, err := e.fetch(ctx, dbID, op.Filters)
	if err != nil {
		return Result{}, err
	}
	rows := make([]map[string]any, 0, len(pages))
	for _, p := range pages {
		rows = append(rows, p.Flatten())
	}
	return Result{Success: true, Message: fmt.Sprintf("Found %d results", len(rows)), Data: rows}, nil
}

func (e *Executor) create(ctx context.Context, dbID string, op operation.Operation) (Result, error) {
	sch := e.schemas.Get(ctx, op.Table)
	props, err := e.buildProperties(ctx, sch, op.Data, false)
	if err != nil {
		return Result{}, err
	}
	page, err := e.remote.Create(ctx, dbID, props)
	if err != nil {
		return Result{}, &writeError{err: err}
	}
	name := titleOf(sch, op.Data)
	if name == "" {
		name = "Item"
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Created %s successfully", name),
		Data:    map[string]any{"id": page.ID},
	}, nil
}

func (e *Executor) update(ctx context.Context, dbID string, op operation.Operation) (Result, error) {
	sch := e.schemas.Get(ctx, op.Table)
	props, err := e.buildProperties(ctx, sch, op.Data, true)
	if err != nil {
		return Result{}, err
	}
	if len(props) == 0 {
		return Result{Success: false, Message: "No writable fields to update"}, nil
	}

	if op.RecordID != "" {
		if err := e.remote.Update(ctx, op.RecordID, props); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Updated successfully"}, nil
	}

	pages, err := e.fetch(ctx, dbID, op.Filters)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{Success: false, Message: "No records matched the filter"}, nil
	}

	updated := 0
	var firstErr error
	for _, p := range pages {
		if err := e.remote.Update(ctx, p.ID, props); err != nil {
			log.Warn().Err(err).Str("record", p.ID).Msg("bulk update: record failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
	}
	if updated == 0 {
		return Result{}, firstErr
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Updated %d of %d records", updated, len(pages)),
		Data:    map[string]any{"updated": updated, "matched": len(pages)},
	}, nil
}

func (e *Executor) delete(ctx context.Context, op operation.Operation) (Result, error) {
	if err := e.remote.Archive(ctx, op.RecordID); err != nil {
		return Result{}, err
	}
	return Result{Success: true, Message: "Deleted successfully"}, nil
}

func (e *Executor) analyze(ctx context.Context, dbID string, op operation.Operation) (Result, error) {
	pages, err := e.fetch(ctx, dbID, op.Filters)
	if err != nil {
		return Result{}, err
	}

	total := decimal.Zero
	for _, p := range pages {
		if amt, ok := p.Number("Amount"); ok {
			total = total.Add(decimal.NewFromFloat(amt))
		}
	}
	n := len(pages)

	switch op.AnalysisType {
	case operation.AnalysisSum:
		return Result{
			Success: true,
			Message: "Total: " + total.String(),
			Data:    map[string]any{"total": total.InexactFloat64()},
		}, nil
	case operation.AnalysisAverage:
		avg := decimal.Zero
		if n > 0 {
			avg = total.Div(decimal.NewFromInt(int64(n)))
		}
		return Result{
			Success: true,
			Message: "Average: " + avg.StringFixed(2),
			Data:    map[string]any{"average": avg.InexactFloat64()},
		}, nil
	case operation.AnalysisCount:
		return Result{
			Success: true,
			Message: fmt.Sprintf("Count: %d", n),
			Data:    map[string]any{"count": n},
		}, nil
	}
	return Result{Success: false, Message: fmt.Sprintf("Unknown analysis type: %s", op.AnalysisType)}, nil
}

// alreadyCompleted reports whether a create that failed after being sent
// actually landed, by looking for a record with the same title.
func (e *Executor) alreadyCompleted(ctx context.Context, op operation.Operation) (bool, error) {
	if op.Type != operation.TypeCreate {
		return false, nil
	}
	dbID := e.databases[op.Table]
	name := titleOf(e.schemas.Get(ctx, op.Table), op.Data)
	if dbID == "" || name == "" {
		return false, nil
	}
	_, err := e.remote.FindByTitle(ctx, dbID, name)
	if err != nil {
		if notion.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func titleOf(sch schema.Schema, data map[string]any) string {
	field := sch.TitleField()
	if field == "" {
		field = "Name"
	}
	s, _ := data[field].(string)
	return s
}

// writeError marks a failure of a write that was sent to the remote store and
// may have landed anyway. Input errors raised before sending are not wrapped.
type writeError struct{ err error }

func (w *writeError) Error() string { return w.err.Error() }
func (w *writeError) Unwrap() error { return w.err }

var errSkip = errors.New("skip field")

// buildProperties shapes plain values into wire properties using the schema.
// With passthrough, values already in {kind: value} form are sent unchanged.
func (e *Executor) buildProperties(ctx context.Context, sch schema.Schema, data map[string]any, passthrough bool) (map[string]any, error) {
	fields := make([]string, 0, len(data))
	for f := range data {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	props := make(map[string]any, len(data))
	for _, field := range fields {
		raw := data[field]
		kind, ok := sch[field]
		if !ok {
			log.Warn().Str("field", field).Msg("field not in schema, skipped")
			continue
		}
		if passthrough && preShaped(kind, raw) {
			props[field] = raw
			continue
		}
		v, err := e.fieldValue(ctx, field, kind, raw)
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return nil, err
		}
		enc, err := notion.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", field, err)
		}
		props[field] = enc
	}
	return props, nil
}

func preShaped(kind notion.Kind, raw any) bool {
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	_, ok = m[string(kind)]
	return ok
}

func (e *Executor) fieldValue(ctx context.Context, field string, kind notion.Kind, raw any) (notion.FieldValue, error) {
	switch kind {
	case notion.KindTitle:
		return notion.Title(toString(raw)), nil
	case notion.KindText:
		return notion.Text(toString(raw)), nil
	case notion.KindNumber:
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return notion.Number(f), nil
	case notion.KindDate:
		if m, ok := raw.(map[string]any); ok {
			return notion.Date(toString(m["start"])), nil
		}
		return notion.Date(toString(raw)), nil
	case notion.KindCheckbox:
		return notion.Checkbox(toBool(raw)), nil
	case notion.KindSelect:
		if m, ok := raw.(map[string]any); ok {
			return notion.Select(toString(m["name"])), nil
		}
		return notion.Select(toString(raw)), nil
	case notion.KindMultiSelect:
		return notion.MultiSelect(toStrings(raw)), nil
	case notion.KindURL:
		return notion.URL(toString(raw)), nil
	case notion.KindEmail:
		return notion.Email(toString(raw)), nil
	case notion.KindPhone:
		return notion.Phone(toString(raw)), nil
	case notion.KindRelation:
		ids, unresolved, err := e.resolver.ResolveAll(ctx, field, raw)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			log.Warn().Str("field", field).Strs("unresolved", unresolved).Msg("relation omitted")
			return nil, errSkip
		}
		return notion.Relation(ids), nil
	case notion.KindFormula, notion.KindRollup:
		log.Warn().Str("field", field).Str("kind", string(kind)).Msg("computed field is read-only, skipped")
		return nil, errSkip
	}
	log.Warn().Str("field", field).Str("kind", string(kind)).Msg("unsupported field kind, skipped")
	return nil, errSkip
}
