package executor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finbot/finbot/internal/executor"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/notion/notiontest"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/resolver"
	"github.com/finbot/finbot/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	expDB = "db-expenses"
	catDB = "db-categories"
	accDB = "db-accounts"
	subDB = "db-subscriptions"
)

type staticSchemas map[string]schema.Schema

func (s staticSchemas) Get(_ context.Context, table string) schema.Schema { return s[table].Clone() }

func setup(t *testing.T) (*executor.Executor, *notiontest.Store) {
	t.Helper()
	store := notiontest.New()
	store.Seed(catDB,
		notiontest.NewPage("F1", map[string]notion.FieldValue{"Name": notion.Title("Food")}),
		notiontest.NewPage("T1", map[string]notion.FieldValue{"Name": notion.Title("Transport")}),
	)
	store.Seed(accDB, notiontest.NewPage("A1", map[string]notion.FieldValue{"Name": notion.Title("Cash")}))

	dbs := map[string]string{
		"expenses":      expDB,
		"categories":    catDB,
		"accounts":      accDB,
		"subscriptions": subDB,
	}
	ex := executor.New(store, staticSchemas(schema.Fallback()), resolver.New(store, dbs), dbs)
	return ex, store
}

func lastCall(t *testing.T, store *notiontest.Store, method string) notiontest.Call {
	t.Helper()
	calls := store.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == method {
			return calls[i]
		}
	}
	t.Fatalf("no %s call recorded", method)
	return notiontest.Call{}
}

// ─── Create ───────────────────────────────────────────────────────────────────

func TestExecute_CreateResolvesRelations(t *testing.T) {
	ex, store := setup(t)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Lunch", "Amount": 150.0, "Categories": "Food", "Date": "2024-05-02"},
	}, 0)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Created Lunch successfully", res.Message)

	call := lastCall(t, store, "Create")
	assert.Equal(t, expDB, call.DatabaseID)
	assert.Equal(t, map[string]any{"number": 150.0}, call.Properties["Amount"])
	assert.Equal(t, map[string]any{"relation": []any{map[string]any{"id": "F1"}}}, call.Properties["Categories"])
	assert.Equal(t, map[string]any{"date": map[string]any{"start": "2024-05-02"}}, call.Properties["Date"])
}

func TestExecute_CreateOmitsUnresolvedRelation(t *testing.T) {
	ex, store := setup(t)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Gizmo", "Amount": 10.0, "Categories": "Gadgets"},
	}, 0)

	require.True(t, res.Success)
	_, has := lastCall(t, store, "Create").Properties["Categories"]
	assert.False(t, has)
}

func TestExecute_CreateSkipsComputedFields(t *testing.T) {
	ex, store := setup(t)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Tea", "Amount": "1,200", "Monthly": "May"},
	}, 0)

	require.True(t, res.Success)
	call := lastCall(t, store, "Create")
	_, has := call.Properties["Monthly"]
	assert.False(t, has)
	assert.Equal(t, map[string]any{"number": 1200.0}, call.Properties["Amount"])
}

func TestExecute_CreateBadNumberFails(t *testing.T) {
	ex, _ := setup(t)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Tea", "Amount": "a lot"},
	}, 0)

	assert.False(t, res.Success)
	assert.True(t, res.RetrySuggested)
	assert.True(t, strings.HasPrefix(res.Message, "Operation failed: "))
}

// ─── Idempotent retry ─────────────────────────────────────────────────────────

func TestExecute_CreateAlreadyLanded(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB, notiontest.NewPage("E1", map[string]notion.FieldValue{"Name": notion.Title("Lunch"), "Amount": notion.Number(150)}))
	store.FailNext("Create", errors.New("read: connection reset by peer"))

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Lunch", "Amount": 150.0},
	}, 0)

	assert.True(t, res.Success)
	assert.Equal(t, "Operation already completed", res.Message)
}

func TestExecute_InputErrorSkipsCompletionCheck(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB, notiontest.NewPage("E1", map[string]notion.FieldValue{"Name": notion.Title("Lunch with team"), "Amount": notion.Number(300)}))

	res := ex.Execute(context.Background(), operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Lunch", "Amount": "a lot"},
	}, 0)

	assert.False(t, res.Success)
	assert.True(t, res.RetrySuggested)
	assert.True(t, strings.HasPrefix(res.Message, "Operation failed: "), res.Message)
	for _, c := range store.Calls() {
		assert.NotEqual(t, "Create", c.Method)
	}
}

func TestExecute_FailureSuggestsRetryOnce(t *testing.T) {
	ex, store := setup(t)
	store.FailAlways("Create", &notion.APIError{Status: 502, Message: "bad gateway"})
	op := operation.Operation{Type: operation.TypeCreate, Table: "expenses", Data: map[string]any{"Name": "Dinner", "Amount": 80.0}}

	first := ex.Execute(context.Background(), op, 0)
	assert.False(t, first.Success)
	assert.True(t, first.RetrySuggested)
	assert.True(t, strings.HasPrefix(first.Message, "Operation failed: "), first.Message)

	second := ex.Execute(context.Background(), op, 1)
	assert.False(t, second.Success)
	assert.False(t, second.RetrySuggested)
	assert.True(t, strings.HasPrefix(second.Message, "Operation failed after retry: "), second.Message)
}

// ─── Query ────────────────────────────────────────────────────────────────────

func TestExecute_QueryProjectsRows(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB,
		notiontest.NewPage("E1", map[string]notion.FieldValue{
			"Name":       notion.Title("Lunch"),
			"Amount":     notion.Number(150),
			"Categories": notion.Relation{"F1"},
			"Monthly":    notion.Formula{Type: "string", Value: "May"},
		}),
		notiontest.NewPage("E2", map[string]notion.FieldValue{
			"Name":       notion.Title("Bus"),
			"Amount":     notion.Number(20),
			"Categories": notion.Relation{"T1"},
		}),
	)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:    operation.TypeQuery,
		Table:   "expenses",
		Filters: map[string]any{"property": "Categories", "relation": map[string]any{"contains": "Food"}},
	}, 0)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Found 1 results", res.Message)
	rows := res.Data.([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "E1", rows[0]["id"])
	assert.Equal(t, "Lunch", rows[0]["Name"])
	assert.Equal(t, 150.0, rows[0]["Amount"])
	assert.Equal(t, []string{"F1"}, rows[0]["Categories"])
	assert.Equal(t, "May", rows[0]["Monthly"])
}

func TestExecute_QueryUnconfiguredTable(t *testing.T) {
	ex, _ := setup(t)
	res := ex.Execute(context.Background(), operation.Operation{Type: operation.TypeQuery, Table: "loans"}, 0)
	assert.False(t, res.Success)
	assert.Equal(t, "Table 'loans' not configured", res.Message)
}

// ─── Analyze ──────────────────────────────────────────────────────────────────

func TestExecute_AverageOfNothingIsZero(t *testing.T) {
	ex, _ := setup(t)

	res := ex.Execute(context.Background(), operation.Operation{
		Type:         operation.TypeAnalyze,
		Table:        "expenses",
		AnalysisType: operation.AnalysisAverage,
	}, 0)

	require.True(t, res.Success)
	assert.Equal(t, "Average: 0.00", res.Message)
	assert.Equal(t, map[string]any{"average": 0.0}, res.Data)
}

func TestExecute_SumUsesExactArithmetic(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB,
		notiontest.NewPage("E1", map[string]notion.FieldValue{"Name": notion.Title("a"), "Amount": notion.Number(0.1)}),
		notiontest.NewPage("E2", map[string]notion.FieldValue{"Name": notion.Title("b"), "Amount": notion.Number(0.2)}),
		notiontest.NewPage("E3", map[string]notion.FieldValue{"Name": notion.Title("c"), "Amount": notion.Empty{Of: notion.KindNumber}}),
	)

	sum := ex.Execute(context.Background(), operation.Operation{Type: operation.TypeAnalyze, Table: "expenses", AnalysisType: operation.AnalysisSum}, 0)
	require.True(t, sum.Success)
	assert.Equal(t, "Total: 0.3", sum.Message)
	assert.Equal(t, 0.3, sum.Data.(map[string]any)["total"])

	count := ex.Execute(context.Background(), operation.Operation{Type: operation.TypeAnalyze, Table: "expenses", AnalysisType: operation.AnalysisCount}, 0)
	assert.Equal(t, "Count: 3", count.Message)
	assert.Equal(t, 3, count.Data.(map[string]any)["count"])

	avg := ex.Execute(context.Background(), operation.Operation{Type: operation.TypeAnalyze, Table: "expenses", AnalysisType: operation.AnalysisAverage}, 0)
	assert.Equal(t, "Average: 0.10", avg.Message)
}

// ─── Update / Delete ──────────────────────────────────────────────────────────

func TestExecute_UpdatePassesPreShapedValues(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB, notiontest.NewPage("E1", map[string]notion.FieldValue{"Name": notion.Title("Lunch"), "Amount": notion.Number(150)}))

	res := ex.Execute(context.Background(), operation.Operation{
		Type:     operation.TypeUpdate,
		Table:    "expenses",
		RecordID: "E1",
		Data:     map[string]any{"Amount": map[string]any{"number": 175.0}, "Name": "Late lunch"},
	}, 0)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Updated successfully", res.Message)
	call := lastCall(t, store, "Update")
	assert.Equal(t, "E1", call.PageID)
	assert.Equal(t, map[string]any{"number": 175.0}, call.Properties["Amount"])
	assert.Contains(t, call.Properties, "Name")
}

func TestExecute_BulkUpdateCountsPartialFailure(t *testing.T) {
	ex, store := setup(t)
	store.Seed(subDB,
		notiontest.NewPage("S1", map[string]notion.FieldValue{"Name": notion.Title("Netflix"), "Checkbox": notion.Checkbox(true)}),
		notiontest.NewPage("S2", map[string]notion.FieldValue{"Name": notion.Title("Spotify"), "Checkbox": notion.Checkbox(true)}),
		notiontest.NewPage("S3", map[string]notion.FieldValue{"Name": notion.Title("Gym"), "Checkbox": notion.Checkbox(false)}),
	)
	store.FailNext("Update", errors.New("HTTP 500"))

	res := ex.Execute(context.Background(), operation.Operation{
		Type:    operation.TypeUpdate,
		Table:   "subscriptions",
		Filters: map[string]any{"property": "Checkbox", "checkbox": map[string]any{"equals": true}},
		Data:    map[string]any{"Checkbox": false},
	}, 0)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Updated 1 of 2 records", res.Message)
}

func TestExecute_DeleteArchives(t *testing.T) {
	ex, store := setup(t)
	store.Seed(expDB, notiontest.NewPage("E1", map[string]notion.FieldValue{"Name": notion.Title("Lunch")}))

	res := ex.Execute(context.Background(), operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "E1"}, 0)
	require.True(t, res.Success)
	assert.Empty(t, store.Pages(expDB))
}
