package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/executor"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/notion/notiontest"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/resolver"
	"github.com/finbot/finbot/internal/schema"
	"github.com/finbot/finbot/internal/security"
	"github.com/finbot/finbot/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSchemas map[string]schema.Schema

func (s staticSchemas) Get(_ context.Context, table string) schema.Schema { return s[table].Clone() }

func newService(t *testing.T, expose bool) (*service.OperationService, *notiontest.Store) {
	t.Helper()
	store := notiontest.New()
	store.Seed("db-categories", notiontest.NewPage("F1", map[string]notion.FieldValue{"Name": notion.Title("Food")}))
	store.Seed("db-expenses", notiontest.NewPage("X", map[string]notion.FieldValue{"Name": notion.Title("Lunch"), "Amount": notion.Number(150)}))

	dbs := map[string]string{"expenses": "db-expenses", "categories": "db-categories"}
	schemas := staticSchemas(schema.Fallback())
	svc := service.NewOperationService(
		operation.NewValidator(schemas),
		confirm.NewGate(confirm.NewMemoryStore()),
		executor.New(store, schemas, resolver.New(store, dbs), dbs),
		security.NewAuditLogger(false),
		expose,
	)
	return svc, store
}

func archiveCalls(store *notiontest.Store) int {
	n := 0
	for _, c := range store.Calls() {
		if c.Method == "Archive" {
			n++
		}
	}
	return n
}

// ─── Validation ───────────────────────────────────────────────────────────────

func TestHandle_InvalidOperation(t *testing.T) {
	svc, _ := newService(t, true)
	env := svc.Handle(context.Background(), "42", operation.Operation{Type: operation.TypeCreate, Table: "expenses", Data: map[string]any{"Vendor": "KFC"}})
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid operation: Property 'Vendor' does not exist in expenses", env.Message)
}

// ─── Non-destructive ──────────────────────────────────────────────────────────

func TestHandle_CreateRunsImmediately(t *testing.T) {
	svc, store := newService(t, true)
	env := svc.Handle(context.Background(), "42", operation.Operation{
		Type:  operation.TypeCreate,
		Table: "expenses",
		Data:  map[string]any{"Name": "Dinner", "Amount": 90.0, "Categories": "Food"},
	})
	require.True(t, env.Success, env.Message)
	assert.Equal(t, "Created Dinner successfully", env.Message)
	assert.Len(t, store.Pages("db-expenses"), 2)
}

// ─── Confirmation handshake ───────────────────────────────────────────────────

func TestHandle_DeleteRequiresConfirmation(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()
	op := operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X", Reasoning: "user asked to remove lunch"}

	env := svc.Handle(ctx, "42", op)
	assert.False(t, env.Success)
	assert.True(t, env.RequiresConfirmation)
	assert.Equal(t, "This will delete data. Reply 'yes' to confirm.", env.Message)
	assert.Equal(t, "user asked to remove lunch", env.OperationDetails)
	assert.Zero(t, archiveCalls(store))
	assert.True(t, svc.HasPending(ctx, "42"))

	env = svc.Handle(ctx, "42", op)
	require.True(t, env.Success, env.Message)
	assert.Equal(t, 1, archiveCalls(store))
	assert.False(t, svc.HasPending(ctx, "42"))
}

func TestConfirm_RunsPending(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()

	svc.Handle(ctx, "42", operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X"})
	env := svc.Confirm(ctx, "42")
	require.True(t, env.Success, env.Message)
	assert.Equal(t, 1, archiveCalls(store))

	env = svc.Confirm(ctx, "42")
	assert.False(t, env.Success)
	assert.Equal(t, "Nothing to confirm.", env.Message)
}

func TestCancel_DropsPending(t *testing.T) {
	svc, store := newService(t, true)
	ctx := context.Background()

	svc.Handle(ctx, "42", operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X"})
	env := svc.Cancel(ctx, "42")
	assert.True(t, env.Success)

	env = svc.Confirm(ctx, "42")
	assert.False(t, env.Success)
	assert.Zero(t, archiveCalls(store))
}

func TestHandle_DestructiveWithoutUserRunsDirectly(t *testing.T) {
	svc, store := newService(t, true)
	env := svc.Handle(context.Background(), "", operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X"})
	require.True(t, env.Success, env.Message)
	assert.Equal(t, 1, archiveCalls(store))
}

// ─── Retry of confirmed operations ────────────────────────────────────────────

func TestRetry_ConfirmedDeleteFailsFinally(t *testing.T) {
	svc, store := newService(t, true)
	store.FailAlways("Archive", errors.New("boom"))
	ctx := context.Background()
	op := operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X"}

	env := svc.Handle(ctx, "42", op)
	require.True(t, env.RequiresConfirmation)

	env = svc.Confirm(ctx, "42")
	assert.False(t, env.Success)
	assert.True(t, env.RetrySuggested)
	assert.Equal(t, "Operation failed: boom", env.Message)

	env = svc.Retry(ctx, "42", op)
	require.True(t, env.RequiresConfirmation)
	p, ok := svc.Pending(ctx, "42")
	require.True(t, ok)
	assert.Equal(t, 1, p.Operation.RetryCount)

	env = svc.Confirm(ctx, "42")
	assert.False(t, env.Success)
	assert.False(t, env.RetrySuggested)
	assert.Equal(t, "Operation failed after retry: boom", env.Message)
	assert.Equal(t, 2, archiveCalls(store))
}

func TestRetry_ReleasedBySecondSubmitStaysFinal(t *testing.T) {
	svc, store := newService(t, true)
	store.FailAlways("Archive", errors.New("boom"))
	ctx := context.Background()
	op := operation.Operation{Type: operation.TypeDelete, Table: "expenses", RecordID: "X"}

	require.True(t, svc.Retry(ctx, "42", op).RequiresConfirmation)

	env := svc.Handle(ctx, "42", op)
	assert.False(t, env.RetrySuggested)
	assert.Equal(t, "Operation failed after retry: boom", env.Message)
}

// ─── Error exposure ───────────────────────────────────────────────────────────

func TestHandle_SanitizesErrorsWhenNotExposed(t *testing.T) {
	svc, store := newService(t, false)
	store.FailAlways("Create", errors.New("dial tcp 10.0.0.1:443: i/o timeout"))

	op := operation.Operation{Type: operation.TypeCreate, Table: "expenses", Data: map[string]any{"Name": "Snacks", "Amount": 40.0}}
	env := svc.Handle(context.Background(), "42", op)
	assert.False(t, env.Success)
	assert.True(t, env.RetrySuggested)
	assert.Equal(t, "Operation failed. Please try again.", env.Message)

	env = svc.Retry(context.Background(), "42", op)
	assert.False(t, env.RetrySuggested)
	assert.Equal(t, "Operation failed. Please try again later.", env.Message)
}

func TestHandle_ExposesErrors(t *testing.T) {
	svc, store := newService(t, true)
	store.FailAlways("Create", errors.New("i/o timeout"))

	env := svc.Handle(context.Background(), "42", operation.Operation{Type: operation.TypeCreate, Table: "expenses", Data: map[string]any{"Name": "Snacks", "Amount": 40.0}})
	assert.Equal(t, "Operation failed: i/o timeout", env.Message)
}
