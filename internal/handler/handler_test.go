package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/executor"
	"github.com/finbot/finbot/internal/handler"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/notion/notiontest"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/resolver"
	"github.com/finbot/finbot/internal/schema"
	"github.com/finbot/finbot/internal/security"
	"github.com/finbot/finbot/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeConversation struct {
	mu    sync.Mutex
	calls []string
	reply string
	err   error
}

func (f *fakeConversation) Handle(ctx context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+":"+text)
	return f.reply, f.err
}

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type staticSchemas map[string]schema.Schema

func (s staticSchemas) Get(_ context.Context, table string) schema.Schema { return s[table].Clone() }

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

// ─── Health ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		notion     handler.HealthChecker
		store      handler.HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"all ok", pinger{}, pinger{}, http.StatusOK, "healthy"},
		{"notion down", pinger{errors.New("401")}, pinger{}, http.StatusServiceUnavailable, "degraded"},
		{"store down", pinger{}, pinger{errors.New("refused")}, http.StatusServiceUnavailable, "degraded"},
		{"store disabled", pinger{}, nil, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.notion, tt.store)
			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tt.wantCode)
			}
			if got := decode(t, rr)["status"]; got != tt.wantStatus {
				t.Errorf("status = %v, want %s", got, tt.wantStatus)
			}
		})
	}
}

// ─── Webhook ──────────────────────────────────────────────────────────────────

const update = `{"update_id":1,"message":{"message_id":5,"from":{"id":42,"is_bot":false,"first_name":"A"},"chat":{"id":900,"type":"private"},"date":1715760000,"text":"Lunch 150"}}`

func postWebhook(h *handler.WebhookHandler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(handler.SecretHeader, secret)
	}
	rr := httptest.NewRecorder()
	h.Webhook(rr, req)
	return rr
}

func TestWebhook_RepliesToMessage(t *testing.T) {
	conv := &fakeConversation{reply: "✅ Saved Lunch"}
	sender := &fakeSender{}
	h := handler.NewWebhookHandler(conv, sender, "s3cret", "42", time.Second)

	rr := postWebhook(h, update, "s3cret")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "success", decode(t, rr)["status"])
	assert.Equal(t, []string{"42:Lunch 150"}, conv.calls)
	assert.Equal(t, []sent{{900, "✅ Saved Lunch"}}, sender.sent)
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	conv := &fakeConversation{}
	h := handler.NewWebhookHandler(conv, &fakeSender{}, "s3cret", "", time.Second)

	assert.Equal(t, http.StatusUnauthorized, postWebhook(h, update, "").Code)
	assert.Equal(t, http.StatusUnauthorized, postWebhook(h, update, "guess").Code)
	assert.Empty(t, conv.calls)
}

func TestWebhook_UnauthorizedUser(t *testing.T) {
	conv := &fakeConversation{}
	sender := &fakeSender{}
	h := handler.NewWebhookHandler(conv, sender, "", "7", time.Second)

	rr := postWebhook(h, update, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "unauthorized", decode(t, rr)["status"])
	assert.Empty(t, conv.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Sorry, you are not authorized to use this bot.", sender.sent[0].text)
}

func TestWebhook_IgnoresNonText(t *testing.T) {
	conv := &fakeConversation{}
	sender := &fakeSender{}
	h := handler.NewWebhookHandler(conv, sender, "", "", time.Second)

	for _, body := range []string{
		`{"update_id":2,"edited_message":{}}`,
		`{"update_id":3,"message":{"message_id":1,"from":{"id":42},"chat":{"id":900}}}`,
		`not json`,
	} {
		rr := postWebhook(h, body, "")
		assert.Equal(t, http.StatusOK, rr.Code, body)
	}
	assert.Empty(t, conv.calls)
	assert.Empty(t, sender.sent)
}

func TestWebhook_ConversationError(t *testing.T) {
	conv := &fakeConversation{err: errors.New("model timeout")}
	sender := &fakeSender{}
	h := handler.NewWebhookHandler(conv, sender, "", "", time.Second)

	rr := postWebhook(h, update, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "error", decode(t, rr)["status"])
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].text, "something went wrong")
}

// ─── Chat ─────────────────────────────────────────────────────────────────────

func TestChat(t *testing.T) {
	conv := &fakeConversation{reply: "You spent 865.00 this month."}
	h := handler.NewChatHandler(conv)

	rr := httptest.NewRecorder()
	h.Chat(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"user_id":"42","message":"how am I doing?"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "You spent 865.00 this month.", body["reply"])
}

func TestChat_Validation(t *testing.T) {
	h := handler.NewChatHandler(&fakeConversation{})
	for _, body := range []string{`{`, `{"user_id":"42"}`, `{"message":"hi"}`} {
		rr := httptest.NewRecorder()
		h.Chat(rr, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: code = %d, want 400", body, rr.Code)
		}
	}
}

// ─── Operations ───────────────────────────────────────────────────────────────

var databases = map[string]string{"expenses": "db-exp", "categories": "db-cat", "income": "db-inc"}

func newOperations(t *testing.T) (*chi.Mux, *notiontest.Store) {
	t.Helper()
	store := notiontest.New()
	store.Seed("db-exp", notiontest.NewPage("E1", map[string]notion.FieldValue{
		"Name": notion.Title("Lunch"), "Amount": notion.Number(150),
	}))
	schemas := staticSchemas(schema.Fallback())
	svc := service.NewOperationService(
		operation.NewValidator(schemas),
		confirm.NewGate(confirm.NewMemoryStore()),
		executor.New(store, schemas, resolver.New(store, databases), databases),
		security.NewAuditLogger(false),
		true,
	)
	h := handler.NewOperationsHandler(svc)
	r := chi.NewRouter()
	r.Post("/operations", h.Execute)
	r.Post("/operations/confirm", h.Confirm)
	r.Post("/operations/cancel", h.Cancel)
	r.Get("/operations/pending/{userID}", h.Pending)
	return r, store
}

func call(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestOperations_QueryRunsImmediately(t *testing.T) {
	r, _ := newOperations(t)
	rr := call(r, http.MethodPost, "/operations", `{"user_id":"42","operation":{"operation_type":"query","table":"expenses"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Found 1 results", body["message"])
}

func TestOperations_DeleteConfirmFlow(t *testing.T) {
	r, store := newOperations(t)

	rr := call(r, http.MethodPost, "/operations", `{"user_id":"42","operation":{"operation_type":"delete","table":"expenses","record_id":"E1","reasoning":"Delete lunch"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["requires_confirmation"])

	rr = call(r, http.MethodGet, "/operations/pending/42", "")
	body := decode(t, rr)
	assert.Equal(t, true, body["pending"])
	assert.Equal(t, "delete", body["operation_type"])
	assert.Equal(t, "Delete lunch", body["reasoning"])
	assert.NotEmpty(t, body["expires_at"])

	rr = call(r, http.MethodPost, "/operations/confirm", `{"user_id":"42"}`)
	assert.Equal(t, true, decode(t, rr)["success"])
	assert.Empty(t, store.Pages("db-exp"))

	rr = call(r, http.MethodGet, "/operations/pending/42", "")
	assert.Equal(t, false, decode(t, rr)["pending"])
}

func TestOperations_Cancel(t *testing.T) {
	r, store := newOperations(t)
	call(r, http.MethodPost, "/operations", `{"user_id":"42","operation":{"operation_type":"delete","table":"expenses","record_id":"E1"}}`)

	rr := call(r, http.MethodPost, "/operations/cancel", `{"user_id":"42"}`)
	assert.Equal(t, true, decode(t, rr)["success"])
	assert.Len(t, store.Pages("db-exp"), 1)
}

func TestOperations_BadRequests(t *testing.T) {
	r, _ := newOperations(t)
	tests := []struct {
		path, body string
	}{
		{"/operations", `{`},
		{"/operations", `{"user_id":"42"}`},
		{"/operations", `{"operation":{"operation_type":"query","table":"expenses","filters":"x"}}`},
		{"/operations/confirm", `{}`},
		{"/operations/cancel", `nope`},
	}
	for _, tt := range tests {
		rr := call(r, http.MethodPost, tt.path, tt.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("POST %s %s: code = %d, want 400", tt.path, tt.body, rr.Code)
		}
	}
}

func TestOperations_ValidationFailureIsEnvelope(t *testing.T) {
	r, _ := newOperations(t)
	rr := call(r, http.MethodPost, "/operations", `{"operation":{"operation_type":"create","table":"expenses","data":{"Colour":"red"}}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])
}

// ─── Summary ──────────────────────────────────────────────────────────────────

func TestSummary(t *testing.T) {
	store := notiontest.New()
	now := time.Now()
	store.Seed("db-cat", notiontest.NewPage("C1", map[string]notion.FieldValue{
		"Name": notion.Title("Food"), "Monthly Budget": notion.Number(100),
	}))
	store.Seed("db-exp", notiontest.NewPage("E1", map[string]notion.FieldValue{
		"Name": notion.Title("Lunch"), "Amount": notion.Number(40),
		"Date": notion.Date(now.Format("2006-01-02")), "Categories": notion.Relation{"C1"},
	}))
	h := handler.NewSummaryHandler(budget.New(store, databases))

	rr := httptest.NewRecorder()
	h.Summary(rr, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 40.0, decode(t, rr)["total_spent"])

	rr = httptest.NewRecorder()
	h.BudgetImpact(rr, httptest.NewRequest(http.MethodGet, "/api/v1/budget-impact?category=Food&amount=20", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "safe", decode(t, rr)["status"])

	rr = httptest.NewRecorder()
	h.BudgetImpact(rr, httptest.NewRequest(http.MethodGet, "/api/v1/budget-impact?category=Food&amount=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
