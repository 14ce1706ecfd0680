package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/security"
	"github.com/finbot/finbot/internal/service"
	"github.com/finbot/finbot/internal/tools"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	contextCacheTTL = 5 * time.Minute
	defaultTimeout  = 60 * time.Second
)

// namesCache holds the category and account names injected into the system
// prompt, so every message does not list both tables.
type namesCacheEntry struct {
	names     map[string][]string
	expiresAt time.Time
}

type namesCache struct {
	mu    sync.RWMutex
	entry *namesCacheEntry
	sf    singleflight.Group
	now   func() time.Time
}

func (c *namesCache) get() (map[string][]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil || c.now().After(c.entry.expiresAt) {
		return nil, false
	}
	return c.entry.names, true
}

func (c *namesCache) set(names map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &namesCacheEntry{names: names, expiresAt: c.now().Add(contextCacheTTL)}
}

func (c *namesCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}

const baseSystemPrompt = `You are FinBot, a personal finance assistant that keeps the user's expenses, income, accounts, categories, subscriptions, transfers and loans in Notion.

RULES:
1. Use the notion_operation tool for every read or write. Never invent records or amounts.
2. A message like "Lunch 150" or "Taxi 300 from bKash" is an expense: create it in expenses with Name, Amount and, when given, Categories and Accounts by name.
3. Money moved between two of the user's accounts is a transfer: create it in transfers with From Account and To Account. Never record it as an expense plus income.
4. To change or delete a record, query first to get its id, then pass record_id.
5. Delete and update need the user's confirmation. When a tool result has requires_confirmation, tell the user what will happen and ask them to reply yes or no.
6. If a result has retry_suggested, repeat the same operation once with is_retry set to true.
7. If a result reports a duplicate, tell the user and only add it again if they insist (force=true).
8. Use monthly_summary for "how am I doing this month" questions and budget_impact before a purchase the user is considering.
9. Reply briefly in plain text. Mention budget warnings and checklist updates from tool results.`

// NameLister lists record names in a table.
type NameLister interface {
	ListTitles(ctx context.Context, databaseID string) ([]string, error)
}

// ConversationHandler turns one chat message into a reply: confirmation
// short-circuits, message screening, then the tool-calling agent.
type ConversationHandler struct {
	agent       Runner
	model       string
	svc         *service.OperationService
	tools       []tools.Tool
	lister      NameLister
	databases   map[string]string
	piiDetector *security.PIIDetector
	msgVal      *security.MessageValidator
	router      *service.TableRouter
	auditLogger *security.AuditLogger
	names       *namesCache
	now         func() time.Time
	timeout     time.Duration
}

// HandlerOption configures a ConversationHandler.
type HandlerOption func(*ConversationHandler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *ConversationHandler) { h.now = now; h.names.now = now }
}

func WithTimeout(d time.Duration) HandlerOption {
	return func(h *ConversationHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithModel records the model name in audit logs.
func WithModel(model string) HandlerOption {
	return func(h *ConversationHandler) { h.model = model }
}

// NewConversationHandler creates a handler with all security components wired in
func NewConversationHandler(
	agent Runner,
	svc *service.OperationService,
	agentTools []tools.Tool,
	lister NameLister,
	databases map[string]string,
	piiDetector *security.PIIDetector,
	msgVal *security.MessageValidator,
	auditLogger *security.AuditLogger,
	opts ...HandlerOption,
) *ConversationHandler {
	h := &ConversationHandler{
		agent:       agent,
		svc:         svc,
		tools:       agentTools,
		lister:      lister,
		databases:   databases,
		piiDetector: piiDetector,
		msgVal:      msgVal,
		router:      service.NewTableRouter(),
		auditLogger: auditLogger,
		names:       &namesCache{now: time.Now},
		now:         time.Now,
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle processes one message from userID and returns the reply text.
func (h *ConversationHandler) Handle(ctx context.Context, userID, text string) (string, error) {
	start := h.now()
	text = strings.TrimSpace(text)

	// A bare yes/no settles a pending operation without a model round trip.
	if h.svc.HasPending(ctx, userID) {
		switch {
		case confirm.IsAffirmative(text):
			h.auditLogger.LogAgentRequest(text, userID, []string{"confirm"}, true, h.now().Sub(start).Milliseconds())
			return FormatEnvelope(h.svc.Confirm(ctx, userID)), nil
		case confirm.IsNegative(text):
			h.auditLogger.LogAgentRequest(text, userID, []string{"cancel"}, true, h.now().Sub(start).Milliseconds())
			return FormatEnvelope(h.svc.Cancel(ctx, userID)), nil
		}
	}

	if found, kw := h.piiDetector.Detect(text); found {
		log.Warn().Str("match", kw).Msg("secret detected in message")
		h.auditLogger.LogAgentRequest(text, userID, nil, false, h.now().Sub(start).Milliseconds())
		return "Please don't send passwords, PINs, OTPs or card numbers here. Nothing was saved.", nil
	}

	if vr := h.msgVal.Validate(text); !vr.Valid {
		log.Warn().Str("reason", vr.Message).Msg("message rejected")
		h.auditLogger.LogAgentRequest(text, userID, nil, false, h.now().Sub(start).Milliseconds())
		return "Sorry, I can't process that message.", nil
	}

	systemPrompt := h.buildSystemPrompt(ctx, text)

	agentCtx, cancel := context.WithTimeout(tools.WithUserID(ctx, userID), h.timeout)
	defer cancel()

	output, toolsUsed, err := h.agent.Run(agentCtx, systemPrompt, text, h.tools)
	h.auditLogger.LogAgentRequest(text, userID, toolsUsed, true, h.now().Sub(start).Milliseconds())
	if err != nil {
		return "", fmt.Errorf("agent run: %w", err)
	}

	for _, t := range toolsUsed {
		if t == "notion_operation" {
			// Categories or accounts may have been added.
			h.names.invalidate()
			break
		}
	}

	output = strings.TrimSpace(output)
	if output == "" {
		output = "Done."
	}
	log.Debug().Strs("tools", toolsUsed).Str("reply", truncate(output, 80)).Msg("agent replied")
	return output, nil
}

// buildSystemPrompt adds today's date, known names and a table hint to the
// base prompt. Names are cached; concurrent misses share one fetch.
func (h *ConversationHandler) buildSystemPrompt(ctx context.Context, text string) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)
	sb.WriteString("\n\nToday is " + h.now().Format("Monday, 2006-01-02") + ".\n")

	names := h.loadNames(ctx)
	for _, table := range []string{operation.TableCategories, operation.TableAccounts} {
		if list := names[table]; len(list) > 0 {
			sb.WriteString(fmt.Sprintf("Known %s: %s.\n", table, strings.Join(list, ", ")))
		}
	}

	if route := h.router.Route(text); route.Confidence > 0.5 {
		sb.WriteString(fmt.Sprintf("This message most likely concerns the %s table.\n", route.Table))
	}
	return sb.String()
}

func (h *ConversationHandler) loadNames(ctx context.Context) map[string][]string {
	if h.lister == nil {
		return nil
	}
	if names, ok := h.names.get(); ok {
		return names
	}

	v, _, _ := h.names.sf.Do("names", func() (interface{}, error) {
		if names, ok := h.names.get(); ok {
			return names, nil
		}
		names := map[string][]string{}
		complete := true
		for _, table := range []string{operation.TableCategories, operation.TableAccounts} {
			dbID := h.databases[table]
			if dbID == "" {
				continue
			}
			list, err := h.lister.ListTitles(ctx, dbID)
			if err != nil {
				log.Warn().Err(err).Str("table", table).Msg("load names failed")
				complete = false
				continue
			}
			names[table] = list
		}
		// Partial results are used once but not cached.
		if complete {
			h.names.set(names)
		}
		return names, nil
	})
	names, _ := v.(map[string][]string)
	return names
}

// FormatEnvelope renders an operation result as a chat reply.
func FormatEnvelope(env service.Envelope) string {
	switch {
	case env.RequiresConfirmation:
		msg := env.Message
		if env.OperationDetails != "" {
			msg = env.OperationDetails + "\n" + msg
		}
		return "⚠️ " + msg
	case env.Success:
		return "✅ " + env.Message
	}
	return "❌ " + env.Message
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
