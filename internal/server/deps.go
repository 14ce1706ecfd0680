package server

import (
	"context"
	"fmt"
	"time"

	"github.com/finbot/finbot/internal/agent"
	"github.com/finbot/finbot/internal/budget"
	"github.com/finbot/finbot/internal/config"
	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/executor"
	"github.com/finbot/finbot/internal/notion"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/resolver"
	"github.com/finbot/finbot/internal/schema"
	"github.com/finbot/finbot/internal/security"
	"github.com/finbot/finbot/internal/service"
	"github.com/finbot/finbot/internal/telegram"
	"github.com/finbot/finbot/internal/tools"
	"github.com/rs/zerolog/log"
)

// Deps is the wired object graph shared by the HTTP server and the CLI.
type Deps struct {
	Notion       *notion.Client
	Schemas      *schema.Cache
	Store        confirm.Store
	Gate         *confirm.Gate
	Operations   *service.OperationService
	Tracker      *budget.Tracker
	Tools        []tools.Tool
	Audit        *security.AuditLogger
	Conversation *agent.ConversationHandler // nil without ANTHROPIC_API_KEY
	Telegram     *telegram.Client           // nil without TELEGRAM_BOT_TOKEN
}

// NewNotionClient builds the remote store client from cfg.
func NewNotionClient(cfg *config.Config) *notion.Client {
	return notion.NewClient(notion.Options{
		Token:         cfg.NotionToken,
		Version:       cfg.NotionVersion,
		BaseURL:       cfg.NotionBaseURL,
		Timeout:       config.DefaultRemoteTimeout,
		MaxAttempts:   config.DefaultRemoteAttempts,
		RetryWaitMin:  config.DefaultRetryWaitMin,
		RetryWaitMax:  config.DefaultRetryWaitMax,
		RatePerSecond: cfg.NotionRatePerSecond,
	})
}

// OpenStore opens the pending confirmation store named by cfg.ConfirmStore.
func OpenStore(ctx context.Context, cfg *config.Config) (confirm.Store, error) {
	switch cfg.ConfirmStore {
	case "", "memory":
		return confirm.NewMemoryStore(), nil
	case "sqlite":
		return confirm.OpenSQLite(cfg.ConfirmSQLitePath)
	case "postgres":
		return confirm.OpenPostgres(ctx, cfg.DatabaseURL)
	case "redis":
		return confirm.OpenRedis(ctx, confirm.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}
	return nil, fmt.Errorf("unknown confirm store %q", cfg.ConfirmStore)
}

// Build wires every component. The caller owns Close.
func Build(ctx context.Context, cfg *config.Config) (*Deps, error) {
	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := OpenStore(openCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open confirm store: %w", err)
	}

	client := NewNotionClient(cfg)
	dbs := cfg.Databases

	schemas := schema.NewCache(schema.NewNotionFetcher(client, dbs),
		schema.WithTTL(config.DefaultSchemaTTL),
		schema.WithFetchTimeout(config.DefaultRemoteTimeout*config.DefaultRemoteAttempts),
	)
	gate := confirm.NewGate(store, confirm.WithTTL(config.DefaultConfirmationTTL))
	exec := executor.New(client, schemas, resolver.New(client, dbs), dbs)
	auditLogger := security.NewAuditLogger(cfg.EnableAuditLogging)
	ops := service.NewOperationService(operation.NewValidator(schemas), gate, exec, auditLogger, cfg.ExposeErrors || cfg.IsDevelopment())
	tracker := budget.New(client, dbs)

	opts := tools.OperationOptions{Schemas: schemas, DefaultAccount: cfg.DefaultAccount}
	if cfg.EnableDataMasking {
		opts.Masker = security.NewDataMasker(cfg.SensitiveFields)
	}

	d := &Deps{
		Notion:     client,
		Schemas:    schemas,
		Store:      store,
		Gate:       gate,
		Operations: ops,
		Tracker:    tracker,
		Tools:      tools.All(ops, tracker, client, dbs, opts),
		Audit:      auditLogger,
	}

	if cfg.AnthropicAPIKey != "" {
		financeAgent := agent.NewFinanceAgent(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)
		keywords := cfg.SecretKeywords
		if len(keywords) == 0 {
			keywords = security.DefaultSecretKeywords
		}
		var pii *security.PIIDetector
		if cfg.EnablePIIDetection {
			pii = security.NewPIIDetector(keywords)
		}
		d.Conversation = agent.NewConversationHandler(
			financeAgent, ops, d.Tools, client, dbs,
			pii, security.NewMessageValidator(), auditLogger,
			agent.WithTimeout(time.Duration(cfg.AgentTimeout)*time.Second),
			agent.WithModel(financeAgent.Model()),
		)
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - chat and webhook disabled")
	}

	if cfg.TelegramBotToken != "" {
		d.Telegram = telegram.NewClient(telegram.Options{Token: cfg.TelegramBotToken, BaseURL: cfg.TelegramBaseURL})
	}

	return d, nil
}

func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
