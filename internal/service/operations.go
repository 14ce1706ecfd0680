package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finbot/finbot/internal/confirm"
	"github.com/finbot/finbot/internal/executor"
	"github.com/finbot/finbot/internal/operation"
	"github.com/finbot/finbot/internal/security"
	"github.com/rs/zerolog/log"
)

// Envelope is the uniform result of every operation request.
type Envelope struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	Data                 any    `json:"data,omitempty"`
	RetrySuggested       bool   `json:"retry_suggested,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	OperationDetails     string `json:"operation_details,omitempty"`
}

// OperationService is the single entry point from the language model boundary
// to the remote store: validate, gate, execute, audit.
type OperationService struct {
	validator    *operation.Validator
	gate         *confirm.Gate
	executor     *executor.Executor
	audit        *security.AuditLogger
	exposeErrors bool
}

func NewOperationService(
	validator *operation.Validator,
	gate *confirm.Gate,
	exec *executor.Executor,
	audit *security.AuditLogger,
	exposeErrors bool,
) *OperationService {
	return &OperationService{
		validator:    validator,
		gate:         gate,
		executor:     exec,
		audit:        audit,
		exposeErrors: exposeErrors,
	}
}

// Handle processes one operation on behalf of userID. Destructive operations
// need a userID to be confirmed; without one they run directly.
func (s *OperationService) Handle(ctx context.Context, userID string, op operation.Operation) Envelope {
	return s.handle(ctx, userID, op, 0)
}

// Retry is Handle for the single follow-up attempt after a retry_suggested failure.
func (s *OperationService) Retry(ctx context.Context, userID string, op operation.Operation) Envelope {
	return s.handle(ctx, userID, op, 1)
}

func (s *OperationService) handle(ctx context.Context, userID string, op operation.Operation, attempt int) Envelope {
	s.gate.Sweep(ctx)

	if res := s.validator.Validate(ctx, op); !res.Valid {
		log.Debug().Str("op", op.String()).Str("reason", res.Message).Msg("operation rejected")
		return Envelope{Success: false, Message: "Invalid operation: " + res.Message}
	}

	if op.Type.Destructive() && userID != "" {
		op.RetryCount = attempt
		d, err := s.gate.Submit(ctx, userID, op)
		if err != nil {
			log.Error().Err(err).Str("op", op.String()).Msg("confirmation gate failed")
			return Envelope{Success: false, Message: s.errorMessage("Could not record confirmation", err)}
		}
		if d.Action == confirm.ActionAwait {
			s.audit.LogConfirmation(userID, "requested", d.Pending.ID, string(op.Type))
			return Envelope{
				Success:              false,
				RequiresConfirmation: true,
				Message:              fmt.Sprintf("This will %s data. Reply 'yes' to confirm.", op.Type),
				OperationDetails:     op.Reasoning,
			}
		}
		s.audit.LogConfirmation(userID, "confirmed", d.Pending.ID, string(d.Operation.Type))
		op = d.Operation
		attempt = max(attempt, op.RetryCount)
	}

	return s.run(ctx, userID, op, attempt)
}

// Confirm runs the user's pending operation, if any.
func (s *OperationService) Confirm(ctx context.Context, userID string) Envelope {
	p, err := s.gate.Confirm(ctx, userID)
	if errors.Is(err, confirm.ErrNoPending) {
		return Envelope{Success: false, Message: "Nothing to confirm."}
	}
	if err != nil {
		log.Error().Err(err).Msg("confirm pending operation failed")
		return Envelope{Success: false, Message: s.errorMessage("Could not load pending operation", err)}
	}
	s.audit.LogConfirmation(userID, "confirmed", p.ID, string(p.Operation.Type))
	return s.run(ctx, userID, p.Operation, p.Operation.RetryCount)
}

// Cancel discards the user's pending operation.
func (s *OperationService) Cancel(ctx context.Context, userID string) Envelope {
	ok, err := s.gate.Cancel(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("cancel pending operation failed")
		return Envelope{Success: false, Message: s.errorMessage("Could not cancel", err)}
	}
	if !ok {
		return Envelope{Success: false, Message: "Nothing to cancel."}
	}
	s.audit.LogConfirmation(userID, "cancelled", "", "")
	return Envelope{Success: true, Message: "Cancelled."}
}

// HasPending reports whether the user has a live pending operation.
func (s *OperationService) HasPending(ctx context.Context, userID string) bool {
	_, ok := s.Pending(ctx, userID)
	return ok
}

// Pending returns the user's live pending operation, if any.
func (s *OperationService) Pending(ctx context.Context, userID string) (confirm.Pending, bool) {
	p, err := s.gate.Pending(ctx, userID)
	if err != nil {
		if !errors.Is(err, confirm.ErrNoPending) {
			log.Warn().Err(err).Msg("load pending operation failed")
		}
		return confirm.Pending{}, false
	}
	return p, true
}

func (s *OperationService) run(ctx context.Context, userID string, op operation.Operation, attempt int) Envelope {
	start := time.Now()
	res := s.executor.Execute(ctx, op, attempt)
	s.audit.LogOperation(userID, string(op.Type), op.Table, op.RecordID, time.Since(start).Milliseconds(), res.Success, res.Message)

	env := Envelope{
		Success:        res.Success,
		Message:        res.Message,
		Data:           res.Data,
		RetrySuggested: res.RetrySuggested,
	}
	if !res.Success && !s.exposeErrors && strings.HasPrefix(res.Message, "Operation failed") {
		env.Message = "Operation failed. Please try again later."
		if res.RetrySuggested {
			env.Message = "Operation failed. Please try again."
		}
	}
	return env
}

func (s *OperationService) errorMessage(prefix string, err error) string {
	if s.exposeErrors {
		return prefix + ": " + err.Error()
	}
	return prefix + "."
}
