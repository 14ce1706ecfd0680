package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
)

// AuditLogger logs security-relevant events with hashed identifiers
type AuditLogger struct {
	enabled bool
}

func NewAuditLogger(enabled bool) *AuditLogger {
	return &AuditLogger{enabled: enabled}
}

func hashStr(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// LogOperation records one executed operation
func (a *AuditLogger) LogOperation(
	userID, opType, table, recordID string,
	executionTimeMs int64,
	success bool,
	message string,
) {
	if !a.enabled {
		return
	}
	evt := log.Info().
		Str("event", "operation_audit").
		Str("user_hash", hashStr(userID)[:16]).
		Str("operation_type", opType).
		Str("table", table).
		Int64("execution_time_ms", executionTimeMs).
		Bool("success", success)

	if recordID != "" {
		evt = evt.Str("record_id", recordID)
	}
	if !success && message != "" {
		evt = evt.Str("error", message)
	}
	evt.Msg("audit")
}

// LogConfirmation records a transition of the confirmation handshake
func (a *AuditLogger) LogConfirmation(userID, action, pendingID, opType string) {
	if !a.enabled {
		return
	}
	log.Info().
		Str("event", "confirmation_audit").
		Str("user_hash", hashStr(userID)[:16]).
		Str("action", action).
		Str("pending_id", pendingID).
		Str("operation_type", opType).
		Msg("audit")
}

// LogAgentRequest records a conversational request handled by the agent
func (a *AuditLogger) LogAgentRequest(
	message, userID string,
	toolsUsed []string,
	validationPassed bool,
	executionTimeMs int64,
) {
	if !a.enabled {
		return
	}
	log.Info().
		Str("event", "agent_audit").
		Str("message_hash", hashStr(message)[:16]).
		Str("user_hash", hashStr(userID)[:16]).
		Strs("tools_used", toolsUsed).
		Bool("validation_passed", validationPassed).
		Int64("execution_time_ms", executionTimeMs).
		Msg("agent audit")
}

// LogPanic records a recovered HTTP handler panic. The panic value is hashed
// since it may carry message text.
func (a *AuditLogger) LogPanic(requestID, route string, recovered any) {
	if a == nil || !a.enabled {
		return
	}
	log.Warn().
		Str("event", "panic_audit").
		Str("request_id", requestID).
		Str("route", route).
		Str("panic_hash", hashStr(fmt.Sprint(recovered))[:16]).
		Msg("audit")
}
