package security

import (
	"fmt"
	"regexp"
	"strings"
)

const MaxMessageLength = 2000

// dangerousPatterns covers prompt injection plus attempts to smuggle shell or
// code execution through the model.
var dangerousPatterns = []*regexp.Regexp{
	// Command execution
	regexp.MustCompile(`(?i)\brm\s+-`),
	regexp.MustCompile(`(?i)\bcurl\s+https?:`),
	regexp.MustCompile(`(?i)\bwget\s+https?:`),
	regexp.MustCompile(`(?i)\bbash\s+-c`),
	regexp.MustCompile(`(?i)\bsudo\s+`),

	// File access
	regexp.MustCompile(`\.\.\/`),
	regexp.MustCompile(`/etc/passwd`),
	regexp.MustCompile(`/etc/shadow`),
	regexp.MustCompile(`id_rsa`),
	regexp.MustCompile(`\.ssh/`),

	// Code execution
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)os\.system`),

	// Prompt injection
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)new\s+system\s+prompt`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|api\s+key|token)`),
}

// MessageValidator screens inbound chat messages before they reach the model
type MessageValidator struct{}

func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidationResult contains validation outcome
type ValidationResult struct {
	Valid   bool
	Message string
}

// Validate checks a message for length and dangerous patterns
func (v *MessageValidator) Validate(message string) ValidationResult {
	if len(message) > MaxMessageLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("message too long: %d chars (max %d)", len(message), MaxMessageLength),
		}
	}

	if strings.TrimSpace(message) == "" {
		return ValidationResult{Valid: false, Message: "message cannot be empty"}
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(message) {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("dangerous pattern detected: %s", pattern.String()),
			}
		}
	}

	return ValidationResult{Valid: true, Message: "ok"}
}
