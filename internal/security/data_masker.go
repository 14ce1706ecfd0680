package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRe      = regexp.MustCompile(`(?i)e-?mail`)
	phoneRe      = regexp.MustCompile(`(?i)phone|mobile`)
	cardFieldRe = regexp.MustCompile(`(?i)card\s*(number|no)|account\s*(number|no)|iban`)
	fullMaskRe   = regexp.MustCompile(`(?i)password|secret|token|\bpin\b`)
)

// DataMasker masks sensitive field values in query rows before they are
// handed to the model.
type DataMasker struct {
	sensitiveFields []string
}

func NewDataMasker(sensitiveFields []string) *DataMasker {
	return &DataMasker{sensitiveFields: sensitiveFields}
}

// MaskRows returns masked copies of rows.
func (m *DataMasker) MaskRows(rows []map[string]any) []map[string]any {
	masked := make([]map[string]any, len(rows))
	for i, row := range rows {
		masked[i] = m.maskRow(row)
	}
	return masked
}

func (m *DataMasker) maskRow(row map[string]any) map[string]any {
	result := make(map[string]any, len(row))
	for field, val := range row {
		if val != nil && m.isSensitive(field) {
			result[field] = maskValue(field, fmt.Sprintf("%v", val))
		} else {
			result[field] = val
		}
	}
	return result
}

func (m *DataMasker) isSensitive(field string) bool {
	lower := strings.ToLower(field)
	for _, s := range m.sensitiveFields {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return emailRe.MatchString(field) || phoneRe.MatchString(field) ||
		cardFieldRe.MatchString(field) || fullMaskRe.MatchString(field)
}

func maskValue(field, val string) string {
	switch {
	case emailRe.MatchString(field):
		return maskEmail(val)
	case phoneRe.MatchString(field), cardFieldRe.MatchString(field):
		return maskTrailing(val)
	default:
		return "***"
	}
}

// maskEmail: "john.doe@example.com" → "jo***@***.com"
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	visible := min(2, len(local))
	ext := domain[strings.LastIndex(domain, ".")+1:]
	return fmt.Sprintf("%s***@***.%s", local[:visible], ext)
}

// maskTrailing keeps the last four digits: "01711-223344" → "****3344"
func maskTrailing(s string) string {
	digits := digitsOf(s)
	if len(digits) < 4 {
		return "****"
	}
	return "****" + digits[len(digits)-4:]
}
