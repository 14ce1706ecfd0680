package security

import (
	"regexp"
	"strings"
)

// DefaultSecretKeywords are phrases that suggest a credential is being shared.
var DefaultSecretKeywords = []string{"password", "passcode", "pin code", "pin number", "cvv", "cvc", "otp"}

var cardNumberRe = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)

// PIIDetector checks chat messages for credentials and card numbers
type PIIDetector struct {
	keywords []string
	patterns []*regexp.Regexp
}

func NewPIIDetector(keywords []string) *PIIDetector {
	d := &PIIDetector{}
	for _, k := range keywords {
		k = strings.ToLower(k)
		d.keywords = append(d.keywords, k)
		d.patterns = append(d.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(k)+`\b`))
	}
	return d
}

// Detect returns true and what matched if text carries a secret. A nil detector finds nothing.
func (d *PIIDetector) Detect(text string) (bool, string) {
	if d == nil {
		return false, ""
	}
	for i, re := range d.patterns {
		if re.MatchString(text) {
			return true, d.keywords[i]
		}
	}
	for _, m := range cardNumberRe.FindAllString(text, -1) {
		if luhn(digitsOf(m)) {
			return true, "card number"
		}
	}
	return false, ""
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// luhn reports whether digits pass the card checksum.
func luhn(digits string) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}
