package security

import "strings"

var sensitiveSubstrings = []string{
	"token",
	"password",
	"authorization",
	"apikey",
	"api_key",
	"access_key",
	"private_key",
	"credential",
	"passwd",
	"secret",
	"signature",
	"cookie",
	"jwt",
	"bearer",
	"passphrase",
}

// Redactor replaces sensitive argument values before they are logged.
type Redactor struct {
	extra map[string]struct{}
}

// NewRedactor returns a Redactor that also hides the given exact keys.
func NewRedactor(extraKeys []string) *Redactor {
	extra := make(map[string]struct{}, len(extraKeys))
	for _, key := range extraKeys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" {
			extra[key] = struct{}{}
		}
	}
	return &Redactor{extra: extra}
}

// Redact returns a copy of arguments with sensitive values replaced, recursing into objects.
// A nil Redactor applies the built-in key list.
func (r *Redactor) Redact(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if r.isSensitiveKey(key) {
			redacted[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			redacted[key] = r.Redact(nested)
			continue
		}
		redacted[key] = value
	}
	return redacted
}

// RedactArguments redacts with the built-in key list only.
func RedactArguments(values map[string]any) map[string]any {
	return (&Redactor{}).Redact(values)
}

func (r *Redactor) isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if r != nil {
		if _, ok := r.extra[lower]; ok {
			return true
		}
	}
	if strings.Contains(lower, "secret") && strings.HasSuffix(lower, "name") {
		return false
	}
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
