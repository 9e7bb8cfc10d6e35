package logging

import (
	"fmt"
	"regexp"
	"strings"
)

// Redactor scrubs secrets out of log fields before they reach the
// underlying handler. Unlike a generic PII redactor, it deliberately does
// NOT touch IPv4 addresses: in this daemon the IP is the subject of almost
// every log line, and redacting it would make the logs useless for
// operators diagnosing a specific ban (SPEC_FULL.md §12).
type Redactor struct {
	patterns map[string]*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// Pattern names for the built-in set.
const (
	PatternAPIKey      = "api_key"
	PatternToken       = "token"
	PatternPassword    = "password"
	PatternBearerToken = "bearer_token"
)

// NewRedactor builds a Redactor with the built-in pattern set.
func NewRedactor() *Redactor {
	r := &Redactor{patterns: make(map[string]*redactPattern)}

	builtins := map[string]struct {
		regex       string
		replacement string
	}{
		PatternAPIKey: {
			regex:       `(?i)(api[-_]?key|x-api-key)[-_:]\s*[a-zA-Z0-9]+`,
			replacement: "$1: ***",
		},
		PatternToken: {
			regex:       `(?i)(token|pveapitoken)[-_:=]\s*\S+`,
			replacement: "$1=***",
		},
		PatternPassword: {
			regex:       `(?i)(password|passwd|pwd)[:=]\s*\S+`,
			replacement: "$1: ***",
		},
		PatternBearerToken: {
			regex:       `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			replacement: "Bearer ***",
		},
	}

	for name, p := range builtins {
		r.patterns[name] = &redactPattern{
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		}
	}

	return r
}

// RedactString applies every pattern to value in turn.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	redacted := value
	for _, p := range r.patterns {
		redacted = p.regex.ReplaceAllString(redacted, p.replacement)
	}
	return redacted
}

// RedactArgs redacts a slog-style key/value argument list in place,
// blanking values whose key name indicates a secret and scrubbing any
// string value that happens to match a pattern regardless of key.
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		if key, ok := redacted[i-1].(string); ok && isSensitiveKey(key) {
			redacted[i] = redactValue(redacted[i])
			continue
		}
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	sensitive := []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey", "pveapitoken",
		"auth", "authorization", "bearer",
	}
	for _, s := range sensitive {
		if strings.Contains(lowerKey, s) {
			return true
		}
	}
	return false
}

func redactValue(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" {
			return ""
		}
		if len(v) <= 4 {
			return "***"
		}
		return v[:4] + "***"
	case fmt.Stringer:
		return "***"
	default:
		return "***"
	}
}
