// Package redaction masks credentials that show up in dialog prompts, shell
// commands and log fields before they leave the process.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	Enabled bool `json:"enabled"`

	// RedactAPIKeys redacts API keys, bearer tokens and provider keys.
	RedactAPIKeys bool `json:"redact_api_keys"`

	// RedactPasswords redacts password assignments and command-line flags.
	RedactPasswords bool `json:"redact_passwords"`

	// RedactEmails masks the local part of email addresses.
	RedactEmails bool `json:"redact_emails"`

	// CustomPatterns allows additional regex patterns to redact.
	CustomPatterns []string `json:"custom_patterns"`

	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RedactAPIKeys:   true,
		RedactPasswords: true,
		RedactEmails:    false,
		Replacement:     "[REDACTED]",
	}
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

var (
	keyPatterns = []pattern{
		{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[=:]\s*['"]?([a-zA-Z0-9_\-]{16,})['"]?`)},
		{"bearer_token", regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{16,})`)},
		{"auth_token", regexp.MustCompile(`(?i)(auth[_-]?token|access[_-]?token|refresh[_-]?token)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`)},
		{"anthropic_key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{16,}`)},
		{"openai_key", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`)},
		{"google_key", regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)},
		{"github_token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`)},
		{"aws_access_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{"jwt", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)},
	}
	passwordPatterns = []pattern{
		{"password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?([^'"\s]{4,})['"]?`)},
		{"password_flag", regexp.MustCompile(`(?i)--password[= ]([^\s]+)`)},
	}
	jsonSecret = regexp.MustCompile(`"(?:api_key|apikey|secret|password|token|private_key)"\s*:\s*"([^"]+)"`)
	email      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

var sensitiveKeys = []string{
	"password", "passwd", "api_key", "apikey", "secret", "token", "credential", "private_key",
}

// Redactor applies the configured rules. It is safe for concurrent use.
type Redactor struct {
	config Config
	custom []*regexp.Regexp
	mu     sync.RWMutex
}

// NewRedactor creates a Redactor. Invalid custom patterns are skipped.
func NewRedactor(config Config) *Redactor {
	if config.Replacement == "" {
		config.Replacement = "[REDACTED]"
	}
	r := &Redactor{config: config}
	for _, p := range config.CustomPatterns {
		if re, err := regexp.Compile(p); err == nil {
			r.custom = append(r.custom, re)
		}
	}
	return r
}

// Redact applies all configured rules to input.
func (r *Redactor) Redact(input string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.config.Enabled || input == "" {
		return input
	}

	result := input
	if r.config.RedactAPIKeys {
		result = r.replaceGroups(result, keyPatterns)
		result = jsonSecret.ReplaceAllStringFunc(result, func(match string) string {
			sub := jsonSecret.FindStringSubmatch(match)
			if len(sub) > 1 {
				return strings.Replace(match, sub[1], r.config.Replacement, 1)
			}
			return match
		})
	}
	if r.config.RedactPasswords {
		result = r.replaceGroups(result, passwordPatterns)
	}
	if r.config.RedactEmails {
		result = email.ReplaceAllStringFunc(result, maskEmail)
	}
	for _, re := range r.custom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}
	return result
}

// replaceGroups redacts the last capture group of each match, or the whole
// match when the pattern has no groups.
func (r *Redactor) replaceGroups(input string, patterns []pattern) string {
	result := input
	for _, p := range patterns {
		re := p.re
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			sub := re.FindStringSubmatch(match)
			if len(sub) > 1 && sub[len(sub)-1] != "" {
				return strings.Replace(match, sub[len(sub)-1], r.config.Replacement, 1)
			}
			return r.config.Replacement
		})
	}
	return result
}

func maskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return addr
	}
	return addr[:1] + "***" + addr[at:]
}

// RedactFields returns a copy of fields with sensitive keys replaced and
// string values redacted.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	r.mu.RLock()
	enabled := r.config.Enabled
	replacement := r.config.Replacement
	r.mu.RUnlock()

	if !enabled || fields == nil {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			result[k] = replacement
			continue
		}
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case map[string]any:
			result[k] = r.RedactFields(val)
		default:
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lower, sk) {
			return true
		}
	}
	return false
}

// SetEnabled toggles redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

var (
	globalMu       sync.RWMutex
	globalRedactor = NewRedactor(DefaultConfig())
)

// Redact applies the global redactor.
func Redact(input string) string {
	globalMu.RLock()
	r := globalRedactor
	globalMu.RUnlock()
	return r.Redact(input)
}

// RedactFields applies the global redactor to a field map.
func RedactFields(fields map[string]any) map[string]any {
	globalMu.RLock()
	r := globalRedactor
	globalMu.RUnlock()
	return r.RedactFields(fields)
}

// SetGlobalConfig replaces the global redactor.
func SetGlobalConfig(config Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRedactor = NewRedactor(config)
}
