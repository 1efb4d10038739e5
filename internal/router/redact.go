package router

import "regexp"

// Redactor scrubs credential-shaped strings from outbound text. The
// model sees thread history and tool output verbatim, so anything a
// user pasted into a conversation can surface again in an answer; the
// redactor keeps it from being re-posted.
type Redactor struct {
	patterns []*regexp.Regexp
}

// defaultPatterns catch API keys, JWTs, private keys, connection
// strings, and private IPs.
var defaultPatterns = []*regexp.Regexp{
	// API keys by prefix
	regexp.MustCompile(`sk-or-[a-zA-Z0-9-]{16,}`),  // OpenRouter
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),      // OpenAI and friends
	regexp.MustCompile(`xox[bpas]-[a-zA-Z0-9-]+`),  // Slack tokens
	regexp.MustCompile(`xapp-[a-zA-Z0-9-]+`),       // Slack app tokens
	regexp.MustCompile(`gh[pos]_[a-zA-Z0-9]{36,}`), // GitHub tokens
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),         // AWS access keys
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`),    // Google API keys

	// JWTs: three base64url segments separated by dots
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),

	// PEM private keys
	regexp.MustCompile(`(?s)-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----.*?-----END (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),

	// Connection strings with embedded credentials
	regexp.MustCompile(`(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^\s"']+`),

	// Private IP ranges
	regexp.MustCompile(`\b10\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
	regexp.MustCompile(`\b172\.(?:1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}\b`),
	regexp.MustCompile(`\b192\.168\.\d{1,3}\.\d{1,3}\b`),
}

const redactedPlaceholder = "[REDACTED]"

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: defaultPatterns}
}

// AddPattern compiles and adds a custom pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// AddPatterns adds multiple custom patterns.
func (r *Redactor) AddPatterns(patterns []string) error {
	for _, p := range patterns {
		if err := r.AddPattern(p); err != nil {
			return err
		}
	}
	return nil
}

// Redact replaces every sensitive match in text with [REDACTED].
func (r *Redactor) Redact(text string) string {
	result := text
	for _, p := range r.patterns {
		result = p.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// ContainsSensitive reports whether text matches any pattern.
func (r *Redactor) ContainsSensitive(text string) bool {
	for _, p := range r.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
