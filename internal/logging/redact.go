package logging

import "regexp"

var secretPatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._~+/=-]{8,})`),

	// OAuth tokens passed as query parameters (streaming endpoint)
	regexp.MustCompile(`(?i)access_token=[a-zA-Z0-9._~-]+`),

	// key=value pairs that look like secrets
	regexp.MustCompile(`(?i)(token|secret|password)[=:]["']?([a-zA-Z0-9+/=_-]{20,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactToken shortens a bearer token to a recognizable but unusable prefix.
func RedactToken(token string) string {
	if len(token) <= 8 {
		return RedactedValue
	}
	return token[:4] + "..." + RedactedValue
}
