// Package redact scrubs credentials out of strings before they reach the
// process log, a task's own log or an error response. Vendor responses and
// transport errors routinely echo bearer tokens, API keys and account
// emails back.
package redact

import (
	"regexp"
	"strings"
)

// Placeholders substituted for redacted content
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
)

var (
	dbConnRegex   = regexp.MustCompile(`(?i)(postgres|postgresql)://[^@\s]+@`)
	passwordRegex = regexp.MustCompile(`(?i)("?(?:password|passwd|secret)"?\s*[=:]\s*"?)[^"&\s,}]{3,}`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)((?:api[_-]?key|xi-api-key|apikey|access_token|refresh_token|authorization)"?\s*[=:]\s*"?(?:bearer\s+)?)[A-Za-z0-9_\-.~+/]{8,}`,
	)
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/]{8,}`)
	jwtRegex    = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)
)

// String redacts credentials from free-form text.
func String(input string) string {
	if input == "" {
		return input
	}

	result := jwtRegex.ReplaceAllString(input, RedactedJWTPlaceholder)
	result = dbConnRegex.ReplaceAllString(result, "${1}://"+RedactedCredentialPlaceholder+"@")
	result = passwordRegex.ReplaceAllString(result, "${1}"+RedactedCredentialPlaceholder)
	result = apiKeyRegex.ReplaceAllString(result, "${1}"+RedactedKeyPlaceholder)
	result = bearerRegex.ReplaceAllString(result, "${1}"+RedactedKeyPlaceholder)
	return result
}

// Error redacts credentials from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Email keeps the first character of the local part and the domain so an
// operator can still tell accounts apart: "alice@example.com" becomes
// "a***@example.com".
func Email(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return RedactionPlaceholder
	}
	return email[:1] + "***" + email[at:]
}

// Token reveals only the last four characters of a secret.
func Token(token string) string {
	if len(token) <= 8 {
		return RedactionPlaceholder
	}
	return "***" + token[len(token)-4:]
}
