package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || username == "" || domain == "" {
		return "[invalid-email]"
	}

	// Keep first char of the local part
	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Keep only the TLD of the domain
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns "[REDACTED]" in production and the value elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password", "token", "secret", "email", "auth", "key",
}

// SanitizeQueryString returns rawQuery with sensitive parameter values replaced
func SanitizeQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}

	for key := range values {
		lower := strings.ToLower(key)
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				values[key] = []string{"REDACTED"}
				break
			}
		}
	}
	return values.Encode()
}
