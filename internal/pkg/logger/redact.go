package logger

import "strings"

// SenderDomain returns just the domain portion of an email address, safe to
// log at INFO per the "no full email addresses, log vendor key and sender
// domain" rule. Returns "unknown" if addr has no '@'.
func SenderDomain(addr string) string {
	parts := strings.SplitN(addr, "@", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "unknown"
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
