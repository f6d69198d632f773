package observability

import "unicode"

// Log field caps. Identities arrive from the gateway's X-User-ID header
// and are ULID-style tokens well under the cap; anything longer is a
// malformed or hostile value and gets truncated.
const (
	defaultFieldLimit = 256
	routeFieldLimit   = 180
	methodFieldLimit  = 10
	userIDFieldLimit  = 40
)

// sanitizeString strips control characters and caps length so header
// values cannot inject log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute normalises the matched chi route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeFieldLimit)
}

// SanitizeMethod normalises the HTTP method for logging.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodFieldLimit)
}

// SanitizeUserID caps the gateway-supplied user id before it reaches a
// log line.
func SanitizeUserID(uid string) string {
	if len(uid) == 0 {
		return ""
	}
	return sanitizeString(uid, userIDFieldLimit)
}
