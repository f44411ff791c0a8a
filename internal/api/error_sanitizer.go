package api

import (
	"log"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR SANITIZER
// Ensures internal errors (database details, file paths, DSNs) are NEVER
// leaked to API consumers. All 5xx errors return generic safe messages while
// the full error is logged server-side for debugging.
// =============================================================================

// respondSafeError logs the full internal error and sends a sanitized JSON
// error response. Use this whenever a 500-level error would otherwise include
// err.Error() in the response.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		log.Printf("ERROR [%d]: %s: %v", code, publicMsg, internalErr)
	}
	respondJSON(w, code, map[string]string{"error": publicMsg})
}

// safeErrorMessage maps common internal error patterns to public-safe
// messages. 400-level errors are about user input and usually safe to expose
// verbatim; 500-level errors get a generic message.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}

	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "query") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	case strings.Contains(errStr, "json") ||
		strings.Contains(errStr, "unmarshal") ||
		strings.Contains(errStr, "decode") ||
		strings.Contains(errStr, "parse"):
		return "Invalid request format"

	default:
		return "An internal error occurred"
	}
}
