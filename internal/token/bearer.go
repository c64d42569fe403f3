package token

import (
	"net/http"
	"strings"
)

// FromRequest extracts a bearer token from the Authorization header.
func FromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
