// Package httpx writes JSON bodies and RFC 7807 problem documents and decodes
// request bodies into the shared validation error shape.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/odyssey-erp/productmanager/internal/shared"
)

const maxBodyBytes = 1 << 20

// ProblemDetail is the error body returned by every endpoint. The access fields are
// filled by the gate when it refuses a request.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`

	Errors             map[string]string `json:"errors,omitempty"`
	RequiredPermission string            `json:"requiredPermission,omitempty"`
	RequiredRole       string            `json:"requiredRole,omitempty"`
	CurrentRole        string            `json:"currentRole,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes a problem document with no machine-readable code.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{Title: title, Status: status, Detail: detail})
}

// DecodeJSON reads exactly one JSON object into target. Every decoding failure comes
// back as a *shared.ValidationError keyed by the offending field, or "body" when no
// field applies.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return shared.NewValidationError("body", "must contain a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return shared.NewValidationError("body", "is required")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return shared.NewValidationError("body", "malformed JSON: unexpected end of input")
	case errors.As(err, &syntaxErr):
		return shared.NewValidationError("body", fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return shared.NewValidationError(typeErr.Field, "must be "+jsonKind(typeErr.Type.Kind().String()))
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return shared.NewValidationError(strings.Trim(field, `"`), "is not allowed")
	}
	return shared.NewValidationError("body", "malformed JSON: "+err.Error())
}

func jsonKind(goKind string) string {
	switch goKind {
	case "string":
		return "a string"
	case "bool":
		return "a boolean"
	case "slice", "array":
		return "an array"
	case "struct", "map":
		return "an object"
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return "an integer"
	case "float32", "float64":
		return "a number"
	default:
		return "a " + goKind
	}
}
