// Package httputil centralises JSON responses and domain error translation.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/validation"
)

const maxBodyBytes = 1 << 20

// Normalizable requests trim and canonicalise their fields before validation.
type Normalizable interface {
	Normalize()
}

// Validatable requests check rules that struct tags cannot express.
type Validatable interface {
	Validate() error
}

// RetryAfterError is implemented by errors that carry a retry hint.
type RetryAfterError interface {
	RetryAfterSeconds() int
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeInvalidRequest, "invalid request body")
	}
	return nil
}

// DecodeAndPrepare decodes a JSON body into T, then normalizes and validates
// it. On failure it writes the error response and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req T
	if err := DecodeJSON(r, &req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "request_id", requestID)
		WriteError(w, err)
		return nil, false
	}
	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if err := validation.Struct(&req); err != nil {
		WriteError(w, err)
		return nil, false
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}

// WriteError maps a domain error to a status and JSON envelope. Internal
// errors never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	var rae RetryAfterError
	if errors.As(err, &rae) {
		w.Header().Set("Retry-After", strconv.Itoa(rae.RetryAfterSeconds()))
	}

	body := map[string]any{"error": string(code)}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
	case dErrors.CodeUnauthorized:
		body["error_description"] = "invalid credentials"
	case dErrors.CodeForbidden:
		body["error_description"] = "access denied"
	default:
		body["error_description"] = dErrors.Message(err)
	}
	if rae != nil {
		body["retry_after"] = rae.RetryAfterSeconds()
	}
	WriteJSON(w, status, body)
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvalidRequest, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
