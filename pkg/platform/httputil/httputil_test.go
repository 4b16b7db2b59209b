package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "shareledger/pkg/domain-errors"
)

type retryErr struct{ seconds int }

func (e retryErr) Error() string          { return "rate limited" }
func (e retryErr) RetryAfterSeconds() int { return e.seconds }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		body := decodeBody(t, w)
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		body := decodeBody(t, w)
		if body["error"] != "bad_request" {
			t.Fatalf("expected error code bad_request, got %q", body["error"])
		}
		if body["error_description"] != "invalid input" {
			t.Fatalf("expected error_description to be returned for bad request")
		}
	})

	t.Run("unauthorized uses generic description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "account locked"))

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
		body := decodeBody(t, w)
		if body["error_description"] != "invalid credentials" {
			t.Fatalf("expected generic description, got %q", body["error_description"])
		}
	})

	t.Run("retry hint sets header", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(retryErr{seconds: 42}, dErrors.CodeRateLimited, "too many requests"))

		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, w.Code)
		}
		if got := w.Header().Get("Retry-After"); got != "42" {
			t.Fatalf("expected Retry-After 42, got %q", got)
		}
		body := decodeBody(t, w)
		if body["retry_after"] != float64(42) {
			t.Fatalf("expected retry_after 42, got %v", body["retry_after"])
		}
	})
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=20"`
}

func (r *renameRequest) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func (r *renameRequest) Validate() error {
	if r.Name == "admin" {
		return dErrors.New(dErrors.CodeValidation, "name is reserved")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{"valid and trimmed", `{"name":"  alice  "}`, true, http.StatusOK},
		{"unknown field", `{"name":"alice","extra":1}`, false, http.StatusBadRequest},
		{"malformed json", `{"name":`, false, http.StatusBadRequest},
		{"blank after normalize", `{"name":"   "}`, false, http.StatusBadRequest},
		{"custom rule", `{"name":"admin"}`, false, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			req, ok := DecodeAndPrepare[renameRequest](w, r, slog.Default(), context.Background(), "req-1")
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if !ok {
				if w.Code != tt.wantStatus {
					t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
				}
				return
			}
			if req.Name != "alice" {
				t.Fatalf("expected normalized name alice, got %q", req.Name)
			}
		})
	}
}

func TestQueryPage(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 50, false},
		{"?limit=10&offset=5", 10, false},
		{"?limit=-1", 0, true},
		{"?offset=abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			page, err := QueryPage(r)
			if tt.wantErr {
				if !dErrors.HasCode(err, dErrors.CodeValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if page.Limit != tt.want {
				t.Fatalf("expected limit %d, got %d", tt.want, page.Limit)
			}
		})
	}
}
