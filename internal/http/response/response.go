package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
)

// TotalCountHeader carries the unpaged row count of a list response.
const TotalCountHeader = "X-Total-Count"

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, envelope{Success: true, Data: data})
}

// Page writes a list result; the page itself stays in data.
func Page[T any](w http.ResponseWriter, r *http.Request, page repository.PageResult[T]) {
	if page.Items == nil {
		page.Items = []T{}
	}
	w.Header().Set(TotalCountHeader, strconv.FormatInt(page.Total, 10))
	write(w, r, http.StatusOK, envelope{Success: true, Data: page})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, r, status, envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}})
}

// Responses carry login tickets and tokens, so nothing is cacheable.
func write(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	body.Meta = buildMeta(r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func buildMeta(r *http.Request) meta {
	id := observability.RequestIDFromContext(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
