package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
)

func TestPageWritesTotalAndEmptyItems(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/invites", nil)
	req.Header.Set("X-Request-Id", "req-list")
	rr := httptest.NewRecorder()

	Page(rr, req, repository.PageResult[string]{Page: 3, PageSize: 20, Total: 41, TotalPages: 3})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get(TotalCountHeader); got != "41" {
		t.Fatalf("expected total count header 41, got %q", got)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Items []string `json:"items"`
			Total int64    `json:"total"`
		} `json:"data"`
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Items == nil || len(body.Data.Items) != 0 || body.Data.Total != 41 {
		t.Fatalf("unexpected page body: %s", rr.Body.String())
	}
	if body.Meta.RequestID != "req-list" {
		t.Fatalf("expected request id from header, got %q", body.Meta.RequestID)
	}
}

func TestEnvelopeIsNeverCached(t *testing.T) {
	cases := []struct {
		name  string
		write func(http.ResponseWriter, *http.Request)
	}{
		{name: "json", write: func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"ticket": "t"})
		}},
		{name: "error", write: func(w http.ResponseWriter, r *http.Request) {
			Error(w, r, http.StatusForbidden, "FORBIDDEN", "forbidden", nil)
		}},
		{name: "page", write: func(w http.ResponseWriter, r *http.Request) {
			Page(w, r, repository.PageResult[int]{Items: []int{1}, Total: 1})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.write(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			if got := rr.Header().Get("Cache-Control"); got != "no-store" {
				t.Fatalf("expected no-store, got %q", got)
			}
			if got := rr.Header().Get("Content-Type"); got != "application/json" {
				t.Fatalf("expected json content type, got %q", got)
			}
		})
	}
}

func TestErrorFallsBackToUnknownRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", nil)
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
		Meta struct {
			RequestID string `json:"request_id"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "SESSION_NOT_FOUND" || body.Meta.RequestID != "req-unknown" {
		t.Fatalf("unexpected error body: %s", rr.Body.String())
	}
}
