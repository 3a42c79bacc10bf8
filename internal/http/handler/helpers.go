package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"
)

// readJSON decodes a JSON body, rejecting unknown fields. An empty body is
// treated as an empty object.
func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	response.Error(w, r, http.StatusBadRequest, string(service.CodeValidation), message, nil)
}

// writeError maps a service error onto the envelope and an HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var domainErr *service.Error
	if !errors.As(err, &domainErr) {
		logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		response.Error(w, r, http.StatusInternalServerError, string(service.CodeInternal), "internal error", nil)
		return
	}
	status := StatusFor(domainErr.Code)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "service error", "code", domainErr.Code, "error", err)
	}
	message := domainErr.Message
	if domainErr.Code == service.CodeInternal {
		message = "internal error"
	}
	response.Error(w, r, status, string(domainErr.Code), message, nil)
}

// StatusFor returns the HTTP status reported for a domain error code.
func StatusFor(code service.Code) int {
	switch code {
	case service.CodeUnauthorized:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeSessionNotFound, service.CodeInviteNotFound, service.CodeRoleBindingNotFound:
		return http.StatusNotFound
	case service.CodeSessionExpired, service.CodeInviteExpired:
		return http.StatusGone
	case service.CodeTransient:
		return http.StatusServiceUnavailable
	}
	switch code.Kind() {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
