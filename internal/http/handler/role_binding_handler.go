package handler

import (
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type RoleBindingHandler struct {
	bindings *service.RoleBindingService
	logger   *slog.Logger
}

func NewRoleBindingHandler(bindings *service.RoleBindingService, logger *slog.Logger) *RoleBindingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleBindingHandler{bindings: bindings, logger: logger}
}

type addRoleBindingRequest struct {
	UserPrincipalID string `json:"user_principal_id"`
	Role            string `json:"role"`
	ScopeID         string `json:"scope_id"`
}

func (h *RoleBindingHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addRoleBindingRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	out, err := h.bindings.Add(r.Context(), middleware.CallerFromContext(r.Context()), service.AddRoleBindingInput{
		UserPrincipalID: req.UserPrincipalID,
		Role:            req.Role,
		ScopeID:         req.ScopeID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *RoleBindingHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	q := r.URL.Query()
	out, err := h.bindings.List(r.Context(), middleware.CallerFromContext(r.Context()), service.ListRoleBindingsInput{
		UserPrincipalID: q.Get("user_principal_id"),
		Role:            q.Get("role"),
		State:           q.Get("state"),
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Page(w, r, out)
}

func (h *RoleBindingHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	bindingID := chi.URLParam(r, "binding_id")
	if err := h.bindings.Revoke(r.Context(), middleware.CallerFromContext(r.Context()), bindingID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"binding_id": bindingID, "revoked": true})
}
