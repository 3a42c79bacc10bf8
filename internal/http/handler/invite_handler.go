package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type InviteHandler struct {
	invites *service.InviteRegistry
	logger  *slog.Logger
}

func NewInviteHandler(invites *service.InviteRegistry, logger *slog.Logger) *InviteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteHandler{invites: invites, logger: logger}
}

type createInviteRequest struct {
	Role      string     `json:"role"`
	Uses      *int       `json:"uses"`
	ExpiresAt *time.Time `json:"expires_at"`
	Note      string     `json:"note"`
	ScopeID   string     `json:"scope_id"`
}

func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	uses := 1
	if req.Uses != nil {
		uses = *req.Uses
	}
	out, err := h.invites.Create(r.Context(), middleware.CallerFromContext(r.Context()), service.CreateInviteInput{
		Role:      req.Role,
		Uses:      uses,
		ExpiresAt: req.ExpiresAt,
		Note:      req.Note,
		ScopeID:   req.ScopeID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, out)
}

func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
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
	out, err := h.invites.List(r.Context(), middleware.CallerFromContext(r.Context()), service.ListInvitesInput{
		State:    q.Get("state"),
		Role:     q.Get("role"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Page(w, r, out)
}

func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	inviteID := chi.URLParam(r, "invite_id")
	if err := h.invites.Revoke(r.Context(), middleware.CallerFromContext(r.Context()), inviteID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"invite_id": inviteID, "revoked": true})
}

type redeemInviteRequest struct {
	Code string `json:"code"`
}

func (h *InviteHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemInviteRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	out, err := h.invites.Redeem(r.Context(), middleware.CallerFromContext(r.Context()), req.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *InviteHandler) Image(w http.ResponseWriter, r *http.Request) {
	out, err := h.invites.ShareableImage(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "invite_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}
