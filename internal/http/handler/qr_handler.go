package handler

import (
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	broker    *service.QRBroker
	handshake *service.ApprovalHandshake
	issuer    *service.TicketIssuer
	logger    *slog.Logger
}

func NewQRHandler(broker *service.QRBroker, handshake *service.ApprovalHandshake, issuer *service.TicketIssuer, logger *slog.Logger) *QRHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QRHandler{broker: broker, handshake: handshake, issuer: issuer, logger: logger}
}

type qrInitRequest struct {
	RequiredRole string `json:"required_role"`
	AutoBind     bool   `json:"auto_bind"`
}

func (h *QRHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req qrInitRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	var initiator *service.Caller
	if caller := middleware.CallerFromContext(r.Context()); caller.PrincipalID != "" {
		initiator = &caller
	}
	out, err := h.broker.Init(r.Context(), initiator, service.QRInitInput{RequiredRole: req.RequiredRole, AutoBind: req.AutoBind})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, out)
}

func (h *QRHandler) Status(w http.ResponseWriter, r *http.Request) {
	out, err := h.broker.Status(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

type qrParseRequest struct {
	EncodedPayload string `json:"encoded_payload"`
}

func (h *QRHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req qrParseRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	out, err := h.handshake.Parse(r.Context(), middleware.CallerFromContext(r.Context()), req.EncodedPayload)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

type qrApproveRequest struct {
	SessionID    string `json:"session_id"`
	ApproveNonce string `json:"approve_nonce"`
	SelectedRole string `json:"selected_role"`
	DisplayName  string `json:"display_name"`
}

func (h *QRHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req qrApproveRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	out, err := h.handshake.Approve(r.Context(), middleware.CallerFromContext(r.Context()), service.ApproveInput{
		SessionID:    req.SessionID,
		ApproveNonce: req.ApproveNonce,
		SelectedRole: req.SelectedRole,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

type qrConsumeRequest struct {
	Ticket string `json:"ticket"`
}

func (h *QRHandler) Consume(w http.ResponseWriter, r *http.Request) {
	var req qrConsumeRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w, r, "invalid request body")
		return
	}
	out, err := h.issuer.Consume(r.Context(), req.Ticket)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}
