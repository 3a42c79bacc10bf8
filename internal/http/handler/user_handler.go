package handler

import (
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"
)

type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	out, err := h.users.GetCurrentUser(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}
