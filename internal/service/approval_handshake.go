package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
)

type SessionSummary struct {
	RequiredRole string    `json:"required_role"`
	AutoBind     bool      `json:"auto_bind"`
	CreatedBy    string    `json:"created_by,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ParseResult struct {
	SessionID      string         `json:"session_id"`
	SessionSummary SessionSummary `json:"session_summary"`
	ApproveNonce   string         `json:"approve_nonce"`
}

// ApproveInput is the companion device's identity choice.
type ApproveInput struct {
	SessionID    string
	ApproveNonce string
	SelectedRole string
	DisplayName  string
}

type SessionInfo struct {
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
}

type ApproveResult struct {
	Ticket      string          `json:"ticket"`
	UserInfo    domain.UserInfo `json:"user_info"`
	SessionInfo SessionInfo     `json:"session_info"`
}

var errApproveLost = errors.New("approve compare-and-swap lost")

// ApprovalHandshake turns a scanned payload into a one-time nonce and
// validates the companion device's approval against it.
type ApprovalHandshake struct {
	store    repository.Store
	codec    *security.PayloadCodec
	rbac     *RoleResolver
	issuer   *TicketIssuer
	now      Clock
	audit    *Auditor
	newNonce func() (string, error)
}

func NewApprovalHandshake(store repository.Store, codec *security.PayloadCodec, rbac *RoleResolver, issuer *TicketIssuer, now Clock, audit *Auditor) *ApprovalHandshake {
	if now == nil {
		now = SystemClock
	}
	return &ApprovalHandshake{
		store:    store,
		codec:    codec,
		rbac:     rbac,
		issuer:   issuer,
		now:      now,
		audit:    audit,
		newNonce: security.NewApproveNonce,
	}
}

// Parse validates the payload tag and hands out the session's approval
// nonce, issuing it on the first scan. Repeated scans get the same nonce.
func (h *ApprovalHandshake) Parse(ctx context.Context, caller Caller, payload string) (*ParseResult, error) {
	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	if _, err := h.rbac.Require(ctx, caller.PrincipalID, ActionApproveSession, AuthzContext{}); err != nil {
		return nil, err
	}
	sessionID, err := h.codec.Decode(payload)
	if err != nil {
		observability.RecordQRSessionEvent(ctx, "parse", "invalid_payload")
		return nil, ErrInvalidQRCode
	}

	now := h.now()
	session, err := h.parseableSession(ctx, sessionID, now)
	if err != nil {
		observability.RecordQRSessionEvent(ctx, "parse", string(CodeOf(err)))
		return nil, err
	}
	if session.ApproveNonce == nil {
		nonce, err := h.newNonce()
		if err != nil {
			return nil, WrapError(CodeInternal, "generate approve nonce", err)
		}
		assigned, err := h.store.QRSessions().AssignNonce(ctx, sessionID, nonce, now)
		if err != nil {
			return nil, transient("assign approve nonce", err)
		}
		if assigned {
			session.ApproveNonce = &nonce
		} else {
			// A concurrent scan assigned first, or the session moved on.
			if session, err = h.parseableSession(ctx, sessionID, now); err != nil {
				return nil, err
			}
			if session.ApproveNonce == nil {
				return nil, ErrInvalidQRCode
			}
		}
	}

	observability.RecordQRSessionEvent(ctx, "parse", "success")
	summary := SessionSummary{
		RequiredRole: session.RequiredRole,
		AutoBind:     session.AutoBind,
		ExpiresAt:    session.ExpiresAt,
	}
	if session.CreatedBy != nil {
		summary.CreatedBy = *session.CreatedBy
	}
	return &ParseResult{SessionID: session.ID, SessionSummary: summary, ApproveNonce: *session.ApproveNonce}, nil
}

func (h *ApprovalHandshake) parseableSession(ctx context.Context, sessionID string, now time.Time) (*domain.QRSession, error) {
	session, err := reconcileSession(ctx, h.store, sessionID, now)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidQRCode
		}
		return nil, err
	}
	switch session.Status {
	case domain.QRSessionPending:
		return session, nil
	case domain.QRSessionExpired:
		return nil, ErrSessionExpired
	default:
		return nil, WrapError(CodeInvalidQRCode, "session already resolved", nil)
	}
}

// Approve checks, in order, that the session exists, has not expired, that
// the nonce matches and that it is still pending. It then commits the
// approval with a single compare-and-swap on (status, nonce) together with
// the ticket record and, for auto-bind sessions, the role binding.
func (h *ApprovalHandshake) Approve(ctx context.Context, caller Caller, in ApproveInput) (*ApproveResult, error) {
	ctx, span := observability.StartSpan(ctx, "qr.approve")
	defer span.End()

	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.ApproveNonce = strings.TrimSpace(in.ApproveNonce)
	if in.SessionID == "" || in.ApproveNonce == "" {
		return nil, validationError("session_id and approve_nonce are required")
	}
	if _, err := h.rbac.Require(ctx, caller.PrincipalID, ActionApproveSession, AuthzContext{}); err != nil {
		return nil, err
	}

	now := h.now()
	session, err := h.store.QRSessions().FindByID(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrQRSessionNotFound) {
			return nil, h.rejectApprove(ctx, ErrSessionNotFound)
		}
		return nil, transient("load qr session", err)
	}
	if session.Status == domain.QRSessionExpired || session.ExpiredAt(now) {
		if session.Status == domain.QRSessionPending {
			if _, err := h.store.QRSessions().ExpireIfDue(ctx, session.ID, now); err != nil {
				return nil, transient("expire qr session", err)
			}
		}
		return nil, h.rejectApprove(ctx, ErrSessionExpired)
	}
	if !nonceMatches(session.ApproveNonce, in.ApproveNonce) || session.Status != domain.QRSessionPending {
		return nil, h.rejectApprove(ctx, ErrInvalidApproveNonce)
	}

	selected := domain.NormalizeRole(in.SelectedRole)
	if selected == "" {
		selected = session.RequiredRole
	}
	if !domain.IsKnownRole(selected) || selected != session.RequiredRole {
		return nil, h.rejectApprove(ctx, WrapError(CodeInvalidRole, "selected role must match the session's required role", nil))
	}

	roles, err := h.rbac.ResolveRoles(ctx, caller.PrincipalID)
	if err != nil {
		return nil, err
	}
	bind := false
	if !slices.Contains(roles, selected) {
		if !session.AutoBind {
			return nil, h.rejectApprove(ctx, ErrForbidden)
		}
		creator := ""
		if session.CreatedBy != nil {
			creator = *session.CreatedBy
		}
		if _, err := h.rbac.Require(ctx, creator, ActionAutoBindRole, AuthzContext{Role: selected}); err != nil {
			return nil, h.rejectApprove(ctx, err)
		}
		bind = true
		roles = append(slices.Clone(roles), selected)
		slices.Sort(roles)
	}

	user := domain.UserInfo{
		PrincipalID:  caller.PrincipalID,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		SelectedRole: selected,
		Roles:        roles,
	}
	issued, err := h.issuer.Mint(session.ID, user)
	if err != nil {
		return nil, err
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return nil, WrapError(CodeInternal, "encode user info", err)
	}

	err = h.store.Transaction(ctx, func(tx repository.Store) error {
		swapped, err := tx.QRSessions().Approve(ctx, session.ID, in.ApproveNonce, now, repository.ApprovalResult{
			Ticket:     issued.LoginTicket,
			UserJSON:   string(userJSON),
			ApprovedBy: caller.PrincipalID,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return errApproveLost
		}
		if err := h.issuer.Record(ctx, tx, issued); err != nil {
			return err
		}
		if err := tx.Users().EnsureExists(ctx, caller.PrincipalID, user.DisplayName, now); err != nil {
			return err
		}
		if bind {
			createdBy := caller.PrincipalID
			if session.CreatedBy != nil {
				createdBy = *session.CreatedBy
			}
			_, _, err := tx.RoleBindings().Ensure(ctx, &domain.RoleBinding{
				UserPrincipalID: caller.PrincipalID,
				Role:            selected,
				CreatedBy:       createdBy,
			}, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errApproveLost) {
		return nil, h.rejectApprove(ctx, h.classifyLostApprove(ctx, session.ID))
	}
	if err != nil {
		observability.RecordQRSessionEvent(ctx, "approve", "error")
		return nil, transient("approve qr session", err)
	}

	if bind {
		h.rbac.InvalidatePrincipal(ctx, caller.PrincipalID)
		observability.RecordRoleBindingMutation(ctx, "ensure", "qr_auto_bind")
	}
	observability.RecordQRSessionEvent(ctx, "approve", "success")
	h.audit.Emit(ctx, observability.AuditEvent{
		Event:      "qr.session.approved",
		ActorID:    caller.PrincipalID,
		TargetType: "qr_session",
		TargetID:   session.ID,
		Outcome:    "success",
		Attributes: map[string]string{"selected_role": selected, "auto_bound": strconv.FormatBool(bind)},
	})
	return &ApproveResult{
		Ticket:      issued.LoginTicket,
		UserInfo:    user,
		SessionInfo: SessionInfo{ExpiresAt: issued.ExpiresAt, RefreshToken: issued.RefreshToken},
	}, nil
}

// classifyLostApprove explains why the approving update matched no row.
func (h *ApprovalHandshake) classifyLostApprove(ctx context.Context, sessionID string) error {
	session, err := h.store.QRSessions().FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrQRSessionNotFound) {
			return ErrSessionNotFound
		}
		return transient("reload qr session", err)
	}
	if session.Status == domain.QRSessionExpired || (session.Status == domain.QRSessionPending && session.ExpiredAt(h.now())) {
		return ErrSessionExpired
	}
	return ErrInvalidApproveNonce
}

func (h *ApprovalHandshake) rejectApprove(ctx context.Context, err error) error {
	observability.RecordQRSessionEvent(ctx, "approve", string(CodeOf(err)))
	return err
}

func nonceMatches(stored *string, presented string) bool {
	if stored == nil || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}
