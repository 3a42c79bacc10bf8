package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"

	"github.com/google/uuid"
)

type QRInitInput struct {
	RequiredRole string
	AutoBind     bool
}

type QRInitResult struct {
	SessionID      string    `json:"session_id"`
	EncodedPayload string    `json:"encoded_payload"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type QRStatusResult struct {
	SessionID string                 `json:"session_id"`
	Status    domain.QRSessionStatus `json:"status"`
	ExpiresAt time.Time              `json:"expires_at"`
	Ticket    string                 `json:"ticket,omitempty"`
	UserInfo  *domain.UserInfo       `json:"user_info,omitempty"`
}

// QRBroker creates console login sessions and answers status polls.
type QRBroker struct {
	store  repository.Store
	codec  *security.PayloadCodec
	ttl    time.Duration
	now    Clock
	audit  *Auditor
	logger *slog.Logger
}

func NewQRBroker(store repository.Store, codec *security.PayloadCodec, ttl time.Duration, now Clock, audit *Auditor, logger *slog.Logger) *QRBroker {
	if now == nil {
		now = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QRBroker{store: store, codec: codec, ttl: ttl, now: now, audit: audit, logger: logger}
}

// Init opens a pending session. initiator is nil for anonymous consoles.
func (b *QRBroker) Init(ctx context.Context, initiator *Caller, in QRInitInput) (*QRInitResult, error) {
	role := domain.NormalizeRole(in.RequiredRole)
	if role == "" {
		return nil, validationError("required_role is required")
	}
	if !domain.IsKnownRole(role) {
		return nil, ErrInvalidRole
	}

	var actor string
	if initiator != nil {
		actor = strings.TrimSpace(initiator.PrincipalID)
	}
	// Auto-binding grants a role on the initiator's authority.
	if in.AutoBind && actor == "" {
		observability.RecordQRSessionEvent(ctx, "init", string(CodeForbidden))
		return nil, WrapError(CodeForbidden, "auto_bind requires an authenticated initiator", nil)
	}

	now := b.now()
	id := uuid.NewString()
	session := &domain.QRSession{
		ID:             id,
		Status:         domain.QRSessionPending,
		EncodedPayload: b.codec.Encode(id),
		RequiredRole:   role,
		AutoBind:       in.AutoBind,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(b.ttl),
	}
	if actor != "" {
		session.CreatedBy = &actor
	}
	if err := b.store.QRSessions().Create(ctx, session); err != nil {
		observability.RecordQRSessionEvent(ctx, "init", "error")
		return nil, transient("create qr session", err)
	}

	observability.RecordQRSessionEvent(ctx, "init", "success")
	b.audit.Emit(ctx, observability.AuditEvent{
		Event:      "qr.session.created",
		ActorID:    actor,
		TargetType: "qr_session",
		TargetID:   id,
		Outcome:    "success",
		Attributes: map[string]string{"required_role": role, "auto_bind": strconv.FormatBool(in.AutoBind)},
	})
	return &QRInitResult{SessionID: id, EncodedPayload: session.EncodedPayload, ExpiresAt: session.ExpiresAt}, nil
}

// Status is a read that reconciles expiry first. The ticket and identity are
// only returned while the session is approved.
func (b *QRBroker) Status(ctx context.Context, sessionID string) (*QRStatusResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	session, err := reconcileSession(ctx, b.store, sessionID, b.now())
	if err != nil {
		return nil, err
	}

	out := &QRStatusResult{SessionID: session.ID, Status: session.Status, ExpiresAt: session.ExpiresAt}
	if session.Status == domain.QRSessionApproved {
		if session.ResultTicket != nil {
			out.Ticket = *session.ResultTicket
		}
		if session.ResultUser != nil {
			var info domain.UserInfo
			if err := json.Unmarshal([]byte(*session.ResultUser), &info); err != nil {
				b.logger.ErrorContext(ctx, "decode approved user info", "session_id", session.ID, "error", err)
				return nil, WrapError(CodeInternal, "decode approved user info", err)
			}
			out.UserInfo = &info
		}
	}
	observability.RecordQRSessionEvent(ctx, "status", string(session.Status))
	return out, nil
}

// reconcileSession loads a session and, when a pending session is past its
// deadline, flips it to expired with a conditional update before returning.
func reconcileSession(ctx context.Context, store repository.Store, sessionID string, now time.Time) (*domain.QRSession, error) {
	session, err := store.QRSessions().FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrQRSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, transient("load qr session", err)
	}
	if session.Status != domain.QRSessionPending || !session.ExpiredAt(now) {
		return session, nil
	}
	swapped, err := store.QRSessions().ExpireIfDue(ctx, sessionID, now)
	if err != nil {
		return nil, transient("expire qr session", err)
	}
	if swapped {
		observability.RecordQRSessionEvent(ctx, "expire", "success")
		session.Status = domain.QRSessionExpired
		session.ApproveNonce = nil
		return session, nil
	}
	// Another reader won the flip.
	session, err = store.QRSessions().FindByID(ctx, sessionID)
	if err != nil {
		return nil, transient("reload qr session", err)
	}
	return session, nil
}
