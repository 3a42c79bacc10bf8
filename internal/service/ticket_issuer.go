package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
)

// IssuedTicket is the credential pair minted for an approved session.
type IssuedTicket struct {
	LoginTicket  string    `json:"login_ticket"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`

	ticketID    string
	sessionID   string
	principalID string
}

// ConsumedTicket is the identity a login ticket resolves to once exchanged.
type ConsumedTicket struct {
	SessionID    string   `json:"session_id"`
	PrincipalID  string   `json:"principal_id"`
	SelectedRole string   `json:"selected_role"`
	Roles        []string `json:"roles"`
}

type TicketIssuer struct {
	jwtMgr     *security.JWTManager
	store      repository.Store
	pepper     []byte
	ticketTTL  time.Duration
	refreshTTL time.Duration
	now        Clock
	audit      *Auditor
}

func NewTicketIssuer(jwtMgr *security.JWTManager, store repository.Store, pepper []byte, ticketTTL, refreshTTL time.Duration, now Clock, audit *Auditor) *TicketIssuer {
	if now == nil {
		now = SystemClock
	}
	return &TicketIssuer{
		jwtMgr:     jwtMgr,
		store:      store,
		pepper:     pepper,
		ticketTTL:  ticketTTL,
		refreshTTL: refreshTTL,
		now:        now,
		audit:      audit,
	}
}

// Issue mints a ticket for sessionID and records it.
func (s *TicketIssuer) Issue(ctx context.Context, sessionID string, user domain.UserInfo) (*IssuedTicket, error) {
	issued, err := s.Mint(sessionID, user)
	if err != nil {
		return nil, err
	}
	if err := s.Record(ctx, s.store, issued); err != nil {
		return nil, err
	}
	return issued, nil
}

// Mint signs the login ticket and refresh token without touching the store.
func (s *TicketIssuer) Mint(sessionID string, user domain.UserInfo) (*IssuedTicket, error) {
	ticket, ticketClaims, err := s.jwtMgr.SignLoginTicket(user.PrincipalID, sessionID, user.SelectedRole, user.Roles, s.ticketTTL)
	if err != nil {
		return nil, WrapError(CodeInternal, "sign login ticket", err)
	}
	refresh, _, err := s.jwtMgr.SignRefreshToken(user.PrincipalID, sessionID, s.refreshTTL)
	if err != nil {
		return nil, WrapError(CodeInternal, "sign refresh token", err)
	}
	return &IssuedTicket{
		LoginTicket:  ticket,
		RefreshToken: refresh,
		ExpiresAt:    ticketClaims.ExpiresAt.Time.UTC(),
		ticketID:     ticketClaims.ID,
		sessionID:    sessionID,
		principalID:  user.PrincipalID,
	}, nil
}

// Record persists the hashes of a minted ticket through store, which may be
// bound to the caller's transaction.
func (s *TicketIssuer) Record(ctx context.Context, store repository.Store, issued *IssuedTicket) error {
	err := store.LoginTickets().Create(ctx, &domain.LoginTicket{
		ID:               issued.ticketID,
		SessionID:        issued.sessionID,
		PrincipalID:      issued.principalID,
		TicketHash:       security.HashToken(issued.LoginTicket, s.pepper),
		RefreshTokenHash: security.HashToken(issued.RefreshToken, s.pepper),
		ExpiresAt:        issued.ExpiresAt,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return transient("record login ticket", err)
	}
	return nil
}

var errTicketRejected = errors.New("ticket rejected")

// Consume exchanges a login ticket exactly once. The ticket record and its
// session move to consumed in one transaction.
func (s *TicketIssuer) Consume(ctx context.Context, ticket string) (*ConsumedTicket, error) {
	claims, err := s.jwtMgr.ParseLoginTicket(ticket)
	if err != nil {
		observability.RecordQRSessionEvent(ctx, "consume", "invalid_ticket")
		return nil, ErrInvalidTicket
	}
	now := s.now()
	hash := security.HashToken(ticket, s.pepper)

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		rec, err := tx.LoginTickets().FindBySessionID(ctx, claims.SessionID)
		if err != nil {
			if errors.Is(err, repository.ErrLoginTicketNotFound) {
				return errTicketRejected
			}
			return err
		}
		if rec.ID != claims.ID || !hmac.Equal([]byte(rec.TicketHash), []byte(hash)) {
			return errTicketRejected
		}
		ok, err := tx.LoginTickets().Consume(ctx, rec.ID, hash, now)
		if err != nil {
			return err
		}
		if !ok {
			return errTicketRejected
		}
		ok, err = tx.QRSessions().MarkConsumed(ctx, claims.SessionID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errTicketRejected
		}
		return nil
	})
	if errors.Is(err, errTicketRejected) {
		observability.RecordQRSessionEvent(ctx, "consume", "invalid_ticket")
		return nil, ErrInvalidTicket
	}
	if err != nil {
		observability.RecordQRSessionEvent(ctx, "consume", "error")
		return nil, transient("consume login ticket", err)
	}

	observability.RecordQRSessionEvent(ctx, "consume", "success")
	s.audit.Emit(ctx, observability.AuditEvent{
		Event:      "qr.ticket.consumed",
		ActorID:    claims.Subject,
		TargetType: "qr_session",
		TargetID:   claims.SessionID,
		Outcome:    "success",
	})
	return &ConsumedTicket{
		SessionID:    claims.SessionID,
		PrincipalID:  claims.Subject,
		SelectedRole: claims.SelectedRole,
		Roles:        claims.Roles,
	}, nil
}
