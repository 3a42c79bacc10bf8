package service

import (
	"context"
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

const maxInviteNoteLength = 512

type InviteRegistryConfig struct {
	ShareBase         string
	MaxCodeAttempts   int
	NegativeLookupTTL time.Duration
}

type CreateInviteInput struct {
	Role      string
	Uses      int
	ExpiresAt *time.Time
	Note      string
	ScopeID   string
}

type CreateInviteResult struct {
	InviteID  string     `json:"invite_id"`
	Code      string     `json:"code"`
	SharePath string     `json:"share_path"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ListInvitesInput struct {
	State    string
	Role     string
	Page     int
	PageSize int
}

type RedeemResult struct {
	InviteID  string `json:"invite_id"`
	Role      string `json:"role"`
	ScopeID   string `json:"scope_id"`
	BindingID string `json:"binding_id"`
}

var errInviteUnavailable = errors.New("invite unavailable")

// InviteRegistry manages invite codes that grant a role when redeemed.
type InviteRegistry struct {
	store    repository.Store
	rbac     *RoleResolver
	negCache NegativeLookupCacheStore
	renderer ImageRenderer
	cfg      InviteRegistryConfig
	now      Clock
	audit    *Auditor
	logger   *slog.Logger
	newCode  func() (string, error)
}

func NewInviteRegistry(store repository.Store, rbac *RoleResolver, negCache NegativeLookupCacheStore, renderer ImageRenderer, cfg InviteRegistryConfig, now Clock, audit *Auditor, logger *slog.Logger) *InviteRegistry {
	if cfg.MaxCodeAttempts <= 0 {
		cfg.MaxCodeAttempts = 5
	}
	if cfg.ShareBase == "" {
		cfg.ShareBase = "/join"
	}
	if negCache == nil {
		negCache = NewNoopNegativeLookupCacheStore()
	}
	if renderer == nil {
		renderer = UnavailableImageRenderer{}
	}
	if now == nil {
		now = SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InviteRegistry{
		store:    store,
		rbac:     rbac,
		negCache: negCache,
		renderer: renderer,
		cfg:      cfg,
		now:      now,
		audit:    audit,
		logger:   logger,
		newCode:  security.NewInviteCode,
	}
}

func (r *InviteRegistry) Create(ctx context.Context, caller Caller, in CreateInviteInput) (*CreateInviteResult, error) {
	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	role := domain.NormalizeRole(in.Role)
	if role == "" {
		return nil, validationError("role is required")
	}
	if !domain.IsKnownRole(role) {
		return nil, ErrInvalidRole
	}
	if in.Uses < 1 {
		return nil, validationError("uses must be at least 1")
	}
	now := r.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, validationError("expires_at must be in the future")
	}
	note := strings.TrimSpace(in.Note)
	if len(note) > maxInviteNoteLength {
		return nil, validationError("note is too long")
	}
	if _, err := r.rbac.Require(ctx, caller.PrincipalID, ActionCreateInvite, AuthzContext{Role: role}); err != nil {
		observability.RecordInviteEvent(ctx, "create", string(CodeOf(err)))
		return nil, err
	}

	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		t := in.ExpiresAt.UTC()
		expiresAt = &t
	}
	inv := &domain.Invite{
		ID:        uuid.NewString(),
		Role:      role,
		ScopeID:   strings.TrimSpace(in.ScopeID),
		UsesTotal: in.Uses,
		UsesLeft:  in.Uses,
		ExpiresAt: expiresAt,
		State:     domain.InviteActive,
		Note:      note,
		CreatedBy: caller.PrincipalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.insertWithUniqueCode(ctx, inv); err != nil {
		observability.RecordInviteEvent(ctx, "create", "error")
		return nil, err
	}
	if err := r.negCache.InvalidateNamespace(ctx, NamespaceInviteCode); err != nil {
		r.logger.WarnContext(ctx, "invalidate invite negative cache", "error", err)
	}

	observability.RecordInviteEvent(ctx, "create", "success")
	r.audit.Emit(ctx, observability.AuditEvent{
		Event:      "invite.created",
		ActorID:    caller.PrincipalID,
		TargetType: "invite",
		TargetID:   inv.ID,
		Outcome:    "success",
		Attributes: map[string]string{"role": role, "uses": strconv.Itoa(in.Uses)},
	})
	return &CreateInviteResult{InviteID: inv.ID, Code: inv.Code, SharePath: inv.SharePath, ExpiresAt: inv.ExpiresAt}, nil
}

// insertWithUniqueCode draws codes until one is free. The unique index is
// the final arbiter when two creators draw the same code concurrently.
func (r *InviteRegistry) insertWithUniqueCode(ctx context.Context, inv *domain.Invite) error {
	for attempt := 0; attempt < r.cfg.MaxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return WrapError(CodeInternal, "generate invite code", err)
		}
		exists, err := r.store.Invites().CodeExists(ctx, code)
		if err != nil {
			return transient("check invite code", err)
		}
		if exists {
			continue
		}
		inv.Code = code
		inv.SharePath = buildSharePath(r.cfg.ShareBase, code)
		err = r.store.Invites().Create(ctx, inv)
		if errors.Is(err, repository.ErrDuplicateInviteCode) {
			continue
		}
		if err != nil {
			return transient("create invite", err)
		}
		return nil
	}
	return WrapError(CodeTransient, "could not allocate a unique invite code", nil)
}

func buildSharePath(base, code string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "code=" + code
}

// List returns invites visible to the caller, newest first. Invites past
// their deadline are reconciled to expired before the page is read.
func (r *InviteRegistry) List(ctx context.Context, caller Caller, in ListInvitesInput) (repository.PageResult[domain.Invite], error) {
	var empty repository.PageResult[domain.Invite]
	if err := caller.requireAuthenticated(); err != nil {
		return empty, err
	}
	query := repository.InviteListQuery{
		PageRequest: repository.PageRequest{Page: in.Page, PageSize: in.PageSize},
	}
	if s := strings.TrimSpace(in.State); s != "" {
		state, ok := domain.ParseInviteState(strings.ToLower(s))
		if !ok {
			return empty, validationError("unknown invite state")
		}
		query.State = state
	}
	if role := domain.NormalizeRole(in.Role); role != "" {
		if !domain.IsKnownRole(role) {
			return empty, ErrInvalidRole
		}
		query.Role = role
	}
	decision, err := r.rbac.Require(ctx, caller.PrincipalID, ActionListInvites, AuthzContext{})
	if err != nil {
		return empty, err
	}
	if decision.OwnOnly {
		query.CreatedBy = caller.PrincipalID
	}

	if n, err := r.store.Invites().ExpireDue(ctx, r.now()); err != nil {
		return empty, transient("expire invites", err)
	} else if n > 0 {
		observability.RecordInviteEvent(ctx, "expire", "success")
	}
	page, err := r.store.Invites().ListPaged(ctx, query)
	if err != nil {
		return empty, transient("list invites", err)
	}
	return page, nil
}

// Redeem takes one use of the invite and binds its role to the caller. The
// use is taken by a single conditional decrement; when it does not apply,
// the invite is read back to report why and nothing is changed.
func (r *InviteRegistry) Redeem(ctx context.Context, caller Caller, code string) (*RedeemResult, error) {
	ctx, span := observability.StartSpan(ctx, "invite.redeem")
	defer span.End()

	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !security.IsValidInviteCode(code) {
		return nil, validationError("invite code must be 8 uppercase letters or digits")
	}
	if hit, err := r.negCache.Get(ctx, NamespaceInviteCode, code); err != nil {
		r.logger.WarnContext(ctx, "invite negative cache read failed", "error", err)
	} else if hit {
		observability.RecordNegativeLookupCacheEvent(ctx, NamespaceInviteCode, "hit")
		return nil, r.rejectRedeem(ctx, ErrInviteNotFound)
	}

	now := r.now()
	var out RedeemResult
	err := r.store.Transaction(ctx, func(tx repository.Store) error {
		consumed, err := tx.Invites().ConsumeUse(ctx, code, now)
		if err != nil {
			return err
		}
		if !consumed {
			return errInviteUnavailable
		}
		inv, err := tx.Invites().FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if err := tx.Users().EnsureExists(ctx, caller.PrincipalID, "", now); err != nil {
			return err
		}
		binding, _, err := tx.RoleBindings().Ensure(ctx, &domain.RoleBinding{
			UserPrincipalID: caller.PrincipalID,
			Role:            inv.Role,
			ScopeID:         inv.ScopeID,
			CreatedBy:       inv.CreatedBy,
		}, now)
		if err != nil {
			return err
		}
		out = RedeemResult{InviteID: inv.ID, Role: inv.Role, ScopeID: inv.ScopeID, BindingID: binding.ID}
		return nil
	})
	if errors.Is(err, errInviteUnavailable) {
		return nil, r.rejectRedeem(ctx, r.classifyUnavailable(ctx, code, now))
	}
	if err != nil {
		observability.RecordInviteEvent(ctx, "redeem", "error")
		return nil, transient("redeem invite", err)
	}

	r.rbac.InvalidatePrincipal(ctx, caller.PrincipalID)
	observability.RecordRoleBindingMutation(ctx, "ensure", "invite")
	observability.RecordInviteEvent(ctx, "redeem", "success")
	r.audit.Emit(ctx, observability.AuditEvent{
		Event:      "invite.redeemed",
		ActorID:    caller.PrincipalID,
		TargetType: "invite",
		TargetID:   out.InviteID,
		Outcome:    "success",
		Attributes: map[string]string{"role": out.Role, "binding_id": out.BindingID},
	})
	return &out, nil
}

func (r *InviteRegistry) classifyUnavailable(ctx context.Context, code string, now time.Time) error {
	inv, err := r.store.Invites().FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrInviteNotFound) {
			observability.RecordNegativeLookupCacheEvent(ctx, NamespaceInviteCode, "miss")
			r.rememberMissingCode(ctx, code)
			return ErrInviteNotFound
		}
		return transient("load invite", err)
	}
	switch {
	case inv.State == domain.InviteRevoked:
		return ErrInviteRevoked
	case inv.State == domain.InviteExhausted || inv.UsesLeft <= 0:
		return ErrInviteExhausted
	case inv.State == domain.InviteExpired:
		return ErrInviteExpired
	case inv.ExpiredAt(now):
		if _, err := r.store.Invites().ExpireIfDue(ctx, inv.ID, now); err != nil {
			r.logger.WarnContext(ctx, "lazy invite expiry failed", "invite_id", inv.ID, "error", err)
		}
		return ErrInviteExpired
	default:
		// Lost a race with a concurrent redeem that took the last use.
		return ErrInviteExhausted
	}
}

// rememberMissingCode caches a miss, then checks the store again. A create
// that committed and cleared the namespace before the write landed would
// otherwise stay hidden behind the entry for the whole TTL.
func (r *InviteRegistry) rememberMissingCode(ctx context.Context, code string) {
	if err := r.negCache.Set(ctx, NamespaceInviteCode, code, r.cfg.NegativeLookupTTL); err != nil {
		r.logger.WarnContext(ctx, "invite negative cache write failed", "error", err)
		return
	}
	exists, err := r.store.Invites().CodeExists(ctx, code)
	if err == nil && !exists {
		return
	}
	if err := r.negCache.InvalidateNamespace(ctx, NamespaceInviteCode); err != nil {
		r.logger.WarnContext(ctx, "invalidate invite negative cache", "error", err)
	}
}

func (r *InviteRegistry) rejectRedeem(ctx context.Context, err error) error {
	observability.RecordInviteEvent(ctx, "redeem", string(CodeOf(err)))
	return err
}

// Revoke disables an invite regardless of remaining uses. Revoking an
// already revoked invite succeeds.
func (r *InviteRegistry) Revoke(ctx context.Context, caller Caller, inviteID string) error {
	if err := caller.requireAuthenticated(); err != nil {
		return err
	}
	inv, err := r.loadInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if _, err := r.rbac.Require(ctx, caller.PrincipalID, ActionRevokeInvite, AuthzContext{ResourceOwnerID: inv.CreatedBy}); err != nil {
		observability.RecordInviteEvent(ctx, "revoke", string(CodeOf(err)))
		return err
	}
	swapped, err := r.store.Invites().Revoke(ctx, inv.ID, r.now())
	if err != nil {
		return transient("revoke invite", err)
	}
	outcome := "success"
	if !swapped {
		outcome = "already_revoked"
	}
	observability.RecordInviteEvent(ctx, "revoke", outcome)
	r.audit.Emit(ctx, observability.AuditEvent{
		Event:      "invite.revoked",
		ActorID:    caller.PrincipalID,
		TargetType: "invite",
		TargetID:   inv.ID,
		Outcome:    outcome,
	})
	return nil
}

// ShareableImage asks the image renderer for a scannable image of the
// invite's share path.
func (r *InviteRegistry) ShareableImage(ctx context.Context, caller Caller, inviteID string) (*ImageRef, error) {
	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	inv, err := r.loadInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	decision, err := r.rbac.Require(ctx, caller.PrincipalID, ActionListInvites, AuthzContext{})
	if err != nil {
		return nil, err
	}
	if decision.OwnOnly && inv.CreatedBy != caller.PrincipalID {
		return nil, ErrForbidden
	}
	ref, err := r.renderer.Render(ctx, inv.SharePath)
	if err != nil {
		r.logger.WarnContext(ctx, "invite image render failed", "invite_id", inv.ID, "error", err)
		return nil, WrapError(CodeTransient, "image renderer unavailable", err)
	}
	return ref, nil
}

func (r *InviteRegistry) loadInvite(ctx context.Context, inviteID string) (*domain.Invite, error) {
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return nil, validationError("invite_id is required")
	}
	inv, err := r.store.Invites().FindByID(ctx, inviteID)
	if err != nil {
		if errors.Is(err, repository.ErrInviteNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, transient("load invite", err)
	}
	return inv, nil
}
