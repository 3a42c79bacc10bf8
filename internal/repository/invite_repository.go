package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInviteNotFound      = errors.New("invite not found")
	ErrDuplicateInviteCode = errors.New("invite code already exists")
)

type InviteListQuery struct {
	PageRequest
	State     domain.InviteState
	Role      string
	CreatedBy string
}

type InviteRepository interface {
	Swapper
	Create(ctx context.Context, inv *domain.Invite) error
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Invite, error)
	FindByCode(ctx context.Context, code string) (*domain.Invite, error)
	ListPaged(ctx context.Context, query InviteListQuery) (PageResult[domain.Invite], error)
	ConsumeUse(ctx context.Context, code string, now time.Time) (bool, error)
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type GormInviteRepository struct {
	casTable
	db *gorm.DB
}

func NewInviteRepository(db *gorm.DB) InviteRepository {
	return &GormInviteRepository{
		casTable: casTable{db: db, newModel: func() any { return &domain.Invite{} }, keyColumn: "id", repo: "invite"},
		db:       db,
	}
}

func (r *GormInviteRepository) Create(ctx context.Context, inv *domain.Invite) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(ctx, "invite", "create", "conflict")
			return ErrDuplicateInviteCode
		}
		observability.RecordRepositoryOperation(ctx, "invite", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "invite", "create", "success")
	return nil
}

func (r *GormInviteRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Invite{}).Where("code = ?", code).Count(&count).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "invite", "code_exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(ctx, "invite", "code_exists", "success")
	return count > 0, nil
}

func (r *GormInviteRepository) FindByID(ctx context.Context, id string) (*domain.Invite, error) {
	return r.findOne(ctx, "find_by_id", "id = ?", id)
}

func (r *GormInviteRepository) FindByCode(ctx context.Context, code string) (*domain.Invite, error) {
	return r.findOne(ctx, "find_by_code", "code = ?", code)
}

func (r *GormInviteRepository) findOne(ctx context.Context, op, query string, arg any) (*domain.Invite, error) {
	var inv domain.Invite
	err := r.db.WithContext(ctx).Where(query, arg).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "invite", op, "not_found")
			return nil, ErrInviteNotFound
		}
		observability.RecordRepositoryOperation(ctx, "invite", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "invite", op, "success")
	return &inv, nil
}

func (r *GormInviteRepository) ListPaged(ctx context.Context, query InviteListQuery) (PageResult[domain.Invite], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.Invite]{
		Items:    []domain.Invite{},
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	base := r.db.WithContext(ctx).Model(&domain.Invite{})
	if query.State != "" {
		base = base.Where("state = ?", query.State)
	}
	if query.Role != "" {
		base = base.Where("role = ?", query.Role)
	}
	if query.CreatedBy != "" {
		base = base.Where("created_by = ?", query.CreatedBy)
	}
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "invite", "list_paged", "error")
		return PageResult[domain.Invite]{}, err
	}
	err := base.Order("created_at DESC").Order("id DESC").
		Offset(req.offset()).Limit(req.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "invite", "list_paged", "error")
		return PageResult[domain.Invite]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "invite", "list_paged", "success")
	return result, nil
}

// ConsumeUse takes one use off the invite identified by code in a single
// conditional update. The invite flips to exhausted in the same statement
// when the last use is taken.
func (r *GormInviteRepository) ConsumeUse(ctx context.Context, code string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "consume_use", "code", code,
		Conditions{eq("state", domain.InviteActive), gt("uses_left", 0), notExpiredAt(now)},
		Changes{
			"uses_left":  gorm.Expr("uses_left - 1"),
			"state":      gorm.Expr("CASE WHEN uses_left <= 1 THEN ? ELSE state END", string(domain.InviteExhausted)),
			"updated_at": now,
		},
	)
}

func (r *GormInviteRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "revoke", "id", id,
		Conditions{neq("state", domain.InviteRevoked)},
		Changes{"state": domain.InviteRevoked, "revoked_at": now, "updated_at": now},
	)
}

func (r *GormInviteRepository) ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "expire_if_due", "id", id,
		Conditions{eq("state", domain.InviteActive), lt("expires_at", now)},
		Changes{"state": domain.InviteExpired, "updated_at": now},
	)
}

// ExpireDue reconciles every active invite whose deadline has passed.
func (r *GormInviteRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Invite{}).
		Where("state = ? AND expires_at IS NOT NULL AND expires_at < ?", domain.InviteActive, now).
		Updates(map[string]any{"state": domain.InviteExpired, "updated_at": now})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "invite", "expire_due", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "invite", "expire_due", "success")
	return res.RowsAffected, nil
}

func notExpiredAt(now time.Time) clause.Expression {
	return clause.Or(isNull("expires_at"), gte("expires_at", now))
}
