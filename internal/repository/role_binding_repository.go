package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRoleBindingNotFound = errors.New("role binding not found")

type RoleBindingListQuery struct {
	PageRequest
	UserPrincipalID string
	Role            string
	State           domain.RoleBindingState
}

type RoleBindingRepository interface {
	Swapper
	Ensure(ctx context.Context, binding *domain.RoleBinding, now time.Time) (*domain.RoleBinding, bool, error)
	FindByID(ctx context.Context, id string) (*domain.RoleBinding, error)
	ListActiveRoles(ctx context.Context, principalID string) ([]string, error)
	ListPaged(ctx context.Context, query RoleBindingListQuery) (PageResult[domain.RoleBinding], error)
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
}

type GormRoleBindingRepository struct {
	casTable
	db *gorm.DB
}

func NewRoleBindingRepository(db *gorm.DB) RoleBindingRepository {
	return &GormRoleBindingRepository{
		casTable: casTable{db: db, newModel: func() any { return &domain.RoleBinding{} }, keyColumn: "id", repo: "role_binding"},
		db:       db,
	}
}

// Ensure makes the binding's natural key (principal, role, scope) active. A
// missing row is inserted, a revoked row is reactivated and an active row is
// left untouched. The returned flag reports whether anything changed.
func (r *GormRoleBindingRepository) Ensure(ctx context.Context, binding *domain.RoleBinding, now time.Time) (*domain.RoleBinding, bool, error) {
	if binding.ID == "" {
		binding.ID = uuid.NewString()
	}
	if binding.ScopeType == "" {
		binding.ScopeType = domain.ScopeTypeFor(binding.ScopeID)
	}
	if binding.State == "" {
		binding.State = domain.RoleBindingActive
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = now
	}
	binding.UpdatedAt = now

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_principal_id"}, {Name: "role"}, {Name: "scope_type"}, {Name: "scope_id"},
		},
		DoNothing: true,
	}).Create(binding)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "role_binding", "ensure", "error")
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		observability.RecordRepositoryOperation(ctx, "role_binding", "ensure", "created")
		return binding, true, nil
	}

	reactivated, err := r.swapBy(ctx, "reactivate", "user_principal_id", binding.UserPrincipalID,
		Conditions{
			eq("role", binding.Role),
			eq("scope_type", binding.ScopeType),
			eq("scope_id", binding.ScopeID),
			eq("state", domain.RoleBindingRevoked),
		},
		Changes{"state": domain.RoleBindingActive, "revoked_at": nil, "created_by": binding.CreatedBy, "updated_at": now},
	)
	if err != nil {
		return nil, false, err
	}

	var current domain.RoleBinding
	err = r.db.WithContext(ctx).
		Where("user_principal_id = ? AND role = ? AND scope_type = ? AND scope_id = ?",
			binding.UserPrincipalID, binding.Role, binding.ScopeType, binding.ScopeID).
		First(&current).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role_binding", "ensure", "error")
		return nil, false, err
	}
	return &current, reactivated, nil
}

func (r *GormRoleBindingRepository) FindByID(ctx context.Context, id string) (*domain.RoleBinding, error) {
	var b domain.RoleBinding
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "role_binding", "find_by_id", "not_found")
			return nil, ErrRoleBindingNotFound
		}
		observability.RecordRepositoryOperation(ctx, "role_binding", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "role_binding", "find_by_id", "success")
	return &b, nil
}

func (r *GormRoleBindingRepository) ListActiveRoles(ctx context.Context, principalID string) ([]string, error) {
	roles := []string{}
	err := r.db.WithContext(ctx).Model(&domain.RoleBinding{}).
		Where("user_principal_id = ? AND state = ?", principalID, domain.RoleBindingActive).
		Distinct("role").Order("role").
		Pluck("role", &roles).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role_binding", "list_active_roles", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "role_binding", "list_active_roles", "success")
	return roles, nil
}

func (r *GormRoleBindingRepository) ListPaged(ctx context.Context, query RoleBindingListQuery) (PageResult[domain.RoleBinding], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.RoleBinding]{
		Items:    []domain.RoleBinding{},
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	base := r.db.WithContext(ctx).Model(&domain.RoleBinding{})
	if query.UserPrincipalID != "" {
		base = base.Where("user_principal_id = ?", query.UserPrincipalID)
	}
	if query.Role != "" {
		base = base.Where("role = ?", query.Role)
	}
	if query.State != "" {
		base = base.Where("state = ?", query.State)
	}
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "role_binding", "list_paged", "error")
		return PageResult[domain.RoleBinding]{}, err
	}
	err := base.Order("created_at DESC").Order("id DESC").
		Offset(req.offset()).Limit(req.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role_binding", "list_paged", "error")
		return PageResult[domain.RoleBinding]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "role_binding", "list_paged", "success")
	return result, nil
}

func (r *GormRoleBindingRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "revoke", "id", id,
		Conditions{eq("state", domain.RoleBindingActive)},
		Changes{"state": domain.RoleBindingRevoked, "revoked_at": now, "updated_at": now},
	)
}
