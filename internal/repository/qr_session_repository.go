package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrQRSessionNotFound = errors.New("qr session not found")

// ApprovalResult is written onto a session by the approving compare-and-swap.
type ApprovalResult struct {
	Ticket     string
	UserJSON   string
	ApprovedBy string
}

type QRSessionRepository interface {
	Swapper
	Create(ctx context.Context, s *domain.QRSession) error
	FindByID(ctx context.Context, id string) (*domain.QRSession, error)
	ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error)
	AssignNonce(ctx context.Context, id, nonce string, now time.Time) (bool, error)
	Approve(ctx context.Context, id, nonce string, now time.Time, result ApprovalResult) (bool, error)
	MarkConsumed(ctx context.Context, id string, now time.Time) (bool, error)
}

type GormQRSessionRepository struct {
	casTable
	db *gorm.DB
}

func NewQRSessionRepository(db *gorm.DB) QRSessionRepository {
	return &GormQRSessionRepository{
		casTable: casTable{db: db, newModel: func() any { return &domain.QRSession{} }, keyColumn: "id", repo: "qr_session"},
		db:       db,
	}
}

func (r *GormQRSessionRepository) Create(ctx context.Context, s *domain.QRSession) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "qr_session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "qr_session", "create", "success")
	return nil
}

func (r *GormQRSessionRepository) FindByID(ctx context.Context, id string) (*domain.QRSession, error) {
	var s domain.QRSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "qr_session", "find_by_id", "not_found")
			return nil, ErrQRSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "qr_session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "qr_session", "find_by_id", "success")
	return &s, nil
}

// ExpireIfDue flips a pending session whose deadline has passed to expired.
func (r *GormQRSessionRepository) ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "expire_if_due", "id", id,
		Conditions{eq("status", domain.QRSessionPending), lt("expires_at", now)},
		Changes{"status": domain.QRSessionExpired, "approve_nonce": nil, "updated_at": now},
	)
}

// AssignNonce stores the approval nonce only if none has been issued yet.
func (r *GormQRSessionRepository) AssignNonce(ctx context.Context, id, nonce string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "assign_nonce", "id", id,
		Conditions{eq("status", domain.QRSessionPending), isNull("approve_nonce"), gte("expires_at", now)},
		Changes{"approve_nonce": nonce, "updated_at": now},
	)
}

// Approve consumes the nonce and moves the session to approved in one step.
// Concurrent callers holding the same nonce race on this update and exactly
// one of them observes a swapped row.
func (r *GormQRSessionRepository) Approve(ctx context.Context, id, nonce string, now time.Time, result ApprovalResult) (bool, error) {
	return r.swapBy(ctx, "approve", "id", id,
		Conditions{eq("status", domain.QRSessionPending), eq("approve_nonce", nonce), gte("expires_at", now)},
		Changes{
			"status":        domain.QRSessionApproved,
			"approve_nonce": nil,
			"result_ticket": result.Ticket,
			"result_user":   result.UserJSON,
			"approved_by":   result.ApprovedBy,
			"approved_at":   now,
			"updated_at":    now,
		},
	)
}

func (r *GormQRSessionRepository) MarkConsumed(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "mark_consumed", "id", id,
		Conditions{eq("status", domain.QRSessionApproved)},
		Changes{"status": domain.QRSessionConsumed, "result_ticket": nil, "consumed_at": now, "updated_at": now},
	)
}
