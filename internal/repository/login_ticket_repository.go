package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrLoginTicketNotFound = errors.New("login ticket not found")

type LoginTicketRepository interface {
	Swapper
	Create(ctx context.Context, t *domain.LoginTicket) error
	FindBySessionID(ctx context.Context, sessionID string) (*domain.LoginTicket, error)
	Consume(ctx context.Context, id, ticketHash string, now time.Time) (bool, error)
}

type GormLoginTicketRepository struct {
	casTable
	db *gorm.DB
}

func NewLoginTicketRepository(db *gorm.DB) LoginTicketRepository {
	return &GormLoginTicketRepository{
		casTable: casTable{db: db, newModel: func() any { return &domain.LoginTicket{} }, keyColumn: "id", repo: "login_ticket"},
		db:       db,
	}
}

func (r *GormLoginTicketRepository) Create(ctx context.Context, t *domain.LoginTicket) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "login_ticket", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "login_ticket", "create", "success")
	return nil
}

func (r *GormLoginTicketRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.LoginTicket, error) {
	var t domain.LoginTicket
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "login_ticket", "find_by_session_id", "not_found")
			return nil, ErrLoginTicketNotFound
		}
		observability.RecordRepositoryOperation(ctx, "login_ticket", "find_by_session_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "login_ticket", "find_by_session_id", "success")
	return &t, nil
}

// Consume marks an unexpired ticket used. Only the first caller presenting
// the matching hash wins.
func (r *GormLoginTicketRepository) Consume(ctx context.Context, id, ticketHash string, now time.Time) (bool, error) {
	return r.swapBy(ctx, "consume", "id", id,
		Conditions{eq("ticket_hash", ticketHash), isNull("consumed_at"), gte("expires_at", now)},
		Changes{"consumed_at": now},
	)
}
