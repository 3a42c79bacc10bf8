package repository

import (
	"context"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Conditions are the expected column values a compare-and-swap is guarded by.
type Conditions []clause.Expression

// Changes are the column assignments applied when the guard holds. Values may
// be gorm expressions evaluated against the pre-update row.
type Changes map[string]any

// Swapper is the single mutation primitive every state transition in this
// package is expressed with: one conditional UPDATE whose affected row count
// says whether the expected state still held.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, expected Conditions, set Changes) (bool, error)
}

type casTable struct {
	db        *gorm.DB
	newModel  func() any
	keyColumn string
	repo      string
}

func (t casTable) CompareAndSwap(ctx context.Context, key string, expected Conditions, set Changes) (bool, error) {
	return t.swapBy(ctx, "compare_and_swap", t.keyColumn, key, expected, set)
}

func (t casTable) swapBy(ctx context.Context, op, column, key string, expected Conditions, set Changes) (bool, error) {
	q := t.db.WithContext(ctx).Model(t.newModel()).Where(clause.Eq{Column: column, Value: key})
	for _, cond := range expected {
		q = q.Where(cond)
	}
	res := q.Updates(map[string]any(set))
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, t.repo, op, "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, t.repo, op, "conflict")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, t.repo, op, "success")
	return true, nil
}

func eq(column string, value any) clause.Expression {
	return clause.Eq{Column: column, Value: value}
}

func neq(column string, value any) clause.Expression {
	return clause.Neq{Column: column, Value: value}
}

func isNull(column string) clause.Expression {
	return clause.Eq{Column: column, Value: nil}
}

func gt(column string, value any) clause.Expression {
	return clause.Gt{Column: column, Value: value}
}

func gte(column string, value any) clause.Expression {
	return clause.Gte{Column: column, Value: value}
}

func lt(column string, value any) clause.Expression {
	return clause.Lt{Column: column, Value: value}
}
