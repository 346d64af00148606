package base

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantSetting имя параметра сессии, по которому политики RLS фильтруют строки
const TenantSetting = "app.current_tenant"

// Beginner источник транзакций: *pgxpool.Pool или мок
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxFunc тело транзакции с привязанным арендатором
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TenantGate открывает транзакции, привязанные к арендатору.
// Привязка делается через set_config(..., is_local => true) и живёт только до конца транзакции,
// поэтому соединение, вернувшееся в пул, не несёт чужого арендатора.
type TenantGate struct {
	db Beginner
}

func NewTenantGate(db Beginner) *TenantGate {
	return &TenantGate{db: db}
}

// InTenantTx выполняет fn в транзакции чтения-записи
func (g *TenantGate) InTenantTx(ctx context.Context, tenantID uuid.UUID, fn TxFunc) error {
	return g.run(ctx, tenantID, pgx.TxOptions{}, fn)
}

// InTenantReadTx выполняет fn в транзакции только для чтения
func (g *TenantGate) InTenantReadTx(ctx context.Context, tenantID uuid.UUID, fn TxFunc) error {
	return g.run(ctx, tenantID, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (g *TenantGate) run(ctx context.Context, tenantID uuid.UUID, opts pgx.TxOptions, fn TxFunc) error {
	if tenantID == uuid.Nil {
		return model.NewError(model.KindTenantIsolation, "tenant id is required", nil)
	}

	tx, err := g.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// после Commit откат ничего не делает
	defer tx.Rollback(ctx)

	if err := BindTenant(ctx, tx, tenantID); err != nil {
		return err
	}

	if err := fn(WithTenant(ctx, tenantID), tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// BindTenant привязывает арендатора к текущей транзакции
func BindTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	_, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, tenantID.String())
	if err != nil {
		return model.NewError(model.KindTenantIsolation, "bind tenant", err)
	}
	return nil
}
