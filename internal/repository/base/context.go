package base

import (
	"context"

	"github.com/google/uuid"
)

type tenantKey struct{}

// WithTenant кладёт арендатора текущей транзакции в контекст
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext возвращает арендатора, привязанного шлюзом, или uuid.Nil
func TenantFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(tenantKey{}).(uuid.UUID)
	return id
}
