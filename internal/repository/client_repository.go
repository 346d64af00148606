package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
)

type ClientRepository struct{}

func NewClientRepository() *ClientRepository {
	return &ClientRepository{}
}

// FindByPhone ищет клиента по цифрам телефона без учёта форматирования и кода страны
func (r *ClientRepository) FindByPhone(ctx context.Context, q base.Querier, organizationID uuid.UUID, digits string) (*model.Client, error) {
	query := `
		SELECT id, organization_id, name, phone, created_at
		FROM clients
		WHERE organization_id = $1
		  AND regexp_replace(phone, '\D', '', 'g') LIKE '%' || $2
		ORDER BY created_at
		LIMIT 1
	`

	var c model.Client
	err := q.QueryRow(ctx, query, organizationID, digits).Scan(
		&c.ID,
		&c.OrganizationID,
		&c.Name,
		&c.Phone,
		&c.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find client by phone: %w", err)
	}

	return &c, nil
}

// Create создаёт клиента
func (r *ClientRepository) Create(ctx context.Context, q base.Querier, c *model.Client) error {
	query := `
		INSERT INTO clients (id, organization_id, name, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	if err := q.QueryRow(ctx, query, c.ID, c.OrganizationID, c.Name, c.Phone).Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	return nil
}
