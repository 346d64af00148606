package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
)

// CatalogRepository организации и услуги. Таблица organizations без RLS: это общий реестр арендаторов
type CatalogRepository struct{}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{}
}

// GetOrganization получает организацию по ID
func (r *CatalogRepository) GetOrganization(ctx context.Context, q base.Querier, id uuid.UUID) (*model.Organization, error) {
	query := `
		SELECT id, name, industry_code, timezone, is_active, allow_client_creation, created_at
		FROM organizations
		WHERE id = $1
	`

	var org model.Organization
	err := q.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.IndustryCode,
		&org.Timezone,
		&org.IsActive,
		&org.AllowClientCreation,
		&org.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}

	return &org, nil
}

// ListActiveOrganizationIDs возвращает ID всех активных организаций
func (r *CatalogRepository) ListActiveOrganizationIDs(ctx context.Context, q base.Querier) ([]uuid.UUID, error) {
	query := `SELECT id FROM organizations WHERE is_active ORDER BY created_at`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active organizations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetService получает услугу по ID
func (r *CatalogRepository) GetService(ctx context.Context, q base.Querier, id uuid.UUID) (*model.Service, error) {
	query := `
		SELECT id, organization_id, name, duration_minutes, buffer_minutes, price_cents, is_active
		FROM services
		WHERE id = $1
	`

	var svc model.Service
	err := q.QueryRow(ctx, query, id).Scan(
		&svc.ID,
		&svc.OrganizationID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.BufferMinutes,
		&svc.PriceCents,
		&svc.IsActive,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	return &svc, nil
}

// ProfessionalBookable true, если специалист активен, принимает онлайн-запись
// и, когда serviceID задан, оказывает эту услугу
func (r *CatalogRepository) ProfessionalBookable(ctx context.Context, q base.Querier, professionalID uuid.UUID, serviceID *uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM professionals p
			WHERE p.id = $1
			  AND p.is_active
			  AND p.accepts_online_booking
			  AND ($2::uuid IS NULL OR EXISTS (
				SELECT 1 FROM professional_services ps
				WHERE ps.professional_id = p.id AND ps.service_id = $2
			  ))
		)
	`

	var ok bool
	if err := q.QueryRow(ctx, query, professionalID, serviceID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check professional bookable: %w", err)
	}

	return ok, nil
}
