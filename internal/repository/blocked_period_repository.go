package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
)

type BlockedPeriodRepository struct{}

func NewBlockedPeriodRepository() *BlockedPeriodRepository {
	return &BlockedPeriodRepository{}
}

// Overlapping возвращает закрытые периоды специалиста и всей организации, пересекающие [start, end)
func (r *BlockedPeriodRepository) Overlapping(ctx context.Context, q base.Querier, professionalID uuid.UUID, start, end time.Time) ([]model.BlockedPeriod, error) {
	query := `
		SELECT id, organization_id, professional_id, start_at, end_at, reason
		FROM blocked_periods
		WHERE (professional_id = $1 OR professional_id IS NULL)
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`

	rows, err := q.Query(ctx, query, professionalID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get blocked periods: %w", err)
	}
	defer rows.Close()

	var periods []model.BlockedPeriod
	for rows.Next() {
		var b model.BlockedPeriod
		if err := rows.Scan(&b.ID, &b.OrganizationID, &b.ProfessionalID, &b.StartAt, &b.EndAt, &b.Reason); err != nil {
			return nil, fmt.Errorf("scan blocked period: %w", err)
		}
		periods = append(periods, b)
	}

	return periods, rows.Err()
}
