package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type EventRepository struct{}

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

type savepointer interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Append добавляет событие в журнал. Внутри транзакции запись идёт через точку сохранения,
// так что ошибка вставки не ломает внешнюю транзакцию.
func (r *EventRepository) Append(ctx context.Context, q base.Querier, ev *model.SystemEvent) error {
	sp, ok := q.(savepointer)
	if !ok {
		return r.insert(ctx, q, ev)
	}

	nested, err := sp.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	defer nested.Rollback(ctx)

	if err := r.insert(ctx, nested, ev); err != nil {
		return err
	}

	return nested.Commit(ctx)
}

func (r *EventRepository) insert(ctx context.Context, q base.Querier, ev *model.SystemEvent) error {
	query := `
		INSERT INTO system_events (id, organization_id, event_type, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := q.QueryRow(ctx, query, ev.ID, ev.OrganizationID, ev.EventType, ev.EntityType, ev.EntityID, ev.Metadata).
		Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append system event: %w", err)
	}

	return nil
}
