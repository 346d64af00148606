package service

import (
	"context"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// eventLog пишет события в журнал внутри транзакции и рассылает их после коммита.
// Ни одна ошибка журнала или получателей не откатывает бронирование.
type eventLog struct {
	store  EventStore
	sink   EventPublisher
	logger *zap.Logger
}

func newEventLog(store EventStore, sink EventPublisher, logger *zap.Logger) *eventLog {
	return &eventLog{store: store, sink: sink, logger: logger}
}

func newEvent(organizationID uuid.UUID, eventType, entityType string, entityID uuid.UUID, metadata map[string]any) model.SystemEvent {
	return model.SystemEvent{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		EventType:      eventType,
		EntityType:     entityType,
		EntityID:       entityID,
		Metadata:       metadata,
	}
}

func (l *eventLog) append(ctx context.Context, q base.Querier, ev *model.SystemEvent) {
	if err := l.store.Append(ctx, q, ev); err != nil {
		l.logger.Warn("Failed to append system event",
			zap.String("event_type", ev.EventType),
			zap.String("entity_id", ev.EntityID.String()),
			zap.Error(err),
		)
	}
}

func (l *eventLog) publish(ctx context.Context, events ...model.SystemEvent) {
	if l.sink == nil {
		return
	}
	for _, ev := range events {
		if err := l.sink.Publish(ctx, ev); err != nil {
			l.logger.Warn("Failed to publish system event",
				zap.String("event_type", ev.EventType),
				zap.String("entity_id", ev.EntityID.String()),
				zap.Error(err),
			)
		}
	}
}
