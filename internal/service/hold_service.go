package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/booking_core/internal/model"
	"github.com/Freeeeeet/booking_core/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	DefaultHoldTTL = 10 * time.Minute
	reclaimBatch   = 500
)

// Hold подтверждение удержания слота
type Hold struct {
	SlotID    uuid.UUID `json:"slot_id"`
	HolderRef string    `json:"holder_ref"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
}

// HoldService короткие удержания слотов на время оформления записи.
// Блокировка строки берётся без ожидания, чужие просроченные удержания снимает только ReclaimExpired.
type HoldService struct {
	tx      Transactor
	slots   SlotStore
	catalog CatalogStore
	events  *eventLog
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewHoldService(tx Transactor, repos Repositories, sink EventPublisher, ttl time.Duration, logger *zap.Logger) *HoldService {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &HoldService{
		tx:      tx,
		slots:   repos.Slots,
		catalog: repos.Catalog,
		events:  newEventLog(repos.Events, sink, logger),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// PlaceHold удерживает слот за holderRef на ttl (0 означает значение по умолчанию).
// Повторный вызов тем же держателем продлевает удержание.
func (s *HoldService) PlaceHold(ctx context.Context, tenantID, slotID uuid.UUID, ttl time.Duration, holderRef string) (*Hold, error) {
	if holderRef == "" {
		return nil, model.NewError(model.KindInvalidRequest, "holder reference is required", nil)
	}
	if ttl < 0 {
		return nil, model.NewError(model.KindInvalidRequest, "hold ttl must not be negative", nil)
	}
	if ttl == 0 {
		ttl = s.ttl
	}

	var (
		hold *Hold
		ev   model.SystemEvent
	)
	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		_, hold, err = s.placeHoldTx(ctx, tx, slotID, ttl, holderRef)
		if err != nil {
			return err
		}

		ev = newEvent(tenantID, model.EventSlotHeld, "time_slot", slotID, map[string]any{
			"holder_ref": holderRef,
			"expires_at": hold.ExpiresAt,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, ev)

	s.logger.Info("Slot held",
		zap.String("tenant_id", tenantID.String()),
		zap.String("slot_id", slotID.String()),
		zap.Time("expires_at", hold.ExpiresAt),
	)

	return hold, nil
}

// placeHoldTx удерживает слот в уже открытой транзакции; блокировка держится до её конца
func (s *HoldService) placeHoldTx(ctx context.Context, q base.Querier, slotID uuid.UUID, ttl time.Duration, holderRef string) (*model.TimeSlot, *Hold, error) {
	slot, err := s.slots.LockNoWait(ctx, q, slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot == nil {
		return nil, nil, model.ErrSlotNotFound
	}

	// Свободный слот или продление своего удержания
	if slot.State != model.SlotStateAvailable && !slot.HeldBy(holderRef) {
		return nil, nil, model.NewError(model.KindSlotUnavailable, "slot is "+string(slot.State), nil)
	}
	if !slot.StartAt.After(s.now()) {
		return nil, nil, model.NewError(model.KindSlotUnavailable, "slot is in the past", nil)
	}

	bookable, err := s.catalog.ProfessionalBookable(ctx, q, slot.ProfessionalID, nil)
	if err != nil {
		return nil, nil, err
	}
	if !bookable {
		return nil, nil, model.NewError(model.KindSlotUnavailable, "professional does not accept online booking", nil)
	}

	expiresAt := s.now().Add(ttl)
	version, err := s.slots.MarkHeld(ctx, q, slotID, holderRef, expiresAt)
	if err != nil {
		return nil, nil, err
	}

	slot.State = model.SlotStateTemporarilyHeld
	slot.HoldExpiresAt = &expiresAt
	slot.HolderRef = &holderRef
	slot.Version = version

	return slot, &Hold{SlotID: slotID, HolderRef: holderRef, ExpiresAt: expiresAt, Version: version}, nil
}

// ReleaseHold снимает удержание держателя. Повторный вызов не ошибка
func (s *HoldService) ReleaseHold(ctx context.Context, tenantID, slotID uuid.UUID, holderRef string) error {
	if holderRef == "" {
		return model.NewError(model.KindInvalidRequest, "holder reference is required", nil)
	}

	var (
		released bool
		ev       model.SystemEvent
	)
	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		released, err = s.slots.ReleaseHold(ctx, tx, slotID, holderRef)
		if err != nil || !released {
			return err
		}

		ev = newEvent(tenantID, model.EventSlotHoldReleased, "time_slot", slotID, map[string]any{
			"holder_ref": holderRef,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		s.events.publish(ctx, ev)
		s.logger.Info("Slot hold released",
			zap.String("tenant_id", tenantID.String()),
			zap.String("slot_id", slotID.String()),
		)
	}

	return nil
}

// ReclaimExpired возвращает в свободные все просроченные удержания арендатора.
// Безопасно вызывать параллельно и повторно: занятые строки пропускаются.
func (s *HoldService) ReclaimExpired(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var (
		reclaimed []uuid.UUID
		ev        model.SystemEvent
	)
	err := s.tx.InTenantTx(ctx, tenantID, func(ctx context.Context, tx pgx.Tx) error {
		now := s.now()
		for {
			ids, err := s.slots.ReclaimExpired(ctx, tx, now, reclaimBatch)
			if err != nil {
				return err
			}
			reclaimed = append(reclaimed, ids...)
			if len(ids) < reclaimBatch {
				break
			}
		}

		if len(reclaimed) == 0 {
			return nil
		}

		ev = newEvent(tenantID, model.EventSlotHoldsReclaimed, "time_slot", uuid.Nil, map[string]any{
			"count":    len(reclaimed),
			"slot_ids": reclaimed,
		})
		s.events.append(ctx, tx, &ev)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(reclaimed) > 0 {
		s.events.publish(ctx, ev)
		s.logger.Info("Expired holds reclaimed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("count", len(reclaimed)),
		)
	}

	return len(reclaimed), nil
}
