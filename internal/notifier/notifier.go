package notifier

import (
	"context"
	"errors"

	"github.com/Freeeeeet/booking_core/internal/model"
)

// Sink получатель событий журнала после коммита
type Sink interface {
	Publish(ctx context.Context, ev model.SystemEvent) error
}

// Fanout рассылает событие всем получателям; ошибка одного не мешает остальным
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.SystemEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop ничего не делает; используется, когда получатели не настроены
type Nop struct{}

func (Nop) Publish(context.Context, model.SystemEvent) error { return nil }
