package model

import (
	"errors"
	"fmt"
)

// ErrorKind категория ошибки, по которой вызывающая сторона решает: повторить, выбрать другой слот или сдаться
type ErrorKind string

const (
	KindTenantIsolation        ErrorKind = "tenant_isolation"
	KindContention             ErrorKind = "contention"
	KindSlotUnavailable        ErrorKind = "slot_unavailable"
	KindSlotNotFound           ErrorKind = "slot_not_found"
	KindNoAvailability         ErrorKind = "no_availability"
	KindNotModifiable          ErrorKind = "not_modifiable"
	KindNotCancellable         ErrorKind = "not_cancellable"
	KindServiceNotFound        ErrorKind = "service_not_found"
	KindClientCreationDisabled ErrorKind = "client_creation_disabled"
	KindAppointmentNotFound    ErrorKind = "appointment_not_found"
	KindPartitionSafety        ErrorKind = "partition_safety"
	KindInvalidRequest         ErrorKind = "invalid_request"
)

// BookingError типизированный бизнес-результат
type BookingError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *BookingError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *BookingError) Unwrap() error { return e.Cause }

// Is сравнивает по Kind, поэтому errors.Is(err, ErrContention) срабатывает для любой ошибки конкуренции
func (e *BookingError) Is(target error) bool {
	var t *BookingError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable true только для конкуренции за блокировку
func (e *BookingError) Retryable() bool {
	return e.Kind == KindContention
}

func NewError(kind ErrorKind, message string, cause error) *BookingError {
	return &BookingError{Kind: kind, Message: message, Cause: cause}
}

var (
	ErrTenantIsolation        = &BookingError{Kind: KindTenantIsolation, Message: "tenant binding failed"}
	ErrContention             = &BookingError{Kind: KindContention, Message: "slot is locked by another operation, retry"}
	ErrSlotUnavailable        = &BookingError{Kind: KindSlotUnavailable, Message: "slot is not available"}
	ErrSlotNotFound           = &BookingError{Kind: KindSlotNotFound, Message: "slot not found"}
	ErrNoAvailability         = &BookingError{Kind: KindNoAvailability, Message: "no available slot matches the request"}
	ErrNotModifiable          = &BookingError{Kind: KindNotModifiable, Message: "appointment can no longer be modified"}
	ErrNotCancellable         = &BookingError{Kind: KindNotCancellable, Message: "appointment can no longer be cancelled"}
	ErrServiceNotFound        = &BookingError{Kind: KindServiceNotFound, Message: "service not found"}
	ErrClientCreationDisabled = &BookingError{Kind: KindClientCreationDisabled, Message: "client not found and creation is disabled"}
	ErrAppointmentNotFound    = &BookingError{Kind: KindAppointmentNotFound, Message: "appointment not found"}
	ErrPartitionSafety        = &BookingError{Kind: KindPartitionSafety, Message: "refusing to drop a recent partition"}
	ErrInvalidRequest         = &BookingError{Kind: KindInvalidRequest, Message: "invalid request"}
)

// KindOf возвращает категорию ошибки или пустую строку для инфраструктурных ошибок
func KindOf(err error) ErrorKind {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
