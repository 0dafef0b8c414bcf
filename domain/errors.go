package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, caller-facing classification of a failure.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "invalid_input"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindOverPayment       ErrorKind = "over_payment"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// Error carries a kind plus a human readable detail. Two Errors match under
// errors.Is when their kinds are equal, so the sentinels below can be used
// as targets.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrOverPayment       = &Error{Kind: KindOverPayment}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInternal          = &Error{Kind: KindInternal}
)

func newError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func InvalidInputf(format string, args ...any) error {
	return newError(KindInvalidInput, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func InsufficientStockf(format string, args ...any) error {
	return newError(KindInsufficientStock, format, args...)
}

func OverPaymentf(format string, args ...any) error {
	return newError(KindOverPayment, format, args...)
}

// Internal wraps an unexpected storage failure.
func Internal(detail string, err error) error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}

// Conflict wraps a uniqueness violation raised by the store.
func Conflict(detail string, err error) error {
	return &Error{Kind: KindConflict, Detail: detail, Err: err}
}

// KindOf reports the kind of err, treating anything unclassified as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
