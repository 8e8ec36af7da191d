package market

import (
	"errors"
	"fmt"
)

// ErrKind classifies why an entry point aborted. Every abort rolls the call
// back completely, so the kind is the only thing a caller needs to branch on.
type ErrKind uint8

const (
	// KindGuard: the call hit the engine in the wrong round phase, or
	// re-entered while another call was in flight.
	KindGuard ErrKind = iota + 1
	// KindValidation: zero/invalid amounts, prices or addresses, or an
	// insufficient balance.
	KindValidation
	// KindNotFound: unknown or already-filled order id.
	KindNotFound
	// KindTransfer: the payment gateway rejected a send.
	KindTransfer
)

func (k ErrKind) String() string {
	switch k {
	case KindGuard:
		return "guard_violation"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransfer:
		return "transfer_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type the engine returns from entry points.
type Error struct {
	Kind ErrKind
	msg  string
	err  error // wrapped cause, set for transfer failures
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// KindOf returns the classification of err, or 0 for foreign errors.
func KindOf(err error) ErrKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return 0
}

func guardErr(msg string) error {
	return &Error{Kind: KindGuard, msg: msg}
}

func validationErr(format string, args ...any) error {
	return &Error{Kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundErr(msg string) error {
	return &Error{Kind: KindNotFound, msg: msg}
}

func transferErr(msg string, cause error) error {
	return &Error{Kind: KindTransfer, msg: msg, err: cause}
}
