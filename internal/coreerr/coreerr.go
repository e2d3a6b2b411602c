// Package coreerr defines the core's error taxonomy (SPEC_FULL.md §7):
// validation/permission errors that propagate with no side effects, and
// the internal SettlementError that rolls a unit of work back.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind identifies which bucket of SPEC_FULL.md §7 an error belongs to.
type Kind int

const (
	KindInvalidOrder Kind = iota
	KindInsufficientBalance
	KindEntityNotFound
	KindOrderLink
	KindAdminPermission
	KindWithdrawalApproval
	KindSettlement
)

func (k Kind) String() string {
	switch k {
	case KindInvalidOrder:
		return "InvalidOrder"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindEntityNotFound:
		return "EntityNotFound"
	case KindOrderLink:
		return "OrderLinkError"
	case KindAdminPermission:
		return "AdminPermission"
	case KindWithdrawalApproval:
		return "WithdrawalApproval"
	case KindSettlement:
		return "SettlementError"
	default:
		return "Unknown"
	}
}

// Error is the concrete type every core error is wrapped in, so callers
// can branch with errors.As and library code can still unwrap to the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func InvalidOrder(format string, args ...any) error {
	return newf(KindInvalidOrder, format, args...)
}

func InsufficientBalance(format string, args ...any) error {
	return newf(KindInsufficientBalance, format, args...)
}

func EntityNotFound(format string, args ...any) error {
	return newf(KindEntityNotFound, format, args...)
}

func OrderLink(format string, args ...any) error {
	return newf(KindOrderLink, format, args...)
}

func AdminPermission(format string, args ...any) error {
	return newf(KindAdminPermission, format, args...)
}

func WithdrawalApproval(format string, args ...any) error {
	return newf(KindWithdrawalApproval, format, args...)
}

// Settlement wraps an internal invariant violation. Its presence aborts
// the enclosing unit of work and rolls all mutations back.
func Settlement(cause error, format string, args ...any) error {
	return &Error{Kind: KindSettlement, Msg: fmt.Sprintf(format, args...), Err: cause}
}
