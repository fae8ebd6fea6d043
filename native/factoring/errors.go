package factoring

import (
	"errors"

	"billfactor/native/common"
)

// Error kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrNotFound          = errors.New("factoring: not found")
	ErrInvalidState      = errors.New("factoring: invalid state")
	ErrUnauthorized      = errors.New("factoring: unauthorized")
	ErrInvalidInput      = errors.New("factoring: invalid input")
	ErrInsufficientFunds = errors.New("factoring: insufficient funds")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return "factoring: " + e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrRequestNotFound     = newError(ErrNotFound, "bill request not found")
	ErrOfferNotFound       = newError(ErrNotFound, "offer not found")
	ErrBillNotFound        = newError(ErrNotFound, "bill not found")
	ErrNonexistentToken    = newError(ErrNotFound, "nonexistent ownership token")
	ErrTokenExists         = newError(ErrInvalidState, "ownership token already minted")
	ErrRequestNotOpen      = newError(ErrInvalidState, "bill request not open")
	ErrOfferNotActive      = newError(ErrInvalidState, "offer not active")
	ErrBillNotActive       = newError(ErrInvalidState, "bill not active")
	ErrBillNotOverdue      = newError(ErrInvalidState, "bill not overdue")
	ErrNotCurrentHolder    = newError(ErrUnauthorized, "caller is not the current holder")
	ErrNotLender           = newError(ErrUnauthorized, "caller is not the lender")
	ErrNotDebtor           = newError(ErrUnauthorized, "caller is not the debtor")
	ErrNotAuthorized       = newError(ErrUnauthorized, "caller lacks the required role")
	ErrInvalidAmount       = newError(ErrInvalidInput, "amount must be positive")
	ErrAmountOverflow      = newError(ErrInvalidInput, "amount exceeds 256 bits")
	ErrInvalidDueDate      = newError(ErrInvalidInput, "due date must be in the future")
	ErrUnsupportedCurrency = newError(ErrInvalidInput, "unsupported settlement currency")
	ErrInvalidConditions   = newError(ErrInvalidInput, "invalid conditions")
	ErrInvalidAddress      = newError(ErrInvalidInput, "invalid address")
	ErrInvalidRole         = newError(ErrInvalidInput, "unknown role")
	ErrBalanceTooLow       = newError(ErrInsufficientFunds, "balance too low")
	ErrPoolBalanceTooLow   = newError(ErrInsufficientFunds, "pool balance too low")
)

// Kind names used by KindOf.
const (
	KindNotFound          = "NotFound"
	KindInvalidState      = "InvalidState"
	KindUnauthorized      = "Unauthorized"
	KindInvalidInput      = "InvalidInput"
	KindInsufficientFunds = "InsufficientFunds"
	KindPaused            = "Paused"
	KindReentrant         = "Reentrant"
	KindInternal          = "Internal"
)

// KindOf classifies err into one of the kind names. Errors that carry no kind
// (storage or transfer failures) are reported as internal.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, common.ErrModulePaused):
		return KindPaused
	case errors.Is(err, common.ErrReentrantCall):
		return KindReentrant
	default:
		return KindInternal
	}
}
