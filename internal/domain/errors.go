package domain

import "errors"

// Business rule failures. Callers wrap them with detail via fmt.Errorf("%w: ...").
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient credit")
	ErrDebtCeiling       = errors.New("debt ceiling reached")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDrawerAlreadyOpen = errors.New("cash drawer already open")
	ErrReasonRequired    = errors.New("cancellation reason required")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrValidation, "validation_error"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrDebtCeiling, "debt_ceiling"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrDrawerAlreadyOpen, "drawer_already_open"},
	{ErrReasonRequired, "reason_required"},
	{ErrInvalidState, "invalid_state"},
	{ErrForbidden, "forbidden"},
	{ErrConflict, "conflict"},
}

// ErrorCode returns the stable machine-readable kind of a domain error, or
// an empty string when err is not one.
func ErrorCode(err error) string {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ""
}
