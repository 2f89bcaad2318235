package ledger

import (
	"errors"
	"fmt"
)

// Base categories. Every specific error below wraps one of these so
// callers can branch on the category with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrWriteFailed          = errors.New("write failed")
)

var (
	ErrInvalidQuantity       = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	ErrUserNotFound          = fmt.Errorf("user profile %w", ErrNotFound)
	ErrItemNotFound          = fmt.Errorf("item %w or no longer available", ErrNotFound)
	ErrInsufficientInventory = fmt.Errorf("%w: not enough items in stock", ErrInsufficientResource)
	ErrInsufficientPoints    = fmt.Errorf("%w: not enough eco-points", ErrInsufficientResource)
	ErrMissingAddress        = fmt.Errorf("%w: a delivery address is required", ErrValidation)
	ErrInvalidAddress        = fmt.Errorf("%w: delivery address is invalid", ErrValidation)
	ErrPaymentFailed         = fmt.Errorf("%w: could not deduct eco-points", ErrWriteFailed)
	ErrInventoryUpdateFailed = fmt.Errorf("%w: could not update inventory", ErrWriteFailed)
	ErrLedgerWriteFailed     = fmt.Errorf("%w: could not record points transaction", ErrWriteFailed)
)

// outcome maps an error to a short metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, ErrInventoryUpdateFailed):
		return "inventory_failed"
	case errors.Is(err, ErrLedgerWriteFailed):
		return "ledger_failed"
	default:
		return "error"
	}
}
