package service

import (
	"errors"
	"fmt"

	"pos-ledger/internal/models"
)

// Sentinel errors surfaced to callers. Match with errors.Is.
var (
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrProductNotFound           = errors.New("product not found")
	ErrProductUnavailable        = errors.New("product not sold on this channel")
	ErrProductExists             = errors.New("product already exists")
	ErrInvalidProduct            = errors.New("invalid product")
	ErrPurchaseNotFound          = errors.New("purchase not found")
	ErrItemNotFound              = errors.New("item not on purchase")
	ErrAlreadyReturned           = errors.New("item already returned")
	ErrInvalidStateTransition    = errors.New("invalid state transition")
	ErrSessionAlreadyOpen        = errors.New("cashbox session already open")
	ErrSessionNotFound           = errors.New("cashbox session not found")
	ErrNotOwner                  = errors.New("cashbox session belongs to another operator")
	ErrAlreadyClosed             = errors.New("cashbox session already closed")
	ErrNoActiveSession           = errors.New("no active cashbox session")
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrInvalidQuantity           = errors.New("quantity out of range")
	ErrInvalidAmount             = errors.New("amount must not be negative")
	ErrInvalidChannel            = errors.New("unknown sales channel")
	ErrInvalidPhone              = errors.New("invalid phone number")
	ErrMissingCustomerIdentifier = errors.New("customer identifier is required")
	ErrDuplicateRequest          = errors.New("request with this idempotency key is in progress")
	ErrForbidden                 = errors.New("actor is not allowed to perform this operation")

	// ErrTransactionConflict is transient and retried by TxRunner
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrTransactionFailed is returned once TxRunner exhausted its attempts
	ErrTransactionFailed = errors.New("transaction failed")
)

// InsufficientStockError carries the shortage of one product.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// StateTransitionError reports a rejected purchase status change.
type StateTransitionError struct {
	PurchaseID string
	From       models.PurchaseStatus
	To         models.PurchaseStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("purchase %s: cannot move from %s to %s", e.PurchaseID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

func transitionError(p *models.Purchase, to models.PurchaseStatus) error {
	return &StateTransitionError{PurchaseID: p.ID, From: p.Status, To: to}
}

// failureReason is a low-cardinality metric label for err
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrMissingCustomerIdentifier), errors.Is(err, ErrInvalidChannel):
		return "invalid_request"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrTransactionFailed):
		return "conflict"
	}
	return "internal"
}
