package models

// PurchaseStatus is the lifecycle state of a purchase
type PurchaseStatus string

// Purchase statuses
const (
	StatusPending          PurchaseStatus = "pending"
	StatusPaid             PurchaseStatus = "paid"
	StatusDelivered        PurchaseStatus = "delivered"
	StatusCancelled        PurchaseStatus = "cancelled"
	StatusPreSale          PurchaseStatus = "pre-sale"
	StatusPreSaleConfirmed PurchaseStatus = "pre-sale-confirmed"
)

// transitions lists every allowed edge. Self-edges are item edits.
var transitions = map[PurchaseStatus][]PurchaseStatus{
	StatusPending:          {StatusPending, StatusPaid, StatusCancelled},
	StatusPaid:             {StatusDelivered},
	StatusPreSale:          {StatusPreSale, StatusPreSaleConfirmed},
	StatusPreSaleConfirmed: {StatusPaid},
}

// CanTransition reports whether from -> to is in the transition table
func CanTransition(from, to PurchaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s PurchaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusDelivered, StatusCancelled, StatusPreSale, StatusPreSaleConfirmed:
		return true
	}
	return false
}

// Editable reports whether the item list may still change
func (s PurchaseStatus) Editable() bool {
	return s == StatusPending || s == StatusPreSale
}

// Returnable reports whether items of a purchase in this status may be
// returned. A confirmed pre-sale has already put its quantities in stock.
func (s PurchaseStatus) Returnable() bool {
	return s == StatusPaid || s == StatusDelivered
}
