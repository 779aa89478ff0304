package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel identifies how a purchase enters the ledger
type Channel string

const (
	ChannelImmediate Channel = "immediate"
	ChannelPreSale   Channel = "pre-sale"
)

// Purchase ID prefixes per channel
const (
	PrefixImmediate = "CG"
	PrefixPreSale   = "PV"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	return c == ChannelImmediate || c == ChannelPreSale
}

// Prefix returns the purchase ID prefix for the channel
func (c Channel) Prefix() string {
	if c == ChannelPreSale {
		return PrefixPreSale
	}
	return PrefixImmediate
}

// ParseChannel maps a query/config value to a Channel
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Product is a sellable item with its stock counters
type Product struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Stock                int             `json:"stock"`
	PreSaleReserved      int             `json:"pre_sale_reserved"`
	AvailabilityChannels []Channel       `json:"availability_channels,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// AvailableOn reports whether the product may be sold on the given channel.
// An empty channel list means every channel.
func (p *Product) AvailableOn(c Channel) bool {
	if len(p.AvailabilityChannels) == 0 {
		return true
	}
	for _, ch := range p.AvailabilityChannels {
		if ch == c {
			return true
		}
	}
	return false
}

// PurchaseItem is one line of a purchase, priced at the time it was added
type PurchaseItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Returned  bool            `json:"returned"`
}

// Subtotal returns unit price times quantity
func (i PurchaseItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Purchase represents a sale or pre-sale record
type Purchase struct {
	ID                 string          `json:"id"`
	Date               time.Time       `json:"date"`
	Items              []PurchaseItem  `json:"items"`
	CustomerIdentifier string          `json:"customer_identifier"`
	CustomerPhone      string          `json:"customer_phone,omitempty"`
	SellerID           string          `json:"seller_id,omitempty"`
	SellerName         string          `json:"seller_name,omitempty"`
	Total              decimal.Decimal `json:"total"`
	Status             PurchaseStatus  `json:"status"`
}

// Channel derives the purchase channel from the ID prefix
func (p *Purchase) Channel() Channel {
	if strings.HasPrefix(p.ID, PrefixPreSale) {
		return ChannelPreSale
	}
	return ChannelImmediate
}

// RecomputeTotal sets Total to the sum of all line subtotals
func (p *Purchase) RecomputeTotal() {
	total := decimal.Zero
	for _, item := range p.Items {
		total = total.Add(item.Subtotal())
	}
	p.Total = total
}

// Clone returns a deep copy
func (p Purchase) Clone() Purchase {
	p.Items = append([]PurchaseItem(nil), p.Items...)
	return p
}

// Clone returns a deep copy
func (p Product) Clone() Product {
	p.AvailabilityChannels = append([]Channel(nil), p.AvailabilityChannels...)
	return p
}

// Counter is a per-category sequence used to mint purchase IDs
type Counter struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Session statuses
const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// CashboxSession is an operator's till accounting period
type CashboxSession struct {
	ID             string           `json:"id"`
	OperatorID     string           `json:"operator_id"`
	OperatorName   string           `json:"operator_name"`
	Status         string           `json:"status"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	TotalSales     decimal.Decimal  `json:"total_sales"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosingBalance *decimal.Decimal `json:"closing_balance,omitempty"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}

// IsOpen reports whether the session is still accepting sales
func (s *CashboxSession) IsOpen() bool {
	return s.Status == SessionStatusOpen
}

// AuditAction is the closed set of audited operations
type AuditAction string

const (
	AuditPurchaseEdited    AuditAction = "purchase_edited"
	AuditPurchaseCancelled AuditAction = "purchase_cancelled"
	AuditPreSaleConfirmed  AuditAction = "presale_confirmed"
	AuditPaymentConfirmed  AuditAction = "payment_confirmed"
	AuditPurchaseDelivered AuditAction = "purchase_delivered"
	AuditItemReturned      AuditAction = "item_returned"
	AuditProductCreated    AuditAction = "product_created"
	AuditProductRestocked  AuditAction = "product_restocked"
	AuditCashboxOpened     AuditAction = "cashbox_opened"
	AuditCashboxClosed     AuditAction = "cashbox_closed"
)

// AuditLogEntry records who did what and when. Never updated after write.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	ActorID   string      `json:"actor_id"`
	ActorName string      `json:"actor_name"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details"`
}

// Actor roles
const (
	RoleAdmin    = "admin"
	RoleCashier  = "cashier"
	RoleSeller   = "seller"
	RoleCustomer = "customer"
)

// Actor is the identity supplied by the authorization provider for a call
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// SystemActor is used when no identity accompanies a call
var SystemActor = Actor{ID: "system", Name: "system", Role: "system"}

// IsAdmin reports whether the actor carries the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
