package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/models"
)

type productRow struct {
	ID                   string          `db:"id"`
	Name                 string          `db:"name"`
	Price                decimal.Decimal `db:"price"`
	Stock                int             `db:"stock"`
	PreSaleReserved      int             `db:"pre_sale_reserved"`
	AvailabilityChannels pq.StringArray  `db:"availability_channels"`
	Version              int64           `db:"version"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func (r productRow) toModel() models.Product {
	p := models.Product{
		ID:              r.ID,
		Name:            r.Name,
		Price:           r.Price,
		Stock:           r.Stock,
		PreSaleReserved: r.PreSaleReserved,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for _, c := range r.AvailabilityChannels {
		p.AvailabilityChannels = append(p.AvailabilityChannels, models.Channel(c))
	}
	return p
}

func channelsArray(channels []models.Channel) pq.StringArray {
	arr := make(pq.StringArray, 0, len(channels))
	for _, c := range channels {
		arr = append(arr, string(c))
	}
	return arr
}

type counterRow struct {
	Key     string `db:"key"`
	Count   int64  `db:"count"`
	Version int64  `db:"version"`
}

type purchaseRow struct {
	ID                 string          `db:"id"`
	Date               time.Time       `db:"date"`
	Items              []byte          `db:"items"`
	CustomerIdentifier string          `db:"customer_identifier"`
	CustomerPhone      string          `db:"customer_phone"`
	SellerID           string          `db:"seller_id"`
	SellerName         string          `db:"seller_name"`
	Total              decimal.Decimal `db:"total"`
	Status             string          `db:"status"`
	Version            int64           `db:"version"`
}

func (r purchaseRow) toModel() (*models.Purchase, error) {
	p := &models.Purchase{
		ID:                 r.ID,
		Date:               r.Date,
		CustomerIdentifier: r.CustomerIdentifier,
		CustomerPhone:      r.CustomerPhone,
		SellerID:           r.SellerID,
		SellerName:         r.SellerName,
		Total:              r.Total,
		Status:             models.PurchaseStatus(r.Status),
	}
	if err := json.Unmarshal(r.Items, &p.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of purchase %s: %w", r.ID, err)
	}
	return p, nil
}

type sessionRow struct {
	ID             string              `db:"id"`
	OperatorID     string              `db:"operator_id"`
	OperatorName   string              `db:"operator_name"`
	Status         string              `db:"status"`
	OpeningBalance decimal.Decimal     `db:"opening_balance"`
	TotalSales     decimal.Decimal     `db:"total_sales"`
	OpenedAt       time.Time           `db:"opened_at"`
	ClosingBalance decimal.NullDecimal `db:"closing_balance"`
	ClosedAt       *time.Time          `db:"closed_at"`
	Version        int64               `db:"version"`
}

func (r sessionRow) toModel() models.CashboxSession {
	s := models.CashboxSession{
		ID:             r.ID,
		OperatorID:     r.OperatorID,
		OperatorName:   r.OperatorName,
		Status:         r.Status,
		OpeningBalance: r.OpeningBalance,
		TotalSales:     r.TotalSales,
		OpenedAt:       r.OpenedAt,
		ClosedAt:       r.ClosedAt,
	}
	if r.ClosingBalance.Valid {
		balance := r.ClosingBalance.Decimal
		s.ClosingBalance = &balance
	}
	return s
}

type auditRow struct {
	ID        string    `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	ActorID   string    `db:"actor_id"`
	ActorName string    `db:"actor_name"`
	Action    string    `db:"action"`
	Details   string    `db:"details"`
}

func (r auditRow) toModel() models.AuditLogEntry {
	return models.AuditLogEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		ActorID:   r.ActorID,
		ActorName: r.ActorName,
		Action:    models.AuditAction(r.Action),
		Details:   r.Details,
	}
}
