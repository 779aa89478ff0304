package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"
)

// MaxQuantity bounds every line quantity and stock counter so they fit the
// INTEGER columns and never wrap around.
const MaxQuantity = math.MaxInt32

func checkQuantity(quantity int) error {
	if quantity <= 0 || quantity > MaxQuantity {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return nil
}

// Inventory adjusts product stock counters inside an enclosing transaction.
// Callers capture every product they will touch before the first adjustment.
type Inventory struct {
	logger *zap.Logger
}

// NewInventory creates a new inventory
func NewInventory() *Inventory {
	return &Inventory{logger: util.Named("inventory")}
}

// Reserve decrements stock. It fails without writing when the result would
// be negative.
func (inv *Inventory) Reserve(ctx context.Context, tx store.Tx, productID string, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := loadProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if p.Stock < quantity {
		util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		inv.logger.Debug("Insufficient stock",
			zap.String("product_id", productID),
			zap.Int("available", p.Stock),
			zap.Int("requested", quantity))
		return &InsufficientStockError{ProductID: productID, Available: p.Stock, Requested: quantity}
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	tx.PutProduct(*p)
	return nil
}

// Release increments stock up to MaxQuantity.
func (inv *Inventory) Release(ctx context.Context, tx store.Tx, productID string, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := loadProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if p.Stock > MaxQuantity-quantity {
		return fmt.Errorf("%w: stock of %s would exceed %d", ErrInvalidQuantity, productID, MaxQuantity)
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now().UTC()
	tx.PutProduct(*p)
	return nil
}

// ReservePreSale increments the pre-sale forecast only; stock is untouched.
func (inv *Inventory) ReservePreSale(ctx context.Context, tx store.Tx, productID string, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := loadProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if p.PreSaleReserved > MaxQuantity-quantity {
		return fmt.Errorf("%w: pre-sale forecast of %s would exceed %d", ErrInvalidQuantity, productID, MaxQuantity)
	}
	p.PreSaleReserved += quantity
	p.UpdatedAt = time.Now().UTC()
	tx.PutProduct(*p)
	return nil
}

// ReleasePreSale lowers the pre-sale forecast, never below zero.
func (inv *Inventory) ReleasePreSale(ctx context.Context, tx store.Tx, productID string, quantity int) error {
	if err := checkQuantity(quantity); err != nil {
		return err
	}
	p, err := loadProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	p.PreSaleReserved -= quantity
	if p.PreSaleReserved < 0 {
		p.PreSaleReserved = 0
	}
	p.UpdatedAt = time.Now().UTC()
	tx.PutProduct(*p)
	return nil
}

func loadProduct(ctx context.Context, tx store.Tx, productID string) (*models.Product, error) {
	p, err := tx.Product(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return p, err
}

// captureProducts reads every product of items into the read-set so later
// adjustments happen after all reads.
func captureProducts(ctx context.Context, tx store.Tx, items []models.PurchaseItem) error {
	for _, item := range items {
		if _, err := loadProduct(ctx, tx, item.ProductID); err != nil {
			return err
		}
	}
	return nil
}
