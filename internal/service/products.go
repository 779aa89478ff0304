package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"
)

// CreateProductRequest represents a new catalog entry
type CreateProductRequest struct {
	ID                   string           `json:"id,omitempty"`
	Name                 string           `json:"name"`
	Price                decimal.Decimal  `json:"price"`
	Stock                int              `json:"stock"`
	AvailabilityChannels []models.Channel `json:"availability_channels,omitempty"`
}

// CreateProduct adds a product to the catalog. Admin only.
func (s *PurchaseService) CreateProduct(ctx context.Context, actor models.Actor, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.CreateProduct")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price %s", ErrInvalidProduct, req.Price)
	}
	if req.Stock < 0 || req.Stock > MaxQuantity {
		return nil, fmt.Errorf("%w: stock %d", ErrInvalidQuantity, req.Stock)
	}
	for _, c := range req.AvailabilityChannels {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, c)
		}
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	product := models.Product{
		ID:                   id,
		Name:                 name,
		Price:                req.Price,
		Stock:                req.Stock,
		AvailabilityChannels: req.AvailabilityChannels,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	err := s.runner.Run(ctx, "create_product", func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Product(ctx, id); err == nil {
			return fmt.Errorf("%w: %s", ErrProductExists, id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		tx.PutProduct(product)
		s.audit.Append(tx, actor, models.AuditProductCreated,
			fmt.Sprintf("product %s (%s) created with stock %d at %s", id, name, req.Stock, req.Price.StringFixed(2)))
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", id))
	s.invalidateProducts(ctx)
	return &product, nil
}

// Restock adds quantity to a product's stock. Admin only.
func (s *PurchaseService) Restock(ctx context.Context, actor models.Actor, productID string, quantity int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Restock", attribute.String("product_id", productID))
	defer span.End()

	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	var restocked models.Product
	err := s.runner.Run(ctx, "restock", func(ctx context.Context, tx store.Tx) error {
		if err := s.inventory.Release(ctx, tx, productID, quantity); err != nil {
			return err
		}
		p, err := tx.Product(ctx, productID)
		if err != nil {
			return err
		}
		s.audit.Append(tx, actor, models.AuditProductRestocked,
			fmt.Sprintf("product %s restocked by %d to %d", productID, quantity, p.Stock))
		restocked = *p
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Product restocked",
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("stock", restocked.Stock))
	s.invalidateProducts(ctx)
	return &restocked, nil
}

// ListProducts returns the catalog, served from the cache when warm
func (s *PurchaseService) ListProducts(ctx context.Context) ([]models.Product, error) {
	cached, generation, ok, err := s.products.GetProducts(ctx)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}
	cacheable := err == nil

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if !cacheable {
		return products, nil
	}
	if err := s.products.SetProducts(ctx, products, generation, s.cfg.ProductCacheTTL); err != nil {
		s.logger.Warn("Product cache write failed", zap.Error(err))
	}
	return products, nil
}

func (s *PurchaseService) invalidateProducts(ctx context.Context) {
	if err := s.products.InvalidateProducts(ctx); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}
}
