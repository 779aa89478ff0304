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

// PurchaseConfig holds the deployment-dependent rules of the ledger
type PurchaseConfig struct {
	// PaymentSources are the statuses ConfirmPayment accepts
	PaymentSources []models.PurchaseStatus
	// RequireCashboxSession makes ConfirmPayment fail without an open session
	RequireCashboxSession bool
	// InFlightTTL bounds the pending marker of a request still being served;
	// IdempotencyTTL applies once the purchase is recorded
	InFlightTTL           time.Duration
	IdempotencyTTL        time.Duration
	ProductCacheTTL       time.Duration
	RecentLimit           int
}

// DefaultPurchaseConfig returns the configuration used when none is given
func DefaultPurchaseConfig() PurchaseConfig {
	return PurchaseConfig{
		PaymentSources:  []models.PurchaseStatus{models.StatusPending, models.StatusPreSaleConfirmed},
		InFlightTTL:     2 * time.Minute,
		IdempotencyTTL:  24 * time.Hour,
		ProductCacheTTL: 30 * time.Second,
		RecentLimit:     50,
	}
}

// PurchaseService is the ledger transaction engine. Every mutation runs as one
// optimistic transaction through the TxRunner.
type PurchaseService struct {
	store       store.Store
	runner      *TxRunner
	inventory   *Inventory
	cashbox     *CashboxService
	audit       *AuditTrail
	notifier    *Notifier
	events      EventPublisher
	idempotency IdempotencyStore
	products    ProductCache
	cfg         PurchaseConfig
	logger      *zap.Logger
}

// NewPurchaseService creates a new purchase service. Nil collaborators are
// replaced by no-op implementations.
func NewPurchaseService(
	st store.Store,
	runner *TxRunner,
	cashbox *CashboxService,
	audit *AuditTrail,
	notifier *Notifier,
	events EventPublisher,
	idempotency IdempotencyStore,
	products ProductCache,
	cfg PurchaseConfig,
) *PurchaseService {
	if notifier == nil {
		notifier = NewNotifier(nil, "")
	}
	if events == nil {
		events = NoopEventPublisher{}
	}
	if idempotency == nil {
		idempotency = NoopIdempotencyStore{}
	}
	if products == nil {
		products = NoopProductCache{}
	}
	if cfg.RecentLimit < 1 {
		cfg.RecentLimit = 50
	}
	return &PurchaseService{
		store:       st,
		runner:      runner,
		inventory:   NewInventory(),
		cashbox:     cashbox,
		audit:       audit,
		notifier:    notifier,
		events:      events,
		idempotency: idempotency,
		products:    products,
		cfg:         cfg,
		logger:      util.Named("purchases"),
	}
}

// ItemRequest is one requested cart line
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreatePurchaseRequest represents a request to create a purchase
type CreatePurchaseRequest struct {
	Items              []ItemRequest  `json:"items"`
	CustomerIdentifier string         `json:"customer_identifier"`
	CustomerPhone      string         `json:"customer_phone,omitempty"`
	Channel            models.Channel `json:"channel"`
	IdempotencyKey     string         `json:"idempotency_key,omitempty"`
}

// validateItems checks quantities and merges repeated products, keeping the
// order of first appearance
func validateItems(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	merged := make([]ItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("%w: missing product id", ErrProductNotFound)
		}
		if i, ok := index[item.ProductID]; ok {
			if merged[i].Quantity > MaxQuantity-item.Quantity {
				return nil, fmt.Errorf("%w: product %s total quantity exceeds %d", ErrInvalidQuantity, item.ProductID, MaxQuantity)
			}
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// CreatePurchase records a new sale (immediate) or pre-sale. Immediate carts
// reserve stock all-or-nothing; pre-sale carts only raise the forecast.
func (s *PurchaseService) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest, seller *models.Actor) (created *models.Purchase, err error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.CreatePurchase", attribute.String("channel", string(req.Channel)))
	defer span.End()
	defer func() {
		if err != nil {
			util.RecordError(span, err)
			util.PurchasesFailedTotal.WithLabelValues(failureReason(err)).Inc()
		}
	}()

	lines, err := validateItems(req.Items)
	if err != nil {
		return nil, err
	}
	customer := strings.TrimSpace(req.CustomerIdentifier)
	if customer == "" {
		return nil, ErrMissingCustomerIdentifier
	}
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelImmediate
	}
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, req.Channel)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.claimIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil || existing != nil {
			return existing, err
		}
		defer func() {
			s.settleIdempotencyKey(ctx, req.IdempotencyKey, created)
		}()
	}

	var purchase models.Purchase
	err = s.runner.Run(ctx, "create_purchase", func(ctx context.Context, tx store.Tx) error {
		// read phase
		products := make(map[string]*models.Product, len(lines))
		for _, line := range lines {
			p, err := loadProduct(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if !p.AvailableOn(channel) {
				return fmt.Errorf("%w: %s on %s", ErrProductUnavailable, p.ID, channel)
			}
			products[p.ID] = p
		}
		if _, err := tx.Counter(ctx, counterKey(channel)); err != nil {
			return err
		}

		// write phase
		items := make([]models.PurchaseItem, 0, len(lines))
		for _, line := range lines {
			var err error
			if channel == models.ChannelPreSale {
				err = s.inventory.ReservePreSale(ctx, tx, line.ProductID, line.Quantity)
			} else {
				err = s.inventory.Reserve(ctx, tx, line.ProductID, line.Quantity)
			}
			if err != nil {
				return err
			}
			p := products[line.ProductID]
			items = append(items, models.PurchaseItem{
				ProductID: p.ID,
				Name:      p.Name,
				UnitPrice: p.Price,
				Quantity:  line.Quantity,
			})
		}

		seq, err := NextValue(ctx, tx, counterKey(channel))
		if err != nil {
			return err
		}

		purchase = models.Purchase{
			ID:                 FormatPurchaseID(channel, items[0].Name, seq),
			Date:               time.Now().UTC(),
			Items:              items,
			CustomerIdentifier: customer,
			CustomerPhone:      strings.TrimSpace(req.CustomerPhone),
			Status:             models.StatusPending,
		}
		if channel == models.ChannelPreSale {
			purchase.Status = models.StatusPreSale
		}
		if seller != nil {
			purchase.SellerID = seller.ID
			purchase.SellerName = seller.Name
		}
		purchase.RecomputeTotal()
		tx.PutPurchase(purchase)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PurchasesCreatedTotal.WithLabelValues(string(channel)).Inc()
	s.logger.Info("Purchase created",
		zap.String("purchase_id", purchase.ID),
		zap.String("channel", string(channel)),
		zap.String("total", purchase.Total.StringFixed(2)))

	actorID := ""
	if seller != nil {
		actorID = seller.ID
	}
	s.afterCommit(ctx, models.EventTypePurchaseCreated, &purchase, actorID)
	if purchase.CustomerPhone != "" {
		if _, err := s.notifier.Send(ctx, &purchase, purchase.CustomerPhone); err != nil {
			s.logger.Warn("Confirmation not sent",
				zap.String("purchase_id", purchase.ID),
				zap.Error(err))
		}
	}
	return &purchase, nil
}

// claimIdempotencyKey returns the purchase already created under key, or
// reserves key for this call
func (s *PurchaseService) claimIdempotencyKey(ctx context.Context, key string) (*models.Purchase, error) {
	if id, found, err := s.idempotency.Result(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	} else if found {
		s.logger.Info("Duplicate purchase request detected",
			zap.String("idempotency_key", key),
			zap.String("purchase_id", id))
		return s.GetPurchase(ctx, id)
	}

	reserved, err := s.idempotency.Reserve(ctx, key, s.cfg.InFlightTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !reserved {
		return nil, ErrDuplicateRequest
	}
	return nil, nil
}

func (s *PurchaseService) settleIdempotencyKey(ctx context.Context, key string, created *models.Purchase) {
	var err error
	if created == nil {
		err = s.idempotency.Release(ctx, key)
	} else {
		err = s.idempotency.Complete(ctx, key, created.ID, s.cfg.IdempotencyTTL)
	}
	if err != nil {
		s.logger.Warn("Failed to settle idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
}

// EditPendingPurchase replaces the item list of a pending purchase. Stock
// deltas are validated before any write, so an edit that would oversell one
// line changes nothing.
func (s *PurchaseService) EditPendingPurchase(ctx context.Context, purchaseID string, items []ItemRequest, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.EditPendingPurchase", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.editPurchase(ctx, purchaseID, items, actor, models.StatusPending)
	util.RecordError(span, err)
	return p, err
}

// EditPreSalePurchase replaces the item list of a pre-sale purchase, moving the
// pre-sale forecast by the per-product deltas
func (s *PurchaseService) EditPreSalePurchase(ctx context.Context, purchaseID string, items []ItemRequest, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.EditPreSalePurchase", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.editPurchase(ctx, purchaseID, items, actor, models.StatusPreSale)
	util.RecordError(span, err)
	return p, err
}

// EditPurchase dispatches to the edit matching the purchase's current status
func (s *PurchaseService) EditPurchase(ctx context.Context, purchaseID string, items []ItemRequest, actor models.Actor) (*models.Purchase, error) {
	current, err := s.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusPreSale {
		return s.EditPreSalePurchase(ctx, purchaseID, items, actor)
	}
	return s.EditPendingPurchase(ctx, purchaseID, items, actor)
}

type itemDelta struct {
	productID string
	delta     int
}

func (s *PurchaseService) editPurchase(ctx context.Context, purchaseID string, items []ItemRequest, actor models.Actor, status models.PurchaseStatus) (*models.Purchase, error) {
	lines, err := validateItems(items)
	if err != nil {
		return nil, err
	}

	var edited models.Purchase
	var oldTotal decimal.Decimal
	err = s.runner.Run(ctx, "edit_purchase", func(ctx context.Context, tx store.Tx) error {
		p, err := s.loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if p.Status != status || !models.CanTransition(p.Status, status) {
			return transitionError(p, status)
		}
		oldTotal = p.Total
		channel := p.Channel()

		oldQty := make(map[string]int, len(p.Items))
		kept := make(map[string]models.PurchaseItem, len(p.Items))
		for _, item := range p.Items {
			oldQty[item.ProductID] += item.Quantity
			kept[item.ProductID] = item
		}
		newQty := make(map[string]int, len(lines))
		for _, line := range lines {
			newQty[line.ProductID] = line.Quantity
		}

		var deltas []itemDelta
		for _, item := range p.Items {
			if d := newQty[item.ProductID] - oldQty[item.ProductID]; d != 0 {
				deltas = append(deltas, itemDelta{item.ProductID, d})
			}
		}
		for _, line := range lines {
			if _, ok := oldQty[line.ProductID]; !ok {
				deltas = append(deltas, itemDelta{line.ProductID, line.Quantity})
			}
		}

		// compute: capture every product and validate additional reservations
		products := make(map[string]*models.Product, len(deltas))
		for _, d := range deltas {
			product, err := loadProduct(ctx, tx, d.productID)
			if err != nil {
				return err
			}
			if _, existed := oldQty[d.productID]; !existed && !product.AvailableOn(channel) {
				return fmt.Errorf("%w: %s on %s", ErrProductUnavailable, product.ID, channel)
			}
			products[d.productID] = product
		}
		if status == models.StatusPending {
			for _, d := range deltas {
				if d.delta > 0 && products[d.productID].Stock < d.delta {
					return &InsufficientStockError{
						ProductID: d.productID,
						Available: products[d.productID].Stock,
						Requested: d.delta,
					}
				}
			}
		}

		// apply
		for _, d := range deltas {
			if err := s.applyDelta(ctx, tx, status, d); err != nil {
				return err
			}
		}

		next := make([]models.PurchaseItem, 0, len(lines))
		for _, line := range lines {
			item, ok := kept[line.ProductID]
			if !ok {
				product := products[line.ProductID]
				item = models.PurchaseItem{ProductID: product.ID, Name: product.Name, UnitPrice: product.Price}
			}
			item.Quantity = line.Quantity
			next = append(next, item)
		}
		p.Items = next
		p.Date = time.Now().UTC()
		p.RecomputeTotal()
		tx.PutPurchase(*p)

		s.audit.Append(tx, actor, models.AuditPurchaseEdited,
			fmt.Sprintf("purchase %s edited: %d line(s), total %s -> %s",
				p.ID, len(next), oldTotal.StringFixed(2), p.Total.StringFixed(2)))
		edited = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Purchase edited",
		zap.String("purchase_id", edited.ID),
		zap.String("old_total", oldTotal.StringFixed(2)),
		zap.String("total", edited.Total.StringFixed(2)))
	s.afterCommit(ctx, models.EventTypePurchaseEdited, &edited, actor.ID)
	return &edited, nil
}

func (s *PurchaseService) applyDelta(ctx context.Context, tx store.Tx, status models.PurchaseStatus, d itemDelta) error {
	switch {
	case status == models.StatusPreSale && d.delta > 0:
		return s.inventory.ReservePreSale(ctx, tx, d.productID, d.delta)
	case status == models.StatusPreSale:
		return s.inventory.ReleasePreSale(ctx, tx, d.productID, -d.delta)
	case d.delta > 0:
		return s.inventory.Reserve(ctx, tx, d.productID, d.delta)
	default:
		return s.inventory.Release(ctx, tx, d.productID, -d.delta)
	}
}

// CancelPurchase cancels a pending purchase and releases its stock
func (s *PurchaseService) CancelPurchase(ctx context.Context, purchaseID string, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.CancelPurchase", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.transition(ctx, "cancel_purchase", purchaseID, models.StatusCancelled, actor,
		func(ctx context.Context, tx store.Tx, p *models.Purchase) (string, error) {
			if err := captureProducts(ctx, tx, p.Items); err != nil {
				return "", err
			}
			for _, item := range p.Items {
				if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return "", err
				}
			}
			return fmt.Sprintf("purchase %s cancelled, %d line(s) released", p.ID, len(p.Items)), nil
		})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	s.afterCommit(ctx, models.EventTypePurchaseCancelled, p, actor.ID)
	return p, nil
}

// ConfirmPreSale moves a pre-sale to confirmed and adds every item quantity to
// stock, making the forecast redeemable inventory
func (s *PurchaseService) ConfirmPreSale(ctx context.Context, purchaseID string, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.ConfirmPreSale", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.transition(ctx, "confirm_presale", purchaseID, models.StatusPreSaleConfirmed, actor,
		func(ctx context.Context, tx store.Tx, p *models.Purchase) (string, error) {
			if err := captureProducts(ctx, tx, p.Items); err != nil {
				return "", err
			}
			for _, item := range p.Items {
				if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return "", err
				}
			}
			return fmt.Sprintf("pre-sale %s confirmed, total %s", p.ID, p.Total.StringFixed(2)), nil
		})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	s.afterCommit(ctx, models.EventTypePreSaleConfirmed, p, actor.ID)
	return p, nil
}

// ConfirmPayment marks a purchase paid and records the sale in the actor's
// open cashbox session within the same transaction
func (s *PurchaseService) ConfirmPayment(ctx context.Context, purchaseID string, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.ConfirmPayment", attribute.String("purchase_id", purchaseID))
	defer span.End()

	var recorded bool
	p, err := s.transition(ctx, "confirm_payment", purchaseID, models.StatusPaid, actor,
		func(ctx context.Context, tx store.Tx, p *models.Purchase) (string, error) {
			if !s.paymentSource(p.Status) {
				return "", transitionError(p, models.StatusPaid)
			}

			recorded = false
			_, err := tx.OpenSession(ctx, actor.ID)
			switch {
			case err == nil:
				recorded = true
			case !errors.Is(err, store.ErrNotFound):
				return "", err
			case s.cfg.RequireCashboxSession:
				return "", fmt.Errorf("%w: operator %s", ErrNoActiveSession, actor.ID)
			}

			details := fmt.Sprintf("purchase %s paid, total %s", p.ID, p.Total.StringFixed(2))
			if recorded {
				session, err := s.cashbox.AddSale(ctx, tx, actor.ID, p.Total)
				if err != nil {
					return "", err
				}
				details += fmt.Sprintf(", session %s", session.ID)
			}
			return details, nil
		})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if recorded {
		util.CashboxSalesTotal.Inc()
	}
	s.afterCommit(ctx, models.EventTypePurchasePaid, p, actor.ID)
	return p, nil
}

func (s *PurchaseService) paymentSource(status models.PurchaseStatus) bool {
	for _, allowed := range s.cfg.PaymentSources {
		if allowed == status {
			return true
		}
	}
	return false
}

// DeliverPurchase marks a paid purchase delivered
func (s *PurchaseService) DeliverPurchase(ctx context.Context, purchaseID string, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.DeliverPurchase", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.transition(ctx, "deliver_purchase", purchaseID, models.StatusDelivered, actor,
		func(_ context.Context, _ store.Tx, p *models.Purchase) (string, error) {
			return fmt.Sprintf("purchase %s delivered", p.ID), nil
		})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	s.afterCommit(ctx, models.EventTypePurchaseDelivered, p, actor.ID)
	return p, nil
}

// transitionFunc performs the side effects of a status change inside tx and
// returns the audit details
type transitionFunc func(ctx context.Context, tx store.Tx, p *models.Purchase) (string, error)

var transitionAudit = map[models.PurchaseStatus]models.AuditAction{
	models.StatusCancelled:        models.AuditPurchaseCancelled,
	models.StatusPreSaleConfirmed: models.AuditPreSaleConfirmed,
	models.StatusPaid:             models.AuditPaymentConfirmed,
	models.StatusDelivered:        models.AuditPurchaseDelivered,
}

// transition moves a purchase to status `to` after effects succeed. The
// transition table is checked against the status read in the transaction.
func (s *PurchaseService) transition(ctx context.Context, op, purchaseID string, to models.PurchaseStatus, actor models.Actor, effects transitionFunc) (*models.Purchase, error) {
	var updated models.Purchase
	err := s.runner.Run(ctx, op, func(ctx context.Context, tx store.Tx) error {
		p, err := s.loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if !models.CanTransition(p.Status, to) {
			return transitionError(p, to)
		}

		details, err := effects(ctx, tx, p)
		if err != nil {
			return err
		}

		p.Status = to
		tx.PutPurchase(*p)
		s.audit.Append(tx, actor, transitionAudit[to], details)
		updated = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PurchaseTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.logger.Info("Purchase status changed",
		zap.String("purchase_id", updated.ID),
		zap.String("status", string(to)),
		zap.String("actor_id", actor.ID))
	return &updated, nil
}

// ReturnItem flags one line of a paid or delivered purchase as returned and
// puts its quantity back in stock. A line is returned once.
func (s *PurchaseService) ReturnItem(ctx context.Context, purchaseID, productID string, actor models.Actor) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.ReturnItem", attribute.String("purchase_id", purchaseID))
	defer span.End()

	var updated models.Purchase
	err := s.runner.Run(ctx, "return_item", func(ctx context.Context, tx store.Tx) error {
		p, err := s.loadPurchase(ctx, tx, purchaseID)
		if err != nil {
			return err
		}
		if !p.Status.Returnable() {
			return fmt.Errorf("%w: purchase %s is %s", ErrInvalidStateTransition, p.ID, p.Status)
		}

		idx := -1
		for i, item := range p.Items {
			if item.ProductID == productID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, productID)
		}
		if p.Items[idx].Returned {
			return fmt.Errorf("%w: %s", ErrAlreadyReturned, productID)
		}
		if _, err := loadProduct(ctx, tx, productID); err != nil {
			return err
		}

		item := p.Items[idx]
		if err := s.inventory.Release(ctx, tx, productID, item.Quantity); err != nil {
			return err
		}
		p.Items[idx].Returned = true
		tx.PutPurchase(*p)
		s.audit.Append(tx, actor, models.AuditItemReturned,
			fmt.Sprintf("purchase %s: %d x %s returned", p.ID, item.Quantity, item.Name))
		updated = *p
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Item returned",
		zap.String("purchase_id", updated.ID),
		zap.String("product_id", productID))
	s.afterCommit(ctx, models.EventTypeItemReturned, &updated, actor.ID)
	return &updated, nil
}

func (s *PurchaseService) loadPurchase(ctx context.Context, tx store.Tx, id string) (*models.Purchase, error) {
	p, err := tx.Purchase(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPurchaseNotFound, id)
	}
	return p, err
}

// afterCommit publishes the event and drops the cached listing. Failures are
// logged; the committed transaction stands.
func (s *PurchaseService) afterCommit(ctx context.Context, eventType string, p *models.Purchase, actorID string) {
	s.invalidateProducts(ctx)

	event := &models.PurchaseEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		ActorID:  actorID,
		Purchase: p.Clone(),
	}
	if err := s.events.PublishPurchaseEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish purchase event",
			zap.String("purchase_id", p.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// GetPurchase retrieves a purchase by ID
func (s *PurchaseService) GetPurchase(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	p, err := s.store.GetPurchase(ctx, purchaseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPurchaseNotFound, purchaseID)
	}
	return p, err
}

// GetPurchasesByCustomer returns a customer's purchases, newest first
func (s *PurchaseService) GetPurchasesByCustomer(ctx context.Context, customerIdentifier string) ([]models.Purchase, error) {
	customer := strings.TrimSpace(customerIdentifier)
	if customer == "" {
		return nil, ErrMissingCustomerIdentifier
	}
	return s.store.ListPurchasesByCustomer(ctx, customer)
}

// GetRecentPurchases returns the latest purchases of a channel
func (s *PurchaseService) GetRecentPurchases(ctx context.Context, channel models.Channel, limit int) ([]models.Purchase, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, channel)
	}
	if limit < 1 || limit > s.cfg.RecentLimit {
		limit = s.cfg.RecentLimit
	}
	return s.store.ListRecentPurchases(ctx, channel, limit)
}

// SendConfirmation sends the purchase confirmation to phone, or to the phone
// stored on the purchase when phone is empty. Delivery failure yields false.
func (s *PurchaseService) SendConfirmation(ctx context.Context, purchaseID, phone string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.SendConfirmation", attribute.String("purchase_id", purchaseID))
	defer span.End()

	p, err := s.GetPurchase(ctx, purchaseID)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(phone) == "" {
		phone = p.CustomerPhone
	}
	if phone == "" {
		return false, fmt.Errorf("%w: purchase %s has no phone", ErrInvalidPhone, p.ID)
	}
	return s.notifier.Send(ctx, p, phone)
}
