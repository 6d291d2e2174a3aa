/*
service.go - Orchestration over the store boundary

PURPOSE:
  Glues the pure functions to the storage collaborator: every operation
  that pairs a stock write with a movement append runs inside WithTx so the
  projection can never drift from the log, and order writes carry the
  version precondition read at the start of the operation.

SERIALIZATION:
  - Same-order mutations: serialized by the store's version check; callers
    retry on ErrVersionConflict.
  - Closing report generation: serialized per tenant with a local mutex so
    two reports can never fork from the same PreviousHash.
  - Cross-order stock races: validation and destock for ONE order are one
    logical unit here, but two concurrent orders may both validate against
    the same pre-decrement snapshot. Deployments that must never oversell
    run a single writer per tenant in front of this service.
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes the engine's operations wired to a store.
type Service struct {
	Store    TxStore
	Mutator  *Mutator
	Guard    *PriceGuard
	Digest   Digest
	Clock    Clock
	Observer Observer
	Config   CancellationConfig

	closingMu sync.Mutex
	tenantMu  map[TenantID]*sync.Mutex
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Policy   StockPolicy
	Observer Observer
	Clock    Clock
	Digest   Digest
	Config   CancellationConfig
}

func NewService(store TxStore, opts ServiceOptions) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Digest == nil {
		opts.Digest = SHA256Digest{}
	}
	if opts.Config.MaxCancellationDelay == 0 {
		opts.Config = DefaultCancellationConfig()
	}
	evaluator := NewPolicyEvaluator(opts.Policy, opts.Observer)
	return &Service{
		Store:    store,
		Mutator:  NewMutator(evaluator, opts.Clock),
		Guard:    NewPriceGuard(opts.Clock, opts.Observer),
		Digest:   opts.Digest,
		Clock:    opts.Clock,
		Observer: opts.Observer,
		Config:   opts.Config,
		tenantMu: make(map[TenantID]*sync.Mutex),
	}
}

func (s *Service) lockTenant(tenant TenantID) *sync.Mutex {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	mu, ok := s.tenantMu[tenant]
	if !ok {
		mu = &sync.Mutex{}
		s.tenantMu[tenant] = mu
	}
	return mu
}

// snapshot reads the catalog once; every decision in one operation works
// from this single point-in-time view.
func (s *Service) snapshot(ctx context.Context, tenant TenantID) (Products, Ingredients, error) {
	products, err := s.Store.Products(ctx, tenant)
	if err != nil {
		return nil, nil, fmt.Errorf("load products: %w", err)
	}
	ingredients, err := s.Store.Ingredients(ctx, tenant)
	if err != nil {
		return nil, nil, fmt.Errorf("load ingredients: %w", err)
	}
	return products, ingredients, nil
}

// persistStock writes the ledger output: movement append plus projection
// update, atomically.
func persistStock(ctx context.Context, st Store, tenant TenantID, result DestockResult) error {
	if len(result.Movements) == 0 {
		return nil
	}
	if err := st.AppendMovements(ctx, tenant, result.Movements); err != nil {
		return err
	}
	changed := make([]Ingredient, 0, len(result.Movements))
	for _, mv := range result.Movements {
		changed = append(changed, result.Ingredients[mv.IngredientID])
	}
	return st.SaveIngredients(ctx, tenant, changed)
}

// =============================================================================
// ORDER FLOW
// =============================================================================

// OpenOrder creates a new order from the given items: the whole batch is
// validated cumulatively, destocked, and saved at version 1.
func (s *Service) OpenOrder(ctx context.Context, tenant TenantID, items []OrderItem, servedBy string) (Order, []error, error) {
	for _, it := range items {
		if it.Quantity.LessThanOrEqual(decimal.Zero) {
			return Order{}, nil, fmt.Errorf("open order: quantity %s: %w", it.Quantity, ErrInvalidQuantity)
		}
	}

	products, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return Order{}, nil, err
	}

	warnings, err := s.Mutator.Evaluator.Evaluate(items, products, ingredients)
	if err != nil {
		return Order{}, nil, err
	}

	number, err := s.Store.NextOrderNumber(ctx, tenant)
	if err != nil {
		return Order{}, nil, err
	}

	now := s.Clock.Now()
	order := Order{
		ID:            OrderID(uuid.NewString()),
		Number:        number,
		TenantID:      tenant,
		Items:         items,
		Total:         ItemsTotal(items),
		Status:        OrderPending,
		KitchenStatus: KitchenQueued,
		ServedBy:      servedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}

	stock := Destock(items, products, ingredients, string(order.ID), now)
	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveOrder(ctx, order, 0); err != nil {
			return err
		}
		return persistStock(ctx, st, tenant, stock)
	})
	if err != nil {
		return Order{}, nil, err
	}
	return order, warnings, nil
}

// mutateOrder re-reads the order, applies fn, and persists order + stock
// under the version precondition.
func (s *Service) mutateOrder(ctx context.Context, tenant TenantID, id OrderID, fn func(Order, Products, Ingredients) (MutationResult, error)) (Order, []error, error) {
	order, err := s.Store.GetOrder(ctx, tenant, id)
	if err != nil {
		return Order{}, nil, err
	}
	products, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return Order{}, nil, err
	}

	result, err := fn(order, products, ingredients)
	if err != nil {
		return Order{}, nil, err
	}

	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveOrder(ctx, result.Order, order.Version); err != nil {
			return err
		}
		return persistStock(ctx, st, tenant, result.Stock)
	})
	if err != nil {
		return Order{}, nil, err
	}
	return result.Order, result.Warnings, nil
}

func (s *Service) AddItem(ctx context.Context, tenant TenantID, id OrderID, item OrderItem) (Order, []error, error) {
	return s.mutateOrder(ctx, tenant, id, func(o Order, p Products, i Ingredients) (MutationResult, error) {
		return s.Mutator.AddItem(o, item, p, i)
	})
}

func (s *Service) RemoveItem(ctx context.Context, tenant TenantID, id OrderID, index int) (Order, []error, error) {
	return s.mutateOrder(ctx, tenant, id, func(o Order, p Products, i Ingredients) (MutationResult, error) {
		return s.Mutator.RemoveItem(o, index, p, i)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, tenant TenantID, id OrderID, index int, qty decimal.Decimal) (Order, []error, error) {
	return s.mutateOrder(ctx, tenant, id, func(o Order, p Products, i Ingredients) (MutationResult, error) {
		return s.Mutator.UpdateQuantity(o, index, qty, p, i)
	})
}

func (s *Service) CompleteOrder(ctx context.Context, tenant TenantID, id OrderID, method PaymentMethod) (Order, error) {
	order, err := s.Store.GetOrder(ctx, tenant, id)
	if err != nil {
		return Order{}, err
	}
	next, err := s.Mutator.Complete(order, method)
	if err != nil {
		return Order{}, err
	}
	if err := s.Store.SaveOrder(ctx, next, order.Version); err != nil {
		return Order{}, err
	}
	return next, nil
}

func (s *Service) AdvanceKitchen(ctx context.Context, tenant TenantID, id OrderID) (Order, error) {
	order, err := s.Store.GetOrder(ctx, tenant, id)
	if err != nil {
		return Order{}, err
	}
	next, err := s.Mutator.AdvanceKitchen(order)
	if err != nil {
		return Order{}, err
	}
	if err := s.Store.SaveOrder(ctx, next, order.Version); err != nil {
		return Order{}, err
	}
	return next, nil
}

func (s *Service) RefundItems(ctx context.Context, tenant TenantID, id OrderID, indices []int, actor string) (Order, error) {
	order, err := s.Store.GetOrder(ctx, tenant, id)
	if err != nil {
		return Order{}, err
	}
	next, err := s.Mutator.PartialRefund(order, indices)
	if err != nil {
		return Order{}, err
	}
	entry := AuditEntry{
		ID:       uuid.NewString(),
		TenantID: tenant,
		At:       s.Clock.Now(),
		Actor:    actor,
		Action:   AuditPartialRefund,
		OrderID:  id,
	}
	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveOrder(ctx, next, order.Version); err != nil {
			return err
		}
		return st.AppendAudit(ctx, entry)
	})
	if err != nil {
		return Order{}, err
	}
	s.Observer.AuditRecorded(entry)
	return next, nil
}

// CancelOrder runs the full cancellation workflow: eligibility, restock,
// audit, and the terminal status flip - all in one transaction.
func (s *Service) CancelOrder(ctx context.Context, tenant TenantID, id OrderID, reason, actor string) (Order, error) {
	order, err := s.Store.GetOrder(ctx, tenant, id)
	if err != nil {
		return Order{}, err
	}
	products, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return Order{}, err
	}

	result, err := CancelOrderWithRestock(order, reason, actor, products, ingredients, s.Config, s.Clock)
	if err != nil {
		return Order{}, err
	}

	next := s.Mutator.touch(order)
	next.Status = OrderCancelled

	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveOrder(ctx, next, order.Version); err != nil {
			return err
		}
		if err := persistStock(ctx, st, tenant, result.Stock); err != nil {
			return err
		}
		return st.AppendAudit(ctx, result.Audit)
	})
	if err != nil {
		return Order{}, err
	}
	s.Observer.AuditRecorded(result.Audit)
	return next, nil
}

// SyncOrders reconciles a remote snapshot (an offline device) with the
// stored set. Winners are written back without a version precondition: the
// merge already decided which representation survives.
func (s *Service) SyncOrders(ctx context.Context, tenant TenantID, remote []Order) ([]Order, error) {
	local, err := s.Store.ListOrders(ctx, tenant)
	if err != nil {
		return nil, err
	}
	merged := MergeOrders(local, remote)

	err = s.Store.WithTx(ctx, func(st Store) error {
		byID := make(map[OrderID]Order, len(local))
		for _, o := range local {
			byID[o.ID] = o
		}
		for _, o := range merged {
			stored, ok := byID[o.ID]
			if ok && stored.Version == o.Version && stored.UpdatedAt.Equal(o.UpdatedAt) {
				continue // local copy won, nothing to write
			}
			expected := 0
			if ok {
				expected = stored.Version
			}
			if err := st.SaveOrder(ctx, o, expected); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// =============================================================================
// STOCK FLOW
// =============================================================================

func (s *Service) ReceiveStock(ctx context.Context, tenant TenantID, id IngredientID, qty, unitCost decimal.Decimal, documentRef string) error {
	_, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return err
	}
	result, err := ReceivePurchase(ingredients, id, qty, unitCost, documentRef, s.Clock.Now())
	if err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(st Store) error {
		return persistStock(ctx, st, tenant, result)
	})
}

func (s *Service) RecordWaste(ctx context.Context, tenant TenantID, id IngredientID, qty decimal.Decimal, reason string) error {
	_, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return err
	}
	result, err := RecordWaste(ingredients, id, qty, reason, s.Clock.Now())
	if err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(st Store) error {
		return persistStock(ctx, st, tenant, result)
	})
}

func (s *Service) AdjustStock(ctx context.Context, tenant TenantID, id IngredientID, delta decimal.Decimal, reason, actor string) error {
	_, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return err
	}
	result, err := AdjustStock(ingredients, id, delta, reason, s.Clock.Now())
	if err != nil {
		return err
	}
	entry := AuditEntry{
		ID:       uuid.NewString(),
		TenantID: tenant,
		At:       s.Clock.Now(),
		Actor:    actor,
		Action:   AuditStockAdjusted,
		Reason:   reason,
		Payload:  map[string]string{string(id): delta.String()},
	}
	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := persistStock(ctx, st, tenant, result); err != nil {
			return err
		}
		return st.AppendAudit(ctx, entry)
	})
	if err != nil {
		return err
	}
	s.Observer.AuditRecorded(entry)
	return nil
}

func (s *Service) LowStock(ctx context.Context, tenant TenantID) ([]Ingredient, error) {
	_, ingredients, err := s.snapshot(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return LowStock(ingredients), nil
}

// =============================================================================
// PRICING FLOW
// =============================================================================

func (s *Service) ChangePrice(ctx context.Context, tenant TenantID, id ProductID, newPrice decimal.Decimal, actor, reason string) (Product, []error, error) {
	products, err := s.Store.Products(ctx, tenant)
	if err != nil {
		return Product{}, nil, err
	}
	product, ok := products[id]
	if !ok {
		return Product{}, nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	recent, err := s.Store.ListOrders(ctx, tenant)
	if err != nil {
		return Product{}, nil, err
	}

	result, err := s.Guard.ChangePrice(product, newPrice, actor, reason, recent)
	if err != nil {
		return Product{}, nil, err
	}

	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.SaveProduct(ctx, tenant, result.Product); err != nil {
			return err
		}
		return st.AppendPriceChange(ctx, tenant, result.Entry)
	})
	if err != nil {
		return Product{}, nil, err
	}
	return result.Product, result.Warnings, nil
}

// =============================================================================
// AUDIT TRAIL FLOW
// =============================================================================

// IssueInvoice allocates the next gapless invoice number for an order.
func (s *Service) IssueInvoice(ctx context.Context, tenant TenantID) (InvoiceNumber, error) {
	mu := s.lockTenant(tenant)
	mu.Lock()
	defer mu.Unlock()

	last, err := s.Store.LastInvoiceNumber(ctx, tenant)
	if err != nil {
		return InvoiceNumber{}, err
	}
	next := NextInvoiceNumber(last, s.Clock.Now())
	if err := s.Store.RecordInvoiceNumber(ctx, tenant, next); err != nil {
		return InvoiceNumber{}, err
	}
	return next, nil
}

// CloseDay generates the tenant's next closing report. Serialized per
// tenant: two concurrent calls can never fork the chain.
func (s *Service) CloseDay(ctx context.Context, tenant TenantID, date time.Time, openingCash, closingCash decimal.Decimal) (ZReport, error) {
	mu := s.lockTenant(tenant)
	mu.Lock()
	defer mu.Unlock()

	previous, err := s.Store.LastZReport(ctx, tenant)
	if err != nil {
		return ZReport{}, err
	}
	orders, err := s.Store.ListOrders(ctx, tenant)
	if err != nil {
		return ZReport{}, err
	}

	dayOrders := make([]Order, 0, len(orders))
	for _, o := range orders {
		if sameDay(o.CreatedAt, date) {
			dayOrders = append(dayOrders, o)
		}
	}

	report, err := BuildZReport(ZReportInput{
		TenantID:    tenant,
		Date:        date,
		Orders:      dayOrders,
		OpeningCash: openingCash,
		ClosingCash: closingCash,
		Previous:    previous,
	}, s.Digest, s.Clock)
	if err != nil {
		return ZReport{}, err
	}

	entry := AuditEntry{
		ID:       uuid.NewString(),
		TenantID: tenant,
		At:       report.GeneratedAt,
		Action:   AuditReportGenerated,
		Payload:  map[string]string{"sequence": fmt.Sprint(report.SequenceNumber), "hash": report.CurrentHash},
	}
	err = s.Store.WithTx(ctx, func(st Store) error {
		if err := st.AppendZReport(ctx, tenant, report); err != nil {
			return err
		}
		return st.AppendAudit(ctx, entry)
	})
	if err != nil {
		return ZReport{}, err
	}
	s.Observer.AuditRecorded(entry)
	return report, nil
}

// VerifyReports recomputes the tenant's full chain.
func (s *Service) VerifyReports(ctx context.Context, tenant TenantID) error {
	reports, err := s.Store.ZReports(ctx, tenant)
	if err != nil {
		return err
	}
	return VerifyChain(reports, s.Digest)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
