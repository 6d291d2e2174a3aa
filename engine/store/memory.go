// Package store provides the in-memory Store implementation used by tests
// and development servers.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/pos-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	orders      map[engine.TenantID]map[engine.OrderID]engine.Order
	orderSeq    map[engine.TenantID]int64
	products    map[engine.TenantID]engine.Products
	ingredients map[engine.TenantID]engine.Ingredients
	movements   map[engine.TenantID][]engine.StockMovement
	prices      map[engine.TenantID][]engine.PriceHistoryEntry
	invoices    map[engine.TenantID][]engine.InvoiceNumber
	reports     map[engine.TenantID][]engine.ZReport
	audits      map[engine.TenantID][]engine.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		orders:      make(map[engine.TenantID]map[engine.OrderID]engine.Order),
		orderSeq:    make(map[engine.TenantID]int64),
		products:    make(map[engine.TenantID]engine.Products),
		ingredients: make(map[engine.TenantID]engine.Ingredients),
		movements:   make(map[engine.TenantID][]engine.StockMovement),
		prices:      make(map[engine.TenantID][]engine.PriceHistoryEntry),
		invoices:    make(map[engine.TenantID][]engine.InvoiceNumber),
		reports:     make(map[engine.TenantID][]engine.ZReport),
		audits:      make(map[engine.TenantID][]engine.AuditEntry),
	}
}

var _ engine.TxStore = (*Memory)(nil)

// =============================================================================
// ORDERS
// =============================================================================

func (m *Memory) SaveOrder(_ context.Context, order engine.Order, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveOrderLocked(order, expectedVersion)
}

func (m *Memory) saveOrderLocked(order engine.Order, expectedVersion int) error {
	tenant := m.orders[order.TenantID]
	if tenant == nil {
		tenant = make(map[engine.OrderID]engine.Order)
		m.orders[order.TenantID] = tenant
	}
	existing, ok := tenant[order.ID]
	if ok && existing.Version != expectedVersion {
		return fmt.Errorf("order %s: stored version %d, expected %d: %w",
			order.ID, existing.Version, expectedVersion, engine.ErrVersionConflict)
	}
	if !ok && expectedVersion != 0 {
		return fmt.Errorf("order %s: not found at version %d: %w", order.ID, expectedVersion, engine.ErrVersionConflict)
	}
	tenant[order.ID] = order
	return nil
}

func (m *Memory) GetOrder(_ context.Context, tenant engine.TenantID, id engine.OrderID) (engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[tenant][id]
	if !ok {
		return engine.Order{}, fmt.Errorf("order %s: %w", id, engine.ErrOrderNotFound)
	}
	return order, nil
}

func (m *Memory) ListOrders(_ context.Context, tenant engine.TenantID) ([]engine.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	orders := make([]engine.Order, 0, len(m.orders[tenant]))
	for _, o := range m.orders[tenant] {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Number > orders[j].Number })
	return orders, nil
}

func (m *Memory) NextOrderNumber(_ context.Context, tenant engine.TenantID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderSeq[tenant]++
	return m.orderSeq[tenant], nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) Products(_ context.Context, tenant engine.TenantID) (engine.Products, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(engine.Products, len(m.products[tenant]))
	for id, p := range m.products[tenant] {
		snapshot[id] = p
	}
	return snapshot, nil
}

func (m *Memory) Ingredients(_ context.Context, tenant engine.TenantID) (engine.Ingredients, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ingredients[tenant].Clone(), nil
}

func (m *Memory) SaveProduct(_ context.Context, tenant engine.TenantID, p engine.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.products[tenant] == nil {
		m.products[tenant] = make(engine.Products)
	}
	m.products[tenant][p.ID] = p
	return nil
}

func (m *Memory) SaveIngredients(_ context.Context, tenant engine.TenantID, ingredients []engine.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ingredients[tenant] == nil {
		m.ingredients[tenant] = make(engine.Ingredients)
	}
	for _, ing := range ingredients {
		m.ingredients[tenant][ing.ID] = ing
	}
	return nil
}

// =============================================================================
// APPEND-ONLY LOGS
// =============================================================================

func (m *Memory) AppendMovements(_ context.Context, tenant engine.TenantID, movements []engine.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements[tenant] = append(m.movements[tenant], movements...)
	return nil
}

func (m *Memory) MovementsByIngredient(_ context.Context, tenant engine.TenantID, id engine.IngredientID) ([]engine.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.StockMovement
	for _, mv := range m.movements[tenant] {
		if mv.IngredientID == id {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *Memory) MovementsByDocument(_ context.Context, tenant engine.TenantID, documentRef string) ([]engine.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.StockMovement
	for _, mv := range m.movements[tenant] {
		if mv.DocumentRef == documentRef {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *Memory) AppendPriceChange(_ context.Context, tenant engine.TenantID, entry engine.PriceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[tenant] = append(m.prices[tenant], entry)
	return nil
}

func (m *Memory) PriceHistory(_ context.Context, tenant engine.TenantID, id engine.ProductID) ([]engine.PriceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PriceHistoryEntry
	for _, e := range m.prices[tenant] {
		if e.ProductID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func (m *Memory) LastInvoiceNumber(_ context.Context, tenant engine.TenantID) (*engine.InvoiceNumber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	invs := m.invoices[tenant]
	if len(invs) == 0 {
		return nil, nil
	}
	last := invs[len(invs)-1]
	return &last, nil
}

func (m *Memory) RecordInvoiceNumber(_ context.Context, tenant engine.TenantID, n engine.InvoiceNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices[tenant] {
		if existing == n {
			return fmt.Errorf("invoice %s: %w", n.Format(), engine.ErrDuplicateEntry)
		}
	}
	m.invoices[tenant] = append(m.invoices[tenant], n)
	return nil
}

func (m *Memory) LastZReport(_ context.Context, tenant engine.TenantID) (*engine.ZReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := m.reports[tenant]
	if len(reports) == 0 {
		return nil, nil
	}
	last := reports[len(reports)-1]
	return &last, nil
}

func (m *Memory) AppendZReport(_ context.Context, tenant engine.TenantID, report engine.ZReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reports := m.reports[tenant]
	if len(reports) > 0 && report.SequenceNumber != reports[len(reports)-1].SequenceNumber+1 {
		return fmt.Errorf("report sequence %d after %d: %w",
			report.SequenceNumber, reports[len(reports)-1].SequenceNumber, engine.ErrDuplicateEntry)
	}
	m.reports[tenant] = append(reports, report)
	return nil
}

func (m *Memory) ZReports(_ context.Context, tenant engine.TenantID) ([]engine.ZReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.ZReport, len(m.reports[tenant]))
	copy(out, m.reports[tenant])
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, entry engine.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[entry.TenantID] = append(m.audits[entry.TenantID], entry)
	return nil
}

func (m *Memory) AuditEntries(_ context.Context, tenant engine.TenantID) ([]engine.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.AuditEntry, len(m.audits[tenant]))
	copy(out, m.audits[tenant])
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot and restore on error
// =============================================================================

// WithTx executes fn against the store. For the memory implementation this
// is simulated with a full snapshot taken up front and restored when fn
// fails.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(&txView{m}); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

// txView forwards to the parent; writes are visible immediately and undone
// by restore on failure.
type txView struct{ *Memory }

type memorySnapshot struct {
	orders      map[engine.TenantID]map[engine.OrderID]engine.Order
	orderSeq    map[engine.TenantID]int64
	products    map[engine.TenantID]engine.Products
	ingredients map[engine.TenantID]engine.Ingredients
	movements   map[engine.TenantID][]engine.StockMovement
	prices      map[engine.TenantID][]engine.PriceHistoryEntry
	invoices    map[engine.TenantID][]engine.InvoiceNumber
	reports     map[engine.TenantID][]engine.ZReport
	audits      map[engine.TenantID][]engine.AuditEntry
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		orders:      make(map[engine.TenantID]map[engine.OrderID]engine.Order, len(m.orders)),
		orderSeq:    make(map[engine.TenantID]int64, len(m.orderSeq)),
		products:    make(map[engine.TenantID]engine.Products, len(m.products)),
		ingredients: make(map[engine.TenantID]engine.Ingredients, len(m.ingredients)),
		movements:   make(map[engine.TenantID][]engine.StockMovement, len(m.movements)),
		prices:      make(map[engine.TenantID][]engine.PriceHistoryEntry, len(m.prices)),
		invoices:    make(map[engine.TenantID][]engine.InvoiceNumber, len(m.invoices)),
		reports:     make(map[engine.TenantID][]engine.ZReport, len(m.reports)),
		audits:      make(map[engine.TenantID][]engine.AuditEntry, len(m.audits)),
	}
	for t, orders := range m.orders {
		cp := make(map[engine.OrderID]engine.Order, len(orders))
		for id, o := range orders {
			cp[id] = o
		}
		s.orders[t] = cp
	}
	for t, v := range m.orderSeq {
		s.orderSeq[t] = v
	}
	for t, products := range m.products {
		cp := make(engine.Products, len(products))
		for id, p := range products {
			cp[id] = p
		}
		s.products[t] = cp
	}
	for t, ingredients := range m.ingredients {
		s.ingredients[t] = ingredients.Clone()
	}
	for t, v := range m.movements {
		s.movements[t] = append([]engine.StockMovement(nil), v...)
	}
	for t, v := range m.prices {
		s.prices[t] = append([]engine.PriceHistoryEntry(nil), v...)
	}
	for t, v := range m.invoices {
		s.invoices[t] = append([]engine.InvoiceNumber(nil), v...)
	}
	for t, v := range m.reports {
		s.reports[t] = append([]engine.ZReport(nil), v...)
	}
	for t, v := range m.audits {
		s.audits[t] = append([]engine.AuditEntry(nil), v...)
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.orders = s.orders
	m.orderSeq = s.orderSeq
	m.products = s.products
	m.ingredients = s.ingredients
	m.movements = s.movements
	m.prices = s.prices
	m.invoices = s.invoices
	m.reports = s.reports
	m.audits = s.audits
}
