/*
Package sqlite provides a SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  stock_movements, price_history, z_reports, invoice_numbers and
  audit_entries see INSERT only - no UPDATE, no DELETE. Corrections happen
  through new entries (adjustment movements, restock reversals).

OPTIMISTIC LOCKING:
  orders are written with a version precondition compiled into the UPDATE's
  WHERE clause; zero affected rows means another writer got there first and
  the caller receives engine.ErrVersionConflict.

KEY TABLES:
  orders:          Versioned sale documents (items as JSON)
  order_counters:  Per-tenant display number allocation
  products:        Catalog with recipe JSON
  ingredients:     Stock projection (derived from movements)
  stock_movements: Immutable stock change log
  price_history:   Immutable price change record
  invoice_numbers: Gapless per-year sequences
  z_reports:       Hash-chained closing reports
  audit_entries:   Who did what, when, why

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/pos.db")
  if err != nil { ... }
  defer st.Close()
  svc := engine.NewService(st, engine.ServiceOptions{})
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/pos-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ engine.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A :memory: database exists per connection; pin the pool to one so
	// every caller sees the same schema. SQLite allows one writer anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		number INTEGER NOT NULL,
		items_json TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		kitchen_status TEXT NOT NULL,
		served_by TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_orders_tenant_number ON orders(tenant_id, number);

	CREATE TABLE IF NOT EXISTS order_counters (
		tenant_id TEXT PRIMARY KEY,
		last_number INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		vat_rate TEXT NOT NULL,
		recipe_json TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS ingredients (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		stock TEXT NOT NULL,
		min_stock TEXT NOT NULL,
		avg_cost TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- Append-only stock movement log
	CREATE TABLE IF NOT EXISTS stock_movements (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		ingredient_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		type TEXT NOT NULL,
		at TEXT NOT NULL,
		document_ref TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_movements_tenant_ingredient ON stock_movements(tenant_id, ingredient_id, at);
	CREATE INDEX IF NOT EXISTS idx_movements_tenant_document ON stock_movements(tenant_id, document_ref);

	-- Append-only price change record
	CREATE TABLE IF NOT EXISTS price_history (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		old_price TEXT NOT NULL,
		new_price TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		retroactive INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_price_history_tenant_product ON price_history(tenant_id, product_id, changed_at);

	-- Gapless per-year invoice sequences
	CREATE TABLE IF NOT EXISTS invoice_numbers (
		tenant_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		issued_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, year, sequence)
	);

	-- Hash-chained closing reports
	CREATE TABLE IF NOT EXISTS z_reports (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		body_json TEXT NOT NULL,
		previous_hash TEXT NOT NULL DEFAULT '',
		current_hash TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		UNIQUE (tenant_id, sequence_number)
	);

	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		at TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		payload_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_audit_tenant_at ON audit_entries(tenant_id, at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// isConstraint reports whether err is a sqlite constraint violation, as
// opposed to an I/O or schema failure that must not be translated into a
// client-facing conflict.
func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// =============================================================================
// ORDERS
// =============================================================================

func (s *Store) SaveOrder(ctx context.Context, order engine.Order, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveOrder(ctx, s.db, order, expectedVersion)
}

func saveOrder(ctx context.Context, db dbtx, order engine.Order, expectedVersion int) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	if expectedVersion == 0 {
		_, err = db.ExecContext(ctx, `
			INSERT INTO orders (tenant_id, id, number, items_json, total, status, kitchen_status,
				served_by, payment_method, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.TenantID, order.ID, order.Number, string(items), order.Total.String(),
			order.Status, order.KitchenStatus, order.ServedBy, order.PaymentMethod,
			fmtTime(order.CreatedAt), fmtTime(order.UpdatedAt), order.Version)
		if err != nil {
			if isConstraint(err) {
				return fmt.Errorf("order %s: insert: %w", order.ID, engine.ErrVersionConflict)
			}
			return fmt.Errorf("order %s: insert: %w", order.ID, err)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE orders SET number = ?, items_json = ?, total = ?, status = ?, kitchen_status = ?,
			served_by = ?, payment_method = ?, updated_at = ?, version = ?
		WHERE tenant_id = ? AND id = ? AND version = ?`,
		order.Number, string(items), order.Total.String(), order.Status, order.KitchenStatus,
		order.ServedBy, order.PaymentMethod, fmtTime(order.UpdatedAt), order.Version,
		order.TenantID, order.ID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s at version %d: %w", order.ID, expectedVersion, engine.ErrVersionConflict)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, tenant engine.TenantID, id engine.OrderID) (engine.Order, error) {
	return getOrder(ctx, s.db, tenant, id)
}

func getOrder(ctx context.Context, db dbtx, tenant engine.TenantID, id engine.OrderID) (engine.Order, error) {
	row := db.QueryRowContext(ctx, `
		SELECT tenant_id, id, number, items_json, total, status, kitchen_status,
			served_by, payment_method, created_at, updated_at, version
		FROM orders WHERE tenant_id = ? AND id = ?`, tenant, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return engine.Order{}, fmt.Errorf("order %s: %w", id, engine.ErrOrderNotFound)
	}
	return order, err
}

func (s *Store) ListOrders(ctx context.Context, tenant engine.TenantID) ([]engine.Order, error) {
	return listOrders(ctx, s.db, tenant)
}

func listOrders(ctx context.Context, db dbtx, tenant engine.TenantID) ([]engine.Order, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tenant_id, id, number, items_json, total, status, kitchen_status,
			served_by, payment_method, created_at, updated_at, version
		FROM orders WHERE tenant_id = ? ORDER BY number DESC`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []engine.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type scannable interface{ Scan(dest ...any) error }

func scanOrder(row scannable) (engine.Order, error) {
	var o engine.Order
	var itemsJSON, total, createdAt, updatedAt string
	err := row.Scan(&o.TenantID, &o.ID, &o.Number, &itemsJSON, &total, &o.Status,
		&o.KitchenStatus, &o.ServedBy, &o.PaymentMethod, &createdAt, &updatedAt, &o.Version)
	if err != nil {
		return engine.Order{}, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &o.Items); err != nil {
		return engine.Order{}, fmt.Errorf("unmarshal items: %w", err)
	}
	o.Total = parseDec(total)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return o, nil
}

func (s *Store) NextOrderNumber(ctx context.Context, tenant engine.TenantID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_counters (tenant_id, last_number) VALUES (?, 1)
		ON CONFLICT(tenant_id) DO UPDATE SET last_number = last_number + 1`, tenant)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, `SELECT last_number FROM order_counters WHERE tenant_id = ?`, tenant).Scan(&n)
	return n, err
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) Products(ctx context.Context, tenant engine.TenantID) (engine.Products, error) {
	return loadProducts(ctx, s.db, tenant)
}

func loadProducts(ctx context.Context, db dbtx, tenant engine.TenantID) (engine.Products, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, price, vat_rate, recipe_json FROM products WHERE tenant_id = ?`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(engine.Products)
	for rows.Next() {
		var p engine.Product
		var price, vatRate, recipeJSON string
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &price, &vatRate, &recipeJSON); err != nil {
			return nil, err
		}
		p.Price = parseDec(price)
		p.VATRate = parseDec(vatRate)
		if err := json.Unmarshal([]byte(recipeJSON), &p.Recipe); err != nil {
			return nil, fmt.Errorf("unmarshal recipe: %w", err)
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (s *Store) Ingredients(ctx context.Context, tenant engine.TenantID) (engine.Ingredients, error) {
	return loadIngredients(ctx, s.db, tenant)
}

func loadIngredients(ctx context.Context, db dbtx, tenant engine.TenantID) (engine.Ingredients, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, unit, stock, min_stock, avg_cost FROM ingredients WHERE tenant_id = ?`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make(engine.Ingredients)
	for rows.Next() {
		var ing engine.Ingredient
		var stock, minStock, avgCost string
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Unit, &stock, &minStock, &avgCost); err != nil {
			return nil, err
		}
		ing.Stock = parseDec(stock)
		ing.MinStock = parseDec(minStock)
		ing.AverageCost = parseDec(avgCost)
		ingredients[ing.ID] = ing
	}
	return ingredients, rows.Err()
}

func (s *Store) SaveProduct(ctx context.Context, tenant engine.TenantID, p engine.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProduct(ctx, s.db, tenant, p)
}

func saveProduct(ctx context.Context, db dbtx, tenant engine.TenantID, p engine.Product) error {
	recipe, err := json.Marshal(p.Recipe)
	if err != nil {
		return fmt.Errorf("marshal recipe: %w", err)
	}
	if p.Recipe == nil {
		recipe = []byte("[]")
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (tenant_id, id, name, category, price, vat_rate, recipe_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name, category = excluded.category, price = excluded.price,
			vat_rate = excluded.vat_rate, recipe_json = excluded.recipe_json`,
		tenant, p.ID, p.Name, p.Category, p.Price.String(), p.VATRate.String(), string(recipe))
	return err
}

func (s *Store) SaveIngredients(ctx context.Context, tenant engine.TenantID, ingredients []engine.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveIngredients(ctx, s.db, tenant, ingredients)
}

func saveIngredients(ctx context.Context, db dbtx, tenant engine.TenantID, ingredients []engine.Ingredient) error {
	for _, ing := range ingredients {
		_, err := db.ExecContext(ctx, `
			INSERT INTO ingredients (tenant_id, id, name, unit, stock, min_stock, avg_cost)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name, unit = excluded.unit, stock = excluded.stock,
				min_stock = excluded.min_stock, avg_cost = excluded.avg_cost`,
			tenant, ing.ID, ing.Name, ing.Unit, ing.Stock.String(), ing.MinStock.String(), ing.AverageCost.String())
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// STOCK MOVEMENTS (append-only)
// =============================================================================

func (s *Store) AppendMovements(ctx context.Context, tenant engine.TenantID, movements []engine.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendMovements(ctx, s.db, tenant, movements)
}

func appendMovements(ctx context.Context, db dbtx, tenant engine.TenantID, movements []engine.StockMovement) error {
	for _, mv := range movements {
		_, err := db.ExecContext(ctx, `
			INSERT INTO stock_movements (id, tenant_id, ingredient_id, quantity, type, at, document_ref, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			mv.ID, tenant, mv.IngredientID, mv.Quantity.String(), mv.Type, fmtTime(mv.At), mv.DocumentRef, mv.Reason)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) MovementsByIngredient(ctx context.Context, tenant engine.TenantID, id engine.IngredientID) ([]engine.StockMovement, error) {
	return movementsByIngredient(ctx, s.db, tenant, id)
}

func movementsByIngredient(ctx context.Context, db dbtx, tenant engine.TenantID, id engine.IngredientID) ([]engine.StockMovement, error) {
	return queryMovements(ctx, db, `
		SELECT id, ingredient_id, quantity, type, at, document_ref, reason
		FROM stock_movements WHERE tenant_id = ? AND ingredient_id = ? ORDER BY at`, tenant, id)
}

func (s *Store) MovementsByDocument(ctx context.Context, tenant engine.TenantID, documentRef string) ([]engine.StockMovement, error) {
	return movementsByDocument(ctx, s.db, tenant, documentRef)
}

func movementsByDocument(ctx context.Context, db dbtx, tenant engine.TenantID, documentRef string) ([]engine.StockMovement, error) {
	return queryMovements(ctx, db, `
		SELECT id, ingredient_id, quantity, type, at, document_ref, reason
		FROM stock_movements WHERE tenant_id = ? AND document_ref = ? ORDER BY at`, tenant, documentRef)
}

func queryMovements(ctx context.Context, db dbtx, query string, args ...any) ([]engine.StockMovement, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []engine.StockMovement
	for rows.Next() {
		var mv engine.StockMovement
		var qty, at string
		if err := rows.Scan(&mv.ID, &mv.IngredientID, &qty, &mv.Type, &at, &mv.DocumentRef, &mv.Reason); err != nil {
			return nil, err
		}
		mv.Quantity = parseDec(qty)
		mv.At = parseTime(at)
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

// =============================================================================
// PRICE HISTORY (append-only)
// =============================================================================

func (s *Store) AppendPriceChange(ctx context.Context, tenant engine.TenantID, entry engine.PriceHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPriceChange(ctx, s.db, tenant, entry)
}

func appendPriceChange(ctx context.Context, db dbtx, tenant engine.TenantID, entry engine.PriceHistoryEntry) error {
	retro := 0
	if entry.Retroactive {
		retro = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO price_history (id, tenant_id, product_id, old_price, new_price, changed_at, actor, reason, retroactive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, tenant, entry.ProductID, entry.OldPrice.String(), entry.NewPrice.String(),
		fmtTime(entry.ChangedAt), entry.Actor, entry.Reason, retro)
	return err
}

func (s *Store) PriceHistory(ctx context.Context, tenant engine.TenantID, id engine.ProductID) ([]engine.PriceHistoryEntry, error) {
	return loadPriceHistory(ctx, s.db, tenant, id)
}

func loadPriceHistory(ctx context.Context, db dbtx, tenant engine.TenantID, id engine.ProductID) ([]engine.PriceHistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, old_price, new_price, changed_at, actor, reason, retroactive
		FROM price_history WHERE tenant_id = ? AND product_id = ? ORDER BY changed_at`, tenant, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []engine.PriceHistoryEntry
	for rows.Next() {
		var e engine.PriceHistoryEntry
		var oldPrice, newPrice, changedAt string
		var retro int
		if err := rows.Scan(&e.ID, &e.ProductID, &oldPrice, &newPrice, &changedAt, &e.Actor, &e.Reason, &retro); err != nil {
			return nil, err
		}
		e.OldPrice = parseDec(oldPrice)
		e.NewPrice = parseDec(newPrice)
		e.ChangedAt = parseTime(changedAt)
		e.Retroactive = retro != 0
		history = append(history, e)
	}
	return history, rows.Err()
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func (s *Store) LastInvoiceNumber(ctx context.Context, tenant engine.TenantID) (*engine.InvoiceNumber, error) {
	return lastInvoiceNumber(ctx, s.db, tenant)
}

func lastInvoiceNumber(ctx context.Context, db dbtx, tenant engine.TenantID) (*engine.InvoiceNumber, error) {
	var n engine.InvoiceNumber
	err := db.QueryRowContext(ctx, `
		SELECT year, sequence FROM invoice_numbers WHERE tenant_id = ?
		ORDER BY year DESC, sequence DESC LIMIT 1`, tenant).Scan(&n.Year, &n.Sequence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) RecordInvoiceNumber(ctx context.Context, tenant engine.TenantID, n engine.InvoiceNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordInvoiceNumber(ctx, s.db, tenant, n)
}

func recordInvoiceNumber(ctx context.Context, db dbtx, tenant engine.TenantID, n engine.InvoiceNumber) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO invoice_numbers (tenant_id, year, sequence, issued_at) VALUES (?, ?, ?, ?)`,
		tenant, n.Year, n.Sequence, fmtTime(time.Now()))
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("invoice %s: %w", n.Format(), engine.ErrDuplicateEntry)
		}
		return fmt.Errorf("invoice %s: %w", n.Format(), err)
	}
	return nil
}

// zReportBody holds the report fields not worth individual columns.
type zReportBody struct {
	CashTotal       string             `json:"cash_total"`
	CardTotal       string             `json:"card_total"`
	TotalSales      string             `json:"total_sales"`
	OpeningCash     string             `json:"opening_cash"`
	ClosingCash     string             `json:"closing_cash"`
	TheoreticalCash string             `json:"theoretical_cash"`
	CashVariance    string             `json:"cash_variance"`
	VATBreakdown    []engine.VATLine   `json:"vat_breakdown"`
	StaffBreakdown  []engine.StaffLine `json:"staff_breakdown"`
}

func (s *Store) LastZReport(ctx context.Context, tenant engine.TenantID) (*engine.ZReport, error) {
	return lastZReport(ctx, s.db, tenant)
}

func lastZReport(ctx context.Context, db dbtx, tenant engine.TenantID) (*engine.ZReport, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, sequence_number, date, body_json, previous_hash, current_hash, generated_at
		FROM z_reports WHERE tenant_id = ? ORDER BY sequence_number DESC LIMIT 1`, tenant)
	r, err := scanZReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) AppendZReport(ctx context.Context, tenant engine.TenantID, report engine.ZReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendZReport(ctx, s.db, tenant, report)
}

func appendZReport(ctx context.Context, db dbtx, tenant engine.TenantID, report engine.ZReport) error {
	body, err := json.Marshal(zReportBody{
		CashTotal:       report.CashTotal.String(),
		CardTotal:       report.CardTotal.String(),
		TotalSales:      report.TotalSales.String(),
		OpeningCash:     report.OpeningCash.String(),
		ClosingCash:     report.ClosingCash.String(),
		TheoreticalCash: report.TheoreticalCash.String(),
		CashVariance:    report.CashVariance.String(),
		VATBreakdown:    report.VATBreakdown,
		StaffBreakdown:  report.StaffBreakdown,
	})
	if err != nil {
		return fmt.Errorf("marshal report body: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO z_reports (id, tenant_id, sequence_number, date, body_json, previous_hash, current_hash, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, tenant, report.SequenceNumber, report.Date.Format("2006-01-02"),
		string(body), report.PreviousHash, report.CurrentHash, fmtTime(report.GeneratedAt))
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("report sequence %d: %w", report.SequenceNumber, engine.ErrDuplicateEntry)
		}
		return fmt.Errorf("report sequence %d: %w", report.SequenceNumber, err)
	}
	return nil
}

func (s *Store) ZReports(ctx context.Context, tenant engine.TenantID) ([]engine.ZReport, error) {
	return loadZReports(ctx, s.db, tenant)
}

func loadZReports(ctx context.Context, db dbtx, tenant engine.TenantID) ([]engine.ZReport, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, sequence_number, date, body_json, previous_hash, current_hash, generated_at
		FROM z_reports WHERE tenant_id = ? ORDER BY sequence_number`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []engine.ZReport
	for rows.Next() {
		r, err := scanZReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanZReport(row scannable) (engine.ZReport, error) {
	var r engine.ZReport
	var date, bodyJSON, generatedAt string
	err := row.Scan(&r.ID, &r.TenantID, &r.SequenceNumber, &date, &bodyJSON, &r.PreviousHash, &r.CurrentHash, &generatedAt)
	if err != nil {
		return engine.ZReport{}, err
	}
	r.Date, _ = time.Parse("2006-01-02", date)
	r.GeneratedAt = parseTime(generatedAt)

	var body zReportBody
	if err := json.Unmarshal([]byte(bodyJSON), &body); err != nil {
		return engine.ZReport{}, fmt.Errorf("unmarshal report body: %w", err)
	}
	r.CashTotal = parseDec(body.CashTotal)
	r.CardTotal = parseDec(body.CardTotal)
	r.TotalSales = parseDec(body.TotalSales)
	r.OpeningCash = parseDec(body.OpeningCash)
	r.ClosingCash = parseDec(body.ClosingCash)
	r.TheoreticalCash = parseDec(body.TheoreticalCash)
	r.CashVariance = parseDec(body.CashVariance)
	r.VATBreakdown = body.VATBreakdown
	r.StaffBreakdown = body.StaffBreakdown
	return r, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, db dbtx, entry engine.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, tenant_id, at, actor, action, order_id, reason, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, fmtTime(entry.At), entry.Actor, entry.Action, entry.OrderID, entry.Reason, string(payload))
	return err
}

func (s *Store) AuditEntries(ctx context.Context, tenant engine.TenantID) ([]engine.AuditEntry, error) {
	return loadAuditEntries(ctx, s.db, tenant)
}

func loadAuditEntries(ctx context.Context, db dbtx, tenant engine.TenantID) ([]engine.AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, at, actor, action, order_id, reason, payload_json
		FROM audit_entries WHERE tenant_id = ? ORDER BY at`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.AuditEntry
	for rows.Next() {
		var e engine.AuditEntry
		var at, payloadJSON string
		if err := rows.Scan(&e.ID, &e.TenantID, &at, &e.Actor, &e.Action, &e.OrderID, &e.Reason, &payloadJSON); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal audit payload: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call, reads included, through the open transaction.
// The pool is pinned to one connection, so a read against the pooled DB
// while the transaction holds it would block forever.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveOrder(ctx context.Context, order engine.Order, expectedVersion int) error {
	return saveOrder(ctx, ts.tx, order, expectedVersion)
}

func (ts *txStore) GetOrder(ctx context.Context, tenant engine.TenantID, id engine.OrderID) (engine.Order, error) {
	return getOrder(ctx, ts.tx, tenant, id)
}

func (ts *txStore) ListOrders(ctx context.Context, tenant engine.TenantID) ([]engine.Order, error) {
	return listOrders(ctx, ts.tx, tenant)
}

func (ts *txStore) NextOrderNumber(ctx context.Context, tenant engine.TenantID) (int64, error) {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO order_counters (tenant_id, last_number) VALUES (?, 1)
		ON CONFLICT(tenant_id) DO UPDATE SET last_number = last_number + 1`, tenant)
	if err != nil {
		return 0, err
	}
	var n int64
	err = ts.tx.QueryRowContext(ctx, `SELECT last_number FROM order_counters WHERE tenant_id = ?`, tenant).Scan(&n)
	return n, err
}

func (ts *txStore) Products(ctx context.Context, tenant engine.TenantID) (engine.Products, error) {
	return loadProducts(ctx, ts.tx, tenant)
}

func (ts *txStore) Ingredients(ctx context.Context, tenant engine.TenantID) (engine.Ingredients, error) {
	return loadIngredients(ctx, ts.tx, tenant)
}

func (ts *txStore) SaveProduct(ctx context.Context, tenant engine.TenantID, p engine.Product) error {
	return saveProduct(ctx, ts.tx, tenant, p)
}

func (ts *txStore) SaveIngredients(ctx context.Context, tenant engine.TenantID, ingredients []engine.Ingredient) error {
	return saveIngredients(ctx, ts.tx, tenant, ingredients)
}

func (ts *txStore) AppendMovements(ctx context.Context, tenant engine.TenantID, movements []engine.StockMovement) error {
	return appendMovements(ctx, ts.tx, tenant, movements)
}

func (ts *txStore) MovementsByIngredient(ctx context.Context, tenant engine.TenantID, id engine.IngredientID) ([]engine.StockMovement, error) {
	return movementsByIngredient(ctx, ts.tx, tenant, id)
}

func (ts *txStore) MovementsByDocument(ctx context.Context, tenant engine.TenantID, documentRef string) ([]engine.StockMovement, error) {
	return movementsByDocument(ctx, ts.tx, tenant, documentRef)
}

func (ts *txStore) AppendPriceChange(ctx context.Context, tenant engine.TenantID, entry engine.PriceHistoryEntry) error {
	return appendPriceChange(ctx, ts.tx, tenant, entry)
}

func (ts *txStore) PriceHistory(ctx context.Context, tenant engine.TenantID, id engine.ProductID) ([]engine.PriceHistoryEntry, error) {
	return loadPriceHistory(ctx, ts.tx, tenant, id)
}

func (ts *txStore) LastInvoiceNumber(ctx context.Context, tenant engine.TenantID) (*engine.InvoiceNumber, error) {
	return lastInvoiceNumber(ctx, ts.tx, tenant)
}

func (ts *txStore) RecordInvoiceNumber(ctx context.Context, tenant engine.TenantID, n engine.InvoiceNumber) error {
	return recordInvoiceNumber(ctx, ts.tx, tenant, n)
}

func (ts *txStore) LastZReport(ctx context.Context, tenant engine.TenantID) (*engine.ZReport, error) {
	return lastZReport(ctx, ts.tx, tenant)
}

func (ts *txStore) AppendZReport(ctx context.Context, tenant engine.TenantID, report engine.ZReport) error {
	return appendZReport(ctx, ts.tx, tenant, report)
}

func (ts *txStore) ZReports(ctx context.Context, tenant engine.TenantID) ([]engine.ZReport, error) {
	return loadZReports(ctx, ts.tx, tenant)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry engine.AuditEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

func (ts *txStore) AuditEntries(ctx context.Context, tenant engine.TenantID) ([]engine.AuditEntry, error) {
	return loadAuditEntries(ctx, ts.tx, tenant)
}
