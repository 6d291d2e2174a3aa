/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Quantities and prices travel as strings so clients
  never push float rounding into the engine's decimal arithmetic.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Handlers validate; DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-engine/engine"
)

// =============================================================================
// ORDERS
// =============================================================================

type OrderItemDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	VATRate   string `json:"vat_rate,omitempty"`
	Note      string `json:"note,omitempty"`
	Refunded  bool   `json:"refunded,omitempty"`
}

type OrderDTO struct {
	ID            string         `json:"id"`
	Number        int64          `json:"number"`
	Items         []OrderItemDTO `json:"items"`
	Total         string         `json:"total"`
	Status        string         `json:"status"`
	KitchenStatus string         `json:"kitchen_status"`
	ServedBy      string         `json:"served_by,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
	Version       int            `json:"version"`
	Warnings      []string       `json:"warnings,omitempty"`
}

type OpenOrderRequest struct {
	Items    []OrderItemDTO `json:"items"`
	ServedBy string         `json:"served_by"`
}

type AddItemRequest struct {
	Item OrderItemDTO `json:"item"`
}

type UpdateQuantityRequest struct {
	Quantity string `json:"quantity"`
}

type CompleteOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type RefundRequest struct {
	ItemIndices []int  `json:"item_indices"`
	Actor       string `json:"actor"`
}

type SyncOrdersRequest struct {
	Orders []SyncOrderDTO `json:"orders"`
}

// SyncOrderDTO is a full order representation from an offline device,
// including the fields the merge decides on.
type SyncOrderDTO struct {
	OrderDTO
	TenantID string `json:"tenant_id,omitempty"`
}

// =============================================================================
// STOCK
// =============================================================================

type IngredientDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Stock       string `json:"stock"`
	MinStock    string `json:"min_stock"`
	AverageCost string `json:"average_cost"`
}

type ReceiveStockRequest struct {
	Quantity    string `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	DocumentRef string `json:"document_ref"`
}

type WasteRequest struct {
	Quantity string `json:"quantity"`
	Reason   string `json:"reason"`
}

type AdjustStockRequest struct {
	Delta  string `json:"delta"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// =============================================================================
// PRICING
// =============================================================================

type ChangePriceRequest struct {
	NewPrice string `json:"new_price"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason"`
}

type PriceHistoryDTO struct {
	ProductID string `json:"product_id"`
	OldPrice  string `json:"old_price"`
	NewPrice  string `json:"new_price"`
	ChangedAt string `json:"changed_at"`
	Actor     string `json:"actor,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type InvoiceNumberDTO struct {
	Year      int    `json:"year"`
	Sequence  int    `json:"sequence"`
	Formatted string `json:"formatted"`
}

type CloseDayRequest struct {
	Date        string `json:"date"` // YYYY-MM-DD
	OpeningCash string `json:"opening_cash"`
	ClosingCash string `json:"closing_cash"`
}

type ZReportDTO struct {
	SequenceNumber  int64          `json:"sequence_number"`
	Date            string         `json:"date"`
	CashTotal       string         `json:"cash_total"`
	CardTotal       string         `json:"card_total"`
	TotalSales      string         `json:"total_sales"`
	OpeningCash     string         `json:"opening_cash"`
	ClosingCash     string         `json:"closing_cash"`
	TheoreticalCash string         `json:"theoretical_cash"`
	CashVariance    string         `json:"cash_variance"`
	VAT             []VATLineDTO   `json:"vat_breakdown"`
	Staff           []StaffLineDTO `json:"staff_breakdown"`
	PreviousHash    string         `json:"previous_hash,omitempty"`
	CurrentHash     string         `json:"current_hash"`
}

type VATLineDTO struct {
	Rate   string `json:"rate"`
	Base   string `json:"base"`
	Amount string `json:"amount"`
}

type StaffLineDTO struct {
	Staff      string `json:"staff"`
	OrderCount int    `json:"order_count"`
	Total      string `json:"total"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toOrderDTO(o engine.Order, warnings []error) OrderDTO {
	items := make([]OrderItemDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemDTO{
			ProductID: string(it.ProductID),
			Name:      it.Name,
			Quantity:  it.Quantity.String(),
			UnitPrice: it.UnitPrice.String(),
			VATRate:   it.VATRate.String(),
			Note:      it.Note,
			Refunded:  it.Refunded,
		}
	}
	dto := OrderDTO{
		ID:            string(o.ID),
		Number:        o.Number,
		Items:         items,
		Total:         o.Total.String(),
		Status:        string(o.Status),
		KitchenStatus: string(o.KitchenStatus),
		ServedBy:      o.ServedBy,
		PaymentMethod: string(o.PaymentMethod),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
		Version:       o.Version,
	}
	for _, w := range warnings {
		dto.Warnings = append(dto.Warnings, w.Error())
	}
	return dto
}

func (d OrderItemDTO) toItem() (engine.OrderItem, error) {
	qty, err := decimal.NewFromString(d.Quantity)
	if err != nil {
		return engine.OrderItem{}, err
	}
	price, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return engine.OrderItem{}, err
	}
	vat := decimal.Zero
	if d.VATRate != "" {
		vat, err = decimal.NewFromString(d.VATRate)
		if err != nil {
			return engine.OrderItem{}, err
		}
	}
	return engine.OrderItem{
		ProductID: engine.ProductID(d.ProductID),
		Name:      d.Name,
		Quantity:  qty,
		UnitPrice: price,
		VATRate:   vat,
		Note:      d.Note,
		Refunded:  d.Refunded,
	}, nil
}

func (d SyncOrderDTO) toOrder(tenant engine.TenantID) (engine.Order, error) {
	items := make([]engine.OrderItem, len(d.Items))
	for i, it := range d.Items {
		item, err := it.toItem()
		if err != nil {
			return engine.Order{}, err
		}
		items[i] = item
	}
	total, err := decimal.NewFromString(d.Total)
	if err != nil {
		return engine.Order{}, err
	}
	createdAt, err := time.Parse(time.RFC3339, d.CreatedAt)
	if err != nil {
		return engine.Order{}, err
	}
	updatedAt, err := time.Parse(time.RFC3339, d.UpdatedAt)
	if err != nil {
		return engine.Order{}, err
	}
	return engine.Order{
		ID:            engine.OrderID(d.ID),
		Number:        d.Number,
		TenantID:      tenant,
		Items:         items,
		Total:         total,
		Status:        engine.OrderStatus(d.Status),
		KitchenStatus: engine.KitchenStatus(d.KitchenStatus),
		ServedBy:      d.ServedBy,
		PaymentMethod: engine.PaymentMethod(d.PaymentMethod),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
		Version:       d.Version,
	}, nil
}

func toIngredientDTO(ing engine.Ingredient) IngredientDTO {
	return IngredientDTO{
		ID:          string(ing.ID),
		Name:        ing.Name,
		Unit:        string(ing.Unit),
		Stock:       ing.Stock.String(),
		MinStock:    ing.MinStock.String(),
		AverageCost: ing.AverageCost.String(),
	}
}

func toZReportDTO(r engine.ZReport) ZReportDTO {
	dto := ZReportDTO{
		SequenceNumber:  r.SequenceNumber,
		Date:            r.Date.Format("2006-01-02"),
		CashTotal:       r.CashTotal.String(),
		CardTotal:       r.CardTotal.String(),
		TotalSales:      r.TotalSales.String(),
		OpeningCash:     r.OpeningCash.String(),
		ClosingCash:     r.ClosingCash.String(),
		TheoreticalCash: r.TheoreticalCash.String(),
		CashVariance:    r.CashVariance.String(),
		PreviousHash:    r.PreviousHash,
		CurrentHash:     r.CurrentHash,
	}
	for _, v := range r.VATBreakdown {
		dto.VAT = append(dto.VAT, VATLineDTO{Rate: v.Rate.String(), Base: v.Base.String(), Amount: v.Amount.String()})
	}
	for _, s := range r.StaffBreakdown {
		dto.Staff = append(dto.Staff, StaffLineDTO{Staff: s.Staff, OrderCount: s.OrderCount, Total: s.Total.String()})
	}
	return dto
}
