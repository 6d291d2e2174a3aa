/*
handlers.go - HTTP API handlers for the POS engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates everything else to engine.Service.

ENDPOINTS (all under /api/tenants/{tenant}):
  Orders:
    GET    /orders                       List orders
    POST   /orders                       Open a new order
    GET    /orders/{id}                  Get one order
    POST   /orders/{id}/items            Add an item
    DELETE /orders/{id}/items/{index}    Remove an item
    PUT    /orders/{id}/items/{index}    Change an item's quantity
    POST   /orders/{id}/complete         Mark paid
    POST   /orders/{id}/cancel           Cancel with restock + audit
    POST   /orders/{id}/refund           Partial refund
    POST   /orders/{id}/kitchen/advance  Advance kitchen status
    POST   /orders/sync                  Reconcile an offline snapshot

  Stock:
    GET    /stock/low                    Ingredients under minimum
    POST   /stock/{id}/receive           Goods receipt (PMP update)
    POST   /stock/{id}/waste             Record spoilage
    POST   /stock/{id}/adjust            Manual correction

  Pricing:
    PUT    /products/{id}/price          Guarded price change
    GET    /products/{id}/price-history  Append-only history

  Audit trail:
    POST   /invoices                     Issue next invoice number
    POST   /reports/close                Generate the day's Z-report
    GET    /reports                      List reports
    GET    /reports/verify               Recompute the hash chain
    GET    /audit                        Audit entries

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Version conflicts, duplicates, chain breaks
  - 500: Internal errors
  The body carries the user-facing message; internals stay in logs.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/pos-engine/engine"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *engine.Service
	Log     *logrus.Logger
}

func NewHandler(service *engine.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Service: service, Log: log}
}

func tenantParam(r *http.Request) engine.TenantID {
	return engine.TenantID(chi.URLParam(r, "tenant"))
}

func orderParam(r *http.Request) engine.OrderID {
	return engine.OrderID(chi.URLParam(r, "id"))
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Service.Store.ListOrders(r.Context(), tenantParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]OrderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = toOrderDTO(o, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Service.Store.GetOrder(r.Context(), tenantParam(r), orderParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func (h *Handler) OpenOrder(w http.ResponseWriter, r *http.Request) {
	var req OpenOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	items := make([]engine.OrderItem, len(req.Items))
	for i, d := range req.Items {
		item, err := d.toItem()
		if err != nil {
			h.badRequest(w, "invalid item", err)
			return
		}
		items[i] = item
	}

	order, warnings, err := h.Service.OpenOrder(r.Context(), tenantParam(r), items, req.ServedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(order, warnings))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	item, err := req.Item.toItem()
	if err != nil {
		h.badRequest(w, "invalid item", err)
		return
	}

	order, warnings, err := h.Service.AddItem(r.Context(), tenantParam(r), orderParam(r), item)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, warnings))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.badRequest(w, "invalid item index", err)
		return
	}
	order, warnings, err := h.Service.RemoveItem(r.Context(), tenantParam(r), orderParam(r), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, warnings))
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.badRequest(w, "invalid item index", err)
		return
	}
	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		h.badRequest(w, "invalid quantity", err)
		return
	}

	order, warnings, err := h.Service.UpdateQuantity(r.Context(), tenantParam(r), orderParam(r), index, qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, warnings))
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req CompleteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	order, err := h.Service.CompleteOrder(r.Context(), tenantParam(r), orderParam(r), engine.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	order, err := h.Service.CancelOrder(r.Context(), tenantParam(r), orderParam(r), req.Reason, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func (h *Handler) RefundItems(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	order, err := h.Service.RefundItems(r.Context(), tenantParam(r), orderParam(r), req.ItemIndices, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func (h *Handler) AdvanceKitchen(w http.ResponseWriter, r *http.Request) {
	order, err := h.Service.AdvanceKitchen(r.Context(), tenantParam(r), orderParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order, nil))
}

func (h *Handler) SyncOrders(w http.ResponseWriter, r *http.Request) {
	var req SyncOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	tenant := tenantParam(r)
	remote := make([]engine.Order, len(req.Orders))
	for i, d := range req.Orders {
		order, err := d.toOrder(tenant)
		if err != nil {
			h.badRequest(w, "invalid order in sync payload", err)
			return
		}
		remote[i] = order
	}

	merged, err := h.Service.SyncOrders(r.Context(), tenant, remote)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]OrderDTO, len(merged))
	for i, o := range merged {
		dtos[i] = toOrderDTO(o, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	low, err := h.Service.LowStock(r.Context(), tenantParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]IngredientDTO, len(low))
	for i, ing := range low {
		dtos[i] = toIngredientDTO(ing)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		h.badRequest(w, "invalid quantity", err)
		return
	}
	cost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		h.badRequest(w, "invalid unit cost", err)
		return
	}

	id := engine.IngredientID(chi.URLParam(r, "id"))
	if err := h.Service.ReceiveStock(r.Context(), tenantParam(r), id, qty, cost, req.DocumentRef); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RecordWaste(w http.ResponseWriter, r *http.Request) {
	var req WasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		h.badRequest(w, "invalid quantity", err)
		return
	}

	id := engine.IngredientID(chi.URLParam(r, "id"))
	if err := h.Service.RecordWaste(r.Context(), tenantParam(r), id, qty, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		h.badRequest(w, "invalid delta", err)
		return
	}

	id := engine.IngredientID(chi.URLParam(r, "id"))
	if err := h.Service.AdjustStock(r.Context(), tenantParam(r), id, delta, req.Reason, req.Actor); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PRICING HANDLERS
// =============================================================================

func (h *Handler) ChangePrice(w http.ResponseWriter, r *http.Request) {
	var req ChangePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	price, err := decimal.NewFromString(req.NewPrice)
	if err != nil {
		h.badRequest(w, "invalid price", err)
		return
	}

	id := engine.ProductID(chi.URLParam(r, "id"))
	product, warnings, err := h.Service.ChangePrice(r.Context(), tenantParam(r), id, price, req.Actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]any{"id": product.ID, "price": product.Price.String()}
	if len(warnings) > 0 {
		msgs := make([]string, len(warnings))
		for i, wrn := range warnings {
			msgs[i] = wrn.Error()
		}
		resp["warnings"] = msgs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	id := engine.ProductID(chi.URLParam(r, "id"))
	history, err := h.Service.Store.PriceHistory(r.Context(), tenantParam(r), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]PriceHistoryDTO, len(history))
	for i, e := range history {
		dtos[i] = PriceHistoryDTO{
			ProductID: string(e.ProductID),
			OldPrice:  e.OldPrice.String(),
			NewPrice:  e.NewPrice.String(),
			ChangedAt: e.ChangedAt.Format(time.RFC3339),
			Actor:     e.Actor,
			Reason:    e.Reason,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AUDIT TRAIL HANDLERS
// =============================================================================

func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.IssueInvoice(r.Context(), tenantParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, InvoiceNumberDTO{Year: n.Year, Sequence: n.Sequence, Formatted: n.Format()})
}

func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	var req CloseDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.badRequest(w, "invalid date (use YYYY-MM-DD)", err)
		return
	}
	opening, err := decimal.NewFromString(req.OpeningCash)
	if err != nil {
		h.badRequest(w, "invalid opening cash", err)
		return
	}
	closing, err := decimal.NewFromString(req.ClosingCash)
	if err != nil {
		h.badRequest(w, "invalid closing cash", err)
		return
	}

	report, err := h.Service.CloseDay(r.Context(), tenantParam(r), date, opening, closing)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toZReportDTO(report))
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Service.Store.ZReports(r.Context(), tenantParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]ZReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toZReportDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) VerifyReports(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.VerifyReports(r.Context(), tenantParam(r)); err != nil {
		var chain *engine.ChainError
		if errors.As(err, &chain) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"valid":    false,
				"sequence": chain.SequenceNumber,
				"field":    chain.Field,
			})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (h *Handler) AuditEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Store.AuditEntries(r.Context(), tenantParam(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) badRequest(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeError maps engine errors to HTTP statuses. The response body carries
// the user-facing message; the technical one goes to the log.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrOrderNotFound), errors.Is(err, engine.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrVersionConflict),
		errors.Is(err, engine.ErrDuplicateEntry),
		errors.Is(err, engine.ErrChainBroken):
		status = http.StatusConflict
	case engine.IsClientError(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed")
	} else {
		h.Log.WithError(err).Debug("request rejected")
	}
	writeJSON(w, status, ErrorResponse{Error: engine.UserMessage(err)})
}
