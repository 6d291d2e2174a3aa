/*
handlers_test.go - HTTP-level tests for the API surface

Tests run against a real router and an in-memory store seeded with a small
catalog, exercising request decoding, status mapping and DTO encoding.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-engine/api"
	"github.com/warp/pos-engine/engine"
	"github.com/warp/pos-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T, policy engine.StockPolicy) *httptest.Server {
	t.Helper()

	mem := store.NewMemory()
	ctx := context.Background()
	tenant := engine.TenantID("cafe-1")

	require.NoError(t, mem.SaveProduct(ctx, tenant, engine.Product{
		ID: "burger", Name: "Burger", Price: decimal.RequireFromString("9.90"),
		VATRate: decimal.RequireFromString("0.10"),
		Recipe: []engine.RecipeLine{
			{IngredientID: "bun", Quantity: decimal.RequireFromString("1")},
			{IngredientID: "steak", Quantity: decimal.RequireFromString("0.150")},
		},
	}))
	require.NoError(t, mem.SaveIngredients(ctx, tenant, []engine.Ingredient{
		{ID: "bun", Name: "Bun", Unit: engine.UnitPiece, Stock: decimal.RequireFromString("50"), MinStock: decimal.RequireFromString("10"), AverageCost: decimal.RequireFromString("0.35")},
		{ID: "steak", Name: "Steak", Unit: engine.UnitKg, Stock: decimal.RequireFromString("5"), MinStock: decimal.RequireFromString("1"), AverageCost: decimal.RequireFromString("8.50")},
	}))

	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := engine.NewService(mem, engine.ServiceOptions{Policy: policy})
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(svc, log)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func openTestOrder(t *testing.T, srv *httptest.Server, quantity string) api.OrderDTO {
	t.Helper()
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders", api.OpenOrderRequest{
		Items: []api.OrderItemDTO{
			{ProductID: "burger", Name: "Burger", Quantity: quantity, UnitPrice: "9.90", VATRate: "0.10"},
		},
		ServedBy: "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var order api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &order))
	return order
}

// =============================================================================
// ORDER ENDPOINTS
// =============================================================================

func TestAPI_OpenAndGetOrder(t *testing.T) {
	// GIVEN: A seeded catalog
	srv := newTestServer(t, engine.PolicyWarn)

	// WHEN: A two-burger order is opened and fetched back
	order := openTestOrder(t, srv, "2")

	// THEN: The order is numbered, totalled and retrievable
	assert.Equal(t, int64(1), order.Number)
	assert.Equal(t, "19.8", order.Total)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, 1, order.Version)

	resp, raw := doJSON(t, http.MethodGet, srv.URL+"/api/tenants/cafe-1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, order.ID, fetched.ID)
}

func TestAPI_GetOrder_NotFound(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/tenants/cafe-1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_OpenOrder_BlockPolicy(t *testing.T) {
	// GIVEN: Block policy and only 5kg of steak (40 burgers need 6kg)
	srv := newTestServer(t, engine.PolicyBlock)

	// WHEN: An oversized order is opened
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders", api.OpenOrderRequest{
		Items: []api.OrderItemDTO{
			{ProductID: "burger", Quantity: "40", UnitPrice: "9.90"},
		},
		ServedBy: "alice",
	})

	// THEN: The request is rejected with a message naming the shortage
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Contains(t, errResp.Error, "Steak")
}

func TestAPI_OpenOrder_WarnPolicyReturnsWarnings(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)

	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders", api.OpenOrderRequest{
		Items: []api.OrderItemDTO{
			{ProductID: "burger", Quantity: "40", UnitPrice: "9.90"},
		},
		ServedBy: "alice",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &order))
	require.Len(t, order.Warnings, 1)
}

func TestAPI_CancelFlow(t *testing.T) {
	// GIVEN: A pending order
	srv := newTestServer(t, engine.PolicyWarn)
	order := openTestOrder(t, srv, "1")
	base := srv.URL + "/api/tenants/cafe-1/orders/" + order.ID

	// WHEN: It is cancelled with a reason
	resp, raw := doJSON(t, http.MethodPost, base+"/cancel", api.CancelOrderRequest{Reason: "customer left", Actor: "alice"})

	// THEN: The order is cancelled and a repeat cancel is rejected
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	var cancelled api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)

	resp, _ = doJSON(t, http.MethodPost, base+"/cancel", api.CancelOrderRequest{Reason: "again", Actor: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CancelWithoutReason(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)
	order := openTestOrder(t, srv, "1")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders/"+order.ID+"/cancel",
		api.CancelOrderRequest{Reason: "", Actor: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RefundFlow(t *testing.T) {
	// GIVEN: A completed card order
	srv := newTestServer(t, engine.PolicyWarn)
	order := openTestOrder(t, srv, "2")
	base := srv.URL + "/api/tenants/cafe-1/orders/" + order.ID

	resp, _ := doJSON(t, http.MethodPost, base+"/complete", api.CompleteOrderRequest{PaymentMethod: "card"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// WHEN: Its only line is refunded
	resp, raw := doJSON(t, http.MethodPost, base+"/refund", api.RefundRequest{ItemIndices: []int{0}, Actor: "manager"})

	// THEN: The total drops to zero and the line is flagged
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	var refunded api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &refunded))
	assert.Equal(t, "0", refunded.Total)
	assert.True(t, refunded.Items[0].Refunded)
}

func TestAPI_AdvanceKitchen(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)
	order := openTestOrder(t, srv, "1")

	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders/"+order.ID+"/kitchen/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var advanced api.OrderDTO
	require.NoError(t, json.Unmarshal(raw, &advanced))
	assert.Equal(t, "preparing", advanced.KitchenStatus)
}

// =============================================================================
// STOCK ENDPOINTS
// =============================================================================

func TestAPI_StockFlow(t *testing.T) {
	// GIVEN: 5kg of steak in stock with a 1kg threshold
	srv := newTestServer(t, engine.PolicyWarn)
	base := srv.URL + "/api/tenants/cafe-1/stock"

	// WHEN: 5kg is received then 9.5kg wasted
	resp, _ := doJSON(t, http.MethodPost, base+"/steak/receive", api.ReceiveStockRequest{Quantity: "5", UnitCost: "10.50", DocumentRef: "po-1"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/steak/waste", api.WasteRequest{Quantity: "9.5", Reason: "freezer failure"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// THEN: Steak shows up alone on the low-stock report
	resp, raw := doJSON(t, http.MethodGet, base+"/low", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var low []api.IngredientDTO
	require.NoError(t, json.Unmarshal(raw, &low))
	require.Len(t, low, 1)
	assert.Equal(t, "steak", low[0].ID)
	assert.Equal(t, "0.5", low[0].Stock)
}

func TestAPI_WasteExceedingStock(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/stock/steak/waste", api.WasteRequest{Quantity: "100", Reason: "oops"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// PRICING ENDPOINTS
// =============================================================================

func TestAPI_ChangePriceAndHistory(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)
	base := srv.URL + "/api/tenants/cafe-1/products/burger"

	resp, _ := doJSON(t, http.MethodPut, base+"/price", api.ChangePriceRequest{NewPrice: "10.90", Actor: "alice", Reason: "cost increase"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := doJSON(t, http.MethodGet, base+"/price-history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []api.PriceHistoryDTO
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "9.9", history[0].OldPrice)
	assert.Equal(t, "10.9", history[0].NewPrice)
}

func TestAPI_ChangePrice_Invalid(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)
	base := srv.URL + "/api/tenants/cafe-1/products"

	resp, _ := doJSON(t, http.MethodPut, base+"/burger/price", api.ChangePriceRequest{NewPrice: "0", Actor: "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPut, base+"/missing/price", api.ChangePriceRequest{NewPrice: "5", Actor: "alice"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// AUDIT TRAIL ENDPOINTS
// =============================================================================

func TestAPI_IssueInvoices(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)
	url := srv.URL + "/api/tenants/cafe-1/invoices"

	resp, raw := doJSON(t, http.MethodPost, url, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first api.InvoiceNumberDTO
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.Equal(t, 1, first.Sequence)

	_, raw = doJSON(t, http.MethodPost, url, nil)
	var second api.InvoiceNumberDTO
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, first.Year, second.Year)
}

func TestAPI_CloseDayAndVerify(t *testing.T) {
	// GIVEN: One completed cash sale today
	srv := newTestServer(t, engine.PolicyWarn)
	order := openTestOrder(t, srv, "2")
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/orders/"+order.ID+"/complete", api.CompleteOrderRequest{PaymentMethod: "cash"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// WHEN: The day is closed with matching cash counts
	resp, raw := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/reports/close", api.CloseDayRequest{
		Date:        order.CreatedAt[:10],
		OpeningCash: "100",
		ClosingCash: "119.80",
	})

	// THEN: A hashed first report is produced and the chain verifies
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var report api.ZReportDTO
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, int64(1), report.SequenceNumber)
	assert.Equal(t, "19.8", report.TotalSales)
	assert.Empty(t, report.PreviousHash)
	assert.NotEmpty(t, report.CurrentHash)

	resp, raw = doJSON(t, http.MethodGet, srv.URL+"/api/tenants/cafe-1/reports/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verdict map[string]any
	require.NoError(t, json.Unmarshal(raw, &verdict))
	assert.Equal(t, true, verdict["valid"])
}

func TestAPI_CloseDay_BadDate(t *testing.T) {
	srv := newTestServer(t, engine.PolicyWarn)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/tenants/cafe-1/reports/close", api.CloseDayRequest{
		Date: "10/03/2026", OpeningCash: "0", ClosingCash: "0",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
