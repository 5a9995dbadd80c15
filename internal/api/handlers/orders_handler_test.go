package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/services"
	"example.com/procurement/internal/tracing"
)

// stubOrderRepo holds one order and mirrors the store's conditional update
// so receipt confirmations behave like they do against Postgres.
type stubOrderRepo struct {
	order *models.PurchaseOrder
}

func (r *stubOrderRepo) Create(ctx context.Context, order *models.PurchaseOrder) error {
	r.order = order
	return nil
}

func (r *stubOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	if r.order == nil || r.order.ID != id {
		return nil, repositories.ErrOrderNotFound
	}
	cp := *r.order
	cp.Items = append([]models.LineItem(nil), r.order.Items...)
	return &cp, nil
}

func (r *stubOrderRepo) List(ctx context.Context) ([]models.PurchaseOrder, error) {
	if r.order == nil {
		return nil, nil
	}
	return []models.PurchaseOrder{*r.order}, nil
}

func (r *stubOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if r.order == nil || r.order.ID != id {
		return repositories.ErrOrderNotFound
	}
	r.order.Status = status
	return nil
}

func (r *stubOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if r.order == nil || r.order.ID != id {
		return repositories.ErrOrderNotFound
	}
	r.order = nil
	return nil
}

func (r *stubOrderRepo) NextPONumber(ctx context.Context, now time.Time) (int64, error) {
	return 1, nil
}

func (r *stubOrderRepo) ConfirmDelivery(ctx context.Context, itemID uuid.UUID, priorReceived float64, record *models.DeliveryRecord) error {
	for i := range r.order.Items {
		item := &r.order.Items[i]
		if item.ID != itemID {
			continue
		}
		if item.QuantityReceived != priorReceived {
			return repositories.ErrStaleItem
		}
		item.QuantityReceived = priorReceived + record.QuantityReceived
		item.Deliveries = append(item.Deliveries, *record)
		return nil
	}
	return repositories.ErrOrderNotFound
}

func (r *stubOrderRepo) FindStaleWithPendingItems(ctx context.Context, cutoff time.Time) ([]models.PurchaseOrder, error) {
	return nil, nil
}

func newTestRouter(repo repositories.OrderRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tracer := &tracing.NewRelicTracer{}
	orderService := services.NewOrderService(repo, tracer)
	receiptService := services.NewReceiptService(repo, nil, metrics.NewMetrics(), tracer)

	router := gin.New()
	NewOrdersHandler(orderService, receiptService).RegisterRoutes(router)
	return router
}

func seedStubOrder(quantityOrdered, quantityReceived float64) *stubOrderRepo {
	return &stubOrderRepo{order: &models.PurchaseOrder{
		ID:         uuid.New(),
		PONumber:   "PO-202608-0001",
		VendorID:   uuid.New(),
		VendorName: "Acme Supplies",
		Status:     models.StatusSent,
		CreatedBy:  "buyer",
		Items: []models.LineItem{{
			ID:               uuid.New(),
			Position:         0,
			ProductID:        uuid.New(),
			ProductName:      "Steel Rods",
			QuantityOrdered:  quantityOrdered,
			QuantityReceived: quantityReceived,
		}},
	}}
}

func confirmReceipt(router *gin.Engine, orderID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/purchase-orders/%s/confirm-item-receipt", orderID),
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConfirmItemReceiptOK(t *testing.T) {
	repo := seedStubOrder(10, 0)
	router := newTestRouter(repo)

	w := confirmReceipt(router, repo.order.ID.String(),
		`{"item_index": 0, "quantity_received": 4, "received_by": "warehouse"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ConfirmReceiptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.ItemFullyReceived)
	require.Equal(t, 4.0, resp.TotalReceived)
	require.Equal(t, 6.0, resp.Pending)
}

func TestConfirmItemReceiptOverReceiptIs400(t *testing.T) {
	repo := seedStubOrder(10, 8)
	router := newTestRouter(repo)

	w := confirmReceipt(router, repo.order.ID.String(),
		`{"item_index": 0, "quantity_received": 4, "received_by": "warehouse"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 10.0, resp["quantity_ordered"])
	require.Equal(t, 8.0, resp["already_received"])
}

func TestConfirmItemReceiptBadIndexIs400(t *testing.T) {
	repo := seedStubOrder(10, 0)
	router := newTestRouter(repo)

	w := confirmReceipt(router, repo.order.ID.String(),
		`{"item_index": 5, "quantity_received": 1, "received_by": "warehouse"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 5.0, resp["item_index"])
	require.Equal(t, 1.0, resp["item_count"])
}

func TestConfirmItemReceiptUnknownOrderIs404(t *testing.T) {
	router := newTestRouter(seedStubOrder(10, 0))

	w := confirmReceipt(router, uuid.NewString(),
		`{"item_index": 0, "quantity_received": 1, "received_by": "warehouse"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmItemReceiptRejectsMalformedBody(t *testing.T) {
	repo := seedStubOrder(10, 0)
	router := newTestRouter(repo)

	// Missing item_index, zero quantity, missing received_by.
	for _, body := range []string{
		`{"quantity_received": 4, "received_by": "warehouse"}`,
		`{"item_index": 0, "quantity_received": 0, "received_by": "warehouse"}`,
		`{"item_index": 0, "quantity_received": 4}`,
	} {
		w := confirmReceipt(router, repo.order.ID.String(), body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	repo := &stubOrderRepo{}
	router := newTestRouter(repo)

	body := fmt.Sprintf(`{
		"vendor_id": %q,
		"vendor_name": "Acme Supplies",
		"created_by": "buyer",
		"items": [{"product_id": %q, "product_name": "Steel Rods", "quantity": 10, "unit_price": 2.5}]
	}`, uuid.NewString(), uuid.NewString())

	req := httptest.NewRequest(http.MethodPost, "/purchase-orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var order models.PurchaseOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	require.Equal(t, models.StatusDraft, order.Status)
	require.Regexp(t, `^PO-\d{6}-0001$`, order.PONumber)
	require.Len(t, order.Items, 1)
}
