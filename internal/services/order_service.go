package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/tracing"
)

// LineItemInput is one ordered line in an order creation request.
type LineItemInput struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    float64
	UnitPrice   float64
	TaxRate     float64
}

// CreateOrderInput carries a validated order creation request.
type CreateOrderInput struct {
	VendorID        uuid.UUID
	VendorName      string
	Items           []LineItemInput
	DeliveryDate    string
	PaymentTerms    string
	ShippingAddress string
	Notes           string
	CreatedBy       string
}

// OrderService handles purchase order lifecycle outside of receipt
// reconciliation.
type OrderService struct {
	orders repositories.OrderRepository
	tracer tracing.Tracer
}

// NewOrderService creates a new order service.
func NewOrderService(orders repositories.OrderRepository, tracer tracing.Tracer) *OrderService {
	return &OrderService{orders: orders, tracer: tracer}
}

// CreateOrder assigns the next PO number for the current month, builds the
// line items with stable ids and positions, and stores the order as a draft.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.PurchaseOrder, error) {
	txn := s.tracer.StartTransaction("create-purchase-order")
	defer s.tracer.EndTransaction(txn)

	if len(input.Items) == 0 {
		return nil, errors.New("order must have at least one line item")
	}
	for i, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, errors.Errorf("line item %d: quantity must be greater than zero", i)
		}
	}

	now := time.Now().UTC()
	seq, err := s.orders.NextPONumber(ctx, now)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	order := &models.PurchaseOrder{
		ID:              uuid.New(),
		PONumber:        fmt.Sprintf("PO-%s-%04d", now.Format("200601"), seq),
		VendorID:        input.VendorID,
		VendorName:      input.VendorName,
		Status:          models.StatusDraft,
		DeliveryDate:    input.DeliveryDate,
		PaymentTerms:    input.PaymentTerms,
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var subtotal, tax float64
	for i, in := range input.Items {
		lineTotal := in.Quantity * in.UnitPrice
		taxAmount := lineTotal * in.TaxRate
		order.Items = append(order.Items, models.LineItem{
			ID:              uuid.New(),
			PurchaseOrderID: order.ID,
			Position:        i,
			ProductID:       in.ProductID,
			ProductName:     in.ProductName,
			QuantityOrdered: in.Quantity,
			UnitPrice:       in.UnitPrice,
			TaxRate:         in.TaxRate,
			TaxAmount:       taxAmount,
			LineTotal:       lineTotal,
		})
		subtotal += lineTotal
		tax += taxAmount
	}
	order.Subtotal = subtotal
	order.Tax = tax
	order.Total = subtotal + tax

	if err := s.orders.Create(ctx, order); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("po_number", order.PONumber).
		Str("vendor", order.VendorName).
		Int("items", len(order.Items)).
		Msg("Purchase order created")
	return order, nil
}

// GetOrder fetches one order with its items and delivery history.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns all orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	return s.orders.List(ctx)
}

// UpdateStatus sets the order's lifecycle tag.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.orders.UpdateStatus(ctx, id, status)
}

// DeleteOrder removes an order and, through the store's cascade, its items
// and delivery history.
func (s *OrderService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.orders.Delete(ctx, id)
}
