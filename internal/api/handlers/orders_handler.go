package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/services"
)

// OrdersHandler handles purchase order HTTP requests, including delivery
// confirmation.
type OrdersHandler struct {
	orderService   *services.OrderService
	receiptService *services.ReceiptService
}

// NewOrdersHandler creates a new orders handler.
func NewOrdersHandler(orderService *services.OrderService, receiptService *services.ReceiptService) *OrdersHandler {
	return &OrdersHandler{
		orderService:   orderService,
		receiptService: receiptService,
	}
}

// LineItemRequest is one ordered line in an order creation request.
type LineItemRequest struct {
	ProductID   uuid.UUID `json:"product_id" binding:"required"`
	ProductName string    `json:"product_name" binding:"required"`
	Quantity    float64   `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64   `json:"unit_price" binding:"gte=0"`
	TaxRate     float64   `json:"tax_rate" binding:"gte=0"`
}

// CreateOrderRequest is an order creation request body.
type CreateOrderRequest struct {
	VendorID        uuid.UUID         `json:"vendor_id" binding:"required"`
	VendorName      string            `json:"vendor_name" binding:"required"`
	Items           []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryDate    string            `json:"delivery_date"`
	PaymentTerms    string            `json:"payment_terms"`
	ShippingAddress string            `json:"shipping_address"`
	Notes           string            `json:"notes"`
	CreatedBy       string            `json:"created_by" binding:"required"`
}

// HandleCreateOrder creates a purchase order.
func (h *OrdersHandler) HandleCreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.CreateOrderInput{
		VendorID:        req.VendorID,
		VendorName:      req.VendorName,
		DeliveryDate:    req.DeliveryDate,
		PaymentTerms:    req.PaymentTerms,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
		CreatedBy:       req.CreatedBy,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, services.LineItemInput{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
		})
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create purchase order")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// HandleListOrders lists all purchase orders, newest first.
func (h *OrdersHandler) HandleListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// HandleGetOrder fetches one purchase order.
func (h *OrdersHandler) HandleGetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateStatusRequest carries a status patch.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// HandleUpdateStatus patches the order's lifecycle tag.
func (h *OrdersHandler) HandleUpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orderService.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// HandleDeleteOrder removes a purchase order.
func (h *OrdersHandler) HandleDeleteOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := h.orderService.DeleteOrder(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Purchase order deleted"})
}

// ConfirmReceiptRequest is a delivery confirmation for one line item,
// addressed by its position in the order's item list.
type ConfirmReceiptRequest struct {
	ItemIndex        *int    `json:"item_index" binding:"required,gte=0"`
	QuantityReceived float64 `json:"quantity_received" binding:"required,gt=0"`
	ReceivedBy       string  `json:"received_by" binding:"required"`
	Notes            string  `json:"notes"`
}

// ConfirmReceiptResponse reports the reconciled totals after a confirmation.
type ConfirmReceiptResponse struct {
	Message            string  `json:"message"`
	ItemFullyReceived  bool    `json:"item_fully_received"`
	OrderFullyReceived bool    `json:"po_fully_received"`
	QuantityReceived   float64 `json:"quantity_received"`
	TotalReceived      float64 `json:"total_received"`
	Pending            float64 `json:"pending"`
}

// HandleConfirmItemReceipt records a partial delivery against one line item.
func (h *OrdersHandler) HandleConfirmItemReceipt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req ConfirmReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.receiptService.ConfirmReceipt(
		c.Request.Context(), id, *req.ItemIndex, req.QuantityReceived,
		req.ReceivedBy, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Receipt confirmed"
	if outcome.OrderFullyReceived {
		message = "Receipt confirmed, purchase order fully received"
	} else if outcome.ItemFullyReceived {
		message = "Receipt confirmed, item fully received"
	}

	c.JSON(http.StatusOK, ConfirmReceiptResponse{
		Message:            message,
		ItemFullyReceived:  outcome.ItemFullyReceived,
		OrderFullyReceived: outcome.OrderFullyReceived,
		QuantityReceived:   outcome.QuantityReceived,
		TotalReceived:      outcome.TotalReceived,
		Pending:            outcome.Pending,
	})
}

// RegisterRoutes registers the handler's routes.
func (h *OrdersHandler) RegisterRoutes(router *gin.Engine) {
	orders := router.Group("/purchase-orders")
	orders.POST("", h.HandleCreateOrder)
	orders.GET("", h.HandleListOrders)
	orders.GET("/:id", h.HandleGetOrder)
	orders.PATCH("/:id/status", h.HandleUpdateStatus)
	orders.DELETE("/:id", h.HandleDeleteOrder)
	orders.POST("/:id/confirm-item-receipt", h.HandleConfirmItemReceipt)
}
