package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/services"
)

// respondError maps the service error taxonomy onto HTTP statuses. Structured
// errors carry enough detail for the caller to self-correct without another
// round trip.
func respondError(c *gin.Context, err error) {
	var overReceipt *services.OverReceiptError
	if errors.As(err, &overReceipt) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":            overReceipt.Error(),
			"quantity_ordered": overReceipt.QuantityOrdered,
			"already_received": overReceipt.AlreadyReceived,
		})
		return
	}

	var badIndex *services.ItemIndexError
	if errors.As(err, &badIndex) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      badIndex.Error(),
			"item_index": badIndex.Index,
			"item_count": badIndex.ItemCount,
		})
		return
	}

	var conflict *services.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrOrderNotFound),
		errors.Is(err, repositories.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
