package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrInvalidQuantity rejects non-positive delivery quantities.
var ErrInvalidQuantity = errors.New("quantity received must be greater than zero")

// ItemIndexError reports an item_index outside the order's item list.
type ItemIndexError struct {
	Index     int
	ItemCount int
}

func (e *ItemIndexError) Error() string {
	return fmt.Sprintf("invalid item index %d: order has %d items", e.Index, e.ItemCount)
}

// OverReceiptError rejects a delivery that would push the cumulative received
// quantity past the ordered quantity. It carries both quantities so the
// caller can compute the valid remaining amount without re-fetching.
type OverReceiptError struct {
	ProductName     string
	QuantityOrdered float64
	AlreadyReceived float64
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("cannot receive more than ordered for %s: ordered %g, already received %g",
		e.ProductName, e.QuantityOrdered, e.AlreadyReceived)
}

// ConflictError reports that concurrent modification kept winning for the
// whole bounded retry budget. It is transient; the caller may retry.
type ConflictError struct {
	OrderID  uuid.UUID
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("purchase order %s modified concurrently, gave up after %d attempts",
		e.OrderID, e.Attempts)
}
