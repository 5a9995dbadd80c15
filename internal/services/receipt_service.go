package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/cache"
	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/tracing"
)

// confirmAttempts bounds the optimistic retry loop when concurrent
// confirmations race on the same line item.
const confirmAttempts = 3

// ReceiptOutcome is the result of one successful delivery confirmation.
type ReceiptOutcome struct {
	ItemFullyReceived  bool    `json:"item_fully_received"`
	OrderFullyReceived bool    `json:"po_fully_received"`
	QuantityReceived   float64 `json:"quantity_received"`
	TotalReceived      float64 `json:"total_received"`
	Pending            float64 `json:"pending"`
}

// ReceiptService applies delivery events to purchase order line items.
type ReceiptService struct {
	orders  repositories.OrderRepository
	locker  *cache.RedisCache
	metrics *metrics.Metrics
	tracer  tracing.Tracer
}

// NewReceiptService creates a new receipt service. locker may be nil; the
// conditional store update alone guarantees correctness, the per-order lock
// only keeps retries rare under contention.
func NewReceiptService(
	orders repositories.OrderRepository,
	locker *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *ReceiptService {
	return &ReceiptService{
		orders:  orders,
		locker:  locker,
		metrics: metricsCollector,
		tracer:  tracer,
	}
}

// ConfirmReceipt records one partial delivery against the line item at
// itemIndex of the order and returns the reconciled totals.
//
// The read-modify-write races with concurrent confirmations on the same
// order, so the write is conditioned on the item's quantity_received being
// unchanged since the read; a lost race re-reads and revalidates on fresh
// state, up to confirmAttempts times.
func (s *ReceiptService) ConfirmReceipt(
	ctx context.Context,
	orderID uuid.UUID,
	itemIndex int,
	quantityReceived float64,
	receivedBy string,
	notes string,
) (*ReceiptOutcome, error) {
	txn := s.tracer.StartTransaction("confirm-item-receipt")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "order_id", orderID.String())
	s.tracer.AddAttribute(txn, "item_index", itemIndex)

	if quantityReceived <= 0 {
		return nil, ErrInvalidQuantity
	}

	if s.locker != nil {
		lock, err := s.locker.ObtainOrderLock(ctx, orderID)
		if err != nil {
			log.Debug().Err(err).Str("order_id", orderID.String()).
				Msg("Proceeding without per-order lock")
		} else {
			defer func() {
				if err := lock.Release(ctx); err != nil {
					log.Warn().Err(err).Str("order_id", orderID.String()).
						Msg("Failed to release per-order lock")
				}
			}()
		}
	}

	for attempt := 1; attempt <= confirmAttempts; attempt++ {
		outcome, err := s.tryConfirm(ctx, orderID, itemIndex, quantityReceived, receivedBy, notes)
		if err != nil {
			if errors.Is(err, repositories.ErrStaleItem) {
				s.metrics.IncrementCounter("receipt_conflicts")
				log.Warn().
					Str("order_id", orderID.String()).
					Int("item_index", itemIndex).
					Int("attempt", attempt).
					Msg("Concurrent line item update detected, retrying with fresh state")
				continue
			}
			s.tracer.RecordError(txn, err)
			return nil, err
		}

		s.metrics.IncrementCounter("receipt_confirmations")
		log.Info().
			Str("order_id", orderID.String()).
			Int("item_index", itemIndex).
			Float64("quantity_received", quantityReceived).
			Float64("total_received", outcome.TotalReceived).
			Bool("item_fully_received", outcome.ItemFullyReceived).
			Msg("Delivery confirmed")
		return outcome, nil
	}

	err := &ConflictError{OrderID: orderID, Attempts: confirmAttempts}
	s.tracer.RecordError(txn, err)
	return nil, err
}

// tryConfirm performs one read-validate-write pass over current store state.
func (s *ReceiptService) tryConfirm(
	ctx context.Context,
	orderID uuid.UUID,
	itemIndex int,
	quantityReceived float64,
	receivedBy string,
	notes string,
) (*ReceiptOutcome, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if itemIndex < 0 || itemIndex >= len(order.Items) {
		return nil, &ItemIndexError{Index: itemIndex, ItemCount: len(order.Items)}
	}
	item := &order.Items[itemIndex]

	prior := item.QuantityReceived
	if prior+quantityReceived > item.QuantityOrdered {
		s.metrics.IncrementCounter("over_receipt_rejections")
		return nil, &OverReceiptError{
			ProductName:     item.ProductName,
			QuantityOrdered: item.QuantityOrdered,
			AlreadyReceived: prior,
		}
	}

	record := &models.DeliveryRecord{
		ID:               uuid.New(),
		LineItemID:       item.ID,
		QuantityReceived: quantityReceived,
		ReceivedBy:       receivedBy,
		Notes:            notes,
		ReceivedAt:       time.Now().UTC(),
	}

	if err := s.orders.ConfirmDelivery(ctx, item.ID, prior, record); err != nil {
		return nil, err
	}

	total := prior + quantityReceived
	itemFull := total >= item.QuantityOrdered

	orderFull := itemFull
	if orderFull {
		for i := range order.Items {
			if i == itemIndex {
				continue
			}
			if !order.Items[i].FullyReceived() {
				orderFull = false
				break
			}
		}
	}

	return &ReceiptOutcome{
		ItemFullyReceived:  itemFull,
		OrderFullyReceived: orderFull,
		QuantityReceived:   quantityReceived,
		TotalReceived:      total,
		Pending:            item.QuantityOrdered - total,
	}, nil
}
