package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/search"
	"example.com/procurement/internal/tracing"
)

// DefaultStaleAfter is how old an order must be before its undelivered items
// trigger a pending-material alert.
const DefaultStaleAfter = 10 * 24 * time.Hour

// maxSummaryProducts is how many product names the alert message spells out
// before collapsing the rest into a "+N more" suffix.
const maxSummaryProducts = 3

// NotificationService runs the pending-order scan and manages alert state.
type NotificationService struct {
	orders        repositories.OrderRepository
	notifications repositories.NotificationRepository
	elasticClient *search.ElasticClient
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewNotificationService creates a new notification service. elasticClient
// may be nil; indexing is best-effort.
func NewNotificationService(
	orders repositories.OrderRepository,
	notifications repositories.NotificationRepository,
	elasticClient *search.ElasticClient,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *NotificationService {
	return &NotificationService{
		orders:        orders,
		notifications: notifications,
		elasticClient: elasticClient,
		metrics:       metricsCollector,
		tracer:        tracer,
	}
}

// ScanPendingOrders walks orders older than staleAfter that still have
// undelivered items and creates one unread material_pending notification per
// qualifying order. It returns the number of notifications actually created,
// so "nothing new" is distinguishable from "nothing pending".
//
// Each per-order decision commits independently; cancelling the context stops
// further iteration without leaving partial state.
func (s *NotificationService) ScanPendingOrders(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	txn := s.tracer.StartTransaction("scan-pending-orders")
	defer s.tracer.EndTransaction(txn)

	start := time.Now()
	defer func() {
		s.metrics.RecordTimer("pending_order_scan", time.Since(start))
	}()

	cutoff := now.Add(-staleAfter)
	orders, err := s.orders.FindStaleWithPendingItems(ctx, cutoff)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return 0, err
	}

	created := 0
	for i := range orders {
		select {
		case <-ctx.Done():
			return created, ctx.Err()
		default:
		}

		order := &orders[i]
		pending := collectPendingItems(order)
		if len(pending) == 0 {
			continue
		}

		// Cheap existence check first; the partial unique index behind
		// CreateIfAbsent closes the remaining race window.
		hasUnread, err := s.notifications.HasUnread(ctx, order.ID, models.NotificationMaterialPending)
		if err != nil {
			s.tracer.RecordError(txn, err)
			return created, err
		}
		if hasUnread {
			continue
		}

		notification := &models.Notification{
			ID:              uuid.New(),
			PurchaseOrderID: order.ID,
			PONumber:        order.PONumber,
			Type:            models.NotificationMaterialPending,
			Message:         pendingSummary(order, pending, now),
			Items:           pending,
		}
		for j := range notification.Items {
			notification.Items[j].ID = uuid.New()
			notification.Items[j].NotificationID = notification.ID
		}

		inserted, err := s.notifications.CreateIfAbsent(ctx, notification)
		if err != nil {
			s.tracer.RecordError(txn, err)
			return created, err
		}
		if !inserted {
			continue
		}

		created++
		s.metrics.IncrementCounter("notifications_created")
		log.Info().
			Str("po_number", order.PONumber).
			Int("pending_items", len(pending)).
			Msg("Pending material notification created")

		if s.elasticClient != nil {
			if err := s.elasticClient.IndexNotification(ctx, notification); err != nil {
				log.Warn().Err(err).
					Str("notification_id", notification.ID.String()).
					Msg("Failed to index notification")
			}
		}
	}

	return created, nil
}

// collectPendingItems snapshots the items of an order that still have
// outstanding quantity.
func collectPendingItems(order *models.PurchaseOrder) []models.NotificationItem {
	var pending []models.NotificationItem
	for i := range order.Items {
		item := &order.Items[i]
		if item.PendingQuantity() <= 0 {
			continue
		}
		pending = append(pending, models.NotificationItem{
			ItemPosition:     item.Position,
			ProductName:      item.ProductName,
			QuantityOrdered:  item.QuantityOrdered,
			QuantityReceived: item.QuantityReceived,
			QuantityPending:  item.PendingQuantity(),
		})
	}
	return pending
}

// pendingSummary renders the human-readable alert message, naming up to
// maxSummaryProducts products and collapsing the rest.
func pendingSummary(order *models.PurchaseOrder, pending []models.NotificationItem, now time.Time) string {
	names := make([]string, 0, maxSummaryProducts)
	for i, item := range pending {
		if i == maxSummaryProducts {
			break
		}
		names = append(names, item.ProductName)
	}

	products := strings.Join(names, ", ")
	if extra := len(pending) - maxSummaryProducts; extra > 0 {
		products = fmt.Sprintf("%s +%d more", products, extra)
	}

	days := int(now.Sub(order.CreatedAt).Hours() / 24)
	return fmt.Sprintf("PO %s has been pending for %d days with undelivered items: %s",
		order.PONumber, days, products)
}

// ListNotifications returns all notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	return s.notifications.List(ctx)
}

// MarkRead flips the read flag. Marking an already-read notification is a
// no-op success.
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id)
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context) (int64, error) {
	return s.notifications.UnreadCount(ctx)
}
