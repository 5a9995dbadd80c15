package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/procurement/internal/metrics"
	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
	"example.com/procurement/internal/tracing"
)

func newTestNotificationService(orders *memOrderRepo, notifications *memNotificationRepo) *NotificationService {
	return NewNotificationService(orders, notifications, nil, metrics.NewMetrics(), &tracing.NewRelicTracer{})
}

// seedAgedOrder stores an order created age ago with one line item per
// (ordered, received) pair.
func seedAgedOrder(repo *memOrderRepo, age time.Duration, now time.Time, quantities ...[2]float64) *models.PurchaseOrder {
	order := &models.PurchaseOrder{
		ID:         uuid.New(),
		PONumber:   "PO-202608-0007",
		VendorID:   uuid.New(),
		VendorName: "Acme Supplies",
		Status:     models.StatusSent,
		CreatedBy:  "buyer",
		CreatedAt:  now.Add(-age),
	}
	names := []string{"Steel Rods", "Copper Wire", "Hex Bolts", "Washers", "Rivets"}
	for i, q := range quantities {
		order.Items = append(order.Items, models.LineItem{
			ID:               uuid.New(),
			PurchaseOrderID:  order.ID,
			Position:         i,
			ProductID:        uuid.New(),
			ProductName:      names[i%len(names)],
			QuantityOrdered:  q[0],
			QuantityReceived: q[1],
		})
	}
	repo.put(order)
	return order
}

func TestScanCreatesNotificationForStalePendingOrder(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 11*24*time.Hour, now, [2]float64{10, 7})

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	list, err := svc.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	n := list[0]
	require.Equal(t, models.NotificationMaterialPending, n.Type)
	require.False(t, n.Read)
	require.Equal(t, "PO-202608-0007", n.PONumber)
	require.Contains(t, n.Message, "PO-202608-0007")
	require.Contains(t, n.Message, "pending for 11 days")
	require.Contains(t, n.Message, "Steel Rods")

	require.Len(t, n.Items, 1)
	require.Equal(t, 0, n.Items[0].ItemPosition)
	require.Equal(t, 10.0, n.Items[0].QuantityOrdered)
	require.Equal(t, 7.0, n.Items[0].QuantityReceived)
	require.Equal(t, 3.0, n.Items[0].QuantityPending)
}

func TestScanSkipsFreshOrders(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 2*24*time.Hour, now, [2]float64{10, 0})

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestScanSkipsOrderExactlyAtStalenessBoundary(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	// Aged exactly staleAfter; it must be strictly older to alert.
	seedAgedOrder(orders, DefaultStaleAfter, now, [2]float64{10, 0})

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	created, err = svc.ScanPendingOrders(context.Background(), now.Add(time.Second), DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)
}

func TestScanSkipsFullyReceivedOrders(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 20*24*time.Hour, now, [2]float64{10, 10}, [2]float64{5, 5})

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

func TestScanIsIdempotentWhileNotificationUnread(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 11*24*time.Hour, now, [2]float64{10, 7})

	svc := newTestNotificationService(orders, notifications)

	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	created, err = svc.ScanPendingOrders(context.Background(), now.Add(24*time.Hour), DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	count, err := svc.UnreadCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestScanAlertsAgainAfterMarkRead(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 11*24*time.Hour, now, [2]float64{10, 7})

	svc := newTestNotificationService(orders, notifications)

	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	list, err := svc.ListNotifications(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID))

	// Once the alert is acknowledged, a still-pending order alerts again.
	created, err = svc.ScanPendingOrders(context.Background(), now.Add(24*time.Hour), DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	list, err = svc.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	count, err := svc.UnreadCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestScanMessageCollapsesLongProductLists(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 12*24*time.Hour, now,
		[2]float64{10, 0}, [2]float64{5, 1}, [2]float64{8, 0}, [2]float64{2, 0}, [2]float64{6, 3})

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	list, err := svc.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Contains(t, list[0].Message, "Steel Rods, Copper Wire, Hex Bolts")
	require.Contains(t, list[0].Message, "+2 more")
	require.Len(t, list[0].Items, 5)
}

func TestScanHonorsContextCancellation(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 11*24*time.Hour, now, [2]float64{10, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestNotificationService(orders, notifications)
	created, err := svc.ScanPendingOrders(ctx, now, DefaultStaleAfter)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, created)
}

func TestMarkReadUnknownNotification(t *testing.T) {
	svc := newTestNotificationService(newMemOrderRepo(), newMemNotificationRepo())
	err := svc.MarkRead(context.Background(), uuid.New())
	require.ErrorIs(t, err, repositories.ErrNotificationNotFound)
}

func TestMarkReadTwiceIsNoOp(t *testing.T) {
	orders := newMemOrderRepo()
	notifications := newMemNotificationRepo()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seedAgedOrder(orders, 11*24*time.Hour, now, [2]float64{10, 7})

	svc := newTestNotificationService(orders, notifications)
	_, err := svc.ScanPendingOrders(context.Background(), now, DefaultStaleAfter)
	require.NoError(t, err)

	list, err := svc.ListNotifications(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID))
	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID))
}
