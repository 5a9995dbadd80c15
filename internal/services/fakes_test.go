package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/procurement/internal/models"
	"example.com/procurement/internal/repositories"
)

// memOrderRepo is an in-memory OrderRepository with the same conditional
// update semantics as the real store, so the retry path can be exercised
// without a database.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.PurchaseOrder
	seq    map[string]int64

	// staleFailures makes the next N ConfirmDelivery calls report a lost
	// race, simulating a concurrent writer winning the conditional update.
	staleFailures int
	confirmCalls  int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders: make(map[uuid.UUID]*models.PurchaseOrder),
		seq:    make(map[string]int64),
	}
}

func (r *memOrderRepo) put(order *models.PurchaseOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
}

func copyOrder(order *models.PurchaseOrder) *models.PurchaseOrder {
	cp := *order
	cp.Items = make([]models.LineItem, len(order.Items))
	for i := range order.Items {
		cp.Items[i] = order.Items[i]
		cp.Items[i].Deliveries = append([]models.DeliveryRecord(nil), order.Items[i].Deliveries...)
	}
	return &cp
}

func (r *memOrderRepo) Create(ctx context.Context, order *models.PurchaseOrder) error {
	r.put(copyOrder(order))
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, repositories.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (r *memOrderRepo) List(ctx context.Context) ([]models.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PurchaseOrder, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, *copyOrder(order))
	}
	return out, nil
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return repositories.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (r *memOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return repositories.ErrOrderNotFound
	}
	delete(r.orders, id)
	return nil
}

func (r *memOrderRepo) NextPONumber(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	yearMonth := now.UTC().Format("200601")
	r.seq[yearMonth]++
	return r.seq[yearMonth], nil
}

func (r *memOrderRepo) ConfirmDelivery(ctx context.Context, itemID uuid.UUID, priorReceived float64, record *models.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.confirmCalls++
	if r.staleFailures > 0 {
		r.staleFailures--
		return repositories.ErrStaleItem
	}

	for _, order := range r.orders {
		for i := range order.Items {
			item := &order.Items[i]
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
	}
	return repositories.ErrOrderNotFound
}

func (r *memOrderRepo) FindStaleWithPendingItems(ctx context.Context, cutoff time.Time) ([]models.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.PurchaseOrder
	for _, order := range r.orders {
		if !order.CreatedAt.Before(cutoff) {
			continue
		}
		for i := range order.Items {
			if order.Items[i].QuantityReceived < order.Items[i].QuantityOrdered {
				out = append(out, *copyOrder(order))
				break
			}
		}
	}
	return out, nil
}

// memNotificationRepo is an in-memory NotificationRepository enforcing the
// one-unread-per-order-and-type rule the real store enforces with a partial
// unique index.
type memNotificationRepo struct {
	mu            sync.Mutex
	notifications []*models.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{}
}

func (r *memNotificationRepo) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.notifications {
		if !existing.Read && existing.PurchaseOrderID == n.PurchaseOrderID && existing.Type == n.Type {
			return false, nil
		}
	}
	cp := *n
	cp.Items = append([]models.NotificationItem(nil), n.Items...)
	r.notifications = append(r.notifications, &cp)
	return true, nil
}

func (r *memNotificationRepo) HasUnread(ctx context.Context, orderID uuid.UUID, notifType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if !n.Read && n.PurchaseOrderID == orderID && n.Type == notifType {
			return true, nil
		}
	}
	return false, nil
}

func (r *memNotificationRepo) List(ctx context.Context) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, 0, len(r.notifications))
	for i := len(r.notifications) - 1; i >= 0; i-- {
		out = append(out, *r.notifications[i])
	}
	return out, nil
}

func (r *memNotificationRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return repositories.ErrNotificationNotFound
}

func (r *memNotificationRepo) UnreadCount(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, n := range r.notifications {
		if !n.Read {
			count++
		}
	}
	return count, nil
}
