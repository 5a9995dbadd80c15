package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/procurement/internal/models"
)

// Store-level sentinels. Services translate these into the caller-facing
// error taxonomy.
var (
	// ErrOrderNotFound is returned when a purchase order id is unknown.
	ErrOrderNotFound = errors.New("purchase order not found")
	// ErrNotificationNotFound is returned when a notification id is unknown.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrStaleItem is returned when a conditional line item update finds the
	// item changed since it was read. The caller re-reads and retries.
	ErrStaleItem = errors.New("line item modified concurrently")
)

// OrderRepository provides access to purchase order data. It is the order
// store collaborator: single-document reads and conditional writes only, no
// cross-call caching.
type OrderRepository interface {
	Create(ctx context.Context, order *models.PurchaseOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	List(ctx context.Context) ([]models.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error

	// NextPONumber reserves the next value of the per-calendar-month order
	// number counter for the month containing now.
	NextPONumber(ctx context.Context, now time.Time) (int64, error)

	// ConfirmDelivery applies one delivery event to a single line item: it
	// raises quantity_received from priorReceived by record.QuantityReceived
	// and appends the record, atomically. The update is conditioned on the
	// item still holding priorReceived; ErrStaleItem reports a lost race.
	ConfirmDelivery(ctx context.Context, itemID uuid.UUID, priorReceived float64, record *models.DeliveryRecord) error

	// FindStaleWithPendingItems returns orders created at or before cutoff
	// that still have at least one item with outstanding quantity. The
	// restriction happens in the store, not in memory.
	FindStaleWithPendingItems(ctx context.Context, cutoff time.Time) ([]models.PurchaseOrder, error)
}

// NotificationRepository persists pending-material alerts and their read state.
type NotificationRepository interface {
	// CreateIfAbsent inserts the notification unless an unread notification
	// for the same (order, type) already exists. Reports whether the row was
	// actually inserted.
	CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error)
	HasUnread(ctx context.Context, orderID uuid.UUID, notifType string) (bool, error)
	List(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	UnreadCount(ctx context.Context) (int64, error)
}

// gormOrderRepository implements OrderRepository on GORM/Postgres.
type gormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &gormOrderRepository{db: db}
}

func (r *gormOrderRepository) Create(ctx context.Context, order *models.PurchaseOrder) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrap(err, "failed to create purchase order")
	}
	return nil
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_items.position ASC")
		}).
		Preload("Items.Deliveries", func(db *gorm.DB) *gorm.DB {
			return db.Order("delivery_records.received_at ASC")
		})
}

func (r *gormOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := withItems(r.db.WithContext(ctx)).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "failed to get purchase order")
	}
	return &order, nil
}

func (r *gormOrderRepository) List(ctx context.Context) ([]models.PurchaseOrder, error) {
	var orders []models.PurchaseOrder
	err := withItems(r.db.WithContext(ctx)).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list purchase orders")
	}
	return orders, nil
}

func (r *gormOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update purchase order status")
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *gormOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PurchaseOrder{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete purchase order")
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *gormOrderRepository) NextPONumber(ctx context.Context, now time.Time) (int64, error) {
	yearMonth := now.UTC().Format("200601")

	// Single-statement upsert keeps the counter monotonic under concurrent
	// order creation.
	var counter int64
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO po_sequences (year_month, counter) VALUES (?, 1)
		 ON CONFLICT (year_month) DO UPDATE SET counter = po_sequences.counter + 1
		 RETURNING counter`,
		yearMonth,
	).Scan(&counter).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to reserve purchase order number")
	}
	return counter, nil
}

func (r *gormOrderRepository) ConfirmDelivery(ctx context.Context, itemID uuid.UUID, priorReceived float64, record *models.DeliveryRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LineItem{}).
			Where("id = ? AND quantity_received = ?", itemID, priorReceived).
			Update("quantity_received", priorReceived+record.QuantityReceived)
		if result.Error != nil {
			return errors.Wrap(result.Error, "failed to update line item quantity")
		}
		if result.RowsAffected == 0 {
			return ErrStaleItem
		}

		if err := tx.Create(record).Error; err != nil {
			return errors.Wrap(err, "failed to append delivery record")
		}
		return nil
	})
	return err
}

func (r *gormOrderRepository) FindStaleWithPendingItems(ctx context.Context, cutoff time.Time) ([]models.PurchaseOrder, error) {
	pendingOrderIDs := r.db.WithContext(ctx).
		Model(&models.LineItem{}).
		Select("purchase_order_id").
		Where("quantity_received < quantity_ordered")

	// Strictly older than the cutoff: an order exactly staleAfter old does
	// not alert yet.
	var orders []models.PurchaseOrder
	err := withItems(r.db.WithContext(ctx)).
		Where("created_at < ?", cutoff).
		Where("id IN (?)", pendingOrderIDs).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stale orders with pending items")
	}
	return orders, nil
}

// gormNotificationRepository implements NotificationRepository on GORM/Postgres.
type gormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) CreateIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	err := r.db.WithContext(ctx).Create(n).Error
	if err != nil {
		// The partial unique index over (purchase_order_id, type) for unread
		// rows rejects a duplicate alert; that is the dedup working, not a
		// failure.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to create notification")
	}
	return true, nil
}

func (r *gormNotificationRepository) HasUnread(ctx context.Context, orderID uuid.UUID, notifType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("purchase_order_id = ? AND type = ? AND read = ?", orderID, notifType, false).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check for unread notification")
	}
	return count > 0, nil
}

func (r *gormNotificationRepository) List(ctx context.Context) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("notification_items.item_position ASC")
		}).
		Order("created_at DESC").
		Find(&notifications).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	return notifications, nil
}

func (r *gormNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark notification read")
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *gormNotificationRepository) UnreadCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("read = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count unread notifications")
	}
	return count, nil
}
