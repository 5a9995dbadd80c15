package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Purchase order lifecycle tags. Status is a free-form tag; these are the
// values the backend itself assigns.
const (
	StatusDraft    = "draft"
	StatusSent     = "sent"
	StatusReceived = "received"
)

// NotificationMaterialPending is the only notification type the scanner emits.
const NotificationMaterialPending = "material_pending"

// PurchaseOrder is an order aggregate. Line items are ordered by Position and
// that position is the addressing scheme the confirm-receipt API uses.
type PurchaseOrder struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	PONumber        string         `gorm:"not null;uniqueIndex" json:"po_number"`
	VendorID        uuid.UUID      `gorm:"type:uuid;not null" json:"vendor_id"`
	VendorName      string         `gorm:"not null" json:"vendor_name"`
	Status          string         `gorm:"not null;default:draft" json:"status"`
	DeliveryDate    string         `json:"delivery_date"`
	PaymentTerms    string         `json:"payment_terms"`
	ShippingAddress string         `json:"shipping_address"`
	Notes           string         `json:"notes"`
	Subtotal        float64        `gorm:"not null;default:0" json:"subtotal"`
	Tax             float64        `gorm:"not null;default:0" json:"tax"`
	Total           float64        `gorm:"not null;default:0" json:"total"`
	CreatedBy       string         `gorm:"not null" json:"created_by"`
	Items           []LineItem     `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// FullyReceived reports whether every line item has its ordered quantity.
func (o *PurchaseOrder) FullyReceived() bool {
	for i := range o.Items {
		if !o.Items[i].FullyReceived() {
			return false
		}
	}
	return len(o.Items) > 0
}

// LineItem is one ordered product quantity within a purchase order. Every
// item carries a stable UUID assigned at order creation; Position is kept as
// a display and addressing concern only, so concurrent writes always target
// the item row by its id.
//
// QuantityReceived is derived state: it always equals the sum of the item's
// delivery records and is only ever mutated through the receipt reconciler.
type LineItem struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	PurchaseOrderID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	Position         int              `gorm:"not null" json:"position"`
	ProductID        uuid.UUID        `gorm:"type:uuid;not null" json:"product_id"`
	ProductName      string           `gorm:"not null" json:"product_name"`
	QuantityOrdered  float64          `gorm:"not null" json:"quantity_ordered"`
	UnitPrice        float64          `gorm:"not null" json:"unit_price"`
	TaxRate          float64          `gorm:"not null;default:0" json:"tax_rate"`
	TaxAmount        float64          `gorm:"not null;default:0" json:"tax_amount"`
	LineTotal        float64          `gorm:"not null;default:0" json:"line_total"`
	QuantityReceived float64          `gorm:"not null;default:0" json:"quantity_received"`
	Deliveries       []DeliveryRecord `gorm:"foreignKey:LineItemID;constraint:OnDelete:CASCADE" json:"delivery_history"`
}

// PendingQuantity returns the outstanding quantity for the item, never negative.
func (i *LineItem) PendingQuantity() float64 {
	pending := i.QuantityOrdered - i.QuantityReceived
	if pending < 0 {
		return 0
	}
	return pending
}

// FullyReceived reports whether the item has no outstanding quantity.
func (i *LineItem) FullyReceived() bool {
	return i.QuantityReceived >= i.QuantityOrdered
}

// DeliveryRecord is one discrete partial-delivery event against a line item.
// Records are append-only and immutable once written; append order is
// chronological order.
type DeliveryRecord struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LineItemID       uuid.UUID `gorm:"type:uuid;not null;index" json:"line_item_id"`
	QuantityReceived float64   `gorm:"not null" json:"quantity_received"`
	ReceivedBy       string    `gorm:"not null" json:"received_by"`
	Notes            string    `json:"notes"`
	ReceivedAt       time.Time `gorm:"not null" json:"received_at"`
}

// Notification is a pending-material alert for a purchase order. The pending
// item list is a snapshot taken at alert time and is never recomputed, so the
// alert reflects the state that triggered it even if the order changes later.
type Notification struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	PurchaseOrderID uuid.UUID          `gorm:"type:uuid;not null;index" json:"po_id"`
	PONumber        string             `gorm:"not null" json:"po_number"`
	Type            string             `gorm:"not null" json:"type"`
	Message         string             `gorm:"not null" json:"message"`
	Read            bool               `gorm:"not null;default:false" json:"read"`
	Items           []NotificationItem `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"pending_items"`
}

// NotificationItem is the snapshot of one pending line item at alert time.
type NotificationItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	NotificationID   uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	ItemPosition     int       `gorm:"not null" json:"item_index"`
	ProductName      string    `gorm:"not null" json:"product_name"`
	QuantityOrdered  float64   `gorm:"not null" json:"quantity_ordered"`
	QuantityReceived float64   `gorm:"not null" json:"quantity_received"`
	QuantityPending  float64   `gorm:"not null" json:"quantity_pending"`
}

// POSequence backs the monotonic per-calendar-month purchase order counter.
type POSequence struct {
	YearMonth string `gorm:"primaryKey;size:6"`
	Counter   int64  `gorm:"not null;default:0"`
}

// SetupModels configures GORM models and runs migrations.
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&PurchaseOrder{},
		&LineItem{},
		&DeliveryRecord{},
		&Notification{},
		&NotificationItem{},
		&POSequence{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	// At most one unread notification may exist per (order, type). The partial
	// unique index turns the scanner's check-then-act into an atomic
	// conditional insert instead of relying on caller timing.
	err = db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_unread_dedup
		 ON notifications (purchase_order_id, type) WHERE read = false`,
	).Error
	if err != nil {
		return errors.Wrap(err, "failed to create notification dedup index")
	}

	return nil
}
