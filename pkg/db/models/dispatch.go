package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
)

// Dispatch is one shipment. Orders and support requests point at it.
type Dispatch struct {
	ID           int64                `gorm:"column:id;primaryKey;autoIncrement"`
	LRNo         string               `gorm:"column:lr_no;not null"`
	Transporter  string               `gorm:"column:transporter;not null;default:''"`
	Notes        string               `gorm:"column:notes;not null;default:''"`
	Status       enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedBy    uuid.UUID            `gorm:"column:created_by;type:uuid;not null"`
	DispatchedAt *time.Time           `gorm:"column:dispatched_at"`
	DeliveredAt  *time.Time           `gorm:"column:delivered_at"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Dispatch) TableName() string { return "dispatches" }

// SupportRequest is a follow-up raised by an executive, optionally tied to an order.
type SupportRequest struct {
	ID           int64                `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID      *int64               `gorm:"column:order_id;index"`
	SchoolName   string               `gorm:"column:school_name;not null;default:''"`
	Description  string               `gorm:"column:description;not null"`
	Status       enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	DispatchID   *int64               `gorm:"column:dispatch_id;index"`
	DispatchedAt *time.Time           `gorm:"column:dispatched_at"`
	DeliveredAt  *time.Time           `gorm:"column:delivered_at"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (SupportRequest) TableName() string { return "support_requests" }

// OrderStatusEvent is an append-only record of order status changes.
type OrderStatusEvent struct {
	ID          int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64                  `gorm:"column:order_id;not null;index"`
	FromStatus  enums.DeliveryStatus   `gorm:"column:from_status;type:text;not null"`
	ToStatus    enums.DeliveryStatus   `gorm:"column:to_status;type:text;not null"`
	DispatchID  *int64                 `gorm:"column:dispatch_id"`
	ActorUserID *uuid.UUID             `gorm:"column:actor_user_id;type:uuid"`
	Source      enums.TransitionSource `gorm:"column:source;type:text;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEvent) TableName() string { return "order_status_events" }
