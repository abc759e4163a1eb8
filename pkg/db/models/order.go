package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

// OfficeDetails is filled by the executive for internal bookkeeping.
type OfficeDetails struct {
	AcademicYear  string `gorm:"column:academic_year;not null;default:''" json:"academic_year" validate:"omitempty,max=16"`
	OrderDate     string `gorm:"column:order_date;not null;default:''" json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	ReferenceNo   string `gorm:"column:reference_no;not null;default:''" json:"reference_no" validate:"omitempty,max=64"`
	ExecutiveCode string `gorm:"column:executive_code;not null;default:''" json:"executive_code" validate:"omitempty,max=64"`
}

type SchoolDetails struct {
	SchoolCode string `gorm:"column:school_code;not null;default:''" json:"school_code" validate:"omitempty,max=64"`
	SchoolName string `gorm:"column:school_name;not null;default:''" json:"school_name" validate:"omitempty,max=255"`
	TrustName  string `gorm:"column:trust_name;not null;default:''" json:"trust_name" validate:"omitempty,max=255"`
	Board      string `gorm:"column:board;not null;default:''" json:"board" validate:"omitempty,max=64"`
	Address    string `gorm:"column:address;not null;default:''" json:"address" validate:"omitempty,max=1024"`
	City       string `gorm:"column:city;not null;default:''" json:"city" validate:"omitempty,max=128"`
	State      string `gorm:"column:state;not null;default:''" json:"state" validate:"omitempty,max=128"`
	Pincode    string `gorm:"column:pincode;not null;default:''" json:"pincode" validate:"omitempty,numeric,len=6"`
}

type ContactDetails struct {
	PrincipalName    string `gorm:"column:principal_name;not null;default:''" json:"principal_name" validate:"omitempty,max=255"`
	PrincipalPhone   string `gorm:"column:principal_phone;not null;default:''" json:"principal_phone" validate:"omitempty,max=20"`
	CoordinatorName  string `gorm:"column:coordinator_name;not null;default:''" json:"coordinator_name" validate:"omitempty,max=255"`
	CoordinatorPhone string `gorm:"column:coordinator_phone;not null;default:''" json:"coordinator_phone" validate:"omitempty,max=20"`
	Email            string `gorm:"column:contact_email;not null;default:''" json:"email" validate:"omitempty,email"`
}

type DeliveryDetails struct {
	DeliveryDate    string `gorm:"column:delivery_date;not null;default:''" json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryAddress string `gorm:"column:delivery_address;not null;default:''" json:"delivery_address" validate:"omitempty,max=1024"`
	TransportMode   string `gorm:"column:transport_mode;not null;default:''" json:"transport_mode" validate:"omitempty,max=64"`
	TransporterName string `gorm:"column:transporter_name;not null;default:''" json:"transporter_name" validate:"omitempty,max=255"`
	Notes           string `gorm:"column:dispatch_notes;not null;default:''" json:"notes" validate:"omitempty,max=2048"`
}

// Order is the persisted order form. Rows are never hard-deleted.
type Order struct {
	ID                int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	ShareToken        *string                 `gorm:"column:share_token;uniqueIndex"`
	UserID            uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Office            OfficeDetails           `gorm:"embedded"`
	School            SchoolDetails           `gorm:"embedded"`
	Contacts          ContactDetails          `gorm:"embedded"`
	Delivery          DeliveryDetails         `gorm:"embedded"`
	Items             types.LineItems         `gorm:"column:items;type:jsonb;not null"`
	CategoryDiscounts types.CategoryDiscounts `gorm:"column:category_discounts;type:jsonb;not null"`
	DiscountMode      enums.DiscountMode      `gorm:"column:discount_mode;type:text;not null;default:'flat'"`
	DiscountValue     decimal.Decimal         `gorm:"column:discount_value;type:numeric(12,4);not null;default:0"`
	TotalAmount       decimal.Decimal         `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	TotalDiscount     decimal.Decimal         `gorm:"column:total_discount;type:numeric(12,2);not null;default:0"`
	NetAmount         decimal.Decimal         `gorm:"column:net_amount;type:numeric(12,2);not null;default:0"`
	Status            enums.DeliveryStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	DispatchID        *int64                  `gorm:"column:dispatch_id;index"`
	IsPublicFilled    bool                    `gorm:"column:is_public_filled;not null;default:false"`
	PublicFilledAt    *time.Time              `gorm:"column:public_filled_at"`
	DispatchedAt      *time.Time              `gorm:"column:dispatched_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
