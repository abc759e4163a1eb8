package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/schoolorders-backend/internal/pricing"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
)

// ClientTotals are the totals a client computed locally. They are only
// compared against the server's figures, never stored.
type ClientTotals struct {
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	TotalDiscount *decimal.Decimal `json:"total_discount,omitempty"`
	NetAmount     *decimal.Decimal `json:"net_amount,omitempty"`
}

func (c *ClientTotals) toPricing() pricing.ClientTotals {
	if c == nil {
		return pricing.ClientTotals{}
	}
	return pricing.ClientTotals{Gross: c.TotalAmount, Discount: c.TotalDiscount, Net: c.NetAmount}
}

// OrderInput is the executive's create/update payload. Omitted blocks are left unchanged on update.
type OrderInput struct {
	Office        *models.OfficeDetails   `json:"office"`
	School        *models.SchoolDetails   `json:"school"`
	Contacts      *models.ContactDetails  `json:"contacts"`
	Delivery      *models.DeliveryDetails `json:"delivery"`
	Items         ItemMap                 `json:"items"`
	DiscountMode  string                  `json:"discount_mode" validate:"omitempty,oneof=flat percent"`
	DiscountValue *decimal.Decimal        `json:"discount_value"`
	Totals        *ClientTotals           `json:"totals"`
}

// PublicOrderInput is what a school may submit through a share link.
type PublicOrderInput struct {
	School   *models.SchoolDetails   `json:"school"`
	Contacts *models.ContactDetails  `json:"contacts"`
	Delivery *models.DeliveryDetails `json:"delivery"`
	Items    ItemMap                 `json:"items"`
	Totals   *ClientTotals           `json:"totals"`
}

type StatusInput struct {
	Status     string `json:"status" validate:"required,oneof=pending dispatched delivered"`
	DispatchID *int64 `json:"dispatch_id" validate:"omitempty,gt=0"`
}

type ShareInput struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

type OrderDTO struct {
	ID             int64                  `json:"id"`
	UserID         uuid.UUID              `json:"user_id"`
	Office         models.OfficeDetails   `json:"office"`
	School         models.SchoolDetails   `json:"school"`
	Contacts       models.ContactDetails  `json:"contacts"`
	Delivery       models.DeliveryDetails `json:"delivery"`
	Items          map[string]any         `json:"items"`
	DiscountMode   enums.DiscountMode     `json:"discount_mode"`
	DiscountValue  string                 `json:"discount_value"`
	TotalAmount    string                 `json:"total_amount"`
	TotalDiscount  string                 `json:"total_discount"`
	NetAmount      string                 `json:"net_amount"`
	Status         enums.DeliveryStatus   `json:"status"`
	DispatchID     *int64                 `json:"dispatch_id,omitempty"`
	ShareToken     *string                `json:"share_token,omitempty"`
	IsPublicFilled bool                   `json:"is_public_filled"`
	PublicFilledAt *time.Time             `json:"public_filled_at,omitempty"`
	DispatchedAt   *time.Time             `json:"dispatched_at,omitempty"`
	DeliveredAt    *time.Time             `json:"delivered_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// PublicOrderDTO is the restricted view served to share-link holders.
type PublicOrderDTO struct {
	School        models.SchoolDetails   `json:"school"`
	Contacts      models.ContactDetails  `json:"contacts"`
	Delivery      models.DeliveryDetails `json:"delivery"`
	Items         map[string]any         `json:"items"`
	DiscountMode  enums.DiscountMode     `json:"discount_mode"`
	DiscountValue string                 `json:"discount_value"`
	TotalAmount   string                 `json:"total_amount"`
	TotalDiscount string                 `json:"total_discount"`
	NetAmount     string                 `json:"net_amount"`
	Status        enums.DeliveryStatus   `json:"status"`
	Completed     bool                   `json:"completed"`
}

type ShareLinkDTO struct {
	Token string `json:"token"`
	Path  string `json:"path"`
	URL   string `json:"url"`
}

type QuoteDTO struct {
	Items         map[string]any `json:"items"`
	TotalAmount   string         `json:"total_amount"`
	TotalDiscount string         `json:"total_discount"`
	NetAmount     string         `json:"net_amount"`
}

// ListFilters narrows admin listings. Executives are always scoped to themselves.
type ListFilters struct {
	UserID *uuid.UUID
	Status *enums.DeliveryStatus
}

type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func toOrderDTO(o *models.Order) OrderDTO {
	return OrderDTO{
		ID:             o.ID,
		UserID:         o.UserID,
		Office:         o.Office,
		School:         o.School,
		Contacts:       o.Contacts,
		Delivery:       o.Delivery,
		Items:          renderItemMap(o.Items, o.CategoryDiscounts),
		DiscountMode:   o.DiscountMode,
		DiscountValue:  o.DiscountValue.String(),
		TotalAmount:    pricing.Format(o.TotalAmount),
		TotalDiscount:  pricing.Format(o.TotalDiscount),
		NetAmount:      pricing.Format(o.NetAmount),
		Status:         o.Status,
		DispatchID:     o.DispatchID,
		ShareToken:     o.ShareToken,
		IsPublicFilled: o.IsPublicFilled,
		PublicFilledAt: o.PublicFilledAt,
		DispatchedAt:   o.DispatchedAt,
		DeliveredAt:    o.DeliveredAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func toPublicDTO(o *models.Order) PublicOrderDTO {
	return PublicOrderDTO{
		School:        o.School,
		Contacts:      o.Contacts,
		Delivery:      o.Delivery,
		Items:         renderItemMap(o.Items, o.CategoryDiscounts),
		DiscountMode:  o.DiscountMode,
		DiscountValue: o.DiscountValue.String(),
		TotalAmount:   pricing.Format(o.TotalAmount),
		TotalDiscount: pricing.Format(o.TotalDiscount),
		NetAmount:     pricing.Format(o.NetAmount),
		Status:        o.Status,
		Completed:     o.IsPublicFilled,
	}
}

func toQuoteDTO(o *models.Order) QuoteDTO {
	return QuoteDTO{
		Items:         renderItemMap(o.Items, o.CategoryDiscounts),
		TotalAmount:   pricing.Format(o.TotalAmount),
		TotalDiscount: pricing.Format(o.TotalDiscount),
		NetAmount:     pricing.Format(o.NetAmount),
	}
}
