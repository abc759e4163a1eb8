package dispatches

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
)

type CreateInput struct {
	LRNo              string  `json:"lr_no" validate:"required,max=64"`
	Transporter       string  `json:"transporter" validate:"omitempty,max=255"`
	Notes             string  `json:"notes" validate:"omitempty,max=2048"`
	OrderIDs          []int64 `json:"order_ids" validate:"omitempty,dive,gt=0"`
	SupportRequestIDs []int64 `json:"support_request_ids" validate:"omitempty,dive,gt=0"`
}

type DispatchDTO struct {
	ID                int64                `json:"id"`
	LRNo              string               `json:"lr_no"`
	Transporter       string               `json:"transporter"`
	Notes             string               `json:"notes"`
	Status            enums.DeliveryStatus `json:"status"`
	CreatedBy         uuid.UUID            `json:"created_by"`
	DispatchedAt      *time.Time           `json:"dispatched_at,omitempty"`
	DeliveredAt       *time.Time           `json:"delivered_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	OrderIDs          []int64              `json:"order_ids,omitempty"`
	SupportRequestIDs []int64              `json:"support_request_ids,omitempty"`
}

type DispatchList struct {
	Dispatches []DispatchDTO `json:"dispatches"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func toDTO(d *models.Dispatch) DispatchDTO {
	return DispatchDTO{
		ID:           d.ID,
		LRNo:         d.LRNo,
		Transporter:  d.Transporter,
		Notes:        d.Notes,
		Status:       d.Status,
		CreatedBy:    d.CreatedBy,
		DispatchedAt: d.DispatchedAt,
		DeliveredAt:  d.DeliveredAt,
		CreatedAt:    d.CreatedAt,
	}
}
