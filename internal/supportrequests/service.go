package supportrequests

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

type CreateInput struct {
	OrderID     *int64 `json:"order_id" validate:"omitempty,gt=0"`
	SchoolName  string `json:"school_name" validate:"omitempty,max=255"`
	Description string `json:"description" validate:"required,max=4096"`
}

type RequestDTO struct {
	ID          int64                `json:"id"`
	UserID      uuid.UUID            `json:"user_id"`
	OrderID     *int64               `json:"order_id,omitempty"`
	SchoolName  string               `json:"school_name"`
	Description string               `json:"description"`
	Status      enums.DeliveryStatus `json:"status"`
	DispatchID  *int64               `json:"dispatch_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type RequestList struct {
	Requests   []RequestDTO `json:"support_requests"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*RequestDTO, error)
	List(ctx context.Context, actor auth.Actor, params pagination.Params) (*RequestList, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("support request repository required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Create files a request. A request tied to an order starts at the order's
// status and dispatch so later transitions keep them in step.
func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*RequestDTO, error) {
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.Validation("invalid support request", map[string]string{"description": "is required"})
	}
	req := &models.SupportRequest{
		UserID:      actor.UserID,
		SchoolName:  strings.TrimSpace(input.SchoolName),
		Description: description,
		Status:      enums.DeliveryStatusPending,
	}

	if input.OrderID != nil {
		order, err := s.repo.FindOrder(ctx, *input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if !actor.IsAdmin() && !actor.Owns(order.UserID) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		req.OrderID = &order.ID
		req.Status = order.Status
		req.DispatchID = order.DispatchID
		if req.SchoolName == "" {
			req.SchoolName = order.School.SchoolName
		}
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create support request")
	}
	s.logg.Info(s.logg.WithField(ctx, "support_request_id", req.ID), "support request created")
	dto := toDTO(req)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params pagination.Params) (*RequestList, error) {
	var owner *uuid.UUID
	if !actor.IsAdmin() {
		id := actor.UserID
		owner = &id
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Validation("invalid cursor", map[string]string{"cursor": err.Error()})
	}
	rows, next, err := s.repo.List(ctx, owner, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list support requests")
	}
	out := &RequestList{Requests: make([]RequestDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Requests = append(out.Requests, toDTO(&rows[i]))
	}
	return out, nil
}

func toDTO(r *models.SupportRequest) RequestDTO {
	return RequestDTO{
		ID:          r.ID,
		UserID:      r.UserID,
		OrderID:     r.OrderID,
		SchoolName:  r.SchoolName,
		Description: r.Description,
		Status:      r.Status,
		DispatchID:  r.DispatchID,
		CreatedAt:   r.CreatedAt,
	}
}
