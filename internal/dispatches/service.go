package dispatches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/internal/fulfillment"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusEngine interface {
	AdvanceDispatch(ctx context.Context, tx *gorm.DB, dispatchID int64, target enums.DeliveryStatus, actor *uuid.UUID) (*fulfillment.Outcome, error)
	Record(outcome *fulfillment.Outcome)
}

// Service manages shipments. Every operation is admin only.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*DispatchDTO, error)
	Get(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error)
	List(ctx context.Context, actor auth.Actor, params pagination.Params) (*DispatchList, error)
	MarkDispatched(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error)
	MarkDelivered(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	engine statusEngine
	logg   *logger.Logger
}

func NewService(repo Repository, tx txRunner, engine statusEngine, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if engine == nil {
		return nil, fmt.Errorf("status engine required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, engine: engine, logg: logg}, nil
}

// Create records a shipment and links the given pending orders and support
// requests to it. Every id must be linkable or nothing is stored.
func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*DispatchDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	lrNo := strings.TrimSpace(input.LRNo)
	if lrNo == "" {
		return nil, pkgerrors.Validation("invalid dispatch", map[string]string{"lr_no": "is required"})
	}
	orderIDs := dedupe(input.OrderIDs)
	requestIDs := dedupe(input.SupportRequestIDs)

	dispatch := &models.Dispatch{
		LRNo:        lrNo,
		Transporter: strings.TrimSpace(input.Transporter),
		Notes:       strings.TrimSpace(input.Notes),
		Status:      enums.DeliveryStatusPending,
		CreatedBy:   actor.UserID,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, dispatch); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create dispatch")
		}
		linked, err := repo.LinkOrders(ctx, dispatch.ID, orderIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link orders")
		}
		if linked != int64(len(orderIDs)) {
			return pkgerrors.Validation("invalid dispatch", map[string]string{
				"order_ids": "every order must exist, be pending and not already on a dispatch",
			})
		}
		linked, err = repo.LinkSupportRequests(ctx, dispatch.ID, requestIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link support requests")
		}
		if linked != int64(len(requestIDs)) {
			return pkgerrors.Validation("invalid dispatch", map[string]string{
				"support_request_ids": "every support request must exist, be pending and not already on a dispatch",
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dispatch_id": dispatch.ID,
		"orders":      len(orderIDs),
		"requests":    len(requestIDs),
	})
	s.logg.Info(logCtx, "dispatch created")

	dto := toDTO(dispatch)
	dto.OrderIDs = orderIDs
	dto.SupportRequestIDs = requestIDs
	return &dto, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return s.load(ctx, id)
}

func (s *service) List(ctx context.Context, actor auth.Actor, params pagination.Params) (*DispatchList, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Validation("invalid cursor", map[string]string{"cursor": err.Error()})
	}
	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dispatches")
	}
	out := &DispatchList{Dispatches: make([]DispatchDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Dispatches = append(out.Dispatches, toDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) MarkDispatched(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error) {
	return s.advance(ctx, actor, id, enums.DeliveryStatusDispatched)
}

func (s *service) MarkDelivered(ctx context.Context, actor auth.Actor, id int64) (*DispatchDTO, error) {
	return s.advance(ctx, actor, id, enums.DeliveryStatusDelivered)
}

func (s *service) advance(ctx context.Context, actor auth.Actor, id int64, target enums.DeliveryStatus) (*DispatchDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	var outcome *fulfillment.Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.engine.AdvanceDispatch(ctx, tx, id, target, actor.Ref())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.engine.Record(outcome)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dispatch_id":   id,
		"status":        string(target),
		"orders_moved":  len(outcome.Transitions),
		"support_moved": outcome.SupportRequestsMoved,
	})
	s.logg.Info(logCtx, "dispatch advanced")
	return s.load(ctx, id)
}

func (s *service) load(ctx context.Context, id int64) (*DispatchDTO, error) {
	dispatch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch")
	}
	dto := toDTO(dispatch)
	if dto.OrderIDs, err = s.repo.LinkedOrderIDs(ctx, id); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch orders")
	}
	if dto.SupportRequestIDs, err = s.repo.LinkedSupportRequestIDs(ctx, id); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch support requests")
	}
	return &dto, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
