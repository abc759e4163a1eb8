// Package fulfillment owns the delivery lifecycle shared by orders, dispatches
// and support requests. Statuses only move forward; a move on one record is
// propagated to the records linked to it inside the caller's transaction.
package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
)

// Transition is one order status change applied by the engine.
type Transition struct {
	OrderID    int64
	From       enums.DeliveryStatus
	To         enums.DeliveryStatus
	DispatchID *int64
	Source     enums.TransitionSource
}

// Outcome collects what a single advance changed.
type Outcome struct {
	Transitions          []Transition
	DispatchChanged      bool
	SupportRequestsMoved int64
}

func (o *Outcome) merge(other *Outcome) {
	if other == nil {
		return
	}
	o.Transitions = append(o.Transitions, other.Transitions...)
	o.DispatchChanged = o.DispatchChanged || other.DispatchChanged
	o.SupportRequestsMoved += other.SupportRequestsMoved
}

// Changed reports whether any order moved.
func (o *Outcome) Changed() bool {
	return o != nil && len(o.Transitions) > 0
}

// Engine applies status transitions. It never opens transactions itself.
type Engine struct {
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

func NewEngine(m *metrics.OrderMetrics) *Engine {
	return &Engine{metrics: m, now: time.Now}
}

// Record counts the transitions of a committed outcome.
func (e *Engine) Record(outcome *Outcome) {
	if e == nil || outcome == nil {
		return
	}
	for _, t := range outcome.Transitions {
		e.metrics.IncTransition(string(t.From), string(t.To), string(t.Source))
	}
}

// CheckForward rejects unknown and backward targets. A nil error with
// advance=false means current already equals target.
func CheckForward(current, target enums.DeliveryStatus) (advance bool, err error) {
	if !target.IsValid() {
		return false, pkgerrors.Validation("invalid status", map[string]string{"status": "must be pending, dispatched or delivered"})
	}
	switch {
	case current == target:
		return false, nil
	case target.Before(current):
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "status cannot move backwards").
			WithDetails(map[string]string{"from": string(current), "to": string(target)})
	}
	return true, nil
}

// AdvanceOrder moves one order to target. Moving to dispatched requires
// dispatchID. Moving to delivered cascades through the order's dispatch when
// it has one.
func (e *Engine) AdvanceOrder(ctx context.Context, tx *gorm.DB, orderID int64, target enums.DeliveryStatus, dispatchID *int64, actor *uuid.UUID) (*Outcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	tx = tx.WithContext(ctx)

	order, err := loadOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	advance, err := CheckForward(order.Status, target)
	if err != nil || !advance {
		return &Outcome{}, err
	}

	switch target {
	case enums.DeliveryStatusDispatched:
		return e.dispatchOrder(tx, order, dispatchID, actor)
	case enums.DeliveryStatusDelivered:
		return e.deliverOrder(tx, order, dispatchID, actor)
	}
	return &Outcome{}, nil
}

func (e *Engine) dispatchOrder(tx *gorm.DB, order *models.Order, dispatchID *int64, actor *uuid.UUID) (*Outcome, error) {
	if dispatchID == nil {
		return nil, pkgerrors.Validation("dispatch is required", map[string]string{"dispatch_id": "required when status is dispatched"})
	}
	dispatch, err := loadDispatch(tx, *dispatchID)
	if err != nil {
		return nil, err
	}
	if dispatch.Status == enums.DeliveryStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "dispatch already delivered").
			WithDetails(map[string]any{"dispatch_id": dispatch.ID})
	}

	now := e.now().UTC()
	out := &Outcome{}
	from := order.Status
	if err := e.moveOrder(tx, order, enums.DeliveryStatusDispatched, &dispatch.ID, actor, enums.TransitionSourceOrder, now); err != nil {
		return nil, err
	}
	out.Transitions = append(out.Transitions, Transition{
		OrderID: order.ID, From: from, To: enums.DeliveryStatusDispatched,
		DispatchID: &dispatch.ID, Source: enums.TransitionSourceOrder,
	})

	moved, err := e.moveSupportRequests(tx, tx.Where("order_id = ?", order.ID), enums.DeliveryStatusDispatched, &dispatch.ID, now)
	if err != nil {
		return nil, err
	}
	out.SupportRequestsMoved = moved

	if dispatch.Status == enums.DeliveryStatusPending {
		if err := e.moveDispatch(tx, dispatch, enums.DeliveryStatusDispatched, now); err != nil {
			return nil, err
		}
		out.DispatchChanged = true
	}
	return out, nil
}

func (e *Engine) deliverOrder(tx *gorm.DB, order *models.Order, dispatchID *int64, actor *uuid.UUID) (*Outcome, error) {
	if order.DispatchID == nil && dispatchID != nil {
		if _, err := loadDispatch(tx, *dispatchID); err != nil {
			return nil, err
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("dispatch_id", *dispatchID).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link order to dispatch")
		}
		order.DispatchID = dispatchID
	}

	if order.DispatchID != nil {
		out, err := e.advanceDispatch(tx, *order.DispatchID, enums.DeliveryStatusDelivered, actor, order.ID)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	now := e.now().UTC()
	from := order.Status
	if err := e.moveOrder(tx, order, enums.DeliveryStatusDelivered, nil, actor, enums.TransitionSourceOrder, now); err != nil {
		return nil, err
	}
	moved, err := e.moveSupportRequests(tx, tx.Where("order_id = ?", order.ID), enums.DeliveryStatusDelivered, nil, now)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Transitions:          []Transition{{OrderID: order.ID, From: from, To: enums.DeliveryStatusDelivered, Source: enums.TransitionSourceOrder}},
		SupportRequestsMoved: moved,
	}, nil
}

// AdvanceDispatch moves a dispatch to target and every order and support
// request on it that is still behind target. Rows already at or past target
// are left alone, so the call is safe to repeat.
func (e *Engine) AdvanceDispatch(ctx context.Context, tx *gorm.DB, dispatchID int64, target enums.DeliveryStatus, actor *uuid.UUID) (*Outcome, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	return e.advanceDispatch(tx.WithContext(ctx), dispatchID, target, actor, 0)
}

func (e *Engine) advanceDispatch(tx *gorm.DB, dispatchID int64, target enums.DeliveryStatus, actor *uuid.UUID, originOrderID int64) (*Outcome, error) {
	dispatch, err := loadDispatch(tx, dispatchID)
	if err != nil {
		return nil, err
	}
	advance, err := CheckForward(dispatch.Status, target)
	if err != nil {
		return nil, err
	}
	if target == enums.DeliveryStatusPending {
		return &Outcome{}, nil
	}

	now := e.now().UTC()
	out := &Outcome{}
	if advance {
		if err := e.moveDispatch(tx, dispatch, target, now); err != nil {
			return nil, err
		}
		out.DispatchChanged = true
	}

	var orders []models.Order
	if err := lockForUpdate(tx).
		Where("dispatch_id = ? AND status IN ?", dispatch.ID, statusesBefore(target)).
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch orders")
	}
	for i := range orders {
		order := &orders[i]
		source := enums.TransitionSourceDispatch
		if order.ID == originOrderID {
			source = enums.TransitionSourceOrder
		}
		from := order.Status
		if err := e.moveOrder(tx, order, target, &dispatch.ID, actor, source, now); err != nil {
			return nil, err
		}
		out.Transitions = append(out.Transitions, Transition{
			OrderID: order.ID, From: from, To: target, DispatchID: &dispatch.ID, Source: source,
		})
	}

	linked := tx.Where("dispatch_id = ?", dispatch.ID).
		Or("order_id IN (?)", tx.Model(&models.Order{}).Select("id").Where("dispatch_id = ?", dispatch.ID))
	moved, err := e.moveSupportRequests(tx, linked, target, &dispatch.ID, now)
	if err != nil {
		return nil, err
	}
	out.SupportRequestsMoved = moved
	return out, nil
}

func (e *Engine) moveOrder(tx *gorm.DB, order *models.Order, target enums.DeliveryStatus, dispatchID *int64, actor *uuid.UUID, source enums.TransitionSource, now time.Time) error {
	linkedDispatch := order.DispatchID
	if dispatchID != nil {
		linkedDispatch = dispatchID
	}

	updates := map[string]any{"status": target, "updated_at": now}
	if dispatchID != nil {
		updates["dispatch_id"] = *dispatchID
	}
	if order.DispatchedAt == nil && linkedDispatch != nil {
		updates["dispatched_at"] = now
	}
	if target == enums.DeliveryStatusDelivered {
		updates["delivered_at"] = now
	}
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	event := &models.OrderStatusEvent{
		OrderID:     order.ID,
		FromStatus:  order.Status,
		ToStatus:    target,
		DispatchID:  linkedDispatch,
		ActorUserID: actor,
		Source:      source,
		CreatedAt:   now,
	}
	if err := tx.Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record order status event")
	}

	order.Status = target
	order.DispatchID = linkedDispatch
	return nil
}

// moveSupportRequests advances every support request matched by scope that is
// still behind target.
func (e *Engine) moveSupportRequests(tx *gorm.DB, scope *gorm.DB, target enums.DeliveryStatus, dispatchID *int64, now time.Time) (int64, error) {
	updates := map[string]any{"status": target, "updated_at": now}
	if dispatchID != nil {
		updates["dispatch_id"] = *dispatchID
	}
	switch target {
	case enums.DeliveryStatusDispatched:
		updates["dispatched_at"] = now
	case enums.DeliveryStatusDelivered:
		updates["delivered_at"] = now
	}
	res := tx.Model(&models.SupportRequest{}).
		Where(scope).
		Where("status IN ?", statusesBefore(target)).
		Updates(updates)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update support requests")
	}
	return res.RowsAffected, nil
}

func (e *Engine) moveDispatch(tx *gorm.DB, dispatch *models.Dispatch, target enums.DeliveryStatus, now time.Time) error {
	updates := map[string]any{"status": target, "updated_at": now}
	if dispatch.DispatchedAt == nil {
		updates["dispatched_at"] = now
	}
	if target == enums.DeliveryStatusDelivered {
		updates["delivered_at"] = now
	}
	if err := tx.Model(&models.Dispatch{}).Where("id = ?", dispatch.ID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update dispatch status")
	}
	dispatch.Status = target
	return nil
}

func loadOrder(tx *gorm.DB, id int64) (*models.Order, error) {
	var order models.Order
	if err := lockForUpdate(tx).Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return &order, nil
}

func loadDispatch(tx *gorm.DB, id int64) (*models.Dispatch, error) {
	var dispatch models.Dispatch
	if err := lockForUpdate(tx).Where("id = ?", id).First(&dispatch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch")
	}
	return &dispatch, nil
}

// lockForUpdate adds FOR UPDATE on postgres. SQLite serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// statusesBefore lists the statuses strictly behind target.
func statusesBefore(target enums.DeliveryStatus) []enums.DeliveryStatus {
	var out []enums.DeliveryStatus
	for _, s := range []enums.DeliveryStatus{enums.DeliveryStatusPending, enums.DeliveryStatusDispatched, enums.DeliveryStatusDelivered} {
		if s.Before(target) {
			out = append(out, s)
		}
	}
	return out
}
