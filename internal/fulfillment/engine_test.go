package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/dbtest"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/metrics"
)

type fixture struct {
	client *db.Client
	engine *Engine
	admin  *models.User
	exec   *models.User
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	engine := NewEngine(nil)
	engine.now = func() time.Time { return now }
	return &fixture{
		client: client,
		engine: engine,
		admin:  dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin),
		exec:   dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive),
		now:    now,
	}
}

func (f *fixture) order(t *testing.T, id int64) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.client.DB().First(&o, id).Error)
	return o
}

func (f *fixture) request(t *testing.T, id int64) models.SupportRequest {
	t.Helper()
	var r models.SupportRequest
	require.NoError(t, f.client.DB().First(&r, id).Error)
	return r
}

func (f *fixture) dispatch(t *testing.T, id int64) models.Dispatch {
	t.Helper()
	var d models.Dispatch
	require.NoError(t, f.client.DB().First(&d, id).Error)
	return d
}

func (f *fixture) advanceOrder(t *testing.T, orderID int64, target enums.DeliveryStatus, dispatchID *int64) (*Outcome, error) {
	t.Helper()
	var out *Outcome
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		out, err = f.engine.AdvanceOrder(context.Background(), tx, orderID, target, dispatchID, &f.admin.ID)
		return err
	})
	return out, err
}

func TestCheckForward(t *testing.T) {
	advance, err := CheckForward(enums.DeliveryStatusPending, enums.DeliveryStatusDelivered)
	require.NoError(t, err)
	assert.True(t, advance)

	advance, err = CheckForward(enums.DeliveryStatusDispatched, enums.DeliveryStatusDispatched)
	require.NoError(t, err)
	assert.False(t, advance)

	_, err = CheckForward(enums.DeliveryStatusDelivered, enums.DeliveryStatusPending)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = CheckForward(enums.DeliveryStatusPending, enums.DeliveryStatus("shipped"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAdvanceOrderDispatchedPropagates(t *testing.T) {
	f := newFixture(t)
	conn := f.client.DB()
	dispatch := dbtest.MustCreateDispatch(t, conn, f.admin.ID, enums.DeliveryStatusPending)
	order := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)
	other := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)
	req := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, &order.ID, nil)
	unrelated := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, &other.ID, nil)

	out, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDispatched, &dispatch.ID)
	require.NoError(t, err)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, enums.DeliveryStatusPending, out.Transitions[0].From)
	assert.True(t, out.DispatchChanged)
	assert.EqualValues(t, 1, out.SupportRequestsMoved)

	got := f.order(t, order.ID)
	assert.Equal(t, enums.DeliveryStatusDispatched, got.Status)
	require.NotNil(t, got.DispatchID)
	assert.Equal(t, dispatch.ID, *got.DispatchID)
	require.NotNil(t, got.DispatchedAt)

	linked := f.request(t, req.ID)
	assert.Equal(t, enums.DeliveryStatusDispatched, linked.Status)
	require.NotNil(t, linked.DispatchID)
	assert.Equal(t, dispatch.ID, *linked.DispatchID)

	assert.Equal(t, enums.DeliveryStatusPending, f.request(t, unrelated.ID).Status)
	assert.Equal(t, enums.DeliveryStatusPending, f.order(t, other.ID).Status)
	assert.Equal(t, enums.DeliveryStatusDispatched, f.dispatch(t, dispatch.ID).Status)

	var events []models.OrderStatusEvent
	require.NoError(t, conn.Where("order_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.DeliveryStatusPending, events[0].FromStatus)
	assert.Equal(t, enums.DeliveryStatusDispatched, events[0].ToStatus)
	assert.Equal(t, enums.TransitionSourceOrder, events[0].Source)
	require.NotNil(t, events[0].ActorUserID)
	assert.Equal(t, f.admin.ID, *events[0].ActorUserID)
}

func TestAdvanceOrderDispatchedRequiresDispatch(t *testing.T) {
	f := newFixture(t)
	order := dbtest.MustCreateOrder(t, f.client.DB(), f.exec.ID, nil)

	_, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDispatched, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing := int64(9999)
	_, err = f.advanceOrder(t, order.ID, enums.DeliveryStatusDispatched, &missing)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Equal(t, enums.DeliveryStatusPending, f.order(t, order.ID).Status)
}

func TestAdvanceOrderRejectsBackwardsAndIgnoresSame(t *testing.T) {
	f := newFixture(t)
	order := dbtest.MustCreateOrder(t, f.client.DB(), f.exec.ID, func(o *models.Order) {
		o.Status = enums.DeliveryStatusDelivered
	})

	_, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusPending, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	out, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDelivered, nil)
	require.NoError(t, err)
	assert.False(t, out.Changed())

	var count int64
	require.NoError(t, f.client.DB().Model(&models.OrderStatusEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAdvanceOrderUnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.advanceOrder(t, 4242, enums.DeliveryStatusDelivered, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeliveredOrderCascadesThroughDispatch(t *testing.T) {
	f := newFixture(t)
	conn := f.client.DB()
	dispatch := dbtest.MustCreateDispatch(t, conn, f.admin.ID, enums.DeliveryStatusDispatched)
	onDispatch := func(o *models.Order) {
		o.Status = enums.DeliveryStatusDispatched
		o.DispatchID = &dispatch.ID
	}
	order := dbtest.MustCreateOrder(t, conn, f.exec.ID, onDispatch)
	sibling := dbtest.MustCreateOrder(t, conn, f.exec.ID, onDispatch)
	elsewhere := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)
	direct := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, nil, &dispatch.ID)
	viaOrder := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, &sibling.ID, nil)

	out, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDelivered, nil)
	require.NoError(t, err)
	require.Len(t, out.Transitions, 2)
	assert.EqualValues(t, 2, out.SupportRequestsMoved)

	sources := map[int64]enums.TransitionSource{}
	for _, tr := range out.Transitions {
		sources[tr.OrderID] = tr.Source
	}
	assert.Equal(t, enums.TransitionSourceOrder, sources[order.ID])
	assert.Equal(t, enums.TransitionSourceDispatch, sources[sibling.ID])

	assert.Equal(t, enums.DeliveryStatusDelivered, f.order(t, order.ID).Status)
	assert.Equal(t, enums.DeliveryStatusDelivered, f.order(t, sibling.ID).Status)
	assert.Equal(t, enums.DeliveryStatusPending, f.order(t, elsewhere.ID).Status)
	assert.Equal(t, enums.DeliveryStatusDelivered, f.dispatch(t, dispatch.ID).Status)
	assert.Equal(t, enums.DeliveryStatusDelivered, f.request(t, direct.ID).Status)

	moved := f.request(t, viaOrder.ID)
	assert.Equal(t, enums.DeliveryStatusDelivered, moved.Status)
	require.NotNil(t, moved.DispatchID)
	assert.Equal(t, dispatch.ID, *moved.DispatchID)
	assert.NotNil(t, moved.DeliveredAt)
}

func TestDeliveredOrderWithoutDispatch(t *testing.T) {
	f := newFixture(t)
	conn := f.client.DB()
	order := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)
	other := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)
	own := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, &order.ID, nil)
	foreign := dbtest.MustCreateSupportRequest(t, conn, f.exec.ID, &other.ID, nil)

	out, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDelivered, nil)
	require.NoError(t, err)
	require.Len(t, out.Transitions, 1)

	got := f.order(t, order.ID)
	assert.Equal(t, enums.DeliveryStatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.Nil(t, got.DispatchID)
	assert.Equal(t, enums.DeliveryStatusDelivered, f.request(t, own.ID).Status)
	assert.Equal(t, enums.DeliveryStatusPending, f.request(t, foreign.ID).Status)
}

func TestAdvanceDispatchSkipsRowsAlreadyAhead(t *testing.T) {
	f := newFixture(t)
	conn := f.client.DB()
	dispatch := dbtest.MustCreateDispatch(t, conn, f.admin.ID, enums.DeliveryStatusPending)
	pending := dbtest.MustCreateOrder(t, conn, f.exec.ID, func(o *models.Order) { o.DispatchID = &dispatch.ID })
	delivered := dbtest.MustCreateOrder(t, conn, f.exec.ID, func(o *models.Order) {
		o.DispatchID = &dispatch.ID
		o.Status = enums.DeliveryStatusDelivered
	})

	var out *Outcome
	require.NoError(t, f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		out, err = f.engine.AdvanceDispatch(context.Background(), tx, dispatch.ID, enums.DeliveryStatusDispatched, &f.admin.ID)
		return err
	}))
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, pending.ID, out.Transitions[0].OrderID)
	assert.Equal(t, enums.TransitionSourceDispatch, out.Transitions[0].Source)

	assert.Equal(t, enums.DeliveryStatusDispatched, f.order(t, pending.ID).Status)
	assert.Equal(t, enums.DeliveryStatusDelivered, f.order(t, delivered.ID).Status)

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := f.engine.AdvanceDispatch(context.Background(), tx, dispatch.ID, enums.DeliveryStatusPending, nil)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestFailedAdvanceRollsBack(t *testing.T) {
	f := newFixture(t)
	conn := f.client.DB()
	dispatch := dbtest.MustCreateDispatch(t, conn, f.admin.ID, enums.DeliveryStatusDelivered)
	order := dbtest.MustCreateOrder(t, conn, f.exec.ID, nil)

	_, err := f.advanceOrder(t, order.ID, enums.DeliveryStatusDispatched, &dispatch.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.DeliveryStatusPending, f.order(t, order.ID).Status)
}

func TestRecordCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := NewEngine(metrics.NewOrderMetrics(reg))
	engine.Record(&Outcome{Transitions: []Transition{
		{OrderID: 1, From: enums.DeliveryStatusPending, To: enums.DeliveryStatusDispatched, Source: enums.TransitionSourceOrder},
		{OrderID: 2, From: enums.DeliveryStatusPending, To: enums.DeliveryStatusDispatched, Source: enums.TransitionSourceOrder},
	}})
	engine.Record(nil)

	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "orders_status_transitions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, total)
}
