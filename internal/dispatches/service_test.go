package dispatches

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/schoolorders-backend/internal/fulfillment"
	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/dbtest"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

func setup(t *testing.T) (*db.Client, Service, auth.Actor, auth.Actor) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), client, fulfillment.NewEngine(nil), logger.Nop())
	require.NoError(t, err)
	admin := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin)
	exec := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	return client,
		svc,
		auth.Actor{UserID: admin.ID, Role: enums.UserRoleAdmin},
		auth.Actor{UserID: exec.ID, Role: enums.UserRoleExecutive}
}

func TestCreateLinksOrdersAndRequests(t *testing.T) {
	client, svc, admin, exec := setup(t)
	ctx := context.Background()
	a := dbtest.MustCreateOrder(t, client.DB(), exec.UserID, nil)
	b := dbtest.MustCreateOrder(t, client.DB(), exec.UserID, nil)
	req := dbtest.MustCreateSupportRequest(t, client.DB(), exec.UserID, nil, nil)

	created, err := svc.Create(ctx, admin, CreateInput{
		LRNo:              " LR-1001 ",
		Transporter:       "VRL Logistics",
		OrderIDs:          []int64{a.ID, b.ID, a.ID},
		SupportRequestIDs: []int64{req.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "LR-1001", created.LRNo)
	assert.Equal(t, enums.DeliveryStatusPending, created.Status)
	assert.Equal(t, []int64{a.ID, b.ID}, created.OrderIDs)

	got, err := svc.Get(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, got.OrderIDs)
	assert.Equal(t, []int64{req.ID}, got.SupportRequestIDs)

	var order models.Order
	require.NoError(t, client.DB().First(&order, a.ID).Error)
	require.NotNil(t, order.DispatchID)
	assert.Equal(t, created.ID, *order.DispatchID)
	assert.Equal(t, enums.DeliveryStatusPending, order.Status)
}

func TestCreateRejectsUnlinkableOrders(t *testing.T) {
	client, svc, admin, exec := setup(t)
	ctx := context.Background()
	delivered := dbtest.MustCreateOrder(t, client.DB(), exec.UserID, func(o *models.Order) {
		o.Status = enums.DeliveryStatusDelivered
	})
	pending := dbtest.MustCreateOrder(t, client.DB(), exec.UserID, nil)

	_, err := svc.Create(ctx, admin, CreateInput{LRNo: "LR-1", OrderIDs: []int64{pending.ID, delivered.ID}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, client.DB().Model(&models.Dispatch{}).Count(&count).Error)
	assert.Zero(t, count)

	var order models.Order
	require.NoError(t, client.DB().First(&order, pending.ID).Error)
	assert.Nil(t, order.DispatchID)
}

func TestDispatchOperationsRequireAdmin(t *testing.T) {
	_, svc, _, exec := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, exec, CreateInput{LRNo: "LR-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = svc.List(ctx, exec, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = svc.MarkDelivered(ctx, exec, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestMarkDispatchedThenDelivered(t *testing.T) {
	client, svc, admin, exec := setup(t)
	ctx := context.Background()
	order := dbtest.MustCreateOrder(t, client.DB(), exec.UserID, nil)
	req := dbtest.MustCreateSupportRequest(t, client.DB(), exec.UserID, &order.ID, nil)

	created, err := svc.Create(ctx, admin, CreateInput{LRNo: "LR-77", OrderIDs: []int64{order.ID}})
	require.NoError(t, err)

	got, err := svc.MarkDispatched(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDispatched, got.Status)
	assert.NotNil(t, got.DispatchedAt)

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, order.ID).Error)
	assert.Equal(t, enums.DeliveryStatusDispatched, stored.Status)

	var linked models.SupportRequest
	require.NoError(t, client.DB().First(&linked, req.ID).Error)
	assert.Equal(t, enums.DeliveryStatusDispatched, linked.Status)

	got, err = svc.MarkDelivered(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivered, got.Status)

	require.NoError(t, client.DB().First(&stored, order.ID).Error)
	assert.Equal(t, enums.DeliveryStatusDelivered, stored.Status)
	require.NoError(t, client.DB().First(&linked, req.ID).Error)
	assert.Equal(t, enums.DeliveryStatusDelivered, linked.Status)

	_, err = svc.MarkDispatched(ctx, admin, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.MarkDelivered(ctx, admin, created.ID+50)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListPaginates(t *testing.T) {
	_, svc, admin, _ := setup(t)
	ctx := context.Background()
	for _, lr := range []string{"LR-1", "LR-2", "LR-3"} {
		_, err := svc.Create(ctx, admin, CreateInput{LRNo: lr})
		require.NoError(t, err)
	}
	page, err := svc.List(ctx, admin, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Dispatches, 2)
	assert.Equal(t, "LR-3", page.Dispatches[0].LRNo)

	rest, err := svc.List(ctx, admin, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Dispatches, 1)
	assert.Equal(t, "LR-1", rest.Dispatches[0].LRNo)
}
