package supportrequests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/schoolorders-backend/pkg/auth"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/dbtest"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/schoolorders-backend/pkg/errors"
	"github.com/angelmondragon/schoolorders-backend/pkg/logger"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

func TestCreateInheritsOrderState(t *testing.T) {
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), logger.Nop())
	require.NoError(t, err)

	admin := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin)
	exec := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	dispatch := dbtest.MustCreateDispatch(t, client.DB(), admin.ID, enums.DeliveryStatusDispatched)
	order := dbtest.MustCreateOrder(t, client.DB(), exec.ID, func(o *models.Order) {
		o.Status = enums.DeliveryStatusDispatched
		o.DispatchID = &dispatch.ID
		o.School.SchoolName = "Sunrise Academy"
	})

	actor := auth.Actor{UserID: exec.ID, Role: enums.UserRoleExecutive}
	got, err := svc.Create(context.Background(), actor, CreateInput{OrderID: &order.ID, Description: "two books missing"})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDispatched, got.Status)
	require.NotNil(t, got.DispatchID)
	assert.Equal(t, dispatch.ID, *got.DispatchID)
	assert.Equal(t, "Sunrise Academy", got.SchoolName)

	loose, err := svc.Create(context.Background(), actor, CreateInput{SchoolName: "Walk-in", Description: "catalogue request"})
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusPending, loose.Status)
	assert.Nil(t, loose.OrderID)
}

func TestCreateChecksOwnershipAndInput(t *testing.T) {
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), logger.Nop())
	require.NoError(t, err)

	owner := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	stranger := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	admin := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin)
	order := dbtest.MustCreateOrder(t, client.DB(), owner.ID, nil)
	ctx := context.Background()

	_, err = svc.Create(ctx, auth.Actor{UserID: stranger.ID, Role: enums.UserRoleExecutive}, CreateInput{OrderID: &order.ID, Description: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.Create(ctx, auth.Actor{UserID: admin.ID, Role: enums.UserRoleAdmin}, CreateInput{OrderID: &order.ID, Description: "x"})
	assert.NoError(t, err)

	missing := order.ID + 10
	_, err = svc.Create(ctx, auth.Actor{UserID: owner.ID, Role: enums.UserRoleExecutive}, CreateInput{OrderID: &missing, Description: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Create(ctx, auth.Actor{UserID: owner.ID, Role: enums.UserRoleExecutive}, CreateInput{Description: "   "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListScopesToOwner(t *testing.T) {
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), logger.Nop())
	require.NoError(t, err)

	a := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	b := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleExecutive)
	admin := dbtest.MustCreateUser(t, client.DB(), enums.UserRoleAdmin)
	dbtest.MustCreateSupportRequest(t, client.DB(), a.ID, nil, nil)
	dbtest.MustCreateSupportRequest(t, client.DB(), a.ID, nil, nil)
	dbtest.MustCreateSupportRequest(t, client.DB(), b.ID, nil, nil)
	ctx := context.Background()

	mine, err := svc.List(ctx, auth.Actor{UserID: a.ID, Role: enums.UserRoleExecutive}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, mine.Requests, 2)

	all, err := svc.List(ctx, auth.Actor{UserID: admin.ID, Role: enums.UserRoleAdmin}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Requests, 3)
}
