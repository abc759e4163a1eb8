package dispatches

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

// Repository persists dispatches and their links.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispatch *models.Dispatch) error
	FindByID(ctx context.Context, id int64) (*models.Dispatch, error)
	List(ctx context.Context, params pagination.Params) ([]models.Dispatch, string, error)
	LinkOrders(ctx context.Context, dispatchID int64, orderIDs []int64) (int64, error)
	LinkSupportRequests(ctx context.Context, dispatchID int64, requestIDs []int64) (int64, error)
	LinkedOrderIDs(ctx context.Context, dispatchID int64) ([]int64, error)
	LinkedSupportRequestIDs(ctx context.Context, dispatchID int64) ([]int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dispatch *models.Dispatch) error {
	return r.db.WithContext(ctx).Create(dispatch).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Dispatch, error) {
	var dispatch models.Dispatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispatch).Error; err != nil {
		return nil, err
	}
	return &dispatch, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.Dispatch, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	q := r.db.WithContext(ctx).Model(&models.Dispatch{})
	if cursor != nil {
		q = q.Where("id < ?", cursor.ID)
	}
	var rows []models.Dispatch
	if err := q.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, params.Limit, func(d models.Dispatch) int64 { return d.ID })
	return rows, next, nil
}

// LinkOrders attaches pending, unassigned orders and returns how many matched.
func (r *repository) LinkOrders(ctx context.Context, dispatchID int64, orderIDs []int64) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND status = ? AND dispatch_id IS NULL", orderIDs, enums.DeliveryStatusPending).
		Update("dispatch_id", dispatchID)
	return res.RowsAffected, res.Error
}

func (r *repository) LinkSupportRequests(ctx context.Context, dispatchID int64, requestIDs []int64) (int64, error) {
	if len(requestIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.SupportRequest{}).
		Where("id IN ? AND status = ? AND dispatch_id IS NULL", requestIDs, enums.DeliveryStatusPending).
		Update("dispatch_id", dispatchID)
	return res.RowsAffected, res.Error
}

func (r *repository) LinkedOrderIDs(ctx context.Context, dispatchID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("dispatch_id = ?", dispatchID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) LinkedSupportRequestIDs(ctx context.Context, dispatchID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.SupportRequest{}).
		Where("dispatch_id = ?", dispatchID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
