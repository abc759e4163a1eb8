package supportrequests

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, req *models.SupportRequest) error
	FindOrder(ctx context.Context, orderID int64) (*models.Order, error)
	List(ctx context.Context, userID *uuid.UUID, params pagination.Params) ([]models.SupportRequest, string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *models.SupportRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "school_name", "status", "dispatch_id").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, userID *uuid.UUID, params pagination.Params) ([]models.SupportRequest, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	q := r.db.WithContext(ctx).Model(&models.SupportRequest{})
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if cursor != nil {
		q = q.Where("id < ?", cursor.ID)
	}
	var rows []models.SupportRequest
	if err := q.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, params.Limit, func(r models.SupportRequest) int64 { return r.ID })
	return rows, next, nil
}
