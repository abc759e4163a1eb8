package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

// editableColumns are written by Save. Ownership, status and linkage columns
// are only touched by dedicated operations.
var editableColumns = []string{
	"academic_year", "order_date", "reference_no", "executive_code",
	"school_code", "school_name", "trust_name", "board", "address", "city", "state", "pincode",
	"principal_name", "principal_phone", "coordinator_name", "coordinator_phone", "contact_email",
	"delivery_date", "delivery_address", "transport_mode", "transporter_name", "dispatch_notes",
	"items", "category_discounts", "discount_value",
	"total_amount", "total_discount", "net_amount",
	"updated_at",
}

// publicColumns are the subset a share-link submission may change.
var publicColumns = []string{
	"school_code", "school_name", "trust_name", "board", "address", "city", "state", "pincode",
	"principal_name", "principal_phone", "coordinator_name", "coordinator_phone", "contact_email",
	"delivery_date", "delivery_address", "transport_mode", "transporter_name", "dispatch_notes",
	"items", "category_discounts",
	"total_amount", "total_discount", "net_amount",
	"is_public_filled", "public_filled_at", "updated_at",
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByShareToken(ctx context.Context, token string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("share_token = ?", token).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// List returns orders newest first.
func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.UserID != nil {
		q = q.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if cursor != nil {
		q = q.Where("id < ?", cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) int64 { return o.ID })
	return rows, next, nil
}

func (r *repository) Save(ctx context.Context, order *models.Order) error {
	order.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(order).
		Select(editableColumns).
		Updates(order).Error
}

// SetShareToken stores token only when the order has none yet.
func (r *repository) SetShareToken(ctx context.Context, id int64, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND share_token IS NULL", id).
		Update("share_token", token)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SavePublicSubmission writes the school's edits and flips is_public_filled.
// It reports false when another submission won or the order left pending.
func (r *repository) SavePublicSubmission(ctx context.Context, order *models.Order, at time.Time) (bool, error) {
	order.IsPublicFilled = true
	order.PublicFilledAt = &at
	order.UpdatedAt = at
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND is_public_filled = ? AND status = ?", order.ID, false, enums.DeliveryStatusPending).
		Select(publicColumns).
		Updates(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
