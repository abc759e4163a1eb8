package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/pagination"
)

// Repository persists orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	FindByShareToken(ctx context.Context, token string) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, string, error)
	Save(ctx context.Context, order *models.Order) error
	SetShareToken(ctx context.Context, id int64, token string) (bool, error)
	SavePublicSubmission(ctx context.Context, order *models.Order, at time.Time) (bool, error)
}
