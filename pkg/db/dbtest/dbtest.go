// Package dbtest opens migrated in-memory SQLite databases for repository tests.
package dbtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/schoolorders-backend/pkg/config"
	"github.com/angelmondragon/schoolorders-backend/pkg/db"
	"github.com/angelmondragon/schoolorders-backend/pkg/db/models"
	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/migrate"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
)

// Open returns a client backed by a private in-memory database with every
// sqlite migration applied. The database is dropped when the test ends.
func Open(t testing.TB) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if err := migrate.Up(context.Background(), sqlDB, config.DriverSQLite); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.FromGorm(conn)
}

func MustCreateUser(t testing.TB, tx *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Email:        fmt.Sprintf("so_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		FullName:     "Test User",
		Role:         role,
		IsActive:     true,
	}
	if err := tx.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateOrder inserts a pending order owned by userID. Callers may tweak
// the order before it is written through mutate.
func MustCreateOrder(t testing.TB, tx *gorm.DB, userID uuid.UUID, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		UserID:            userID,
		Items:             types.LineItems{},
		CategoryDiscounts: types.CategoryDiscounts{},
		DiscountMode:      enums.DiscountModeFlat,
		Status:            enums.DeliveryStatusPending,
	}
	order.School.SchoolName = "Test School"
	if mutate != nil {
		mutate(order)
	}
	if err := tx.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func MustCreateDispatch(t testing.TB, tx *gorm.DB, createdBy uuid.UUID, status enums.DeliveryStatus) *models.Dispatch {
	t.Helper()
	dispatch := &models.Dispatch{
		LRNo:        "LR-" + uuid.NewString()[:8],
		Transporter: "VRL Logistics",
		Status:      status,
		CreatedBy:   createdBy,
	}
	if err := tx.Create(dispatch).Error; err != nil {
		t.Fatalf("create dispatch: %v", err)
	}
	return dispatch
}

func MustCreateSupportRequest(t testing.TB, tx *gorm.DB, userID uuid.UUID, orderID, dispatchID *int64) *models.SupportRequest {
	t.Helper()
	req := &models.SupportRequest{
		UserID:      userID,
		OrderID:     orderID,
		SchoolName:  "Test School",
		Description: "replacement books",
		Status:      enums.DeliveryStatusPending,
		DispatchID:  dispatchID,
	}
	if err := tx.Create(req).Error; err != nil {
		t.Fatalf("create support request: %v", err)
	}
	return req
}
