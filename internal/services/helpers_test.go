package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
)

// ---------- test helpers ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustOrder(t *testing.T, db *gorm.DB, name string) *domain.Order {
	t.Helper()
	o, err := repo.CreateOrder(context.Background(), db, name, []domain.OrderItem{{Name: "Kettle", Qty: 1}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func mustPayment(t *testing.T, db *gorm.DB, orderID string, status domain.PaymentStatus) *domain.Payment {
	t.Helper()
	p, err := repo.CreatePayment(context.Background(), db, repo.NewPayment{
		OrderID: orderID,
		Amount:  decimal.NewFromInt(499),
		Mode:    domain.ModeUPI,
		Status:  status,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}
