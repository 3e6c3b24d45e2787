package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ErrStaleState is returned by conditional transitions when the row exists but
// its status no longer allows the requested change.
var ErrStaleState = errors.New("stale state")

// CreateOrder inserts a PENDING order placed by placedBy.
func CreateOrder(ctx context.Context, db *gorm.DB, placedBy string, items []domain.OrderItem) (*domain.Order, error) {
	now := time.Now().UTC()
	o := &domain.Order{
		ID:        uuid.NewString(),
		PlacedBy:  placedBy,
		Items:     items,
		Status:    domain.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Omit("Payments").Create(o).Error; err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder fetches an order by id, optionally preloading its payments
// (oldest first). Missing ids yield ErrNotFound.
func GetOrder(ctx context.Context, db *gorm.DB, id string, withPayments bool) (*domain.Order, error) {
	var o domain.Order
	q := db.WithContext(ctx)
	if withPayments {
		q = q.Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") })
	}
	if err := q.Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersByUser returns orders placed under name, newest first.
func ListOrdersByUser(ctx context.Context, db *gorm.DB, name string) ([]domain.Order, error) {
	var out []domain.Order
	err := db.WithContext(ctx).
		Where("placed_by = ?", name).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// OrderTransition describes a terminal status change and its audit columns.
type OrderTransition struct {
	To     domain.OrderStatus
	Reason string
	At     time.Time
}

// TransitionOrder moves an order into t.To with a single conditional UPDATE
// guarded by the open statuses. It returns ErrNotFound when no order has that
// id and ErrStaleState when the order is already terminal.
func TransitionOrder(ctx context.Context, db *gorm.DB, id string, t OrderTransition) error {
	updates := map[string]any{
		"status":     t.To,
		"updated_at": t.At,
	}
	switch t.To {
	case domain.OrderCancelled:
		updates["cancel_reason"] = t.Reason
		updates["cancelled_at"] = t.At
	case domain.OrderReturned:
		updates["return_reason"] = t.Reason
		updates["returned_at"] = t.At
	default:
		updates = map[string]any{"status": t.To, "updated_at": t.At}
	}

	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND status IN ?", id, domain.OpenOrderStatuses()).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleState
}
