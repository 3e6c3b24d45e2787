package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// NewPayment carries the caller-validated fields of a payment to insert.
type NewPayment struct {
	OrderID  string
	Amount   decimal.Decimal
	Currency string
	Mode     domain.PaymentMode
	Status   domain.PaymentStatus
}

// CreatePayment inserts a payment. Status defaults to PENDING and currency to
// domain.DefaultCurrency.
func CreatePayment(ctx context.Context, db *gorm.DB, in NewPayment) (*domain.Payment, error) {
	now := time.Now().UTC()
	p := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   in.OrderID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Mode:      in.Mode,
		Status:    in.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	if p.Status == "" {
		p.Status = domain.PaymentPending
	}
	if err := db.WithContext(ctx).Omit("Order").Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment fetches a payment by id, optionally preloading its order.
func GetPayment(ctx context.Context, db *gorm.DB, id string, withOrder bool) (*domain.Payment, error) {
	var p domain.Payment
	q := db.WithContext(ctx)
	if withOrder {
		q = q.Preload("Order")
	}
	if err := q.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPaymentsByOrder returns all payments referencing orderID, oldest first.
func ListPaymentsByOrder(ctx context.Context, db *gorm.DB, orderID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListPaymentsByUser returns payments for every order placed under name,
// newest first, each with its order preloaded.
func ListPaymentsByUser(ctx context.Context, db *gorm.DB, name string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Preload("Order").
		Joins("JOIN orders ON orders.id = payments.order_id").
		Where("orders.placed_by = ?", name).
		Order("payments.created_at desc").
		Find(&out).Error
	return out, err
}

// TransitionPayment changes status from one value to another with a
// conditional UPDATE. It returns ErrNotFound for unknown ids and ErrStaleState
// when the payment is no longer in from.
func TransitionPayment(ctx context.Context, db *gorm.DB, id string, from, to domain.PaymentStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.WithContext(ctx).Model(&domain.Payment{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleState
}
