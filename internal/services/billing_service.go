package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/tools"
)

const (
	msgPaymentNotFound    = "Payment not found"
	msgOrderIDRequired    = "Order ID is required"
	msgAmountPositive     = "Amount must be greater than 0"
	msgInvalidMode        = "Payment mode must be one of CARD, UPI, NET_BANKING"
	msgAlreadyRefunded    = "Payment has already been refunded"
	msgOnlySuccessRefunds = "Only successful payments can be refunded"
	msgRefunded           = "Payment refunded successfully"
)

// BillingService implements the payment operations the BILLING and ORDER
// agents' tools call.
type BillingService struct {
	DB *gorm.DB
}

// NewBillingService constructs a BillingService.
func NewBillingService(db *gorm.DB) *BillingService {
	return &BillingService{DB: db}
}

var _ tools.BillingOps = (*BillingService)(nil)

// CreatePayment records a PENDING payment against an existing order.
func (s *BillingService) CreatePayment(ctx context.Context, req tools.PaymentRequest) (tools.Result, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return tools.Fail(msgOrderIDRequired), nil
	}
	if !req.Amount.IsPositive() {
		return tools.Fail(msgAmountPositive), nil
	}
	mode, ok := domain.ParsePaymentMode(req.Mode)
	if !ok {
		return tools.Fail(msgInvalidMode), nil
	}
	if !validID(orderID) {
		return tools.Fail(msgOrderNotFound), nil
	}
	if _, err := repo.GetOrder(ctx, s.DB, orderID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return tools.Fail(msgOrderNotFound), nil
		}
		return tools.Result{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	p, err := repo.CreatePayment(ctx, s.DB, repo.NewPayment{
		OrderID:  orderID,
		Amount:   req.Amount.Round(2),
		Currency: currency,
		Mode:     mode,
	})
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(map[string]any{"paymentId": p.ID}), nil
}

// PaymentDetails returns the payment with its order. Data is *domain.Payment.
func (s *BillingService) PaymentDetails(ctx context.Context, paymentID string) (tools.Result, error) {
	p, res, err := s.lookup(ctx, paymentID, true)
	if p == nil {
		return res, err
	}
	return tools.OK(p), nil
}

// PaymentStatus returns the payment's status string.
func (s *BillingService) PaymentStatus(ctx context.Context, paymentID string) (tools.Result, error) {
	p, res, err := s.lookup(ctx, paymentID, false)
	if p == nil {
		return res, err
	}
	return tools.OK(string(p.Status)), nil
}

// UserPayments lists payments for orders placed under name.
func (s *BillingService) UserPayments(ctx context.Context, name string) (tools.Result, error) {
	list, err := repo.ListPaymentsByUser(ctx, s.DB, strings.TrimSpace(name))
	if err != nil {
		return tools.Result{}, err
	}
	if list == nil {
		list = []domain.Payment{}
	}
	return tools.OK(list), nil
}

// OrderPayments lists the payments of one order. Unknown or malformed order
// ids yield an empty list.
func (s *BillingService) OrderPayments(ctx context.Context, orderID string) (tools.Result, error) {
	orderID = strings.TrimSpace(orderID)
	if !validID(orderID) {
		return tools.OK([]domain.Payment{}), nil
	}
	list, err := repo.ListPaymentsByOrder(ctx, s.DB, orderID)
	if err != nil {
		return tools.Result{}, err
	}
	if list == nil {
		list = []domain.Payment{}
	}
	return tools.OK(list), nil
}

// RefundPayment moves a SUCCESS payment to REFUNDED.
func (s *BillingService) RefundPayment(ctx context.Context, paymentID string) (tools.Result, error) {
	p, res, err := s.lookup(ctx, paymentID, false)
	if p == nil {
		return res, err
	}
	if r, blocked := refundBlocked(p.Status); blocked {
		return r, nil
	}

	err = repo.TransitionPayment(ctx, s.DB, p.ID, domain.PaymentSuccess, domain.PaymentRefunded)
	switch {
	case err == nil:
		return tools.OK(msgRefunded), nil
	case errors.Is(err, repo.ErrNotFound):
		return tools.Fail(msgPaymentNotFound), nil
	case errors.Is(err, repo.ErrStaleState):
		cur, gerr := repo.GetPayment(ctx, s.DB, p.ID, false)
		if gerr != nil {
			if errors.Is(gerr, repo.ErrNotFound) {
				return tools.Fail(msgPaymentNotFound), nil
			}
			return tools.Result{}, gerr
		}
		if r, blocked := refundBlocked(cur.Status); blocked {
			return r, nil
		}
		return tools.Fail(msgOnlySuccessRefunds), nil
	default:
		return tools.Result{}, err
	}
}

func refundBlocked(status domain.PaymentStatus) (tools.Result, bool) {
	switch status {
	case domain.PaymentSuccess:
		return tools.Result{}, false
	case domain.PaymentRefunded:
		return tools.Fail(msgAlreadyRefunded), true
	default:
		return tools.Fail(msgOnlySuccessRefunds), true
	}
}

func (s *BillingService) lookup(ctx context.Context, paymentID string, withOrder bool) (*domain.Payment, tools.Result, error) {
	paymentID = strings.TrimSpace(paymentID)
	if !validID(paymentID) {
		return nil, tools.Fail(msgPaymentNotFound), nil
	}
	p, err := repo.GetPayment(ctx, s.DB, paymentID, withOrder)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, tools.Fail(msgPaymentNotFound), nil
	}
	if err != nil {
		return nil, tools.Result{}, err
	}
	return p, tools.Result{}, nil
}
