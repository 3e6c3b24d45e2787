// Package services – OrderService
//
// OrderService implements the order operations the ORDER agent's tools call.
// Business failures (validation, not found, invalid state) come back as
// tools.Result values with Success=false; only storage faults are errors.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/tools"
)

const (
	msgOrderNotFound      = "Order not found"
	msgNameRequired       = "User name is required"
	msgItemsRequired      = "At least one item is required"
	msgInvalidItem        = "Each item must have a valid name and quantity > 0"
	msgAlreadyCancelled   = "Order is already cancelled"
	msgCannotCancel       = "Order cannot be cancelled in its current state"
	msgCannotReturn       = "Order cannot be returned in its current state"
	msgOrderCancelled     = "Order cancelled successfully"
	msgReturnInitiated    = "Return initiated successfully"
	defaultTransitionNote = "NA"
)

// OrderService provides order creation, lookups, and lifecycle transitions.
type OrderService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewOrderService constructs an OrderService.
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

var _ tools.OrderOps = (*OrderService)(nil)

// CreateOrder validates and stores a PENDING order. Nothing is written when
// validation fails.
func (s *OrderService) CreateOrder(ctx context.Context, name string, items []domain.OrderItem) (tools.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return tools.Fail(msgNameRequired), nil
	}
	if len(items) == 0 {
		return tools.Fail(msgItemsRequired), nil
	}
	clean := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		n := strings.TrimSpace(it.Name)
		if n == "" || it.Qty <= 0 {
			return tools.Fail(msgInvalidItem), nil
		}
		clean = append(clean, domain.OrderItem{Name: n, Qty: it.Qty})
	}

	o, err := repo.CreateOrder(ctx, s.DB, name, clean)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.OK(map[string]any{"orderId": o.ID}), nil
}

// OrderStatus returns the order's status string.
func (s *OrderService) OrderStatus(ctx context.Context, orderID string) (tools.Result, error) {
	o, res, err := s.lookup(ctx, orderID, false)
	if o == nil {
		return res, err
	}
	return tools.OK(string(o.Status)), nil
}

// OrderDetails returns the order with its payments.
func (s *OrderService) OrderDetails(ctx context.Context, orderID string) (tools.Result, error) {
	o, res, err := s.lookup(ctx, orderID, true)
	if o == nil {
		return res, err
	}
	return tools.OK(o), nil
}

// UserOrders lists every order placed under name. An unknown name yields an
// empty list, not a failure.
func (s *OrderService) UserOrders(ctx context.Context, name string) (tools.Result, error) {
	list, err := repo.ListOrdersByUser(ctx, s.DB, strings.TrimSpace(name))
	if err != nil {
		return tools.Result{}, err
	}
	if list == nil {
		list = []domain.Order{}
	}
	return tools.OK(list), nil
}

// CancelOrder moves an open order to CANCELLED.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (tools.Result, error) {
	return s.transition(ctx, orderID, reason, domain.OrderCancelled, msgOrderCancelled)
}

// ReturnOrder moves an open order to RETURNED.
func (s *OrderService) ReturnOrder(ctx context.Context, orderID, reason string) (tools.Result, error) {
	return s.transition(ctx, orderID, reason, domain.OrderReturned, msgReturnInitiated)
}

func (s *OrderService) transition(ctx context.Context, orderID, reason string, to domain.OrderStatus, okMsg string) (tools.Result, error) {
	orderID = strings.TrimSpace(orderID)
	if !validID(orderID) {
		return tools.Fail(msgOrderNotFound), nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultTransitionNote
	}

	err := repo.TransitionOrder(ctx, s.DB, orderID, repo.OrderTransition{To: to, Reason: reason, At: s.Now()})
	switch {
	case err == nil:
		return tools.OK(okMsg), nil
	case errors.Is(err, repo.ErrNotFound):
		return tools.Fail(msgOrderNotFound), nil
	case errors.Is(err, repo.ErrStaleState):
		// Lost the race or already terminal: report the state we find now.
		o, gerr := repo.GetOrder(ctx, s.DB, orderID, false)
		if gerr != nil {
			if errors.Is(gerr, repo.ErrNotFound) {
				return tools.Fail(msgOrderNotFound), nil
			}
			return tools.Result{}, gerr
		}
		return tools.Fail(terminalMessage(o.Status, to)), nil
	default:
		return tools.Result{}, err
	}
}

func terminalMessage(current, wanted domain.OrderStatus) string {
	if wanted == domain.OrderReturned {
		return msgCannotReturn
	}
	if current == domain.OrderCancelled {
		return msgAlreadyCancelled
	}
	return msgCannotCancel
}

// lookup resolves an order. A nil order means res/err should be returned as is.
func (s *OrderService) lookup(ctx context.Context, orderID string, withPayments bool) (*domain.Order, tools.Result, error) {
	orderID = strings.TrimSpace(orderID)
	if !validID(orderID) {
		return nil, tools.Fail(msgOrderNotFound), nil
	}
	o, err := repo.GetOrder(ctx, s.DB, orderID, withPayments)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, tools.Fail(msgOrderNotFound), nil
	}
	if err != nil {
		return nil, tools.Result{}, err
	}
	return o, tools.Result{}, nil
}

// validID reports whether id is a well-formed UUID. Malformed ids are
// answered with the not-found message.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
