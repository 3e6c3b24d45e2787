package tools

import (
	"context"
	"encoding/json"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// OrderOps is the order business API the ORDER tools call.
type OrderOps interface {
	CreateOrder(ctx context.Context, name string, items []domain.OrderItem) (Result, error)
	OrderStatus(ctx context.Context, orderID string) (Result, error)
	OrderDetails(ctx context.Context, orderID string) (Result, error)
	UserOrders(ctx context.Context, name string) (Result, error)
	CancelOrder(ctx context.Context, orderID, reason string) (Result, error)
	ReturnOrder(ctx context.Context, orderID, reason string) (Result, error)
}

// PaymentLookup resolves a payment with its order.
type PaymentLookup interface {
	PaymentDetails(ctx context.Context, paymentID string) (Result, error)
}

type orderIDArgs struct {
	OrderID string `json:"orderId"`
}

type reasonArgs struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

type createOrderArgs struct {
	Name  string             `json:"name"`
	Items []domain.OrderItem `json:"items"`
}

// OrderTools builds the ORDER agent's tool set.
func OrderTools(orders OrderOps, payments PaymentLookup) []Tool {
	orderID := object(map[string]any{"orderId": str("The order ID")}, "orderId")
	withReason := object(map[string]any{
		"orderId": str("The order ID"),
		"reason":  str("Optional reason given by the user"),
	}, "orderId")

	return []Tool{
		{
			Name:        "create_order",
			Description: "Create a new order",
			Parameters: object(map[string]any{
				"name": str("Name of the user placing the order"),
				"items": map[string]any{
					"type": "array",
					"items": object(map[string]any{
						"name": str("Product name"),
						"qty":  map[string]any{"type": "integer", "minimum": 1, "description": "Quantity"},
					}, "name", "qty"),
				},
			}, "name", "items"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a createOrderArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.CreateOrder(ctx, a.Name, a.Items)
			},
		},
		{
			Name:        "order_status",
			Description: "Get the status of an order",
			Parameters:  orderID,
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a orderIDArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.OrderStatus(ctx, a.OrderID)
			},
		},
		{
			Name:        "order_details",
			Description: "Get the details of an order by order Id",
			Parameters:  orderID,
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a orderIDArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.OrderDetails(ctx, a.OrderID)
			},
		},
		{
			Name:        "user_orders",
			Description: "Get the details of all orders of a user",
			Parameters:  object(map[string]any{"name": str("The user name")}, "name"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a struct {
					Name string `json:"name"`
				}
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.UserOrders(ctx, a.Name)
			},
		},
		{
			Name:        "cancel_order",
			Description: "Cancel an order",
			Parameters:  withReason,
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a reasonArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.CancelOrder(ctx, a.OrderID, a.Reason)
			},
		},
		{
			Name:        "return_order",
			Description: "Return an order",
			Parameters:  withReason,
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a reasonArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return orders.ReturnOrder(ctx, a.OrderID, a.Reason)
			},
		},
		{
			Name:        "payment_order",
			Description: "Get order details from a payment ID",
			Parameters:  object(map[string]any{"paymentId": str("The payment ID")}, "paymentId"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a paymentIDArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				res, err := payments.PaymentDetails(ctx, a.PaymentID)
				if err != nil || !res.Success {
					return res, err
				}
				p, ok := res.Data.(*domain.Payment)
				if !ok || p == nil {
					return Fail("Order not found"), nil
				}
				return orders.OrderDetails(ctx, p.OrderID)
			},
		},
	}
}
