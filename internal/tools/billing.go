package tools

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the decoded create_payment input.
type PaymentRequest struct {
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Mode     string          `json:"mode"`
	Currency string          `json:"currency"`
}

// BillingOps is the payment business API the BILLING tools call.
type BillingOps interface {
	PaymentLookup
	CreatePayment(ctx context.Context, req PaymentRequest) (Result, error)
	PaymentStatus(ctx context.Context, paymentID string) (Result, error)
	UserPayments(ctx context.Context, name string) (Result, error)
	RefundPayment(ctx context.Context, paymentID string) (Result, error)
	OrderPayments(ctx context.Context, orderID string) (Result, error)
}

type paymentIDArgs struct {
	PaymentID string `json:"paymentId"`
}

// BillingTools builds the BILLING agent's tool set.
func BillingTools(billing BillingOps) []Tool {
	paymentID := object(map[string]any{"paymentId": str("The payment ID")}, "paymentId")

	byPayment := func(fn func(context.Context, string) (Result, error)) ExecFunc {
		return func(ctx context.Context, raw json.RawMessage) (Result, error) {
			var a paymentIDArgs
			if r := decode(raw, &a); r != nil {
				return *r, nil
			}
			return fn(ctx, a.PaymentID)
		}
	}

	return []Tool{
		{
			Name:        "create_payment",
			Description: "Create a new payment for an order",
			Parameters: object(map[string]any{
				"orderId":  str("The order ID to pay for"),
				"amount":   map[string]any{"type": "number", "exclusiveMinimum": 0, "description": "Payment amount"},
				"mode":     map[string]any{"type": "string", "enum": []string{"CARD", "UPI", "NET_BANKING"}, "description": "Payment mode"},
				"currency": str("Currency code (default: INR)"),
			}, "orderId", "amount", "mode"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a PaymentRequest
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return billing.CreatePayment(ctx, a)
			},
		},
		{
			Name:        "payment_status",
			Description: "Get the status of a payment",
			Parameters:  paymentID,
			Execute:     byPayment(billing.PaymentStatus),
		},
		{
			Name:        "payment_details",
			Description: "Get the details of a payment by payment ID",
			Parameters:  paymentID,
			Execute:     byPayment(billing.PaymentDetails),
		},
		{
			Name:        "user_payments",
			Description: "Get all payments for a user",
			Parameters:  object(map[string]any{"name": str("The user name")}, "name"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a struct {
					Name string `json:"name"`
				}
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return billing.UserPayments(ctx, a.Name)
			},
		},
		{
			Name:        "refund_payment",
			Description: "Refund a payment",
			Parameters:  object(map[string]any{"paymentId": str("The payment ID to refund")}, "paymentId"),
			Execute:     byPayment(billing.RefundPayment),
		},
		{
			Name:        "order_payments",
			Description: "Get all payments for an order",
			Parameters:  object(map[string]any{"orderId": str("The order ID")}, "orderId"),
			Execute: func(ctx context.Context, raw json.RawMessage) (Result, error) {
				var a orderIDArgs
				if r := decode(raw, &a); r != nil {
					return *r, nil
				}
				return billing.OrderPayments(ctx, a.OrderID)
			},
		},
	}
}
