package domain

import "strings"

// AgentType names one of the three fixed agent personas.
type AgentType string

const (
	AgentSupport AgentType = "SUPPORT"
	AgentOrder   AgentType = "ORDER"
	AgentBilling AgentType = "BILLING"
)

// AgentTypes lists every agent in catalog order.
func AgentTypes() []AgentType {
	return []AgentType{AgentSupport, AgentOrder, AgentBilling}
}

// ParseAgentType maps a label to an AgentType. Matching is case-insensitive and
// ignores surrounding whitespace; ok is false for anything outside the closed set.
func ParseAgentType(s string) (t AgentType, ok bool) {
	switch AgentType(strings.ToUpper(strings.TrimSpace(s))) {
	case AgentSupport:
		return AgentSupport, true
	case AgentOrder:
		return AgentOrder, true
	case AgentBilling:
		return AgentBilling, true
	}
	return "", false
}

// LookupAgentType accepts only the exact upper-case names, as used on the
// public API.
func LookupAgentType(s string) (AgentType, bool) {
	switch t := AgentType(s); t {
	case AgentSupport, AgentOrder, AgentBilling:
		return t, true
	}
	return "", false
}

// Role is the author of a persisted message.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderReturned  OrderStatus = "RETURNED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderReturned
}

// OpenOrderStatuses are the states from which an order may be cancelled or returned.
func OpenOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderPending, OrderShipped, OrderDelivered}
}

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentSuccess  PaymentStatus = "SUCCESS"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PaymentMode is the instrument used for a payment.
type PaymentMode string

const (
	ModeCard       PaymentMode = "CARD"
	ModeUPI        PaymentMode = "UPI"
	ModeNetBanking PaymentMode = "NET_BANKING"
)

// ParsePaymentMode validates a payment mode label.
func ParsePaymentMode(s string) (PaymentMode, bool) {
	switch PaymentMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeCard:
		return ModeCard, true
	case ModeUPI:
		return ModeUPI, true
	case ModeNetBanking:
		return ModeNetBanking, true
	}
	return "", false
}

// DefaultCurrency is applied to payments created without a currency code.
const DefaultCurrency = "INR"
