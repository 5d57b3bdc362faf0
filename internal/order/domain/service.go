package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Create persists a new order snapshot on the caller's tx so the
	// checkout saga commits or rolls back the order with the rest of
	// its writes.
	Create(ctx context.Context, tx *gorm.DB, draft Draft) (*Order, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListUserOrders(ctx context.Context, userID snowflake.ID) ([]Order, error)

	AttachPayment(ctx context.Context, tx *gorm.DB, orderID, paymentID snowflake.ID) error
	SetPaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status string) error
	AdvanceFulfillment(ctx context.Context, orderID snowflake.ID, next FulfillmentStatus) (*Order, error)

	// Cancel releases the order's reserved stock and marks it
	// cancelled. Allowed only from new or processing.
	Cancel(ctx context.Context, orderID snowflake.ID) (*Order, error)
}

// Draft carries the totals the checkout coordinator already computed.
// The factory derives number and initial statuses; it never recomputes
// money.
type Draft struct {
	UserID          snowflake.ID
	Items           []OrderItem
	Subtotal        int64
	VATAmount       int64
	AssemblyTotal   int64
	DeliveryPrice   int64
	GrandTotal      int64
	Currency        string
	PaymentMethod   string
	DeliveryAddress string
}

var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrInvalidAddress     = errors.New("invalid_delivery_address")
	ErrInvalidTotals      = errors.New("invalid_order_totals")
	ErrInvalidTransition  = errors.New("invalid_fulfillment_transition")
	ErrCancelNotAllowed   = errors.New("order_cancel_not_allowed")
	ErrEmptyOrder         = errors.New("empty_order")
	ErrInvalidOrderNumber = errors.New("invalid_order_number")
)
