package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Order freezes a snapshot of the purchased lines at checkout time.
// Catalog changes after creation never alter an existing order.
type Order struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Number            string            `json:"number" gorm:"type:text;not null;uniqueIndex"`
	UserID            snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Items             datatypes.JSON    `json:"items" gorm:"type:jsonb;not null"`
	Subtotal          int64             `json:"subtotal" gorm:"not null"`
	VATAmount         int64             `json:"vat_amount" gorm:"not null"`
	AssemblyTotal     int64             `json:"assembly_total" gorm:"not null"`
	DeliveryPrice     int64             `json:"delivery_price" gorm:"not null"`
	GrandTotal        int64             `json:"grand_total" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	PaymentMethod     string            `json:"payment_method" gorm:"type:text;not null"`
	PaymentID         *snowflake.ID     `json:"payment_id,omitempty"`
	PaymentStatus     string            `json:"payment_status" gorm:"type:text;not null"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status" gorm:"type:text;not null"`
	DeliveryAddress   string            `json:"delivery_address" gorm:"type:text;not null"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one element of the frozen Items snapshot.
type OrderItem struct {
	ProductID        snowflake.ID `json:"product_id"`
	VariantID        snowflake.ID `json:"variant_id"`
	Name             string       `json:"name"`
	SKU              string       `json:"sku"`
	UnitPrice        int64        `json:"unit_price"`
	Quantity         int64        `json:"quantity"`
	AssemblySelected bool         `json:"assembly_selected"`
	AssemblyFee      int64        `json:"assembly_fee"`
}

type FulfillmentStatus string

const (
	FulfillmentNew        FulfillmentStatus = "new"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentNew:        {FulfillmentProcessing, FulfillmentCancelled},
	FulfillmentProcessing: {FulfillmentShipped, FulfillmentCancelled},
	FulfillmentShipped:    {FulfillmentDelivered},
	FulfillmentDelivered:  {},
	FulfillmentCancelled:  {},
}

func (s FulfillmentStatus) CanTransition(next FulfillmentStatus) bool {
	for _, allowed := range fulfillmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
