package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Order, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Order, error)

	AttachPayment(ctx context.Context, db *gorm.DB, orderID, paymentID snowflake.ID) error
	UpdatePaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status string) error

	// UpdateFulfillment transitions only when the row still holds the
	// expected current status; it reports whether a row changed.
	UpdateFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to FulfillmentStatus) (bool, error)
}
