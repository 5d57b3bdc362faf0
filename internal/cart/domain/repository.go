package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, cart *Cart) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Cart, error)
	FindByGuestToken(ctx context.Context, db *gorm.DB, token string) (*Cart, error)
	Delete(ctx context.Context, db *gorm.DB, cartID snowflake.ID) error

	CreateItem(ctx context.Context, db *gorm.DB, item *CartItem) error
	FindItems(ctx context.Context, db *gorm.DB, cartID snowflake.ID) ([]CartItem, error)
	FindItem(ctx context.Context, db *gorm.DB, cartID, productID, variantID snowflake.ID) (*CartItem, error)
	FindItemByID(ctx context.Context, db *gorm.DB, cartID, itemID snowflake.ID) (*CartItem, error)
	UpdateItem(ctx context.Context, db *gorm.DB, item *CartItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error
	DeleteItems(ctx context.Context, db *gorm.DB, cartID snowflake.ID) error
}
