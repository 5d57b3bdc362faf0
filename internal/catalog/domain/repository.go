package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository takes an explicit db handle so callers decide the
// transaction scope; the checkout saga passes its own tx.
type Repository interface {
	CreateProduct(ctx context.Context, db *gorm.DB, product *Product) error
	CreateVariant(ctx context.Context, db *gorm.DB, variant *Variant) error
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindVariantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variant, error)
	ListProducts(ctx context.Context, db *gorm.DB) ([]Product, error)
	ListVariants(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]Variant, error)

	// DecrementStock atomically decrements the variant's stock and
	// reports whether a row was updated; it must refuse to go below
	// zero inside the same statement.
	DecrementStock(ctx context.Context, db *gorm.DB, variantID snowflake.ID, quantity int64) (bool, error)
	IncrementStock(ctx context.Context, db *gorm.DB, variantID snowflake.ID, quantity int64) (bool, error)
}
