package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	CreateVariant(ctx context.Context, req CreateVariantRequest) (*Variant, error)
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	GetVariant(ctx context.Context, id snowflake.ID) (*Variant, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListVariants(ctx context.Context, productID snowflake.ID) ([]Variant, error)

	// ReserveStock decrements stock for every line or none: the first
	// failing line aborts with no partial reservation committed. It
	// must run on the caller's transaction handle.
	ReserveStock(ctx context.Context, tx *gorm.DB, lines []ReservationLine) error

	// ReleaseStock restores stock for the given lines. A missing
	// variant is logged and skipped so cancellations never fail on
	// catalog drift.
	ReleaseStock(ctx context.Context, tx *gorm.DB, lines []ReservationLine) error
}

type CreateProductRequest struct {
	Name              string         `json:"name"`
	Description       *string        `json:"description"`
	AssemblyAvailable bool           `json:"assembly_available"`
	Metadata          map[string]any `json:"metadata"`
}

type CreateVariantRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	SKU       string       `json:"sku"`
	Price     int64        `json:"price"`
	Stock     int64        `json:"stock"`
}

var (
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidSKU        = errors.New("invalid_sku")
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidStock      = errors.New("invalid_stock")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrProductNotFound   = errors.New("product_not_found")
	ErrProductInactive   = errors.New("product_inactive")
	ErrVariantNotFound   = errors.New("variant_not_found")
	ErrVariantInactive   = errors.New("variant_inactive")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrDuplicateSKU      = errors.New("duplicate_sku")
)
