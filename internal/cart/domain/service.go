package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// GetOrCreate loads the identity's cart, creating an empty one on
	// first touch.
	GetOrCreate(ctx context.Context, identity Identity) (*CartView, error)
	AddItem(ctx context.Context, identity Identity, req AddItemRequest) (*CartView, error)
	UpdateItem(ctx context.Context, identity Identity, itemID snowflake.ID, req UpdateItemRequest) (*CartView, error)
	RemoveItem(ctx context.Context, identity Identity, itemID snowflake.ID) (*CartView, error)

	// Clear empties the identity's cart. A nil db falls back to the
	// service handle; the checkout saga passes its transaction so the
	// wipe commits with the order.
	Clear(ctx context.Context, db *gorm.DB, identity Identity) error

	// Merge folds the guest cart into the user's cart on login.
	// Matching product+variant lines sum their quantities; the guest
	// cart is deleted afterwards.
	Merge(ctx context.Context, guestToken string, userID snowflake.ID) (*CartView, error)
}

type AddItemRequest struct {
	ProductID        snowflake.ID `json:"product_id"`
	VariantID        snowflake.ID `json:"variant_id"`
	Quantity         int64        `json:"quantity"`
	AssemblySelected bool         `json:"assembly_selected"`
}

type UpdateItemRequest struct {
	Quantity         int64 `json:"quantity"`
	AssemblySelected *bool `json:"assembly_selected"`
}

type CartView struct {
	Cart  Cart       `json:"cart"`
	Items []CartItem `json:"items"`
}

var (
	ErrInvalidIdentity = errors.New("invalid_cart_identity")
	ErrCartNotFound    = errors.New("cart_not_found")
	ErrItemNotFound    = errors.New("cart_item_not_found")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrEmptyCart       = errors.New("empty_cart")
)
