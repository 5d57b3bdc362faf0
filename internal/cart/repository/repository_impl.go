package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/cart/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, cart *domain.Cart) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO carts (id, user_id, guest_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cart.ID,
		cart.UserID,
		cart.GuestToken,
		cart.CreatedAt,
		cart.UpdatedAt,
	).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Cart, error) {
	var c domain.Cart
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, guest_token, created_at, updated_at
		 FROM carts WHERE user_id = ?`,
		userID,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindByGuestToken(ctx context.Context, db *gorm.DB, token string) (*domain.Cart, error) {
	var c domain.Cart
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, guest_token, created_at, updated_at
		 FROM carts WHERE guest_token = ?`,
		token,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, cartID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM carts WHERE id = ?`, cartID).Error
}

func (r *repo) CreateItem(ctx context.Context, db *gorm.DB, item *domain.CartItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, assembly_selected, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.CartID,
		item.ProductID,
		item.VariantID,
		item.Quantity,
		item.AssemblySelected,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindItems(ctx context.Context, db *gorm.DB, cartID snowflake.ID) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, product_id, variant_id, quantity, assembly_selected, created_at, updated_at
		 FROM cart_items WHERE cart_id = ? ORDER BY created_at ASC`,
		cartID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, cartID, productID, variantID snowflake.ID) (*domain.CartItem, error) {
	var item domain.CartItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, product_id, variant_id, quantity, assembly_selected, created_at, updated_at
		 FROM cart_items WHERE cart_id = ? AND product_id = ? AND variant_id = ?`,
		cartID,
		productID,
		variantID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindItemByID(ctx context.Context, db *gorm.DB, cartID, itemID snowflake.ID) (*domain.CartItem, error) {
	var item domain.CartItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, cart_id, product_id, variant_id, quantity, assembly_selected, created_at, updated_at
		 FROM cart_items WHERE id = ? AND cart_id = ?`,
		itemID,
		cartID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateItem(ctx context.Context, db *gorm.DB, item *domain.CartItem) error {
	return db.WithContext(ctx).Exec(
		`UPDATE cart_items SET quantity = ?, assembly_selected = ?, updated_at = ? WHERE id = ?`,
		item.Quantity,
		item.AssemblySelected,
		item.UpdatedAt,
		item.ID,
	).Error
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, itemID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM cart_items WHERE id = ?`, itemID).Error
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, cartID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM cart_items WHERE cart_id = ?`, cartID).Error
}
