package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, code, name, description, active, assembly_available, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Code,
		product.Name,
		product.Description,
		product.Active,
		product.AssemblyAvailable,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) CreateVariant(ctx context.Context, db *gorm.DB, variant *domain.Variant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_variants (id, product_id, sku, price, stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		variant.ID,
		variant.ProductID,
		variant.SKU,
		variant.Price,
		variant.Stock,
		variant.Active,
		variant.CreatedAt,
		variant.UpdatedAt,
	).Error
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, active, assembly_available, metadata, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindVariantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variant, error) {
	var v domain.Variant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, sku, price, stock, active, created_at, updated_at
		 FROM product_variants WHERE id = ?`,
		id,
	).Scan(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ID == 0 {
		return nil, nil
	}
	return &v, nil
}

func (r *repo) ListProducts(ctx context.Context, db *gorm.DB) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, active, assembly_available, metadata, created_at, updated_at
		 FROM products ORDER BY created_at ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListVariants(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.Variant, error) {
	var items []domain.Variant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, sku, price, stock, active, created_at, updated_at
		 FROM product_variants WHERE product_id = ? ORDER BY created_at ASC`,
		productID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// The stock >= quantity guard lives in the statement itself so two
// racing reservations can never jointly overdraw a variant.
func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, variantID snowflake.ID, quantity int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_variants
		 SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND active = TRUE AND stock >= ?`,
		quantity,
		variantID,
		quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, variantID snowflake.ID, quantity int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_variants
		 SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		quantity,
		variantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
