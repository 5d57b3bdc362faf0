package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shafran/commerce/internal/catalog/domain"
	"github.com/shafran/commerce/internal/catalog/repository"
	"github.com/shafran/commerce/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupCatalogService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	prepareCatalogSchema(t, db)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewSystemClock(),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func prepareCatalogSchema(t *testing.T, db *gorm.DB) {
	t.Helper()

	stmts := []string{
		`CREATE TABLE products (
			id INTEGER PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			assembly_available BOOLEAN NOT NULL DEFAULT FALSE,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE product_variants (
			id INTEGER PRIMARY KEY,
			product_id INTEGER NOT NULL,
			sku TEXT NOT NULL,
			price INTEGER NOT NULL,
			stock INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (product_id, sku)
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedVariant(t *testing.T, db *gorm.DB, node *snowflake.Node, stock int64, active bool) (snowflake.ID, snowflake.ID) {
	t.Helper()

	productID := node.Generate()
	variantID := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO products (id, code, name, active, assembly_available, created_at, updated_at)
		 VALUES (?, ?, ?, TRUE, FALSE, ?, ?)`,
		productID, fmt.Sprintf("prod-%s", productID.Base36()), "Office Desk", now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO product_variants (id, product_id, sku, price, stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, 100000, ?, ?, ?, ?)`,
		variantID, productID, fmt.Sprintf("SKU-%s", variantID.Base36()), stock, active, now, now,
	).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return productID, variantID
}

func variantStock(t *testing.T, db *gorm.DB, variantID snowflake.ID) int64 {
	t.Helper()

	var stock int64
	if err := db.Raw(`SELECT stock FROM product_variants WHERE id = ?`, variantID).Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func TestCreateProductGeneratesCode(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	ctx := context.Background()

	first, err := svc.CreateProduct(ctx, domain.CreateProductRequest{Name: "Office Desk"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	second, err := svc.CreateProduct(ctx, domain.CreateProductRequest{Name: "Office Desk"})
	if err != nil {
		t.Fatalf("create duplicate name: %v", err)
	}
	if first.Code == second.Code {
		t.Fatalf("expected unique codes, got %s twice", first.Code)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM products`).Scan(&count).Error; err != nil {
		t.Fatalf("count products: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 products, got %d", count)
	}
}

func TestCreateProductRejectsBlankName(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupCatalogService(t, node)

	_, err := svc.CreateProduct(context.Background(), domain.CreateProductRequest{Name: "   "})
	if !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestCreateVariantValidation(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	ctx := context.Background()
	productID, _ := seedVariant(t, db, node, 10, true)

	cases := []struct {
		name string
		req  domain.CreateVariantRequest
		want error
	}{
		{
			name: "blank sku",
			req:  domain.CreateVariantRequest{ProductID: productID, SKU: " ", Price: 100, Stock: 1},
			want: domain.ErrInvalidSKU,
		},
		{
			name: "zero price",
			req:  domain.CreateVariantRequest{ProductID: productID, SKU: "SKU-1", Price: 0, Stock: 1},
			want: domain.ErrInvalidPrice,
		},
		{
			name: "negative stock",
			req:  domain.CreateVariantRequest{ProductID: productID, SKU: "SKU-1", Price: 100, Stock: -1},
			want: domain.ErrInvalidStock,
		},
		{
			name: "unknown product",
			req:  domain.CreateVariantRequest{ProductID: node.Generate(), SKU: "SKU-1", Price: 100, Stock: 1},
			want: domain.ErrProductNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateVariant(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReserveStockDecrements(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	productID, variantID := seedVariant(t, db, node, 5, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStock(context.Background(), tx, []domain.ReservationLine{
			{ProductID: productID, VariantID: variantID, Quantity: 3},
		})
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if stock := variantStock(t, db, variantID); stock != 2 {
		t.Fatalf("expected stock 2 after reserve, got %d", stock)
	}
}

func TestReserveStockInsufficient(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	productID, variantID := seedVariant(t, db, node, 2, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStock(context.Background(), tx, []domain.ReservationLine{
			{ProductID: productID, VariantID: variantID, Quantity: 3},
		})
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if stock := variantStock(t, db, variantID); stock != 2 {
		t.Fatalf("expected stock untouched at 2, got %d", stock)
	}
}

func TestReserveStockAllOrNothing(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	productA, variantA := seedVariant(t, db, node, 5, true)
	productB, variantB := seedVariant(t, db, node, 1, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStock(context.Background(), tx, []domain.ReservationLine{
			{ProductID: productA, VariantID: variantA, Quantity: 2},
			{ProductID: productB, VariantID: variantB, Quantity: 4},
		})
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The rollback must undo the first line too.
	if stock := variantStock(t, db, variantA); stock != 5 {
		t.Fatalf("expected variant A stock restored to 5, got %d", stock)
	}
	if stock := variantStock(t, db, variantB); stock != 1 {
		t.Fatalf("expected variant B stock untouched at 1, got %d", stock)
	}
}

func TestReserveStockInactiveVariant(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	productID, variantID := seedVariant(t, db, node, 5, false)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReserveStock(context.Background(), tx, []domain.ReservationLine{
			{ProductID: productID, VariantID: variantID, Quantity: 1},
		})
	})
	if !errors.Is(err, domain.ErrVariantInactive) {
		t.Fatalf("expected ErrVariantInactive, got %v", err)
	}
}

func TestReleaseStockRestores(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCatalogService(t, node)
	productID, variantID := seedVariant(t, db, node, 2, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ReleaseStock(context.Background(), tx, []domain.ReservationLine{
			{ProductID: productID, VariantID: variantID, Quantity: 3},
			{ProductID: productID, VariantID: node.Generate(), Quantity: 1},
		})
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	if stock := variantStock(t, db, variantID); stock != 5 {
		t.Fatalf("expected stock 5 after release, got %d", stock)
	}
}
