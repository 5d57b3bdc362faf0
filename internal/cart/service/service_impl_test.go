package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shafran/commerce/internal/cart/domain"
	"github.com/shafran/commerce/internal/cart/repository"
	catalogdomain "github.com/shafran/commerce/internal/catalog/domain"
	catalogrepository "github.com/shafran/commerce/internal/catalog/repository"
	catalogservice "github.com/shafran/commerce/internal/catalog/service"
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

func setupCartService(t *testing.T, node *snowflake.Node) (domain.Service, *gorm.DB) {
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
	prepareCartSchema(t, db)

	catalog := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewSystemClock(),
		Repo:  catalogrepository.Provide(),
	})
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewSystemClock(),
		Repo:    repository.Provide(),
		Catalog: catalog,
	})
	return svc, db
}

func prepareCartSchema(t *testing.T, db *gorm.DB) {
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
		`CREATE TABLE carts (
			id INTEGER PRIMARY KEY,
			user_id INTEGER UNIQUE,
			guest_token TEXT UNIQUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE cart_items (
			id INTEGER PRIMARY KEY,
			cart_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			variant_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			assembly_selected BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (cart_id, product_id, variant_id)
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedCatalog(t *testing.T, db *gorm.DB, node *snowflake.Node, active bool) (snowflake.ID, snowflake.ID) {
	t.Helper()

	productID := node.Generate()
	variantID := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO products (id, code, name, active, assembly_available, created_at, updated_at)
		 VALUES (?, ?, 'Office Chair', ?, TRUE, ?, ?)`,
		productID, fmt.Sprintf("prod-%s", productID.Base36()), active, now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO product_variants (id, product_id, sku, price, stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, 150000, 10, TRUE, ?, ?)`,
		variantID, productID, fmt.Sprintf("SKU-%s", variantID.Base36()), now, now,
	).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return productID, variantID
}

func itemQuantity(t *testing.T, db *gorm.DB, cartID, variantID snowflake.ID) int64 {
	t.Helper()

	var qty int64
	if err := db.Raw(
		`SELECT quantity FROM cart_items WHERE cart_id = ? AND variant_id = ?`,
		cartID, variantID,
	).Scan(&qty).Error; err != nil {
		t.Fatalf("read quantity: %v", err)
	}
	return qty
}

func TestAddItemSumsQuantity(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCartService(t, node)
	productID, variantID := seedCatalog(t, db, node, true)
	userID := node.Generate()
	identity := domain.Identity{UserID: &userID}

	req := domain.AddItemRequest{ProductID: productID, VariantID: variantID, Quantity: 2}
	first, err := svc.AddItem(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	second, err := svc.AddItem(context.Background(), identity, req)
	if err != nil {
		t.Fatalf("add second: %v", err)
	}

	if first.Cart.ID != second.Cart.ID {
		t.Fatalf("expected the same cart, got %s vs %s", first.Cart.ID, second.Cart.ID)
	}
	if len(second.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(second.Items))
	}
	if qty := itemQuantity(t, db, second.Cart.ID, variantID); qty != 4 {
		t.Fatalf("expected summed quantity 4, got %d", qty)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCartService(t, node)
	productID, variantID := seedCatalog(t, db, node, false)
	userID := node.Generate()

	_, err := svc.AddItem(context.Background(), domain.Identity{UserID: &userID}, domain.AddItemRequest{
		ProductID: productID,
		VariantID: variantID,
		Quantity:  1,
	})
	if !errors.Is(err, catalogdomain.ErrProductInactive) {
		t.Fatalf("expected ErrProductInactive, got %v", err)
	}
}

func TestAddItemRejectsZeroQuantity(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupCartService(t, node)
	userID := node.Generate()

	_, err := svc.AddItem(context.Background(), domain.Identity{UserID: &userID}, domain.AddItemRequest{
		ProductID: node.Generate(),
		VariantID: node.Generate(),
		Quantity:  0,
	})
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestUpdateAndRemoveItem(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCartService(t, node)
	productID, variantID := seedCatalog(t, db, node, true)
	userID := node.Generate()
	identity := domain.Identity{UserID: &userID}
	ctx := context.Background()

	view, err := svc.AddItem(ctx, identity, domain.AddItemRequest{ProductID: productID, VariantID: variantID, Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	itemID := view.Items[0].ID

	view, err = svc.UpdateItem(ctx, identity, itemID, domain.UpdateItemRequest{Quantity: 5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if qty := itemQuantity(t, db, view.Cart.ID, variantID); qty != 5 {
		t.Fatalf("expected quantity 5, got %d", qty)
	}

	view, err = svc.RemoveItem(ctx, identity, itemID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(view.Items))
	}

	if _, err := svc.RemoveItem(ctx, identity, itemID); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestMergeGuestCart(t *testing.T) {
	node := mustNode(t)
	svc, db := setupCartService(t, node)
	productID, variantID := seedCatalog(t, db, node, true)
	userID := node.Generate()
	guestToken := fmt.Sprintf("guest-%s", node.Generate().Base36())
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, domain.Identity{GuestToken: guestToken}, domain.AddItemRequest{
		ProductID: productID, VariantID: variantID, Quantity: 2,
	}); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, err := svc.AddItem(ctx, domain.Identity{UserID: &userID}, domain.AddItemRequest{
		ProductID: productID, VariantID: variantID, Quantity: 3,
	}); err != nil {
		t.Fatalf("user add: %v", err)
	}

	view, err := svc.Merge(ctx, guestToken, userID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(view.Items))
	}
	if view.Items[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", view.Items[0].Quantity)
	}

	var guestCarts int64
	if err := db.Raw(`SELECT COUNT(*) FROM carts WHERE guest_token = ?`, guestToken).Scan(&guestCarts).Error; err != nil {
		t.Fatalf("count guest carts: %v", err)
	}
	if guestCarts != 0 {
		t.Fatalf("expected guest cart deleted, found %d", guestCarts)
	}
}

func TestMergeWithoutGuestCartCreatesUserCart(t *testing.T) {
	node := mustNode(t)
	svc, _ := setupCartService(t, node)
	userID := node.Generate()

	view, err := svc.Merge(context.Background(), "never-seen", userID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(view.Items))
	}
	if view.Cart.UserID == nil || *view.Cart.UserID != userID {
		t.Fatalf("expected cart owned by user %s", userID)
	}
}
