package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, number, user_id, items, subtotal, vat_amount, assembly_total, delivery_price,
	grand_total, currency, payment_method, payment_id, payment_status, fulfillment_status,
	delivery_address, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.Number,
		order.UserID,
		order.Items,
		order.Subtotal,
		order.VATAmount,
		order.AssemblyTotal,
		order.DeliveryPrice,
		order.GrandTotal,
		order.Currency,
		order.PaymentMethod,
		order.PaymentID,
		order.PaymentStatus,
		order.FulfillmentStatus,
		order.DeliveryAddress,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	var o domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE number = ?`,
		number,
	).Scan(&o).Error
	if err != nil {
		return nil, err
	}
	if o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AttachPayment(ctx context.Context, db *gorm.DB, orderID, paymentID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET payment_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		paymentID,
		orderID,
	).Error
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, orderID snowflake.ID, status string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET payment_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status,
		orderID,
	).Error
}

func (r *repo) UpdateFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to domain.FulfillmentStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET fulfillment_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND fulfillment_status = ?`,
		to,
		orderID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
