package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, user_id, order_id, amount, currency, method, status, provider_txn_id,
	metadata, created_at, updated_at, completed_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.UserID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
		payment.ProviderTxnID,
		payment.Metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
		payment.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`,
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

func (r *repo) FindByProviderTxnID(ctx context.Context, db *gorm.DB, providerTxnID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE provider_txn_id = ?`,
		providerTxnID,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`,
		orderID,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetProviderTxn(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxnID string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments SET provider_txn_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND provider_txn_id IS NULL`,
		providerTxnID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.Status, from []domain.Status, completedAt *time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN ?`,
		to,
		completedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status IN ? AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing},
		cutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
