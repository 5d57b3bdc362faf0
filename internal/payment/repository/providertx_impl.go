package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/payment/domain"
	"gorm.io/gorm"
)

type providerTxRepo struct{}

func ProvideProviderTx() domain.ProviderTxRepository {
	return &providerTxRepo{}
}

const providerTxColumns = `id, payment_id, provider_txn_id, state, amount, created_phase,
	confirm_phase, reverse_phase, metadata, created_at, updated_at`

func (r *providerTxRepo) Create(ctx context.Context, db *gorm.DB, tx *domain.ProviderTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO provider_transactions (`+providerTxColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.PaymentID,
		tx.ProviderTxnID,
		tx.State,
		tx.Amount,
		tx.CreatedPhase,
		tx.ConfirmPhase,
		tx.ReversePhase,
		tx.Metadata,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *providerTxRepo) FindByProviderTxnID(ctx context.Context, db *gorm.DB, providerTxnID string) (*domain.ProviderTransaction, error) {
	var tx domain.ProviderTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+providerTxColumns+` FROM provider_transactions WHERE provider_txn_id = ?`,
		providerTxnID,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

func (r *providerTxRepo) TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.TxState, from []domain.TxState, phaseAt time.Time) (bool, error) {
	var phaseColumn string
	switch to {
	case domain.TxStateCreated:
		phaseColumn = "created_phase"
	case domain.TxStateConfirmed:
		phaseColumn = "confirm_phase"
	case domain.TxStateReversed:
		phaseColumn = "reverse_phase"
	}

	query := `UPDATE provider_transactions SET state = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{to}
	if phaseColumn != "" {
		query += `, ` + phaseColumn + ` = ?`
		args = append(args, phaseAt)
	}
	query += ` WHERE id = ? AND state IN ?`
	args = append(args, id, from)

	res := db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
