package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByProviderTxnID(ctx context.Context, db *gorm.DB, providerTxnID string) (*Payment, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Payment, error)

	// SetProviderTxn stores the provider transaction id only while the
	// column is still NULL; it reports whether the row changed.
	SetProviderTxn(ctx context.Context, db *gorm.DB, id snowflake.ID, providerTxnID string) (bool, error)

	// TransitionStatus performs the guarded state change: the row
	// moves to `to` only while its current status is one of `from`.
	// Zero rows affected means a replay or a lost race, never an
	// error.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to Status, from []Status, completedAt *time.Time) (bool, error)

	// ListStale returns non-terminal payments untouched since the
	// cutoff, oldest first.
	ListStale(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Payment, error)
}

type ProviderTxRepository interface {
	Create(ctx context.Context, db *gorm.DB, tx *ProviderTransaction) error
	FindByProviderTxnID(ctx context.Context, db *gorm.DB, providerTxnID string) (*ProviderTransaction, error)

	// TransitionState is guarded the same way as the payment ledger.
	TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, to TxState, from []TxState, phaseAt time.Time) (bool, error)
}
