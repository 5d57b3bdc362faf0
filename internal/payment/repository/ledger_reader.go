package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type LedgerReaderParams struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

type ledgerReader struct {
	db   *gorm.DB
	repo domain.Repository
}

// ProvideLedgerReader binds the repository to the shared db handle so
// adapters can answer provider queries without write access.
func ProvideLedgerReader(p LedgerReaderParams) domain.LedgerReader {
	return &ledgerReader{db: p.DB, repo: p.Repo}
}

func (l *ledgerReader) FindByProviderTxnID(ctx context.Context, providerTxnID string) (*domain.Payment, error) {
	return l.repo.FindByProviderTxnID(ctx, l.db, providerTxnID)
}

func (l *ledgerReader) FindByOrderID(ctx context.Context, orderID snowflake.ID) (*domain.Payment, error) {
	return l.repo.FindByOrderID(ctx, l.db, orderID)
}
