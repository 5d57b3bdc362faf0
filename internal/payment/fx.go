package payment

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shafran/commerce/internal/config"
	"github.com/shafran/commerce/internal/payment/adapters"
	"github.com/shafran/commerce/internal/payment/adapters/click"
	"github.com/shafran/commerce/internal/payment/adapters/nasiya"
	"github.com/shafran/commerce/internal/payment/adapters/payme"
	"github.com/shafran/commerce/internal/payment/domain"
	"github.com/shafran/commerce/internal/payment/repository"
	"github.com/shafran/commerce/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.ProvideProviderTx),
	fx.Provide(repository.ProvideLedgerReader),
	fx.Provide(newRegistry),
	fx.Provide(service.New),
)

type registryParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Ledger domain.LedgerReader
	TxRepo domain.ProviderTxRepository
}

// newRegistry wires every adapter whose credentials are configured.
// A provider with missing credentials is skipped, not fatal, so a
// deployment can run with any subset of providers.
func newRegistry(p registryParams) (*adapters.Registry, error) {
	var configured []domain.Adapter

	if p.Config.Payme.MerchantKey != "" {
		adapter, err := payme.New(p.Config.Payme, p.Ledger)
		if err != nil {
			return nil, err
		}
		configured = append(configured, adapter)
	} else {
		p.Log.Warn("payme adapter disabled, missing merchant key")
	}

	if p.Config.Click.SecretKey != "" {
		adapter, err := click.New(p.Config.Click, p.Ledger)
		if err != nil {
			return nil, err
		}
		configured = append(configured, adapter)
	} else {
		p.Log.Warn("click adapter disabled, missing secret key")
	}

	if p.Config.Nasiya.Login != "" && p.Config.Nasiya.Password != "" {
		adapter, err := nasiya.New(p.Config.Nasiya, p.DB, p.Log, p.GenID, p.Ledger, p.TxRepo)
		if err != nil {
			return nil, err
		}
		configured = append(configured, adapter)
	} else {
		p.Log.Warn("nasiya adapter disabled, missing credentials")
	}

	return adapters.NewRegistry(configured...), nil
}
