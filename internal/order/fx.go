package order

import (
	"github.com/shafran/commerce/internal/order/repository"
	"github.com/shafran/commerce/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
