package cart

import (
	"github.com/shafran/commerce/internal/cart/repository"
	"github.com/shafran/commerce/internal/cart/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
