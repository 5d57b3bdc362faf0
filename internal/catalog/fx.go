package catalog

import (
	"github.com/shafran/commerce/internal/catalog/repository"
	"github.com/shafran/commerce/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
