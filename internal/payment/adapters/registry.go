package adapters

import (
	"github.com/shafran/commerce/internal/payment/domain"
)

// Registry dispatches to the closed set of configured adapters.
type Registry struct {
	adapters map[domain.Method]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[domain.Method]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Method()] = adapter
	}
	return registry
}

func (r *Registry) Get(method domain.Method) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func (r *Registry) Methods() []domain.Method {
	methods := make([]domain.Method, 0, len(r.adapters))
	for method := range r.adapters {
		methods = append(methods, method)
	}
	return methods
}
