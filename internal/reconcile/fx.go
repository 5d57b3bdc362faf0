package reconcile

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(New),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, reconciler *Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go reconciler.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
