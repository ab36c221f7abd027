// Command orderctl creates, inspects, prices and completes orders.
//
//	orderctl create -customer C -item P1:2 -item P2
//	orderctl show -order ID
//	orderctl quote -order ID -discount percentage:0.1 -tax 0.2
//	orderctl complete -order ID
//	orderctl products
package main

import (
	"context"
	"os"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/order-core/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}

		store, err := appkg.Open(ctx, cfg, m)
		if err != nil {
			return err
		}
		defer store.Close()

		return run(ctx, store, os.Args[1:], os.Stdout)
	})
}
