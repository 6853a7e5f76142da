package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/keys-api/api/handlers"
	"github.com/ruteri/keys-api/cmd/flags"
	"github.com/ruteri/keys-api/common"
	"github.com/ruteri/keys-api/execution"
	"github.com/ruteri/keys-api/httpserver"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/metrics"
	"github.com/ruteri/keys-api/modules"
	"github.com/ruteri/keys-api/snapshot"
	"github.com/ruteri/keys-api/storage"
	"github.com/ruteri/keys-api/views"
	"github.com/urfave/cli/v2"
)

var cliFlags = append([]cli.Flag{
	flags.ChainIDFlag,
	flags.StoreURIFlag,
	flags.ModulesFileFlag,
	flags.RpcAddrFlag,
	flags.ListenAddrFlag,
	flags.FetchTimeoutFlag,
	flags.RefreshIntervalFlag,
	flags.LogServiceFlagFn("keys-api"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "keys-api",
		Usage: "Serve validator keys and operators from the synced registry",
		Flags: cliFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			chainID := cCtx.Uint64(flags.ChainIDFlag.Name)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			modulesCfg, err := flags.LoadModules(cCtx)
			if err != nil {
				logger.Error("Failed to load module table", "err", err)
				return err
			}
			directory, err := modules.NewDirectory(modulesCfg)
			if err != nil {
				logger.Error("Invalid module table", "err", err)
				return err
			}
			if len(directory.List(chainID)) == 0 {
				logger.Warn("No staking modules configured for chain", "chainId", chainID)
			}

			var provider *execution.Provider
			if rpcAddr := cCtx.String(flags.RpcAddrFlag.Name); rpcAddr != "" {
				logger.Info("Connecting to execution layer RPC", "address", rpcAddr)
				provider, err = execution.Dial(ctx, rpcAddr, logger)
				if err != nil {
					logger.Error("Failed to dial RPC", "err", err)
					return err
				}
				defer provider.Close()

				if err := provider.CheckChainID(ctx, chainID); err != nil {
					logger.Error("Execution layer check failed", "err", err)
					return err
				}
				logger.Info("Execution layer network verified", "network", execution.NetworkName(chainID))
			}

			store, err := openStore(logger, cCtx.StringSlice(flags.StoreURIFlag.Name))
			if err != nil {
				logger.Error("Failed to open registry store", "err", err)
				return err
			}
			defer store.Close()

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				return err
			}

			reader := snapshot.NewReader(store, snapshot.Config{
				FetchTimeout: cCtx.Duration(flags.FetchTimeoutFlag.Name),
			}, metricsSrv.Collectors(), logger)

			checkSnapshot := func(ctx context.Context) {
				if provider == nil {
					return
				}
				meta, err := reader.Meta(ctx)
				if err != nil {
					logger.Warn("Could not read snapshot meta", "err", err)
					return
				}
				if err := provider.CheckSnapshot(ctx, meta); err != nil {
					logger.Warn("Snapshot block check failed", "err", err)
				}
			}

			if reloadable, ok := store.(interfaces.Reloadable); ok {
				reloader := storage.NewReloader(reloadable, cCtx.Duration(flags.RefreshIntervalFlag.Name), logger)
				reloader.OnReload = checkSnapshot
				if err := reloader.ReloadOnce(ctx); err != nil {
					logger.Error("Initial snapshot load failed, serving not-ready responses", "err", err)
				}
				go reloader.Run(ctx)
			} else {
				checkSnapshot(ctx)
			}

			service := views.NewService(views.Config{ChainID: chainID, AppVersion: common.Version}, directory, reader, logger)
			handler := handlers.NewHandler(service, logger)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler, metricsSrv)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "chainId", chainID, "store", store.Name())
			server.RunInBackground()

			<-ctx.Done()
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openStore opens a single store, or a fallback chain of snapshot sources when
// several URIs are given.
func openStore(logger *slog.Logger, uris []string) (interfaces.RegistryStore, error) {
	factory := storage.NewRegistryStoreFactory(logger)
	switch len(uris) {
	case 0:
		return nil, errors.New("no store URI configured")
	case 1:
		return factory.StoreFor(uris[0])
	default:
		store, err := factory.CreateMultiSourceStore(uris)
		if err != nil {
			return nil, fmt.Errorf("could not create multi-source store: %w", err)
		}
		return store, nil
	}
}
