package flags

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/keys-api/common"
	"github.com/ruteri/keys-api/httpserver"
	"github.com/ruteri/keys-api/modules"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// LoadModules returns the built-in module table, or the one in --modules-file.
func LoadModules(cCtx *cli.Context) (modules.Config, error) {
	path := cCtx.String(ModulesFileFlag.Name)
	if path == "" {
		return modules.DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return modules.Config{}, fmt.Errorf("could not open module table: %w", err)
	}
	defer f.Close()

	return modules.LoadConfig(f)
}

var ChainIDFlag = &cli.Uint64Flag{
	Name:     "chain-id",
	EnvVars:  []string{"CHAIN_ID"},
	Required: true,
	Usage:    "chain id of the network the registry was synced from",
}

var StoreURIFlag = &cli.StringSliceFlag{
	Name:     "store-uri",
	EnvVars:  []string{"STORE_URI"},
	Required: true,
	Usage:    "registry store location (sqlite://, file://, s3://, memory://). Several file:// or s3:// URIs are tried in order",
}

var ModulesFileFlag = &cli.StringFlag{
	Name:    "modules-file",
	EnvVars: []string{"MODULES_FILE"},
	Usage:   "YAML staking module table, replaces the built-in one",
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	EnvVars: []string{"RPC_ADDR"},
	Usage:   "execution layer RPC used to verify chain id and snapshot blocks; checks are skipped when empty",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	EnvVars: []string{"LISTEN_ADDR"},
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
}

var FetchTimeoutFlag = &cli.DurationFlag{
	Name:    "fetch-timeout",
	EnvVars: []string{"FETCH_TIMEOUT"},
	Value:   10 * time.Second,
	Usage:   "deadline for a single registry store read",
}

var RefreshIntervalFlag = &cli.DurationFlag{
	Name:    "refresh-interval",
	EnvVars: []string{"REFRESH_INTERVAL"},
	Value:   30 * time.Second,
	Usage:   "how often file:// and s3:// snapshots are reloaded",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to stay not-ready before shutting down",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var CommonFlags = append([]cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}, LogFlags...)
