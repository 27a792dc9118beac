//go:build wireinject
// +build wireinject

// The build tag makes sure the stubs are not built in the final build.

package injector

import (
	"os"

	"github.com/google/wire"

	"github.com/telebench/telebench/internal/core/config"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/report"
)

// RelaySet assembles a host relay from a loaded configuration.
var RelaySet = wire.NewSet(
	provideLogger,
	provideBuilder,
	provideFlasher,
	provideSink,
	provideRelayConfig,
	relay.New,
)

func provideLogger(cfg *config.Config) log.Log {
	return log.New(log.ParseLevel(cfg.Log.Level))
}

func provideBuilder(cfg *config.Config, logger log.Log) relay.BuildSystem {
	return relay.NewExecBuilder(cfg.Build.Command, logger)
}

func provideFlasher(cfg *config.Config, logger log.Log) relay.Flasher {
	if cfg.Flash.Remote != "" {
		return relay.NewRemoteFlasher(cfg.Flash.Remote, cfg.Flash.Token, logger)
	}
	return relay.NewExecFlasher(cfg.Flash.Command, cfg.RunEnv(), logger)
}

func provideSink(cfg *config.Config) report.Sink {
	console := report.NewConsole(os.Stdout)
	if cfg.Report.Dir == "" {
		return console
	}
	return report.NewMulti(console, report.NewJSONStore(cfg.Report.Dir))
}

func provideRelayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Run:             cfg.Run.Protocol(),
		Target:          cfg.Build.Target,
		WatchdogTimeout: cfg.Relay.WatchdogTimeout.Std(),
	}
}

// ProvideRelay is the wire stub for a fully assembled relay.
func ProvideRelay(cfg *config.Config) *relay.Relay {
	wire.Build(RelaySet)
	return nil
}
