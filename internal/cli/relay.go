package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telebench/telebench/internal/core/config"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/report"
	"github.com/telebench/telebench/internal/core/role"
)

var (
	artifactFlag string

	relayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Consume a device measurement stream and report it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := resolve()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return dispatch(cmd.Context(), role.Relay, buildRelay(cfg, logger), logger)
		},
	}
)

func init() {
	relayCmd.Flags().StringVar(&artifactFlag, "artifact", "",
		"run an already-built artifact instead of building")
}

// buildRelay assembles the relay role from configuration: builder, flasher,
// and the console plus JSON store sinks.
func buildRelay(cfg *config.Config, logger log.Log) *relay.Relay {
	var builder relay.BuildSystem
	if artifactFlag != "" {
		builder = prebuilt(artifactFlag)
	} else {
		builder = relay.NewExecBuilder(cfg.Build.Command, logger)
	}

	var flasher relay.Flasher
	if cfg.Flash.Remote != "" {
		flasher = relay.NewRemoteFlasher(cfg.Flash.Remote, cfg.Flash.Token, logger)
	} else {
		flasher = relay.NewExecFlasher(cfg.Flash.Command, cfg.RunEnv(), logger)
	}

	sinks := []report.Sink{report.NewConsole(os.Stdout)}
	if cfg.Report.Dir != "" {
		sinks = append(sinks, report.NewJSONStore(cfg.Report.Dir))
	}

	rcfg := relay.Config{
		Run:             cfg.Run.Protocol(),
		Target:          cfg.Build.Target,
		WatchdogTimeout: cfg.Relay.WatchdogTimeout.Std(),
	}
	return relay.New(rcfg, builder, flasher, report.NewMulti(sinks...), logger)
}

// prebuilt satisfies BuildSystem with an artifact someone else built,
// normally the trigger parent of this process.
type prebuilt string

func (p prebuilt) Build(context.Context, string, []string) (string, error) {
	if _, err := os.Stat(string(p)); err != nil {
		return "", protocol.NewBuildError(fmt.Sprintf("artifact %s not found", p), err)
	}
	return string(p), nil
}
