package cli

import (
	"github.com/spf13/cobra"

	"github.com/telebench/telebench/internal/core/bridge"
	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/role"
)

var (
	listenFlag string

	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "Serve a locally attached device to remote relays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := resolve()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if len(cfg.Flash.Command) == 0 {
				return protocol.NewValidationError(protocol.ErrorCodeInvalidConfig,
					"flash.command is required for probe", nil)
			}
			flasher := relay.NewExecFlasher(cfg.Flash.Command, cfg.RunEnv(), logger)
			srv := bridge.New(bridge.Config{Endpoint: listenFlag, Token: cfg.Flash.Token}, flasher, logger)
			return dispatch(cmd.Context(), role.Probe, srv, logger)
		},
	}
)

func init() {
	probeCmd.Flags().StringVar(&listenFlag, "listen", "tcp://0.0.0.0:7333",
		"bridge listen endpoint (tcp://, ws://, quic://)")
}
