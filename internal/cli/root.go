// Package cli wires the host-side roles into the telebench command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/telebench/telebench/internal/core/config"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/role"
)

var (
	cfgPath  string
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "telebench",
		Short: "Cross-device benchmark harness",
		Long: `telebench builds a benchmark binary, runs it on a device behind an
opaque byte-stream transport, and relays the measurement stream to the
console and a JSON run store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(loadDotEnv)
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"config file (default "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd, relayCmd, probeCmd)
}

// loadDotEnv pulls a project-local .env into the environment before config
// resolution, so TELEBENCH_* selectors can live next to the benchmarks.
func loadDotEnv() {
	_ = godotenv.Load()
}

// resolve loads the configuration and builds the process logger.
func resolve() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, log.New(log.ParseLevel(cfg.Log.Level)), nil
}

// dispatch runs one role entry with uniform start and failure logging.
func dispatch(ctx context.Context, r role.Role, e role.Entry, logger log.Log) error {
	logger.Info("starting", log.String("role", r.String()))
	if err := e.Run(ctx); err != nil {
		logger.Error("role failed", log.String("role", r.String()), log.Error(err))
		return err
	}
	return nil
}

// exitCodeError carries a child process exit code through cobra unchanged.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// Execute runs the command tree and maps the outcome to a process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return relay.ExitOK
	case errors.Is(err, context.Canceled):
		// Interrupted by the user; not a failure.
		return relay.ExitOK
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintln(os.Stderr, "telebench:", err)
	return relay.ExitCode(err)
}
