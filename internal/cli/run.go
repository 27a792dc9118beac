package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/telebench/telebench/internal/core/config"
	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/relay"
	"github.com/telebench/telebench/internal/core/role"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the benchmark binary and run a full measurement session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := resolve()
		if err != nil {
			return err
		}
		defer logger.Sync()
		return dispatch(cmd.Context(), role.Trigger, &trigger{cfg: cfg, logger: logger}, logger)
	},
}

// trigger is the default role: it validates the pipeline configuration,
// builds the artifact, then executes the relay role as a child of the same
// binary and forwards the child's exit code unchanged.
type trigger struct {
	cfg    *config.Config
	logger log.Log
}

func (t *trigger) Run(ctx context.Context) error {
	if err := t.cfg.ValidateTrigger(); err != nil {
		return err
	}
	artifact, err := relay.NewExecBuilder(t.cfg.Build.Command, t.logger).
		Build(ctx, t.cfg.Build.Target, nil)
	if err != nil {
		return err
	}
	defer os.RemoveAll(filepath.Dir(artifact))

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own binary: %w", err)
	}
	args := []string{"relay", "--artifact", artifact}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}

	child := exec.CommandContext(ctx, self, args...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	t.logger.Info("handing off to relay", log.String("artifact", artifact))

	if err := child.Run(); err != nil {
		var xe *exec.ExitError
		if errors.As(err, &xe) {
			return exitCodeError{code: xe.ExitCode()}
		}
		return fmt.Errorf("spawn relay: %w", err)
	}
	return nil
}
