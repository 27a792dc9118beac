package relay

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
)

// expandCommand substitutes the {artifact} placeholder in each argument.
func expandCommand(command []string, artifact string) []string {
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = strings.ReplaceAll(arg, "{artifact}", artifact)
	}
	return out
}

// ExecBuilder runs a configured build command. The target selector reaches
// the command through the TELEBENCH_TARGET environment variable; the output
// path replaces {artifact} in the command arguments.
type ExecBuilder struct {
	command []string
	logger  log.Log
}

func NewExecBuilder(command []string, logger log.Log) *ExecBuilder {
	if logger == nil {
		logger = log.Nop()
	}
	return &ExecBuilder{command: command, logger: logger.Named("build")}
}

func (b *ExecBuilder) Build(ctx context.Context, target string, flags []string) (string, error) {
	if len(b.command) == 0 {
		return "", protocol.NewBuildError("no build command configured", nil)
	}

	dir, err := os.MkdirTemp("", "telebench-build-")
	if err != nil {
		return "", protocol.NewBuildError("create build directory", err)
	}
	artifact := filepath.Join(dir, "bench")

	argv := append(expandCommand(b.command, artifact), flags...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	if target != "" {
		cmd.Env = append(cmd.Env, "TELEBENCH_TARGET="+target)
	}

	b.logger.Info("building device binary",
		log.String("command", strings.Join(argv, " ")),
		log.String("target", target))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", protocol.NewBuildError("build command failed", err).
			WithContext("command", strings.Join(argv, " ")).
			WithContext("output", strings.TrimSpace(string(out)))
	}
	return artifact, nil
}
