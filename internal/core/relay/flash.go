package relay

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/telebench/telebench/internal/core/observability/log"
	"github.com/telebench/telebench/internal/core/protocol"
	"github.com/telebench/telebench/internal/core/transport"
)

// childGracePeriod is how long a spawned runner gets to exit on its own
// after its pipes close before it is killed.
const childGracePeriod = 2 * time.Second

// ExecFlasher spawns the configured probe-runner command with the artifact
// path and exposes the child's stdin/stdout pipes as the device transport.
// The child's stderr passes through, so probe diagnostics stay visible.
type ExecFlasher struct {
	command []string
	env     []string
	logger  log.Log
}

// NewExecFlasher builds a flasher. env entries are appended to the child's
// environment; this is how the run configuration reaches an SDK runner.
func NewExecFlasher(command, env []string, logger log.Log) *ExecFlasher {
	if logger == nil {
		logger = log.Nop()
	}
	return &ExecFlasher{command: command, env: env, logger: logger.Named("flash")}
}

func (f *ExecFlasher) Flash(ctx context.Context, artifact string) (transport.Transport, error) {
	if len(f.command) == 0 {
		return nil, protocol.NewFlashError("no flash command configured", nil)
	}

	argv := expandCommand(f.command, artifact)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), f.env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, protocol.NewFlashError("open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, protocol.NewFlashError("open stdout pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, protocol.NewFlashError("start flasher", err).
			WithContext("command", strings.Join(argv, " "))
	}

	f.logger.Info("flasher started",
		log.String("command", strings.Join(argv, " ")),
		log.Int("pid", cmd.Process.Pid))

	inner := transport.NewStdio(stdout, stdin, fmt.Sprintf("child:%s", argv[0]), stdin, stdout)
	return &procTransport{Transport: inner, cmd: cmd}, nil
}

// procTransport ties a child process's lifetime to its pipe transport.
type procTransport struct {
	transport.Transport
	cmd  *exec.Cmd
	once sync.Once
	err  error
}

// Close closes the pipes, then reaps the child: EOF on stdin lets a clean
// runner exit by itself, and anything still alive after the grace period is
// killed.
func (p *procTransport) Close() error {
	p.once.Do(func() {
		p.err = p.Transport.Close()
		done := make(chan error, 1)
		go func() { done <- p.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(childGracePeriod):
			_ = p.cmd.Process.Kill()
			<-done
		}
	})
	return p.err
}

// RemoteFlasher connects to a probe bridge on another machine instead of
// driving local hardware. The bridge flashes whatever it is configured to
// run at its end; the local artifact never leaves the host.
type RemoteFlasher struct {
	endpoint string
	token    string
	logger   log.Log
}

func NewRemoteFlasher(endpoint, token string, logger log.Log) *RemoteFlasher {
	if logger == nil {
		logger = log.Nop()
	}
	return &RemoteFlasher{endpoint: endpoint, token: token, logger: logger.Named("flash")}
}

func (f *RemoteFlasher) Flash(ctx context.Context, _ string) (transport.Transport, error) {
	tr, err := transport.Dial(ctx, f.endpoint)
	if err != nil {
		return nil, protocol.NewFlashError(fmt.Sprintf("dial probe bridge %s", f.endpoint), err)
	}
	if f.token != "" {
		if _, err := fmt.Fprintf(tr, "auth %s\n", f.token); err != nil {
			_ = tr.Close()
			return nil, protocol.NewFlashError("send bridge token", err)
		}
	}
	f.logger.Info("bridge connected", log.String("endpoint", f.endpoint))
	return tr, nil
}
