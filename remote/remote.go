// Package remote runs ssh and scp against a running instance. The system
// binaries are used so the user's ssh_config, agent and known_hosts apply.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/config"
	"github.com/projecteru2/remote/types"
)

// interruptGrace is how long a child gets after SIGINT before it is killed.
const interruptGrace = 5 * time.Second

// ErrInvalidPort is returned for a forward port outside 1..65535.
var ErrInvalidPort = errors.New("invalid port")

// ExitError carries a non-zero exit status of the ssh or scp child so the
// CLI can exit with the same code.
type ExitError struct {
	Tool string
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code) }

// Transfer describes one scp invocation.
type Transfer struct {
	Local     string
	Remote    string
	Upload    bool
	Recursive bool
}

// Client launches ssh/scp with inherited stdio.
type Client struct {
	sshBinary string
	scpBinary string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a Client using the binaries from conf, wired to the process stdio.
func New(conf *config.Config) *Client {
	return &Client{
		sshBinary: conf.SSHBinary,
		scpBinary: conf.SCPBinary,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// SSH opens an interactive session, or runs command when non-empty, with a
// local forward for each port.
func (c *Client) SSH(ctx context.Context, ep types.Endpoint, ports []int, command []string) error {
	args, err := SSHArgs(ep, ports, command)
	if err != nil {
		return err
	}
	return c.run(ctx, c.sshBinary, args)
}

// Copy runs scp for t.
func (c *Client) Copy(ctx context.Context, ep types.Endpoint, t Transfer) error {
	return c.run(ctx, c.scpBinary, SCPArgs(ep, t))
}

// SSHArgs builds: -i key [-L p:localhost:p ...] user@host [-- command...]
func SSHArgs(ep types.Endpoint, ports []int, command []string) ([]string, error) {
	var args []string
	if ep.KeyPath != "" {
		args = append(args, "-i", ep.KeyPath)
	}
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPort, p)
		}
		fwd := strconv.Itoa(p)
		args = append(args, "-L", fwd+":localhost:"+fwd)
	}
	args = append(args, ep.Target())
	if len(command) > 0 {
		args = append(args, "--")
		args = append(args, command...)
	}
	return args, nil
}

// SCPArgs builds: [-r] -i key src dst, where the remote side is user@host:path.
func SCPArgs(ep types.Endpoint, t Transfer) []string {
	var args []string
	if t.Recursive {
		args = append(args, "-r")
	}
	if ep.KeyPath != "" {
		args = append(args, "-i", ep.KeyPath)
	}
	remote := ep.Target() + ":" + t.Remote
	if t.Upload {
		return append(args, t.Local, remote)
	}
	return append(args, remote, t.Local)
}

func (c *Client) run(ctx context.Context, bin string, args []string) error {
	logger := log.WithFunc("remote.run")
	logger.Debugf(ctx, "exec %s %v", bin, args)

	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = interruptGrace

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ee.ExitCode() > 0 {
		return &ExitError{Tool: bin, Code: ee.ExitCode()}
	}
	return fmt.Errorf("run %s: %w", bin, err)
}
