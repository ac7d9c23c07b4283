// Package composecli drives the external compose tool against the file the
// simulator writes.
package composecli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultBinary is the compose command used when none is configured.
const DefaultBinary = "docker-compose"

// ErrEmptyBinary is returned when the configured compose command is blank.
var ErrEmptyBinary = errors.New("compose binary is empty")

// CommandError is a compose invocation that exited unsuccessfully.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner executes a command. stdout and stderr may be nil.
type Runner interface {
	Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// =============================================================================
// Compose
// =============================================================================

// Compose runs compose subcommands against one file.
type Compose struct {
	command []string
	file    string
	runner  Runner
	logger  *slog.Logger
}

// New creates a Compose for file. binary may hold several words, as in
// "docker compose". A nil runner uses ExecRunner.
func New(binary, file string, runner Runner, logger *slog.Logger) (*Compose, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if binary == "" {
		binary = DefaultBinary
	}
	command := strings.Fields(binary)
	if len(command) == 0 {
		return nil, ErrEmptyBinary
	}
	return &Compose{command: command, file: file, runner: runner, logger: logger}, nil
}

// File returns the compose file path.
func (c *Compose) File() string {
	return c.file
}

// Pull pulls the images of services.
func (c *Compose) Pull(ctx context.Context, services ...string) error {
	return c.run(ctx, nil, append([]string{"pull"}, services...)...)
}

// Up creates and starts every service. Without detach the call streams
// container logs to out until the project stops.
func (c *Compose) Up(ctx context.Context, detach bool, out io.Writer) error {
	args := []string{"up"}
	if detach {
		args = append(args, "-d")
	}
	return c.run(ctx, out, args...)
}

// Down stops and removes the project's containers and networks.
func (c *Compose) Down(ctx context.Context) error {
	return c.run(ctx, nil, "down")
}

func (c *Compose) run(ctx context.Context, out io.Writer, sub ...string) error {
	args := append(append([]string{}, c.command[1:]...), "-f", c.file)
	args = append(args, sub...)

	var captured bytes.Buffer
	stdout := io.Writer(&captured)
	if out != nil {
		stdout = io.MultiWriter(out, &captured)
	}

	c.logger.Debug("running compose", "command", c.command[0], "args", args)
	if err := c.runner.Run(ctx, stdout, &captured, c.command[0], args...); err != nil {
		return &CommandError{
			Args:   append([]string{c.command[0]}, args...),
			Output: captured.String(),
			Err:    err,
		}
	}
	return nil
}
