// Package main provides the iotedgehubdev binary, a local simulator of an
// IoT Edge device.
//
// Usage:
//
//	iotedgehubdev <command> [flags]
//
// Commands:
//
//	setup      - Generate certificates and store the device connection string
//	modulecred - Print connection settings for modules run on the host
//	start      - Start a solution (-d) or single module mode
//	stop       - Stop every simulator container
//	compose    - Write the compose file of a solution without starting it
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/artpar/iotedgehubdev/internal/core/certs"
	"github.com/artpar/iotedgehubdev/internal/core/connstr"
	"github.com/artpar/iotedgehubdev/internal/shell/composecli"
	"github.com/artpar/iotedgehubdev/internal/shell/docker"
	"github.com/artpar/iotedgehubdev/internal/shell/hostplatform"
	"github.com/artpar/iotedgehubdev/internal/shell/iothub"
	"github.com/artpar/iotedgehubdev/internal/shell/simulator"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitConfigError  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, newApp(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}

// =============================================================================
// Application
// =============================================================================

// app carries what every command needs once the root command has loaded
// the configuration.
type app struct {
	configPath string
	verbose    bool

	cfg    *Config
	logger *slog.Logger
	paths  hostplatform.Paths

	stdout io.Writer
	out    printer

	certOptions []certs.Option
	newRegistry func(cfg *Config, logger *slog.Logger) func(*connstr.Device) simulator.ModuleRegistry
	newDocker   func(host string) (docker.Client, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		out:    printer{out: stdout, err: stderr},
		newRegistry: func(cfg *Config, logger *slog.Logger) func(*connstr.Device) simulator.ModuleRegistry {
			return func(device *connstr.Device) simulator.ModuleRegistry {
				return iothub.NewClient(device, iothub.Config{
					APIVersion: cfg.IoTHub.APIVersion,
					TokenTTL:   cfg.IoTHub.TokenTTL,
				}, logger)
			}
		},
		newDocker: func(host string) (docker.Client, error) {
			cli, err := docker.NewDockerClient(host)
			if err != nil {
				return nil, err
			}
			return cli, nil
		},
	}
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return &configError{err: err}
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	paths, err := cfg.Paths()
	if err != nil {
		return &configError{err: err}
	}

	a.cfg = cfg
	a.paths = paths
	a.logger = SetupLogger(cfg, a.out.err)
	a.logger.Debug("configuration loaded", "home", paths.Home, "version", Version)
	return nil
}

// manager builds a simulator manager. withEngine connects the container
// engine and the compose tool; the returned func releases them.
func (a *app) manager(withEngine bool) (*simulator.Manager, func(), error) {
	opts := simulator.Options{
		Paths:       a.paths,
		NewRegistry: a.newRegistry(a.cfg, a.logger),
		CertOptions: a.certOptions,
		Out:         a.stdout,
	}
	release := func() {}

	if withEngine {
		c, err := composecli.New(a.cfg.Compose.Binary, a.paths.ComposeFile(), nil, a.logger)
		if err != nil {
			return nil, nil, &configError{err: err}
		}
		cli, err := a.newDocker(a.cfg.Docker.Host)
		if err != nil {
			return nil, nil, err
		}
		opts.Docker = cli
		opts.Compose = c
		release = func() {
			if err := cli.Close(); err != nil {
				a.logger.Debug("failed to close docker client", "error", err)
			}
		}
	}

	return simulator.NewManager(opts, a.logger), release, nil
}

// =============================================================================
// Errors and Exit Codes
// =============================================================================

// configError marks failures caused by flags or configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ce *configError
	if errors.As(err, &ce) || simulator.IsNotSetup(err) {
		return ExitConfigError
	}
	return ExitRuntimeError
}

func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(a.out.out)
	root.SetErr(a.out.err)

	if err := root.ExecuteContext(ctx); err != nil {
		a.out.error(err)
		return exitCode(err)
	}
	return ExitSuccess
}
