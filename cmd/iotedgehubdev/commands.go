package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/iotedgehubdev/internal/core/deployment"
	"github.com/artpar/iotedgehubdev/internal/shell/simulator"
)

const (
	defaultInputPort = 53000
	defaultTarget    = deployment.TargetModule
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "iotedgehubdev",
		Short:         "Azure IoT Edge hub simulator for local development",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &configError{err: err}
	})

	root.AddCommand(
		newSetupCommand(a),
		newModuleCredCommand(a),
		newStartCommand(a),
		newStopCommand(a),
		newComposeCommand(a),
	)
	return root
}

// requireFlag reports an unset mandatory flag as a configuration error.
func requireFlag(cmd *cobra.Command, name string) error {
	if v, _ := cmd.Flags().GetString(name); strings.TrimSpace(v) == "" {
		return &configError{err: fmt.Errorf("required flag --%s not set", name)}
	}
	return nil
}

// =============================================================================
// setup
// =============================================================================

func newSetupCommand(a *app) *cobra.Command {
	var conn, gateway string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up the simulator with a device connection string",
		Long: `Generate the edge certificate chain for the gateway host and store the
device connection string. Rerun after the gateway host name changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "connection-string"); err != nil {
				return err
			}
			m, _, err := a.manager(false)
			if err != nil {
				return err
			}
			if err := m.Setup(conn, gateway); err != nil {
				return err
			}
			a.out.success("Setup IoT Edge Simulator successfully.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&conn, "connection-string", "c", "", "Edge device connection string")
	cmd.Flags().StringVarP(&gateway, "gateway-host", "g", defaultGateway(), "Host name modules use to reach the hub")
	return cmd
}

func defaultGateway() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return simulator.LocalGateway
	}
	return strings.ToLower(host)
}

// =============================================================================
// modulecred
// =============================================================================

func newModuleCredCommand(a *app) *cobra.Command {
	var (
		modules    string
		local      bool
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "modulecred",
		Short: "Get connection settings for modules run on the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := a.manager(false)
			if err != nil {
				return err
			}
			cred, err := m.ModuleCred(cmd.Context(), strings.Split(modules, "|"), local, outputFile)
			if err != nil {
				return err
			}
			for _, line := range cred {
				a.out.info("%s", line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modules, "modules", "m", defaultTarget, `Module names separated by "|", e.g. "module1|module2"`)
	cmd.Flags().BoolVarP(&local, "local", "l", false, "Connect through localhost instead of the gateway host")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "Also write the settings to this file")
	return cmd
}

// =============================================================================
// start
// =============================================================================

func newStartCommand(a *app) *cobra.Command {
	var (
		manifestPath string
		inputs       string
		port         int
		detach       bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the simulator",
		Long: `With --deployment, start every module of the deployment manifest through
compose. Without it, start the hub and a test utility so that a module named
"target" can be run and debugged on the host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port <= 0 || port > 65535 {
				return &configError{err: fmt.Errorf("invalid port %d", port)}
			}
			m, release, err := a.manager(true)
			if err != nil {
				return err
			}
			defer release()

			if manifestPath != "" {
				if cmd.Flags().Changed("inputs") {
					a.out.warning("--inputs is ignored when a deployment manifest is given")
				}
				return a.startSolution(cmd, m, manifestPath, detach)
			}
			return a.startSingleModule(cmd, m, splitInputs(inputs), port)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "deployment", "d", "", "Deployment manifest to run")
	cmd.Flags().StringVarP(&inputs, "inputs", "i", simulator.DefaultInput, "Comma separated input names of the target module")
	cmd.Flags().IntVarP(&port, "port", "p", defaultInputPort, "Host port of the message API in single module mode")
	cmd.Flags().BoolVar(&detach, "detach", false, "Run the solution in the background")
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "Show debug logs")
	return cmd
}

func (a *app) startSolution(cmd *cobra.Command, m *simulator.Manager, manifestPath string, detach bool) error {
	if err := m.LoginRegistries(cmd.Context(), manifestPath); err != nil {
		var loginErr *simulator.RegistriesLoginError
		if !errors.As(err, &loginErr) {
			return err
		}
		a.out.warning("%v", loginErr)
	}
	if err := m.StartSolution(cmd.Context(), manifestPath, detach); err != nil {
		return err
	}
	if detach {
		a.out.success("IoT Edge Simulator has been started in solution mode.")
	}
	return nil
}

func (a *app) startSingleModule(cmd *cobra.Command, m *simulator.Manager, inputs []string, port int) error {
	if err := m.StartSingleModule(cmd.Context(), inputs, port); err != nil {
		return err
	}
	if len(inputs) == 0 {
		inputs = []string{simulator.DefaultInput}
	}
	a.out.success("IoT Edge Simulator has been started in single module mode.")
	a.out.info("Run `iotedgehubdev modulecred` to get the credentials of your module.")
	a.out.info("Send a message to your module with:")
	a.out.hint(`curl --header "Content-Type: application/json" --request POST --data '{"inputName": "%s","data": "hello world"}' http://localhost:%d/api/v1/messages`,
		inputs[0], port)
	return nil
}

func splitInputs(s string) []string {
	var out []string
	for _, in := range strings.Split(s, ",") {
		if in = strings.TrimSpace(in); in != "" {
			out = append(out, in)
		}
	}
	return out
}

// =============================================================================
// stop
// =============================================================================

func newStopCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the simulator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, release, err := a.manager(true)
			if err != nil {
				return err
			}
			defer release()

			if err := m.Stop(cmd.Context()); err != nil {
				return err
			}
			a.out.success("IoT Edge Simulator has been stopped successfully.")
			return nil
		},
	}
}

// =============================================================================
// compose
// =============================================================================

func newComposeCommand(a *app) *cobra.Command {
	var (
		manifestPath string
		outputFile   string
		engineOS     string
	)

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Write the compose file of a deployment manifest",
		Long: `Translate a deployment manifest into a compose file without touching the
container engine. Module identities are still created in IoT Hub.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "deployment"); err != nil {
				return err
			}
			mountBase, err := deployment.MountBase(engineOS)
			if err != nil {
				return &configError{err: err}
			}

			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("failed to read deployment manifest: %w", err)
			}
			manifest, err := deployment.ParseManifest(data)
			if err != nil {
				return err
			}

			m, _, err := a.manager(false)
			if err != nil {
				return err
			}
			out, err := m.ComposeSolution(cmd.Context(), manifest, mountBase)
			if err != nil {
				return err
			}

			if outputFile == "" {
				_, err := a.stdout.Write(out)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", filepath.Dir(outputFile), err)
			}
			if err := os.WriteFile(outputFile, out, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}
			a.out.success("Wrote compose file to %s", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "deployment", "d", "", "Deployment manifest to translate")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&engineOS, "os", "linux", "OS type of the target container engine (linux|windows)")
	return cmd
}
