// Package simulator runs the edge hub simulator against the local container
// engine: setup, solution and single module start, credentials, and stop.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/artpar/iotedgehubdev/internal/core/certs"
	"github.com/artpar/iotedgehubdev/internal/core/compose"
	"github.com/artpar/iotedgehubdev/internal/core/connstr"
	"github.com/artpar/iotedgehubdev/internal/core/deployment"
	"github.com/artpar/iotedgehubdev/internal/shell/certstore"
	"github.com/artpar/iotedgehubdev/internal/shell/docker"
	"github.com/artpar/iotedgehubdev/internal/shell/hostplatform"
	"github.com/artpar/iotedgehubdev/internal/shell/iothub"
)

const (
	// LocalGateway replaces the gateway host for modules running on the host.
	LocalGateway = "localhost"
	// DefaultInput is routed when single module mode gets no inputs.
	DefaultInput = "input1"
)

// ModuleRegistry resolves module identities of one device.
type ModuleRegistry interface {
	GetOrAddModule(ctx context.Context, moduleID string) (*iothub.Module, error)
}

// ComposeRunner drives the compose tool for the solution file.
type ComposeRunner interface {
	Pull(ctx context.Context, services ...string) error
	Up(ctx context.Context, detach bool, out io.Writer) error
	Down(ctx context.Context) error
}

// Options wires a Manager to its collaborators. Docker and Compose may be
// nil for commands that never touch the engine.
type Options struct {
	Paths       hostplatform.Paths
	Docker      docker.Client
	Compose     ComposeRunner
	NewRegistry func(device *connstr.Device) ModuleRegistry
	CertOptions []certs.Option
	Out         io.Writer // attached compose output
}

// =============================================================================
// Manager
// =============================================================================

// Manager orchestrates the simulator.
type Manager struct {
	paths       hostplatform.Paths
	docker      docker.Client
	compose     ComposeRunner
	newRegistry func(device *connstr.Device) ModuleRegistry
	certOptions []certs.Option
	out         io.Writer
	logger      *slog.Logger
}

// NewManager creates a manager.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	newRegistry := opts.NewRegistry
	if newRegistry == nil {
		newRegistry = func(device *connstr.Device) ModuleRegistry {
			return iothub.NewClient(device, iothub.Config{}, logger)
		}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Manager{
		paths:       opts.Paths,
		docker:      opts.Docker,
		compose:     opts.Compose,
		newRegistry: newRegistry,
		certOptions: opts.CertOptions,
		out:         out,
		logger:      logger,
	}
}

// session is the persisted setup resolved for one command.
type session struct {
	device   *connstr.Device
	gateway  string
	certs    *certstore.Store
	registry ModuleRegistry
}

func (m *Manager) load() (*session, error) {
	settings, err := hostplatform.LoadSettings(m.paths.SettingsFile())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSetup, err)
	}
	device, err := connstr.Parse(settings.ConnectionString)
	if err != nil {
		return nil, err
	}
	return &session{
		device:   device,
		gateway:  settings.GatewayHost,
		certs:    certstore.New(settings.CertPath, m.logger),
		registry: m.newRegistry(device),
	}, nil
}

// =============================================================================
// Setup
// =============================================================================

// Setup validates the device connection string, regenerates the
// certificate chain for gateway, and persists the settings.
func (m *Manager) Setup(connectionString, gateway string) error {
	if _, err := connstr.Parse(connectionString); err != nil {
		return err
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		return fmt.Errorf("gateway host is required")
	}

	store := certstore.New(m.paths.CertDir(), m.logger)
	if err := store.GenerateEdgeCerts(gateway, m.certOptions...); err != nil {
		return err
	}

	settings := hostplatform.Settings{
		ConnectionString: connectionString,
		CertPath:         store.Dir(),
		GatewayHost:      gateway,
	}
	if err := hostplatform.SaveSettings(m.paths.SettingsFile(), settings); err != nil {
		return err
	}
	if err := m.paths.PrepareShareData(); err != nil {
		return err
	}

	m.logger.Info("simulator set up", "gateway", gateway, "cert_path", store.Dir())
	return nil
}

// =============================================================================
// Module Credentials
// =============================================================================

// connectionString returns the connection string of moduleID. The hub
// gets a direct string, other modules one through gateway.
func (s *session) connectionString(ctx context.Context, moduleID, gateway string) (string, error) {
	mod, err := s.registry.GetOrAddModule(ctx, moduleID)
	if err != nil {
		return "", fmt.Errorf("failed to get module %s: %w", moduleID, err)
	}
	if moduleID == deployment.EdgeHubModule {
		return s.device.HubModuleString(moduleID, mod.PrimaryKey())
	}
	return s.device.ModuleString(gateway, moduleID, mod.PrimaryKey())
}

func (s *session) connectionStrings(ctx context.Context, modules []string) (map[string]string, error) {
	out := make(map[string]string, len(modules))
	for _, id := range modules {
		conn, err := s.connectionString(ctx, id, s.gateway)
		if err != nil {
			return nil, err
		}
		out[id] = conn
	}
	return out, nil
}

// ModuleCred returns the environment a natively run module needs:
// EdgeHubConnectionString (one string per module, joined by "|") and
// EdgeModuleCACertificateFile. With local set the modules connect through
// localhost. A non-empty outputFile receives the same lines.
func (m *Manager) ModuleCred(ctx context.Context, modules []string, local bool, outputFile string) ([]string, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}

	gateway := s.gateway
	if local {
		gateway = LocalGateway
	}

	var conns []string
	for _, id := range modules {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		conn, err := s.connectionString(ctx, id, gateway)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}

	cred := []string{
		deployment.ModuleConnectionEnv(strings.Join(conns, "|")),
		deployment.ModuleCAEnv(s.certs.CertPath(certs.DeviceCA)),
	}

	if outputFile != "" {
		path, err := filepath.Abs(outputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", outputFile, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(strings.Join(cred, "\n")+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		m.logger.Info("wrote module credentials", "path", path)
	}
	return cred, nil
}

// =============================================================================
// Solution Mode
// =============================================================================

// ComposeSolution resolves credentials for every module of manifest and
// renders the compose file for an engine whose volumes mount under
// mountBase. The result is checked with the compose loader.
func (m *Manager) ComposeSolution(ctx context.Context, manifest *deployment.Manifest, mountBase string) ([]byte, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}
	_, data, err := m.composeSolution(ctx, s, manifest, mountBase)
	return data, err
}

func (m *Manager) composeSolution(ctx context.Context, s *session, manifest *deployment.Manifest, mountBase string) (*compose.Document, []byte, error) {
	ids := []string{deployment.EdgeHubModule}
	for _, mod := range manifest.Modules {
		ids = append(ids, mod.Name)
	}
	conns, err := s.connectionStrings(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	topology := deployment.NewTopology(mountBase, s.gateway, conns)
	doc, err := deployment.NewComposer(topology, m.logger).Compose(manifest)
	if err != nil {
		return nil, nil, err
	}
	data, err := compose.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	if _, err := compose.Validate(ctx, data); err != nil {
		return nil, nil, fmt.Errorf("generated compose file is invalid: %w", err)
	}
	return doc, data, nil
}

// StartSolution runs every module of the manifest at manifestPath through
// compose. Every top-level volume of the compose file is external, so each
// one is created before compose starts. Without detach it streams the
// containers' output until they stop.
func (m *Manager) StartSolution(ctx context.Context, manifestPath string, detach bool) error {
	if m.docker == nil || m.compose == nil {
		return ErrNoEngine
	}
	s, err := m.load()
	if err != nil {
		return err
	}
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	mountBase, err := m.mountBase(ctx)
	if err != nil {
		return err
	}
	if err := m.Stop(ctx); err != nil {
		return err
	}
	doc, data, err := m.composeSolution(ctx, s, manifest, mountBase)
	if err != nil {
		return err
	}
	if err := m.prepare(ctx, doc.VolumeNames()...); err != nil {
		return err
	}
	if err := m.prepareCerts(ctx, s, mountBase); err != nil {
		return err
	}

	file := m.paths.ComposeFile()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(file), err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	m.logger.Info("wrote compose file", "path", file, "modules", len(manifest.Modules))

	if err := m.compose.Pull(ctx, deployment.EdgeHubService); err != nil {
		return err
	}
	return m.compose.Up(ctx, detach, m.out)
}

// LoginRegistries logs in to every registry the manifest at manifestPath
// lists. Failures do not stop the remaining logins and are returned
// together as a *RegistriesLoginError.
func (m *Manager) LoginRegistries(ctx context.Context, manifestPath string) error {
	if m.docker == nil {
		return ErrNoEngine
	}
	manifest, err := readManifest(manifestPath)
	if err != nil {
		return err
	}

	var failed RegistriesLoginError
	for _, cred := range manifest.RegistryCredentials {
		err := m.docker.RegistryLogin(ctx, docker.RegistryAuth{
			Address:  cred.Address,
			Username: cred.Username,
			Password: cred.Password,
		})
		if err != nil {
			m.logger.Warn("registry login failed", "registry", cred.Name, "address", cred.Address, "error", err)
			failed.Registries = append(failed.Registries, cred.Name)
			failed.Errs = append(failed.Errs, err)
		}
	}
	if len(failed.Registries) > 0 {
		return &failed
	}
	return nil
}

func readManifest(path string) (*deployment.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment manifest: %w", err)
	}
	return deployment.ParseManifest(data)
}

// =============================================================================
// Single Module Mode
// =============================================================================

// StartSingleModule runs the hub and the test utility so that a module
// named "target" can be debugged on the host. inputs are the target's
// input names; port publishes the utility's message API.
func (m *Manager) StartSingleModule(ctx context.Context, inputs []string, port int) error {
	if m.docker == nil {
		return ErrNoEngine
	}
	s, err := m.load()
	if err != nil {
		return err
	}

	mountBase, err := m.mountBase(ctx)
	if err != nil {
		return err
	}
	if err := m.Stop(ctx); err != nil {
		return err
	}
	if err := m.prepare(ctx); err != nil {
		return err
	}

	conns, err := s.connectionStrings(ctx, []string{deployment.EdgeHubModule, deployment.InputModule})
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		inputs = []string{DefaultInput}
	}
	params := deployment.SingleModuleParams{
		Topology:  deployment.NewTopology(mountBase, s.gateway, conns),
		Inputs:    inputs,
		InputPort: port,
	}

	hubPlan, err := deployment.BuildHubPlan(params)
	if err != nil {
		return err
	}
	if _, err := m.docker.PullImage(ctx, hubPlan.Image, nil); err != nil {
		return err
	}
	hubFiles, err := hubCertFiles(s.certs, params.Topology.HubMount)
	if err != nil {
		return err
	}
	if err := m.runContainer(ctx, hubPlan, hubFiles); err != nil {
		return err
	}

	inputPlan, err := deployment.BuildInputPlan(params)
	if err != nil {
		return err
	}
	if err := m.pullIfMissing(ctx, inputPlan.Image); err != nil {
		return err
	}
	moduleFiles, err := moduleCertFiles(s.certs, params.Topology.ModuleMount)
	if err != nil {
		return err
	}
	return m.runContainer(ctx, inputPlan, moduleFiles)
}

// runContainer creates plan, copies files into it, and starts it.
func (m *Manager) runContainer(ctx context.Context, plan deployment.ContainerPlan, files []docker.FileCopy) error {
	id, err := m.docker.CreateContainer(ctx, docker.SpecFromPlan(plan))
	if err != nil {
		return err
	}
	for _, f := range files {
		f.Container = id
		if err := m.docker.CopyFile(ctx, f); err != nil {
			return err
		}
	}
	if err := m.docker.StartContainer(ctx, id); err != nil {
		return err
	}
	m.logger.Info("started container", "container_name", plan.Name, "image", plan.Image)
	return nil
}

func (m *Manager) pullIfMissing(ctx context.Context, image string) error {
	exists, err := m.docker.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = m.docker.PullImage(ctx, image, nil)
	return err
}

// =============================================================================
// Stop
// =============================================================================

// Stop tears down the compose project (when a compose file exists) and
// removes every container carrying the simulator label. Both steps always
// run; their failures are reported together as a *StopError.
func (m *Manager) Stop(ctx context.Context) error {
	if m.docker == nil {
		return ErrNoEngine
	}
	if err := m.docker.Ping(ctx); err != nil {
		return err
	}

	var stopErr StopError
	if m.compose != nil {
		if _, err := os.Stat(m.paths.ComposeFile()); err == nil {
			stopErr.ComposeErr = m.compose.Down(ctx)
		}
	}
	stopErr.LabelErr = m.docker.StopRemoveByLabel(ctx, deployment.Label)

	if stopErr.ComposeErr != nil || stopErr.LabelErr != nil {
		return &stopErr
	}
	m.logger.Debug("simulator stopped")
	return nil
}

// =============================================================================
// Engine Preparation
// =============================================================================

func (m *Manager) mountBase(ctx context.Context) (string, error) {
	if err := m.docker.Ping(ctx); err != nil {
		return "", err
	}
	osType, err := m.docker.OSType(ctx)
	if err != nil {
		return "", err
	}
	return deployment.MountBase(osType)
}

// prepare creates the shared network, the certificate volumes and any
// extra named volume.
func (m *Manager) prepare(ctx context.Context, extraVolumes ...string) error {
	if err := m.docker.EnsureNetwork(ctx, deployment.NetworkName); err != nil {
		return err
	}
	volumes := []string{deployment.HubVolume, deployment.ModuleVolume}
	for _, v := range extraVolumes {
		if !slices.Contains(volumes, v) {
			volumes = append(volumes, v)
		}
	}
	for _, v := range volumes {
		if err := m.docker.EnsureVolume(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// prepareCerts fills both certificate volumes through a fresh helper
// container.
func (m *Manager) prepareCerts(ctx context.Context, s *session, mountBase string) error {
	_, found, err := m.docker.ContainerStatus(ctx, deployment.CertHelperName)
	if err != nil {
		return err
	}
	if found {
		if err := m.docker.RemoveContainer(ctx, deployment.CertHelperName, docker.RemoveOptions{Force: true}); err != nil {
			return err
		}
	}

	topology := deployment.NewTopology(mountBase, s.gateway, nil)
	plan := deployment.BuildCertHelperPlan(topology)
	if _, err := m.docker.PullImage(ctx, plan.Image, nil); err != nil {
		return err
	}
	id, err := m.docker.CreateContainer(ctx, docker.SpecFromPlan(plan))
	if err != nil {
		return err
	}

	hubFiles, err := hubCertFiles(s.certs, topology.HubMount)
	if err != nil {
		return err
	}
	moduleFiles, err := moduleCertFiles(s.certs, topology.ModuleMount)
	if err != nil {
		return err
	}
	for _, f := range append(hubFiles, moduleFiles...) {
		f.Container = id
		if err := m.docker.CopyFile(ctx, f); err != nil {
			return err
		}
	}
	m.logger.Debug("copied certificates into volumes", "helper", id)
	return nil
}

// hubCertFiles are the chain and server archive the hub reads from hubMount.
func hubCertFiles(store *certstore.Store, hubMount string) ([]docker.FileCopy, error) {
	chain, err := store.ReadCert(certs.ChainCA)
	if err != nil {
		return nil, err
	}
	pfx, err := store.ReadPFX(certs.HubServer)
	if err != nil {
		return nil, err
	}
	return []docker.FileCopy{
		{DestDir: hubMount, Name: deployment.ChainCAFile, Data: chain},
		{DestDir: hubMount, Name: deployment.HubServerPFX, Data: pfx},
	}, nil
}

// moduleCertFiles is the device CA modules read from moduleMount.
func moduleCertFiles(store *certstore.Store, moduleMount string) ([]docker.FileCopy, error) {
	ca, err := store.ReadCert(certs.DeviceCA)
	if err != nil {
		return nil, err
	}
	return []docker.FileCopy{{DestDir: moduleMount, Name: deployment.DeviceCAFile, Data: ca}}, nil
}

// IsNotSetup reports whether err means setup has to run first.
func IsNotSetup(err error) bool {
	return errors.Is(err, ErrNotSetup)
}
