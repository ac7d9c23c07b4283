package simulator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/iotedgehubdev/internal/core/certs"
	"github.com/artpar/iotedgehubdev/internal/core/connstr"
	"github.com/artpar/iotedgehubdev/internal/core/deployment"
	"github.com/artpar/iotedgehubdev/internal/shell/docker"
	"github.com/artpar/iotedgehubdev/internal/shell/hostplatform"
	"github.com/artpar/iotedgehubdev/internal/shell/iothub"
)

const testConnectionString = "HostName=hub.azure-devices.net;DeviceId=dev1;SharedAccessKey=c2VjcmV0"

// =============================================================================
// Fakes
// =============================================================================

type fakeDocker struct {
	osType     string
	helper     bool
	created    []docker.ContainerSpec
	started    []string
	removed    []string
	copies     []docker.FileCopy
	pulled     []string
	networks   []string
	volumes    []string
	logins     []docker.RegistryAuth
	loginErr   map[string]error
	labelCalls int
	labelErr   error
	existing   map[string]bool
	pingErr    error
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{osType: "linux", loginErr: map[string]error{}, existing: map[string]bool{}}
}

func (f *fakeDocker) Ping(context.Context) error              { return f.pingErr }
func (f *fakeDocker) OSType(context.Context) (string, error) { return f.osType, nil }
func (f *fakeDocker) Close() error                            { return nil }

func (f *fakeDocker) CreateContainer(_ context.Context, spec docker.ContainerSpec) (string, error) {
	f.created = append(f.created, spec)
	return "id-" + spec.Name, nil
}

func (f *fakeDocker) StartContainer(_ context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDocker) StopContainer(context.Context, string, *time.Duration) error { return nil }

func (f *fakeDocker) RemoveContainer(_ context.Context, id string, _ docker.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) ContainerStatus(_ context.Context, name string) (docker.ContainerStatus, bool, error) {
	if name == deployment.CertHelperName && f.helper {
		return docker.ContainerStatusCreated, true, nil
	}
	return "", false, nil
}

func (f *fakeDocker) ListContainers(context.Context, docker.ListOptions) ([]docker.ContainerInfo, error) {
	return nil, nil
}

func (f *fakeDocker) StopRemoveByLabel(_ context.Context, label string) error {
	f.labelCalls++
	return f.labelErr
}

func (f *fakeDocker) CopyFile(_ context.Context, file docker.FileCopy) error {
	f.copies = append(f.copies, file)
	return nil
}

func (f *fakeDocker) EnsureNetwork(_ context.Context, name string) error {
	f.networks = append(f.networks, name)
	return nil
}

func (f *fakeDocker) EnsureVolume(_ context.Context, name string) error {
	f.volumes = append(f.volumes, name)
	return nil
}

func (f *fakeDocker) PullImage(_ context.Context, image string, _ *docker.RegistryAuth) (bool, error) {
	f.pulled = append(f.pulled, image)
	return true, nil
}

func (f *fakeDocker) ImageExists(_ context.Context, image string) (bool, error) {
	return f.existing[image], nil
}

func (f *fakeDocker) RegistryLogin(_ context.Context, auth docker.RegistryAuth) error {
	f.logins = append(f.logins, auth)
	return f.loginErr[auth.Address]
}

type fakeRegistry struct {
	requested []string
	err       error
}

func (r *fakeRegistry) GetOrAddModule(_ context.Context, id string) (*iothub.Module, error) {
	r.requested = append(r.requested, id)
	if r.err != nil {
		return nil, r.err
	}
	return &iothub.Module{
		ModuleID: id,
		DeviceID: "dev1",
		Authentication: &iothub.Authentication{
			Type:         "sas",
			SymmetricKey: &iothub.SymmetricKey{PrimaryKey: "key-" + strings.TrimPrefix(id, "$")},
		},
	}, nil
}

type fakeCompose struct {
	calls   []string
	downErr error
}

func (c *fakeCompose) Pull(_ context.Context, services ...string) error {
	c.calls = append(c.calls, "pull "+strings.Join(services, " "))
	return nil
}

func (c *fakeCompose) Up(_ context.Context, detach bool, _ io.Writer) error {
	if detach {
		c.calls = append(c.calls, "up -d")
	} else {
		c.calls = append(c.calls, "up")
	}
	return nil
}

func (c *fakeCompose) Down(context.Context) error {
	c.calls = append(c.calls, "down")
	return c.downErr
}

type fixture struct {
	paths    hostplatform.Paths
	docker   *fakeDocker
	registry *fakeRegistry
	compose  *fakeCompose
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		paths:    hostplatform.NewPaths(t.TempDir()),
		docker:   newFakeDocker(),
		registry: &fakeRegistry{},
		compose:  &fakeCompose{},
	}
	f.manager = NewManager(Options{
		Paths:       f.paths,
		Docker:      f.docker,
		Compose:     f.compose,
		NewRegistry: func(*connstr.Device) ModuleRegistry { return f.registry },
		CertOptions: []certs.Option{certs.WithKeyBits(1024, 1024)},
		Out:         io.Discard,
	}, nil)
	return f
}

func (f *fixture) setup(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Setup(testConnectionString, "MyGateway"))
}

const testManifest = `{
  "modulesContent": {
    "$edgeAgent": {
      "properties.desired": {
        "runtime": {
          "type": "docker",
          "settings": {
            "registryCredentials": {
              "acr": {"username": "user", "password": "pass", "address": "acr.azurecr.io"},
              "hub": {"username": "u2", "password": "p2", "address": "docker.io"}
            }
          }
        },
        "systemModules": {
          "edgeHub": {
            "type": "docker",
            "restartPolicy": "always",
            "settings": {"image": "mcr.microsoft.com/azureiotedge-hub:1.0", "createOptions": ""}
          }
        },
        "modules": {
          "sensor": {
            "type": "docker",
            "restartPolicy": "always",
            "settings": {"image": "example/sensor:1.0", "createOptions": "{\"Env\":[\"A=1\"]}"}
          }
        }
      }
    },
    "$edgeHub": {
      "properties.desired": {
        "routes": {"up": "FROM /messages/* INTO $upstream"}
      }
    }
  }
}`

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.json")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o600))
	return path
}

// =============================================================================
// Tests
// =============================================================================

func TestSetup(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	settings, err := hostplatform.LoadSettings(f.paths.SettingsFile())
	require.NoError(t, err)
	assert.Equal(t, testConnectionString, settings.ConnectionString)
	assert.Equal(t, "mygateway", settings.GatewayHost)
	assert.Equal(t, f.paths.CertDir(), settings.CertPath)

	assert.FileExists(t, f.paths.ComposeFile())
	for _, id := range []string{certs.DeviceCA, certs.ChainCA} {
		assert.FileExists(t, filepath.Join(f.paths.CertDir(), id, "cert", id+".cert.pem"))
	}
}

func TestSetup_Invalid(t *testing.T) {
	f := newFixture(t)

	err := f.manager.Setup("HostName=h", "gw")
	assert.ErrorIs(t, err, connstr.ErrInvalidConnectionString)

	err = f.manager.Setup(testConnectionString, "  ")
	assert.Error(t, err)
	assert.NoFileExists(t, f.paths.SettingsFile())
}

func TestCommands_RequireSetup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.ModuleCred(ctx, []string{"target"}, false, "")
	assert.True(t, IsNotSetup(err))
	assert.ErrorIs(t, err, hostplatform.ErrNotConfigured)

	err = f.manager.StartSingleModule(ctx, nil, 53000)
	assert.ErrorIs(t, err, ErrNotSetup)

	_, err = f.manager.ComposeSolution(ctx, &deployment.Manifest{}, "/mnt")
	assert.ErrorIs(t, err, ErrNotSetup)
}

func TestModuleCred(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	out := filepath.Join(t.TempDir(), "out", "cred.env")

	cred, err := f.manager.ModuleCred(context.Background(), []string{"target", " ", "other"}, false, out)
	require.NoError(t, err)

	require.Len(t, cred, 2)
	assert.Equal(t, "EdgeHubConnectionString="+
		"HostName=hub.azure-devices.net;GatewayHostName=mygateway;DeviceId=dev1;ModuleId=target;SharedAccessKey=key-target|"+
		"HostName=hub.azure-devices.net;GatewayHostName=mygateway;DeviceId=dev1;ModuleId=other;SharedAccessKey=key-other",
		cred[0])
	assert.Equal(t, "EdgeModuleCACertificateFile="+
		filepath.Join(f.paths.CertDir(), certs.DeviceCA, "cert", certs.DeviceCA+".cert.pem"), cred[1])
	assert.Equal(t, []string{"target", "other"}, f.registry.requested)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, cred[0]+"\n"+cred[1]+"\n", string(data))
}

func TestModuleCred_Local(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	cred, err := f.manager.ModuleCred(context.Background(), []string{"target"}, true, "")
	require.NoError(t, err)
	assert.Contains(t, cred[0], "GatewayHostName=localhost;")
}

func TestModuleCred_RegistryError(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.registry.err = errors.New("unauthorized")

	_, err := f.manager.ModuleCred(context.Background(), []string{"target"}, false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestComposeSolution(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	manifest, err := deployment.ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	data, err := f.manager.ComposeSolution(context.Background(), manifest, "/mnt")
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "edgeHubDev:")
	assert.Contains(t, text, "sensor:")
	assert.Contains(t, text, "IotHubConnectionString=HostName=hub.azure-devices.net;DeviceId=dev1;ModuleId=$$edgeHub;SharedAccessKey=key-edgeHub")
	assert.Contains(t, text, "GatewayHostName=mygateway")
	assert.Contains(t, text, "routes__up=FROM /messages/* INTO $$upstream")
	assert.Equal(t, []string{deployment.EdgeHubModule, "sensor"}, f.registry.requested)
}

func TestStartSolution(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.docker.helper = true

	err := f.manager.StartSolution(context.Background(), writeManifest(t), true)
	require.NoError(t, err)

	assert.Equal(t, []string{"down", "pull edgeHubDev", "up -d"}, f.compose.calls)
	assert.Equal(t, 1, f.docker.labelCalls)
	assert.Equal(t, []string{deployment.NetworkName}, f.docker.networks)
	assert.Equal(t, []string{deployment.HubVolume, deployment.ModuleVolume}, f.docker.volumes)

	assert.Equal(t, []string{deployment.CertHelperName}, f.docker.removed)
	assert.Equal(t, []string{deployment.HelperImage}, f.docker.pulled)
	require.Len(t, f.docker.created, 1)
	assert.Equal(t, deployment.CertHelperName, f.docker.created[0].Name)
	assert.Empty(t, f.docker.started)

	var dests []string
	for _, c := range f.docker.copies {
		assert.Equal(t, "id-"+deployment.CertHelperName, c.Container)
		assert.NotEmpty(t, c.Data)
		dests = append(dests, c.DestDir+"/"+c.Name)
	}
	assert.Equal(t, []string{
		"/mnt/edgehub/" + deployment.ChainCAFile,
		"/mnt/edgehub/" + deployment.HubServerPFX,
		"/mnt/edgemodule/" + deployment.DeviceCAFile,
	}, dests)

	data, err := os.ReadFile(f.paths.ComposeFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "example/sensor:1.0")
}

func TestStartSolution_CreatesDeclaredVolumes(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	manifest := strings.Replace(testManifest,
		`"createOptions": "{\"Env\":[\"A=1\"]}"`,
		`"createOptions": "{\"HostConfig\":{\"Binds\":[\"cache:/cache\",\"/host:/host\"]}}"`, 1)
	path := filepath.Join(t.TempDir(), "deployment.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	require.NoError(t, f.manager.StartSolution(context.Background(), path, true))
	assert.Equal(t, []string{deployment.HubVolume, deployment.ModuleVolume, "cache"}, f.docker.volumes)

	data, err := os.ReadFile(f.paths.ComposeFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache:\n    external: true\n    name: cache\n")
}

func TestStartSolution_Windows(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.docker.osType = "windows"

	require.NoError(t, f.manager.StartSolution(context.Background(), writeManifest(t), false))
	assert.Equal(t, "up", f.compose.calls[len(f.compose.calls)-1])
	assert.Empty(t, f.docker.removed)
	assert.Equal(t, "c:/mnt/edgehub", f.docker.copies[0].DestDir)
}

func TestStartSolution_BadManifest(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	err := f.manager.StartSolution(context.Background(), filepath.Join(t.TempDir(), "missing.json"), true)
	assert.Error(t, err)
	assert.Empty(t, f.compose.calls)
}

func TestStartSingleModule(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.docker.existing[deployment.TestUtilityImage] = true

	require.NoError(t, f.manager.StartSingleModule(context.Background(), nil, 53000))

	assert.Equal(t, []string{deployment.EdgeHubModule, deployment.InputModule}, f.registry.requested)
	assert.Equal(t, []string{deployment.HubImage}, f.docker.pulled)
	assert.Equal(t, []string{"id-" + deployment.EdgeHubService, "id-" + deployment.InputModule}, f.docker.started)

	require.Len(t, f.docker.created, 2)
	hub, input := f.docker.created[0], f.docker.created[1]
	assert.Equal(t, []string{"mygateway"}, hub.NetworkAliases)
	assert.Contains(t, hub.Env,
		`routes__r1=FROM /messages/modules/input/outputs/input1 INTO BrokeredEndpoint("/modules/target/inputs/input1")`)
	assert.Equal(t, 53000, input.Ports[0].HostPort)

	require.Len(t, f.docker.copies, 3)
	assert.Equal(t, "id-"+deployment.EdgeHubService, f.docker.copies[0].Container)
	assert.Equal(t, "id-"+deployment.EdgeHubService, f.docker.copies[1].Container)
	assert.Equal(t, "id-"+deployment.InputModule, f.docker.copies[2].Container)
	assert.Equal(t, deployment.DeviceCAFile, f.docker.copies[2].Name)
}

func TestStartSingleModule_PullsMissingUtility(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	require.NoError(t, f.manager.StartSingleModule(context.Background(), []string{"a", "b"}, 53001))
	assert.Equal(t, []string{deployment.HubImage, deployment.TestUtilityImage}, f.docker.pulled)
}

func TestStop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.manager.Stop(context.Background()))
	assert.Empty(t, f.compose.calls)
	assert.Equal(t, 1, f.docker.labelCalls)

	f.setup(t)
	f.compose.downErr = errors.New("down failed")
	f.docker.labelErr = errors.New("remove failed")

	err := f.manager.Stop(context.Background())
	var stopErr *StopError
	require.ErrorAs(t, err, &stopErr)
	assert.ErrorIs(t, err, f.compose.downErr)
	assert.ErrorIs(t, err, f.docker.labelErr)
	assert.Equal(t, 2, f.docker.labelCalls)
}

func TestEngineUnreachable(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.docker.pingErr = errors.New("daemon not responding")
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.Stop(ctx), f.docker.pingErr)
	assert.ErrorIs(t, f.manager.StartSolution(ctx, writeManifest(t), true), f.docker.pingErr)
	assert.ErrorIs(t, f.manager.StartSingleModule(ctx, nil, 53000), f.docker.pingErr)

	assert.Zero(t, f.docker.labelCalls)
	assert.Empty(t, f.compose.calls)
	assert.Empty(t, f.docker.created)
}

func TestLoginRegistries(t *testing.T) {
	f := newFixture(t)
	manifest := writeManifest(t)

	require.NoError(t, f.manager.LoginRegistries(context.Background(), manifest))
	require.Len(t, f.docker.logins, 2)
	assert.Equal(t, docker.RegistryAuth{Address: "acr.azurecr.io", Username: "user", Password: "pass"}, f.docker.logins[0])

	denied := errors.New("denied")
	f.docker.loginErr["acr.azurecr.io"] = denied
	err := f.manager.LoginRegistries(context.Background(), manifest)

	var loginErr *RegistriesLoginError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, []string{"acr"}, loginErr.Registries)
	assert.ErrorIs(t, err, denied)
	assert.Len(t, f.docker.logins, 4)
}

func TestNoEngine(t *testing.T) {
	m := NewManager(Options{Paths: hostplatform.NewPaths(t.TempDir())}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, m.Stop(ctx), ErrNoEngine)
	assert.ErrorIs(t, m.StartSolution(ctx, "x.json", true), ErrNoEngine)
	assert.ErrorIs(t, m.StartSingleModule(ctx, nil, 1), ErrNoEngine)
	assert.ErrorIs(t, m.LoginRegistries(ctx, "x.json"), ErrNoEngine)
}
