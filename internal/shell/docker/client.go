package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(host string) (*DockerClient, error) {
	var opts []client.Opt
	opts = append(opts, client.FromEnv)
	opts = append(opts, client.WithAPIVersionNegotiation())

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "could not connect to Docker daemon, make sure Docker is running", ErrConnectionFailed)
	}

	if host != "" {
		return &DockerClient{cli: cli}, nil
	}

	ctx := context.Background()
	if _, pingErr := cli.Ping(ctx); pingErr != nil {
		homeDir, _ := os.UserHomeDir()
		dockerDesktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		cli2, err2 := client.NewClientWithOpts(
			client.WithHost(dockerDesktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := cli2.Ping(ctx); pingErr2 == nil {
				cli.Close()
				return &DockerClient{cli: cli2}, nil
			}
			cli2.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// OSType returns the engine's container OS in lower case ("linux" or "windows").
func (d *DockerClient) OSType(ctx context.Context) (string, error) {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return "", NewDockerError("OSType", "", "", fmt.Sprintf("docker daemon returned error: %v", err), ErrConnectionFailed)
	}
	return strings.ToLower(info.OSType), nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// containerConfigs translates a spec into engine create arguments.
func containerConfigs(spec ContainerSpec) (*container.Config, *container.HostConfig, *network.NetworkingConfig) {
	config := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostConfig := &container.HostConfig{}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = strconv.Itoa(p.HostPort)
			}
			portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: hostPort,
			})
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, v := range spec.Volumes {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeVolume,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if spec.RestartPolicy.Name != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name:              container.RestartPolicyMode(spec.RestartPolicy.Name),
			MaximumRetryCount: spec.RestartPolicy.MaximumRetryCount,
		}
	}

	var networkConfig *network.NetworkingConfig
	if spec.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.NetworkAliases},
			},
		}
	}

	return config, hostConfig, networkConfig
}

// CreateContainer creates a new container from the given spec.
func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config, hostConfig, networkConfig := containerConfigs(spec)

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, spec.Name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", NewDockerError("CreateContainer", "image", spec.Image, "image not found", ErrImageNotFound)
		}
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), ErrPortAlreadyAllocated)
		}
		return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is already running") {
			return NewDockerError("StartContainer", "container", containerID, "container is already running", ErrContainerAlreadyRunning)
		}
		if strings.Contains(err.Error(), "port is already allocated") {
			return NewDockerError("StartContainer", "container", containerID, err.Error(), ErrPortAlreadyAllocated)
		}
		return NewDockerError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewDockerError("StopContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// ContainerStatus looks a container up by name. found is false when no
// such container exists.
func (d *DockerClient) ContainerStatus(ctx context.Context, name string) (ContainerStatus, bool, error) {
	resp, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, NewDockerError("ContainerStatus", "container", name, err.Error(), err)
	}
	if resp.State == nil {
		return "", true, nil
	}
	return ContainerStatus(resp.State.Status), true, nil
}

// ListContainers returns a list of containers matching the given options.
func (d *DockerClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	listOpts := container.ListOptions{
		All: opts.All,
	}

	if len(opts.Filters) > 0 {
		f := filters.NewArgs()
		for k, v := range opts.Filters {
			f.Add(k, v)
		}
		listOpts.Filters = f
	}

	containers, err := d.cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, NewDockerError("ListContainers", "container", "", err.Error(), err)
	}

	var result []ContainerInfo
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		var ports []PortBinding
		for _, p := range c.Ports {
			ports = append(ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
				HostIP:        p.IP,
			})
		}

		result = append(result, ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			Status:    ContainerStatus(c.State),
			CreatedAt: time.Unix(c.Created, 0),
			Ports:     ports,
			Labels:    c.Labels,
		})
	}

	return result, nil
}

// StopRemoveByLabel stops and removes every container carrying label.
// It continues past individual failures and returns them joined.
func (d *DockerClient) StopRemoveByLabel(ctx context.Context, label string) error {
	containers, err := d.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"label": label},
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, c := range containers {
		if c.Status == ContainerStatusRunning || c.Status == ContainerStatusRestarting || c.Status == ContainerStatusPaused {
			if err := d.StopContainer(ctx, c.ID, nil); err != nil && !errors.Is(err, ErrContainerNotRunning) {
				errs = append(errs, err)
				continue
			}
		}
		if err := d.RemoveContainer(ctx, c.ID, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CopyFile writes file.Data as a read-only file into a container path,
// which lands in the volume mounted there.
func (d *DockerClient) CopyFile(ctx context.Context, file FileCopy) error {
	archive, err := tarFile(file.Name, file.Data, time.Now())
	if err != nil {
		return NewDockerError("CopyFile", "container", file.Container, err.Error(), err)
	}

	err = d.cli.CopyToContainer(ctx, file.Container, file.DestDir, archive, container.CopyToContainerOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("CopyFile", "container", file.Container, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("CopyFile", "container", file.Container, fmt.Sprintf("put archive %s failed: %v", file.Name, err), err)
	}
	return nil
}

// tarFile packs a single 0444 file into an in-memory tar stream.
func tarFile(name string, data []byte, modTime time.Time) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o444,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// =============================================================================
// Network and Volume Operations
// =============================================================================

// EnsureNetwork creates the named network unless it already exists. The
// driver is nat on Windows engines and bridge otherwise.
func (d *DockerClient) EnsureNetwork(ctx context.Context, name string) error {
	networks, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return NewDockerError("EnsureNetwork", "network", name, err.Error(), ErrNetworkCreateFailed)
	}
	for _, n := range networks {
		if n.Name == name {
			return nil
		}
	}

	osType, err := d.OSType(ctx)
	if err != nil {
		return err
	}
	driver := "bridge"
	if osType == "windows" {
		driver = "nat"
	}

	if _, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: driver}); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return NewDockerError("EnsureNetwork", "network", name, err.Error(), ErrNetworkCreateFailed)
	}
	return nil
}

// EnsureVolume creates the named volume unless it already exists.
func (d *DockerClient) EnsureVolume(ctx context.Context, name string) error {
	_, err := d.cli.VolumeInspect(ctx, name)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return NewDockerError("EnsureVolume", "volume", name, err.Error(), ErrVolumeCreateFailed)
	}

	if _, err := d.cli.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return NewDockerError("EnsureVolume", "volume", name, err.Error(), ErrVolumeCreateFailed)
	}
	return nil
}

// =============================================================================
// Image and Registry Operations
// =============================================================================

// PullImage pulls an image, optionally with registry credentials. updated
// is false only when the image was present before and its ID did not change.
func (d *DockerClient) PullImage(ctx context.Context, imageName string, auth *RegistryAuth) (bool, error) {
	oldID := d.localImageID(ctx, imageName)

	pullOpts := image.PullOptions{}
	if auth != nil {
		encoded, err := registry.EncodeAuthConfig(authConfig(*auth))
		if err != nil {
			return false, NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
		}
		pullOpts.RegistryAuth = encoded
	}

	reader, err := d.cli.ImagePull(ctx, imageName, pullOpts)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return false, NewDockerError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return false, NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	defer reader.Close()

	// Drain the reader to complete the pull
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return false, NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}

	if oldID == "" {
		return true, nil
	}
	return d.localImageID(ctx, imageName) != oldID, nil
}

func (d *DockerClient) localImageID(ctx context.Context, imageName string) string {
	resp, err := d.cli.ImageInspect(ctx, imageName)
	if err != nil {
		return ""
	}
	return resp.ID
}

// ImageExists checks if an image exists locally.
func (d *DockerClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewDockerError("ImageExists", "image", imageName, err.Error(), err)
	}
	return true, nil
}

// RegistryLogin validates credentials against a registry.
func (d *DockerClient) RegistryLogin(ctx context.Context, auth RegistryAuth) error {
	if _, err := d.cli.RegistryLogin(ctx, authConfig(auth)); err != nil {
		return NewDockerError("RegistryLogin", "registry", auth.Address, err.Error(), ErrLoginFailed)
	}
	return nil
}

func authConfig(auth RegistryAuth) registry.AuthConfig {
	return registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.Address,
	}
}
