// Package docker wraps the container engine operations the simulator needs.
package docker

import (
	"context"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name           string
	Image          string
	Env            []string // KEY=VALUE, order preserved
	Labels         map[string]string
	Ports          []PortBinding
	Volumes        []VolumeMount
	Network        string
	NetworkAliases []string
	RestartPolicy  RestartPolicy
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// VolumeMount mounts a named volume into a container.
type VolumeMount struct {
	Source   string // Volume name
	Target   string // Container path
	ReadOnly bool
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	CreatedAt time.Time
	Ports     []PortBinding
	Labels    map[string]string
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "iotedgehubdev"}
}

// RegistryAuth holds credentials for a container registry.
type RegistryAuth struct {
	Address  string
	Username string
	Password string
}

// FileCopy describes one file to place in a volume through a container
// that mounts it.
type FileCopy struct {
	Container string // container that mounts the volume
	DestDir   string // mount path inside the container
	Name      string // file name inside DestDir
	Data      []byte
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the container engine operations used by the simulator.
type Client interface {
	// Engine
	Ping(ctx context.Context) error
	OSType(ctx context.Context) (string, error)
	Close() error

	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	ContainerStatus(ctx context.Context, name string) (status ContainerStatus, found bool, err error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	StopRemoveByLabel(ctx context.Context, label string) error
	CopyFile(ctx context.Context, file FileCopy) error

	// Network and volume operations
	EnsureNetwork(ctx context.Context, name string) error
	EnsureVolume(ctx context.Context, name string) error

	// Image and registry operations
	PullImage(ctx context.Context, image string, auth *RegistryAuth) (updated bool, err error)
	ImageExists(ctx context.Context, image string) (bool, error)
	RegistryLogin(ctx context.Context, auth RegistryAuth) error
}
