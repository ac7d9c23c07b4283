package compose

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// Version is the orchestration file format version written to every document.
const Version = "3.6"

// =============================================================================
// Document - Root Artifact
// =============================================================================

// Document is a complete orchestration document. Services keep insertion
// order; networks and volumes are emitted with sorted keys.
type Document struct {
	Version  string
	Services *ServiceMap
	Networks map[string]Network
	Volumes  map[string]Volume
}

// NewDocument returns an empty document at the current format version.
func NewDocument() *Document {
	return &Document{
		Version:  Version,
		Services: NewServiceMap(),
		Networks: map[string]Network{},
		Volumes:  map[string]Volume{},
	}
}

// VolumeNames returns the top-level volume names, sorted.
func (d *Document) VolumeNames() []string {
	names := make([]string, 0, len(d.Volumes))
	for name := range d.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceMap is an insertion-ordered map of service name to service.
type ServiceMap struct {
	names    []string
	services map[string]*Service
}

// NewServiceMap creates an empty ServiceMap.
func NewServiceMap() *ServiceMap {
	return &ServiceMap{services: map[string]*Service{}}
}

// Set adds or replaces a service. Replacing keeps the original position.
func (m *ServiceMap) Set(name string, svc *Service) {
	if _, ok := m.services[name]; !ok {
		m.names = append(m.names, name)
	}
	m.services[name] = svc
}

// Get returns the named service.
func (m *ServiceMap) Get(name string) (*Service, bool) {
	svc, ok := m.services[name]
	return svc, ok
}

// Names returns service names in insertion order.
func (m *ServiceMap) Names() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of services.
func (m *ServiceMap) Len() int {
	return len(m.names)
}

// Network is a top-level network entry.
type Network struct {
	External bool   `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// Volume is a top-level volume entry.
type Volume struct {
	External bool   `yaml:"external,omitempty"`
	Name     string `yaml:"name,omitempty"`
}

// =============================================================================
// Service Types
// =============================================================================

// Service is one normalized service definition.
// Fields are declared in key order so the emitted mapping is sorted.
// Pointer scalars distinguish an explicit false/zero from an absent key.
type Service struct {
	CapAdd          []string                      `yaml:"cap_add,omitempty"`
	CapDrop         []string                      `yaml:"cap_drop,omitempty"`
	CgroupParent    string                        `yaml:"cgroup_parent,omitempty"`
	Command         string                        `yaml:"command,omitempty"`
	ContainerName   string                        `yaml:"container_name,omitempty"`
	DependsOn       []string                      `yaml:"depends_on,omitempty"`
	Devices         []string                      `yaml:"devices,omitempty"`
	DNS             []string                      `yaml:"dns,omitempty"`
	DNSSearch       []string                      `yaml:"dns_search,omitempty"`
	Domainname      string                        `yaml:"domainname,omitempty"`
	Entrypoint      *StringOrList                 `yaml:"entrypoint,omitempty"`
	Environment     []string                      `yaml:"environment,omitempty"`
	Expose          []string                      `yaml:"expose,omitempty"`
	ExtraHosts      []string                      `yaml:"extra_hosts,omitempty"`
	Healthcheck     *Healthcheck                  `yaml:"healthcheck,omitempty"`
	Hostname        string                        `yaml:"hostname,omitempty"`
	Image           string                        `yaml:"image,omitempty"`
	Ipc             string                        `yaml:"ipc,omitempty"`
	Isolation       string                        `yaml:"isolation,omitempty"`
	Labels          map[string]string             `yaml:"labels,omitempty"`
	Logging         *Logging                      `yaml:"logging,omitempty"`
	MacAddress      string                        `yaml:"mac_address,omitempty"`
	NetworkMode     string                        `yaml:"network_mode,omitempty"`
	Networks        map[string]*NetworkAttachment `yaml:"networks,omitempty"`
	Pid             string                        `yaml:"pid,omitempty"`
	Ports           []string                      `yaml:"ports,omitempty"`
	Privileged      *bool                         `yaml:"privileged,omitempty"`
	ReadOnly        *bool                         `yaml:"read_only,omitempty"`
	Restart         string                        `yaml:"restart,omitempty"`
	SecurityOpt     []string                      `yaml:"security_opt,omitempty"`
	StopGracePeriod string                        `yaml:"stop_grace_period,omitempty"`
	StopSignal      string                        `yaml:"stop_signal,omitempty"`
	Sysctls         map[string]string             `yaml:"sysctls,omitempty"`
	Tty             *bool                         `yaml:"tty,omitempty"`
	Ulimits         map[string]Ulimit             `yaml:"ulimits,omitempty"`
	User            string                        `yaml:"user,omitempty"`
	UsernsMode      string                        `yaml:"userns_mode,omitempty"`
	Volumes         []MountSpec                   `yaml:"volumes,omitempty"`
	WorkingDir      string                        `yaml:"working_dir,omitempty"`
}

// NetworkAttachment is a service's view of one network. A nil attachment
// is a bare reference and serializes as null.
type NetworkAttachment struct {
	Aliases     []string `yaml:"aliases,omitempty"`
	IPv4Address string   `yaml:"ipv4_address,omitempty"`
	IPv6Address string   `yaml:"ipv6_address,omitempty"`
}

// Healthcheck mirrors the healthcheck block. Durations are already rendered.
type Healthcheck struct {
	Interval    string        `yaml:"interval"`
	Retries     int64         `yaml:"retries"`
	StartPeriod string        `yaml:"start_period"`
	Test        *StringOrList `yaml:"test"`
	Timeout     string        `yaml:"timeout"`
}

// Ulimit is a soft/hard limit pair.
type Ulimit struct {
	Hard int64 `yaml:"hard"`
	Soft int64 `yaml:"soft"`
}

// Logging selects a log driver and its options.
type Logging struct {
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// =============================================================================
// Mount Types
// =============================================================================

// Mount types.
const (
	MountTypeVolume = "volume"
	MountTypeBind   = "bind"
	MountTypeTmpfs  = "tmpfs"
)

// MountSpec is one long-syntax volume entry.
type MountSpec struct {
	Bind     *BindOptions   `yaml:"bind,omitempty"`
	ReadOnly *bool          `yaml:"read_only,omitempty"`
	Source   *string        `yaml:"source,omitempty"`
	Target   string         `yaml:"target"`
	Tmpfs    *TmpfsOptions  `yaml:"tmpfs,omitempty"`
	Type     string         `yaml:"type"`
	Volume   *VolumeOptions `yaml:"volume,omitempty"`
}

// SourceName returns the mount source or "" when there is none.
func (m MountSpec) SourceName() string {
	if m.Source == nil {
		return ""
	}
	return *m.Source
}

// BindOptions are bind-specific mount options.
type BindOptions struct {
	Propagation string `yaml:"propagation"`
}

// VolumeOptions are volume-specific mount options.
type VolumeOptions struct {
	NoCopy bool `yaml:"nocopy"`
}

// TmpfsOptions are tmpfs-specific mount options.
type TmpfsOptions struct {
	Size int64 `yaml:"size"`
}

// =============================================================================
// StringOrList
// =============================================================================

// StringOrList holds a value the format accepts either as a plain string
// or as a list of strings, and emits it in the shape it was given.
type StringOrList struct {
	Value  string
	List   []string
	IsList bool
}

// String returns a scalar StringOrList.
func String(s string) *StringOrList {
	return &StringOrList{Value: s}
}

// List returns a list StringOrList.
func List(items []string) *StringOrList {
	return &StringOrList{List: items, IsList: true}
}

// MarshalYAML implements yaml.Marshaler.
func (s StringOrList) MarshalYAML() (interface{}, error) {
	if s.IsList {
		if s.List == nil {
			return []string{}, nil
		}
		return s.List, nil
	}
	return s.Value, nil
}

var _ yaml.Marshaler = StringOrList{}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}
