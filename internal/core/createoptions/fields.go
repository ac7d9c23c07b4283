// Package createoptions maps container create options, as carried in a
// deployment manifest, onto orchestration service definitions.
// This is part of the Functional Core - all functions are pure with no I/O.
package createoptions

import (
	"errors"
	"strings"

	"github.com/artpar/iotedgehubdev/internal/core/compose"
)

// =============================================================================
// Field Registry
// =============================================================================

// Source is one create option path read by a field.
type Source struct {
	Name string   // create option key, e.g. "PortBindings"
	Path []string // path from the document root
}

// Values holds the values found for a field, keyed by Source.Name.
// Absent and null sources are left out.
type Values map[string]interface{}

// Field binds one compose key to the create option paths it reads and the
// transform that writes it into a service.
type Field struct {
	Key     string
	Sources []Source
	apply   func(Values, *compose.Service) error
}

// single builds a field fed by exactly one path.
func single(key string, path []string, apply func(v interface{}, svc *compose.Service) error) Field {
	name := path[len(path)-1]
	return Field{
		Key:     key,
		Sources: []Source{{Name: name, Path: path}},
		apply: func(vals Values, svc *compose.Service) error {
			return apply(vals[name], svc)
		},
	}
}

func stringField(key string, path []string, set func(*compose.Service, string)) Field {
	field := strings.Join(path, ".")
	return single(key, path, func(v interface{}, svc *compose.Service) error {
		s, err := asString(v, field)
		if err != nil {
			return err
		}
		set(svc, s)
		return nil
	})
}

func boolField(key string, path []string, set func(*compose.Service, *bool)) Field {
	field := strings.Join(path, ".")
	return single(key, path, func(v interface{}, svc *compose.Service) error {
		b, err := asBool(v, field)
		if err != nil {
			return err
		}
		set(svc, compose.Bool(b))
		return nil
	})
}

func stringListField(key string, path []string, set func(*compose.Service, []string)) Field {
	field := strings.Join(path, ".")
	return single(key, path, func(v interface{}, svc *compose.Service) error {
		list, err := asStringList(v, field)
		if err != nil {
			return err
		}
		set(svc, list)
		return nil
	})
}

func stringMapField(key string, path []string, set func(*compose.Service, map[string]string)) Field {
	field := strings.Join(path, ".")
	return single(key, path, func(v interface{}, svc *compose.Service) error {
		m, err := asStringMap(v, field)
		if err != nil {
			return err
		}
		set(svc, m)
		return nil
	})
}

func hostConfig(key string) []string {
	return []string{"HostConfig", key}
}

// registry is the fixed set of supported fields. Every compose key appears once.
var registry = []Field{
	stringField("hostname", []string{"Hostname"}, func(s *compose.Service, v string) { s.Hostname = v }),
	stringField("domainname", []string{"Domainname"}, func(s *compose.Service, v string) { s.Domainname = v }),
	stringField("user", []string{"User"}, func(s *compose.Service, v string) { s.User = v }),
	single("expose", []string{"ExposedPorts"}, func(v interface{}, s *compose.Service) error {
		ports, err := Expose(v)
		s.Expose = ports
		return err
	}),
	boolField("tty", []string{"Tty"}, func(s *compose.Service, v *bool) { s.Tty = v }),
	stringListField("environment", []string{"Env"}, func(s *compose.Service, v []string) { s.Environment = v }),
	single("command", []string{"Cmd"}, func(v interface{}, s *compose.Service) error {
		cmd, err := Command(v)
		s.Command = cmd
		return err
	}),
	single("healthcheck", []string{"Healthcheck"}, func(v interface{}, s *compose.Service) error {
		hc, err := Healthcheck(v)
		s.Healthcheck = hc
		return err
	}),
	stringField("image", []string{"Image"}, func(s *compose.Service, v string) { s.Image = v }),
	stringField("working_dir", []string{"WorkingDir"}, func(s *compose.Service, v string) { s.WorkingDir = v }),
	single("entrypoint", []string{"Entrypoint"}, func(v interface{}, s *compose.Service) error {
		ep, err := stringOrList(v, "Entrypoint")
		s.Entrypoint = ep
		return err
	}),
	stringField("mac_address", []string{"MacAddress"}, func(s *compose.Service, v string) { s.MacAddress = v }),
	stringMapField("labels", []string{"Labels"}, func(s *compose.Service, v map[string]string) { s.Labels = v }),
	stringField("stop_signal", []string{"StopSignal"}, func(s *compose.Service, v string) { s.StopSignal = v }),
	single("stop_grace_period", []string{"StopTimeout"}, func(v interface{}, s *compose.Service) error {
		period, err := StopTimeout(v)
		s.StopGracePeriod = period
		return err
	}),

	// HostConfig
	single("ports", hostConfig("PortBindings"), func(v interface{}, s *compose.Service) error {
		ports, err := Ports(v)
		s.Ports = ports
		return err
	}),
	boolField("privileged", hostConfig("Privileged"), func(s *compose.Service, v *bool) { s.Privileged = v }),
	stringField("network_mode", hostConfig("NetworkMode"), func(s *compose.Service, v string) { s.NetworkMode = v }),
	single("devices", hostConfig("Devices"), func(v interface{}, s *compose.Service) error {
		devices, err := Devices(v)
		s.Devices = devices
		return err
	}),
	stringListField("dns", hostConfig("Dns"), func(s *compose.Service, v []string) { s.DNS = v }),
	stringListField("dns_search", hostConfig("DnsSearch"), func(s *compose.Service, v []string) { s.DNSSearch = v }),
	single("restart", hostConfig("RestartPolicy"), func(v interface{}, s *compose.Service) error {
		restart, err := RestartPolicy(v)
		s.Restart = restart
		return err
	}),
	stringListField("cap_add", hostConfig("CapAdd"), func(s *compose.Service, v []string) { s.CapAdd = v }),
	stringListField("cap_drop", hostConfig("CapDrop"), func(s *compose.Service, v []string) { s.CapDrop = v }),
	single("ulimits", hostConfig("Ulimits"), func(v interface{}, s *compose.Service) error {
		ulimits, err := Ulimits(v)
		s.Ulimits = ulimits
		return err
	}),
	single("logging", hostConfig("LogConfig"), func(v interface{}, s *compose.Service) error {
		logging, err := Logging(v)
		s.Logging = logging
		return err
	}),
	stringListField("extra_hosts", hostConfig("ExtraHosts"), func(s *compose.Service, v []string) { s.ExtraHosts = v }),
	boolField("read_only", hostConfig("ReadonlyRootfs"), func(s *compose.Service, v *bool) { s.ReadOnly = v }),
	stringField("pid", hostConfig("PidMode"), func(s *compose.Service, v string) { s.Pid = v }),
	stringListField("security_opt", hostConfig("SecurityOpt"), func(s *compose.Service, v []string) { s.SecurityOpt = v }),
	stringField("ipc", hostConfig("IpcMode"), func(s *compose.Service, v string) { s.Ipc = v }),
	stringField("cgroup_parent", hostConfig("CgroupParent"), func(s *compose.Service, v string) { s.CgroupParent = v }),
	stringMapField("sysctls", hostConfig("Sysctls"), func(s *compose.Service, v map[string]string) { s.Sysctls = v }),
	stringField("userns_mode", hostConfig("UsernsMode"), func(s *compose.Service, v string) { s.UsernsMode = v }),
	stringField("isolation", hostConfig("Isolation"), func(s *compose.Service, v string) { s.Isolation = v }),

	// Volumes
	{
		Key: "volumes",
		Sources: []Source{
			{Name: "Mounts", Path: hostConfig("Mounts")},
			{Name: "Binds", Path: hostConfig("Binds")},
		},
		apply: func(vals Values, s *compose.Service) error {
			volumes, err := Volumes(vals["Mounts"], vals["Binds"])
			s.Volumes = volumes
			return err
		},
	},

	// NetworkingConfig
	single("networks", []string{"NetworkingConfig", "EndpointsConfig"}, func(v interface{}, s *compose.Service) error {
		networks, err := Networks(v)
		s.Networks = networks
		return err
	}),
}

// Fields returns the supported fields in mapping order.
func Fields() []Field {
	return append([]Field(nil), registry...)
}

// Extract collects the values present for f in doc.
func (f Field) Extract(doc Document) Values {
	vals := Values{}
	for _, src := range f.Sources {
		if v, ok := doc.Lookup(src.Path...); ok {
			vals[src.Name] = v
		}
	}
	return vals
}

// =============================================================================
// Mapping
// =============================================================================

// Map runs every field over doc and returns the resulting service.
// Fields with no value in doc are left unset. The first transform error
// aborts mapping and is returned as an *OptionError carrying the key.
func Map(doc Document) (*compose.Service, error) {
	svc := &compose.Service{}
	for _, f := range registry {
		vals := f.Extract(doc)
		if len(vals) == 0 {
			continue
		}
		if err := f.apply(vals, svc); err != nil {
			var oe *OptionError
			if errors.As(err, &oe) {
				oe.Key = f.Key
				return nil, oe
			}
			return nil, &OptionError{Key: f.Key, Message: err.Error(), Err: err}
		}
	}
	return svc, nil
}

// MapString parses s as create options and maps it.
func MapString(s string) (*compose.Service, error) {
	doc, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return Map(doc)
}
