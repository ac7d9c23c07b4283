package createoptions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docker/go-connections/nat"

	"github.com/artpar/iotedgehubdev/internal/core/compose"
)

// =============================================================================
// Field Transforms
// =============================================================================

// Each transform takes the raw value found at its create option path and
// returns the value in orchestration document shape.

// Expose converts ExposedPorts ({"22/tcp": {}}) to a sorted list of keys.
func Expose(v interface{}) ([]string, error) {
	obj, err := asObject(v, "ExposedPorts")
	if err != nil {
		return nil, err
	}
	ports := make([]string, 0, len(obj))
	for port := range obj {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	return ports, nil
}

// Command joins a Cmd argv list with spaces. A plain string passes through.
//
// Example:
//
//	Command([]interface{}{"bundle", "exec", "thin", "-p", "3000"})
//	// "bundle exec thin -p 3000"
func Command(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	args, err := asStringList(v, "Cmd")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

// Healthcheck converts a Healthcheck object. All five sub-fields are required.
func Healthcheck(v interface{}) (*compose.Healthcheck, error) {
	const field = "Healthcheck"
	obj, err := asObject(v, field)
	if err != nil {
		return nil, err
	}

	for _, key := range []string{"Test", "Interval", "Timeout", "Retries", "StartPeriod"} {
		if _, ok := obj[key]; !ok {
			return nil, missingKey(field, key)
		}
	}

	test, err := stringOrList(obj["Test"], field+".Test")
	if err != nil {
		return nil, err
	}
	interval, err := millis(obj["Interval"], field+".Interval")
	if err != nil {
		return nil, err
	}
	timeout, err := millis(obj["Timeout"], field+".Timeout")
	if err != nil {
		return nil, err
	}
	retries, err := asInt(obj["Retries"], field+".Retries")
	if err != nil {
		return nil, err
	}
	startPeriod, err := millis(obj["StartPeriod"], field+".StartPeriod")
	if err != nil {
		return nil, err
	}

	return &compose.Healthcheck{
		Test:        test,
		Interval:    interval,
		Timeout:     timeout,
		Retries:     retries,
		StartPeriod: startPeriod,
	}, nil
}

// FormatMillis renders a nanosecond duration as "<n>ms". Values must be 0
// or at least one millisecond.
//
// Example:
//
//	FormatMillis(1000000)   // "1ms"
//	FormatMillis(999999)    // error
func FormatMillis(ns int64) (string, error) {
	if ns != 0 && ns < 1000000 {
		return "", fmt.Errorf("the time should be 0 or at least 1000000 (1 ms), got %d", ns)
	}
	return fmt.Sprintf("%dms", ns/1000000), nil
}

func millis(v interface{}, field string) (string, error) {
	ns, err := asInt(v, field)
	if err != nil {
		return "", err
	}
	out, err := FormatMillis(ns)
	if err != nil {
		return "", invalidValue(field, err.Error())
	}
	return out, nil
}

// StopTimeout converts seconds to a "<n>s" grace period.
func StopTimeout(v interface{}) (string, error) {
	secs, err := asInt(v, "StopTimeout")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%ds", secs), nil
}

// Devices converts HostConfig.Devices to "host:container:perms" strings.
func Devices(v interface{}) ([]string, error) {
	const field = "HostConfig.Devices"
	list, err := asList(v, field)
	if err != nil {
		return nil, err
	}
	devices := make([]string, 0, len(list))
	for _, item := range list {
		obj, err := asObject(item, field)
		if err != nil {
			return nil, err
		}
		parts := make([]string, 0, 3)
		for _, key := range []string{"PathOnHost", "PathInContainer", "CgroupPermissions"} {
			raw, err := requireKey(obj, key, field)
			if err != nil {
				return nil, err
			}
			s, err := asString(raw, field+"."+key)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		devices = append(devices, strings.Join(parts, ":"))
	}
	return devices, nil
}

// RestartPolicy converts HostConfig.RestartPolicy to a restart string.
//
//	{Name: ""}                                  -> "no"
//	{Name: "always"}                            -> "always"
//	{Name: "unless-stopped"}                    -> "unless-stopped"
//	{Name: "on-failure", MaximumRetryCount: 5}  -> "on-failure:5"
func RestartPolicy(v interface{}) (string, error) {
	const field = "HostConfig.RestartPolicy"
	obj, err := asObject(v, field)
	if err != nil {
		return "", err
	}
	rawName, err := requireKey(obj, "Name", field)
	if err != nil {
		return "", err
	}
	name, err := asString(rawName, field+".Name")
	if err != nil {
		return "", err
	}

	switch name {
	case "":
		return "no", nil
	case "always", "unless-stopped":
		return name, nil
	case "on-failure":
		raw, err := requireKey(obj, "MaximumRetryCount", field)
		if err != nil {
			return "", err
		}
		count, err := asInt(raw, field+".MaximumRetryCount")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("on-failure:%d", count), nil
	default:
		return "", invalidValue(field, fmt.Sprintf("RestartPolicy Name should be one of '', 'always', 'unless-stopped', 'on-failure', got %q", name))
	}
}

// Ulimits converts a list of {Name, Soft, Hard} to a map keyed by Name.
func Ulimits(v interface{}) (map[string]compose.Ulimit, error) {
	const field = "HostConfig.Ulimits"
	list, err := asList(v, field)
	if err != nil {
		return nil, err
	}
	out := make(map[string]compose.Ulimit, len(list))
	for _, item := range list {
		obj, err := asObject(item, field)
		if err != nil {
			return nil, err
		}
		rawName, err := requireKey(obj, "Name", field)
		if err != nil {
			return nil, err
		}
		rawSoft, err := requireKey(obj, "Soft", field)
		if err != nil {
			return nil, err
		}
		rawHard, err := requireKey(obj, "Hard", field)
		if err != nil {
			return nil, err
		}
		name, err := asString(rawName, field+".Name")
		if err != nil {
			return nil, err
		}
		soft, err := asInt(rawSoft, field+".Soft")
		if err != nil {
			return nil, err
		}
		hard, err := asInt(rawHard, field+".Hard")
		if err != nil {
			return nil, err
		}
		out[name] = compose.Ulimit{Soft: soft, Hard: hard}
	}
	return out, nil
}

// Logging converts HostConfig.LogConfig {Type, Config} to {driver, options}.
func Logging(v interface{}) (*compose.Logging, error) {
	const field = "HostConfig.LogConfig"
	obj, err := asObject(v, field)
	if err != nil {
		return nil, err
	}
	rawType, err := requireKey(obj, "Type", field)
	if err != nil {
		return nil, err
	}
	rawConfig, err := requireKey(obj, "Config", field)
	if err != nil {
		return nil, err
	}
	driver, err := asString(rawType, field+".Type")
	if err != nil {
		return nil, err
	}
	options, err := asStringMap(rawConfig, field+".Config")
	if err != nil {
		return nil, err
	}
	return &compose.Logging{Driver: driver, Options: options}, nil
}

// Ports flattens HostConfig.PortBindings into "[ip:][port:]container/proto"
// strings, ordered by container port key and then binding order.
// Empty HostIp or HostPort values count as absent, except that an IP with a
// present but empty HostPort keeps the empty port segment ("ip::container").
func Ports(v interface{}) ([]string, error) {
	const field = "HostConfig.PortBindings"
	obj, err := asObject(v, field)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var ports []string
	for _, containerPort := range keys {
		_, port := nat.SplitProtoPort(containerPort)
		if _, _, err := nat.ParsePortRange(port); err != nil {
			return nil, invalidValue(field, fmt.Sprintf("invalid container port %q", containerPort))
		}

		raw, ok := get(obj, containerPort)
		if !ok {
			continue
		}
		bindings, err := asList(raw, field+"."+containerPort)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			binding, err := asObject(b, field+"."+containerPort)
			if err != nil {
				return nil, err
			}
			hostIP, err := optionalHostValue(binding, "HostIp", field)
			if err != nil {
				return nil, err
			}
			hostPort, err := optionalHostValue(binding, "HostPort", field)
			if err != nil {
				return nil, err
			}

			_, hasPort := get(binding, "HostPort")

			var segments []string
			if hostIP != "" {
				segments = append(segments, hostIP)
			}
			if hostPort != "" || (hostIP != "" && hasPort) {
				segments = append(segments, hostPort)
			}
			segments = append(segments, containerPort)
			ports = append(ports, strings.Join(segments, ":"))
		}
	}
	return ports, nil
}

// optionalHostValue reads HostIp or HostPort. Ports may arrive as numbers.
func optionalHostValue(binding map[string]interface{}, key, field string) (string, error) {
	raw, ok := get(binding, key)
	if !ok {
		return "", nil
	}
	switch t := raw.(type) {
	case string:
		return t, nil
	case int64:
		return fmt.Sprintf("%d", t), nil
	default:
		return "", invalidType(field+"."+key, "a string")
	}
}

// Networks converts NetworkingConfig.EndpointsConfig. Sub-keys are only
// set when present in the source.
func Networks(v interface{}) (map[string]*compose.NetworkAttachment, error) {
	const field = "NetworkingConfig.EndpointsConfig"
	obj, err := asObject(v, field)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*compose.NetworkAttachment, len(obj))
	for name, raw := range obj {
		attachment := &compose.NetworkAttachment{}
		out[name] = attachment
		if raw == nil {
			continue
		}
		cfg, err := asObject(raw, field+"."+name)
		if err != nil {
			return nil, err
		}
		if rawAliases, ok := get(cfg, "Aliases"); ok {
			aliases, err := asStringList(rawAliases, field+"."+name+".Aliases")
			if err != nil {
				return nil, err
			}
			attachment.Aliases = aliases
		}
		rawIPAM, ok := get(cfg, "IPAMConfig")
		if !ok {
			continue
		}
		ipam, err := asObject(rawIPAM, field+"."+name+".IPAMConfig")
		if err != nil {
			return nil, err
		}
		if raw, ok := get(ipam, "IPv4Address"); ok {
			if attachment.IPv4Address, err = asString(raw, field+"."+name+".IPAMConfig.IPv4Address"); err != nil {
				return nil, err
			}
		}
		if raw, ok := get(ipam, "IPv6Address"); ok {
			if attachment.IPv6Address, err = asString(raw, field+"."+name+".IPAMConfig.IPv6Address"); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func stringOrList(v interface{}, field string) (*compose.StringOrList, error) {
	if s, ok := v.(string); ok {
		return compose.String(s), nil
	}
	list, err := asStringList(v, field)
	if err != nil {
		return nil, invalidType(field, "a string or a list of strings")
	}
	return compose.List(list), nil
}
