package createoptions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/artpar/iotedgehubdev/internal/core/compose"
)

// =============================================================================
// Bind Grammar
// =============================================================================

// Binds are "[source:]destination[:mode]". Windows paths contain colons,
// so the drive-letter grammar and the absolute-destination grammar are
// tried before a plain colon split.
const (
	hostDirPattern = `(?:\\\\\?\\)?[a-zA-Z]:[\\/](?:[^\\/:*?"<>|\r\n]+[\\/]?)*`
	namePattern    = `[^\\/:*?"<>|\r\n]+`
	pipePattern    = `[/\\]{2}.[/\\]pipe[/\\][^:*?"<>|\r\n]+`

	sourcePattern = `((?P<source>((` + hostDirPattern + `)|(` + namePattern + `)|(` + pipePattern + `))):)?`
	modePattern   = `(:(?P<mode>ro|rw))?`

	winDestinationPattern  = `(?P<destination>((?:\\\\\?\\)?([a-zA-Z]):((?:[\\/][^\\/:*?"<>\r\n]+)*[\\/]?))|(` + pipePattern + `))`
	lcowDestinationPattern = `(?P<destination>/(?:[^\\/:*?"<>\r\n]+[/]?)*)`
)

var (
	winBindRegex  = regexp.MustCompile(`(?i)^` + sourcePattern + winDestinationPattern + modePattern + `$`)
	lcowBindRegex = regexp.MustCompile(`(?i)^` + sourcePattern + lcowDestinationPattern + modePattern + `$`)
)

// ParseBind parses one legacy bind string.
//
// The mount is a bind when the source is an absolute path and a volume
// otherwise, including when the source is omitted.
//
// Example:
//
//	ParseBind("tmp:/tmp/tmp:ro")
//	// {type: volume, source: tmp, target: /tmp/tmp, read_only: true}
//	ParseBind("/abs/tmp:/tmp/tmp")
//	// {type: bind, source: /abs/tmp, target: /tmp/tmp}
func ParseBind(bind string) (compose.MountSpec, error) {
	source, target, readOnly, ok := matchBind(bind)
	if !ok || target == "" {
		return compose.MountSpec{}, invalidValue("HostConfig.Binds", fmt.Sprintf("Invalid create option Binds: %s", bind))
	}

	mount := compose.MountSpec{
		Type:   compose.MountTypeVolume,
		Source: compose.Str(source),
		Target: target,
	}
	if source != "" && IsAbs(source) {
		mount.Type = compose.MountTypeBind
	}
	if readOnly {
		mount.ReadOnly = compose.Bool(true)
	}
	return mount, nil
}

func matchBind(bind string) (source, target string, readOnly, ok bool) {
	for _, re := range []*regexp.Regexp{winBindRegex, lcowBindRegex} {
		m := re.FindStringSubmatch(bind)
		if m == nil {
			continue
		}
		source = m[re.SubexpIndex("source")]
		target = m[re.SubexpIndex("destination")]
		readOnly = strings.EqualFold(m[re.SubexpIndex("mode")], "ro")
		return source, target, readOnly, true
	}

	parts := strings.Split(bind, ":")
	if len(parts) == 2 || (len(parts) == 3 && (parts[2] == "ro" || parts[2] == "rw" || parts[2] == "")) {
		if parts[0] != "" {
			return parts[0], parts[1], len(parts) == 3 && parts[2] == "ro", true
		}
	}
	return "", "", false, false
}

// IsAbs reports whether p is absolute on either a POSIX or a Windows host:
// a leading slash or backslash, or a drive letter followed by a separator.
func IsAbs(p string) bool {
	if p == "" {
		return false
	}
	if p[0] == '/' || p[0] == '\\' {
		return true
	}
	if len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/') {
		return true
	}
	return false
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// =============================================================================
// Structured Mounts
// =============================================================================

// ParseMount converts one HostConfig.Mounts entry.
func ParseMount(v interface{}) (compose.MountSpec, error) {
	const field = "HostConfig.Mounts"
	obj, err := asObject(v, field)
	if err != nil {
		return compose.MountSpec{}, err
	}

	rawTarget, err := requireKey(obj, "Target", field)
	if err != nil {
		return compose.MountSpec{}, err
	}
	rawType, err := requireKey(obj, "Type", field)
	if err != nil {
		return compose.MountSpec{}, err
	}
	target, err := asString(rawTarget, field+".Target")
	if err != nil {
		return compose.MountSpec{}, err
	}
	mountType, err := asString(rawType, field+".Type")
	if err != nil {
		return compose.MountSpec{}, err
	}

	mount := compose.MountSpec{Type: mountType, Target: target}

	switch mountType {
	case compose.MountTypeVolume, compose.MountTypeBind:
		rawSource, err := requireKey(obj, "Source", field)
		if err != nil {
			return compose.MountSpec{}, err
		}
		source, err := asString(rawSource, field+".Source")
		if err != nil {
			return compose.MountSpec{}, err
		}
		mount.Source = compose.Str(source)
	case compose.MountTypeTmpfs:
	default:
		return compose.MountSpec{}, invalidValue(field+".Type", fmt.Sprintf("mount Type should be one of 'volume', 'bind', 'tmpfs', got %q", mountType))
	}

	if raw, ok := get(obj, "ReadOnly"); ok {
		readOnly, err := asBool(raw, field+".ReadOnly")
		if err != nil {
			return compose.MountSpec{}, err
		}
		mount.ReadOnly = compose.Bool(readOnly)
	}

	switch mountType {
	case compose.MountTypeVolume:
		if opts, ok, err := subOption(obj, "VolumeOptions", "NoCopy", field); err != nil {
			return compose.MountSpec{}, err
		} else if ok {
			noCopy, err := asBool(opts, field+".VolumeOptions.NoCopy")
			if err != nil {
				return compose.MountSpec{}, err
			}
			mount.Volume = &compose.VolumeOptions{NoCopy: noCopy}
		}
	case compose.MountTypeBind:
		if opts, ok, err := subOption(obj, "BindOptions", "Propagation", field); err != nil {
			return compose.MountSpec{}, err
		} else if ok {
			propagation, err := asString(opts, field+".BindOptions.Propagation")
			if err != nil {
				return compose.MountSpec{}, err
			}
			mount.Bind = &compose.BindOptions{Propagation: propagation}
		}
	case compose.MountTypeTmpfs:
		if opts, ok, err := subOption(obj, "TmpfsOptions", "SizeBytes", field); err != nil {
			return compose.MountSpec{}, err
		} else if ok {
			size, err := asInt(opts, field+".TmpfsOptions.SizeBytes")
			if err != nil {
				return compose.MountSpec{}, err
			}
			mount.Tmpfs = &compose.TmpfsOptions{Size: size}
		}
	}

	return mount, nil
}

// subOption returns obj[group][key] when both levels are present.
func subOption(obj map[string]interface{}, group, key, field string) (interface{}, bool, error) {
	raw, ok := get(obj, group)
	if !ok {
		return nil, false, nil
	}
	opts, err := asObject(raw, field+"."+group)
	if err != nil {
		return nil, false, err
	}
	v, ok := get(opts, key)
	return v, ok, nil
}

// Volumes merges HostConfig.Mounts and HostConfig.Binds, mounts first.
// Either argument may be nil when its source is absent.
func Volumes(mounts, binds interface{}) ([]compose.MountSpec, error) {
	var out []compose.MountSpec

	if mounts != nil {
		list, err := asList(mounts, "HostConfig.Mounts")
		if err != nil {
			return nil, err
		}
		for _, item := range list {
			mount, err := ParseMount(item)
			if err != nil {
				return nil, err
			}
			out = append(out, mount)
		}
	}

	if binds != nil {
		list, err := asStringList(binds, "HostConfig.Binds")
		if err != nil {
			return nil, err
		}
		for _, bind := range list {
			mount, err := ParseBind(bind)
			if err != nil {
				return nil, err
			}
			out = append(out, mount)
		}
	}

	return out, nil
}
