package deployment

import (
	"fmt"

	"github.com/artpar/iotedgehubdev/internal/core/createoptions"
)

// =============================================================================
// Manifest Types
// =============================================================================

// Manifest is the part of a deployment manifest the simulator consumes.
type Manifest struct {
	Hub                 Module
	Modules             []Module
	Routes              []Route
	RegistryCredentials []RegistryCredential
}

// Module is one deployable container from the manifest.
type Module struct {
	Name          string
	Image         string
	CreateOptions string // reassembled from chunks
	RestartPolicy string
	Env           []EnvVar
}

// EnvVar is one entry of a module's env section.
// HasValue is false when the entry carries no value key.
type EnvVar struct {
	Name     string
	Value    string
	HasValue bool
}

// Route is one named message route of the hub.
type Route struct {
	Name string
	Rule string
}

// RegistryCredential is one container registry login.
type RegistryCredential struct {
	Name     string
	Address  string
	Username string
	Password string
}

// =============================================================================
// Parsing
// =============================================================================

// ParseManifest reads a deployment manifest. Module, route and credential
// order follows the JSON text.
func ParseManifest(data []byte) (*Manifest, error) {
	root, err := decodeObject("", data)
	if err != nil {
		return nil, err
	}

	content, err := root.optionalChild("modulesContent")
	if err != nil {
		return nil, err
	}
	if content == nil {
		if _, ok := root.raw("moduleContent"); !ok {
			return nil, fmt.Errorf("%w: modulesContent", ErrMissingSection)
		}
		if content, err = root.child("moduleContent"); err != nil {
			return nil, err
		}
	}

	agent, err := content.walk("$edgeAgent", "properties.desired")
	if err != nil {
		return nil, err
	}

	m := &Manifest{}

	hub, err := agent.walk("systemModules", "edgeHub")
	if err != nil {
		return nil, err
	}
	if m.Hub, err = parseModule(EdgeHubModule, hub); err != nil {
		return nil, err
	}

	modules, err := agent.optionalChild("modules")
	if err != nil {
		return nil, err
	}
	if modules != nil {
		for _, name := range modules.keys {
			cfg, err := modules.child(name)
			if err != nil {
				return nil, err
			}
			mod, err := parseModule(name, cfg)
			if err != nil {
				return nil, err
			}
			m.Modules = append(m.Modules, mod)
		}
	}

	if m.RegistryCredentials, err = parseRegistryCredentials(agent); err != nil {
		return nil, err
	}

	hubDesired, err := content.walk("$edgeHub", "properties.desired")
	if err != nil {
		return nil, err
	}
	if m.Routes, err = parseRoutes(hubDesired); err != nil {
		return nil, err
	}

	return m, nil
}

func parseModule(name string, cfg *object) (Module, error) {
	mod := Module{Name: name}

	settings, err := cfg.child("settings")
	if err != nil {
		return mod, err
	}

	image, ok, err := settings.text("image")
	if err != nil {
		return mod, err
	}
	if !ok {
		return mod, fmt.Errorf("%w: %s", ErrMissingSection, settings.childPath("image"))
	}
	mod.Image = image

	// createOptions may be inline JSON; every other chunk is a string.
	chunks := map[string]string{}
	for _, key := range settings.keys {
		s, ok, err := settings.text(key)
		if err != nil {
			return mod, err
		}
		if ok {
			chunks[key] = s
		}
	}
	mod.CreateOptions = createoptions.JoinChunks(chunks)

	if mod.RestartPolicy, _, err = cfg.text("restartPolicy"); err != nil {
		return mod, err
	}

	env, err := cfg.optionalChild("env")
	if err != nil {
		return mod, err
	}
	if env != nil {
		for _, key := range env.keys {
			entry, err := env.child(key)
			if err != nil {
				return mod, err
			}
			value, has, err := entry.text("value")
			if err != nil {
				return mod, err
			}
			mod.Env = append(mod.Env, EnvVar{Name: key, Value: value, HasValue: has})
		}
	}

	return mod, nil
}

func parseRoutes(hubDesired *object) ([]Route, error) {
	routes, err := hubDesired.optionalChild("routes")
	if err != nil || routes == nil {
		return nil, err
	}

	var out []Route
	for _, name := range routes.keys {
		raw, ok := routes.raw(name)
		if !ok {
			continue
		}
		if raw[0] == '{' {
			obj, err := routes.child(name)
			if err != nil {
				return nil, err
			}
			rule, ok, err := obj.text("route")
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMissingSection, obj.childPath("route"))
			}
			out = append(out, Route{Name: name, Rule: rule})
			continue
		}
		rule, _, err := routes.text(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Route{Name: name, Rule: rule})
	}
	return out, nil
}

func parseRegistryCredentials(agent *object) ([]RegistryCredential, error) {
	runtime, err := agent.optionalChild("runtime")
	if err != nil || runtime == nil {
		return nil, err
	}
	settings, err := runtime.optionalChild("settings")
	if err != nil || settings == nil {
		return nil, err
	}
	creds, err := settings.optionalChild("registryCredentials")
	if err != nil || creds == nil {
		return nil, err
	}

	var out []RegistryCredential
	for _, name := range creds.keys {
		entry, err := creds.child(name)
		if err != nil {
			return nil, err
		}
		cred := RegistryCredential{Name: name}
		for key, dst := range map[string]*string{
			"address":  &cred.Address,
			"username": &cred.Username,
			"password": &cred.Password,
		} {
			if *dst, _, err = entry.text(key); err != nil {
				return nil, err
			}
		}
		out = append(out, cred)
	}
	return out, nil
}
