package deployment

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/iotedgehubdev/internal/core/compose"
	"github.com/artpar/iotedgehubdev/internal/core/createoptions"
)

// =============================================================================
// Composer
// =============================================================================

// Composer turns a deployment manifest into a compose document for a
// fixed topology.
type Composer struct {
	topology Topology
	logger   *slog.Logger
}

// NewComposer creates a composer for topology.
func NewComposer(topology Topology, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if topology.RestartPolicies == nil {
		topology.RestartPolicies = DefaultRestartPolicies()
	}
	return &Composer{topology: topology, logger: logger}
}

// Compose builds the document for m. The hub comes first, then the
// custom modules in manifest order. Any module failure aborts
// composition with a *ModuleError.
func (c *Composer) Compose(m *Manifest) (*compose.Document, error) {
	doc := compose.NewDocument()

	hub, err := c.service(m.Hub, c.topology.HubName)
	if err != nil {
		return nil, err
	}
	if err := c.configHub(hub, m.Routes); err != nil {
		return nil, moduleError(m.Hub.Name, err)
	}
	doc.Services.Set(c.topology.HubName, hub)

	for _, mod := range m.Modules {
		svc, err := c.service(mod, mod.Name)
		if err != nil {
			return nil, err
		}
		if err := c.configModule(svc, mod.Name); err != nil {
			return nil, moduleError(mod.Name, err)
		}
		doc.Services.Set(mod.Name, svc)
	}

	for _, name := range doc.Services.Names() {
		svc, _ := doc.Services.Get(name)
		collectShared(doc, svc)
	}

	c.logger.Debug("composed deployment",
		"services", doc.Services.Len(),
		"networks", len(doc.Networks),
		"volumes", len(doc.Volumes),
	)
	return doc, nil
}

// service maps mod's create options and overlays what every module gets.
func (c *Composer) service(mod Module, name string) (*compose.Service, error) {
	svc, err := createoptions.MapString(mod.CreateOptions)
	if err != nil {
		return nil, moduleError(mod.Name, fmt.Errorf("%w: %w", ErrInvalidCreateOptions, err))
	}

	svc.Image = mod.Image
	svc.ContainerName = name

	if svc.Networks == nil {
		svc.Networks = map[string]*compose.NetworkAttachment{}
	}
	svc.Networks[c.topology.NetworkName] = nil

	if svc.Labels == nil {
		svc.Labels = map[string]string{}
	}
	svc.Labels[c.topology.Label] = ""

	restart, ok := c.topology.RestartPolicies[mod.RestartPolicy]
	if !ok {
		return nil, moduleError(mod.Name, fmt.Errorf("%w %q in solution mode", ErrUnsupportedRestartPolicy, mod.RestartPolicy))
	}
	svc.Restart = restart

	if len(mod.Env) > 0 {
		svc.Environment = MergeEnv(svc.Environment, mod.Env)
	}

	c.logger.Debug("mapped module", "module", mod.Name, "image", mod.Image, "container_name", name)
	return svc, nil
}

func (c *Composer) configHub(svc *compose.Service, routes []Route) error {
	conn, ok := c.topology.ConnectionStrings[c.topology.HubModuleID]
	if !ok {
		return fmt.Errorf("%w for %s", ErrMissingConnectionString, c.topology.HubModuleID)
	}

	svc.Volumes = append(svc.Volumes, compose.MountSpec{
		Type:   compose.MountTypeVolume,
		Source: compose.Str(c.topology.HubVolume),
		Target: c.topology.HubMount,
	})

	svc.Networks[c.topology.NetworkName] = &compose.NetworkAttachment{
		Aliases: []string{c.topology.GatewayAlias},
	}

	for _, r := range routes {
		svc.Environment = append(svc.Environment, RouteEnv(r.Name, r.Rule))
	}
	svc.Environment = append(svc.Environment, HubConnectionEnv(conn))
	svc.Environment = append(svc.Environment, c.topology.HubEnv...)
	return nil
}

func (c *Composer) configModule(svc *compose.Service, name string) error {
	conn, ok := c.topology.ConnectionStrings[name]
	if !ok {
		return fmt.Errorf("%w for %s", ErrMissingConnectionString, name)
	}

	svc.Volumes = append(svc.Volumes, compose.MountSpec{
		Type:   compose.MountTypeVolume,
		Source: compose.Str(c.topology.ModuleVolume),
		Target: c.topology.ModuleMount,
	})

	svc.Environment = append(svc.Environment, c.topology.ModuleEnv...)
	svc.Environment = append(svc.Environment, ModuleConnectionEnv(conn))

	svc.DependsOn = append(svc.DependsOn, c.topology.HubName)
	return nil
}

// collectShared declares every network and named volume svc uses. Both are
// external: the simulator creates them before compose runs.
func collectShared(doc *compose.Document, svc *compose.Service) {
	for nw := range svc.Networks {
		doc.Networks[nw] = compose.Network{External: true}
	}
	for _, v := range svc.Volumes {
		if v.Type != compose.MountTypeVolume || v.SourceName() == "" {
			continue
		}
		doc.Volumes[v.SourceName()] = compose.Volume{External: true, Name: v.SourceName()}
	}
}

// =============================================================================
// Environment
// =============================================================================

// MergeEnv overlays vars on a KEY=VALUE list. Existing keys keep their
// position, new keys are appended, and a var without a value yields "KEY=".
// Entries without "=" are read as an empty value.
func MergeEnv(env []string, vars []EnvVar) []string {
	var order []string
	values := map[string]string{}
	set := func(k, v string) {
		if _, seen := values[k]; !seen {
			order = append(order, k)
		}
		values[k] = v
	}

	for _, e := range env {
		k, v, _ := strings.Cut(e, "=")
		set(k, v)
	}
	for _, ev := range vars {
		set(ev.Name, ev.Value)
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+values[k])
	}
	return out
}
