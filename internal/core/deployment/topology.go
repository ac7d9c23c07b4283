package deployment

// =============================================================================
// Simulator Constants
// =============================================================================

const (
	// EdgeHubModule is the module identity of the hub.
	EdgeHubModule = "$edgeHub"
	// EdgeHubService is the service and container name of the hub.
	EdgeHubService = "edgeHubDev"
	// Label marks every container the simulator manages.
	Label = "iotedgehubdev"
	// NetworkName is the shared network every module joins.
	NetworkName = "azure-iot-edge-dev"
	// HubVolume holds the hub certificates.
	HubVolume = "edgehubdev"
	// ModuleVolume holds the device CA for modules.
	ModuleVolume = "edgemoduledev"

	HubImage         = "mcr.microsoft.com/azureiotedge-hub:1.0"
	TestUtilityImage = "mcr.microsoft.com/azureiotedge-testing-utility:1.0.0-rc1"

	// InputModule is the test utility container of single module mode.
	InputModule = "input"
	// TargetModule is the module under test in single module mode.
	TargetModule = "target"
)

// =============================================================================
// Topology
// =============================================================================

// Topology is the runtime context injected into composition.
type Topology struct {
	HubName      string
	HubModuleID  string
	NetworkName  string
	GatewayAlias string

	HubVolume    string
	HubMount     string
	ModuleVolume string
	ModuleMount  string

	Label     string
	HubEnv    []string
	ModuleEnv []string

	// ConnectionStrings is keyed by module identity; the hub is under HubModuleID.
	ConnectionStrings map[string]string

	// RestartPolicies translates manifest restart policies to compose values.
	RestartPolicies map[string]string
}

// DefaultRestartPolicies is the manifest to compose restart vocabulary.
func DefaultRestartPolicies() map[string]string {
	return map[string]string{
		"never":      "no",
		"on-failure": "on-failure",
		"always":     "always",
	}
}

// NewTopology returns the simulator topology for volumes mounted under
// mountBase, with the hub reachable on the network as gateway.
func NewTopology(mountBase, gateway string, connStrs map[string]string) Topology {
	return Topology{
		HubName:           EdgeHubService,
		HubModuleID:       EdgeHubModule,
		NetworkName:       NetworkName,
		GatewayAlias:      gateway,
		HubVolume:         HubVolume,
		HubMount:          HubMount(mountBase),
		ModuleVolume:      ModuleVolume,
		ModuleMount:       ModuleMount(mountBase),
		Label:             Label,
		HubEnv:            HubEnv(mountBase),
		ModuleEnv:         ModuleEnv(mountBase),
		ConnectionStrings: connStrs,
		RestartPolicies:   DefaultRestartPolicies(),
	}
}
