package deployment

import "fmt"

// =============================================================================
// Single Module Plans
// =============================================================================

// Ports the hub serves on, published on the same host ports.
var hubPorts = []int{8883, 443, 5671}

const (
	inputContainerPort = 3000
	inputRetries       = 3
)

// BuildHubPlan builds the hub container of single module mode.
//
// The hub joins the shared network under the gateway alias, publishes its
// protocol ports, and routes messages between the test utility and the
// module under test.
//
// Example:
//
//	plan := BuildHubPlan(SingleModuleParams{
//	    Topology: NewTopology("/mnt", "gateway", conns),
//	    Inputs:   []string{"input1"},
//	})
//	// plan.Env ends with
//	// routes__r1=FROM /messages/modules/input/outputs/input1 INTO BrokeredEndpoint("/modules/target/inputs/input1")
func BuildHubPlan(params SingleModuleParams) (ContainerPlan, error) {
	t := params.Topology
	conn, ok := t.ConnectionStrings[t.HubModuleID]
	if !ok {
		return ContainerPlan{}, fmt.Errorf("%w for %s", ErrMissingConnectionString, t.HubModuleID)
	}

	plan := ContainerPlan{
		Name:    t.HubName,
		Image:   HubImage,
		Labels:  map[string]string{t.Label: ""},
		Volumes: []VolumePlan{{Source: t.HubVolume, Target: t.HubMount}},
		Network: t.NetworkName,
		Aliases: []string{t.GatewayAlias},
	}

	plan.Env = append(plan.Env, t.HubEnv...)
	plan.Env = append(plan.Env, HubConnectionEnv(conn))
	plan.Env = append(plan.Env, SingleModuleRoutes(params.Inputs)...)

	for _, p := range hubPorts {
		plan.Ports = append(plan.Ports, PortPlan{ContainerPort: p, HostPort: p, Protocol: "tcp"})
	}

	return plan, nil
}

// BuildInputPlan builds the test utility container that feeds the
// module under test.
func BuildInputPlan(params SingleModuleParams) (ContainerPlan, error) {
	t := params.Topology
	conn, ok := t.ConnectionStrings[InputModule]
	if !ok {
		return ContainerPlan{}, fmt.Errorf("%w for %s", ErrMissingConnectionString, InputModule)
	}

	plan := ContainerPlan{
		Name:    InputModule,
		Image:   TestUtilityImage,
		Labels:  map[string]string{t.Label: ""},
		Volumes: []VolumePlan{{Source: t.ModuleVolume, Target: t.ModuleMount}},
		Network: t.NetworkName,
		Ports: []PortPlan{{
			ContainerPort: inputContainerPort,
			HostPort:      params.InputPort,
			Protocol:      "tcp",
		}},
		RestartPolicy: RestartPolicyPlan{Name: "on-failure", MaximumRetryCount: inputRetries},
	}

	plan.Env = append(plan.Env, t.ModuleEnv...)
	plan.Env = append(plan.Env, ModuleConnectionEnv(conn))

	return plan, nil
}

// SingleModuleRoutes returns the hub routes of single module mode: every
// output of the target goes to the utility's print input, and each
// named input is fed from the utility output of the same name.
// Duplicate inputs are routed once, in first-seen order.
func SingleModuleRoutes(inputs []string) []string {
	routes := []string{
		RouteEnv("output", fmt.Sprintf(`FROM /messages/modules/%s/outputs/* INTO BrokeredEndpoint("/modules/%s/inputs/print")`,
			TargetModule, InputModule)),
	}

	seen := map[string]bool{}
	for _, in := range inputs {
		if in == "" || seen[in] {
			continue
		}
		seen[in] = true
		rule := fmt.Sprintf(`FROM /messages/modules/%s/outputs/%s INTO BrokeredEndpoint("/modules/%s/inputs/%s")`,
			InputModule, in, TargetModule, in)
		routes = append(routes, RouteEnv(fmt.Sprintf("r%d", len(seen)), rule))
	}
	return routes
}

// =============================================================================
// Certificate Helper
// =============================================================================

const (
	// CertHelperName is the idle container used to write certificates into
	// the shared volumes before the solution starts.
	CertHelperName = "cert_helper"
	// HelperImage is never run, only created.
	HelperImage = "hello-world:latest"
)

// BuildCertHelperPlan builds the container that mounts both certificate
// volumes so files can be copied into them.
func BuildCertHelperPlan(t Topology) ContainerPlan {
	return ContainerPlan{
		Name:   CertHelperName,
		Image:  HelperImage,
		Labels: map[string]string{t.Label: ""},
		Volumes: []VolumePlan{
			{Source: t.HubVolume, Target: t.HubMount},
			{Source: t.ModuleVolume, Target: t.ModuleMount},
		},
	}
}
