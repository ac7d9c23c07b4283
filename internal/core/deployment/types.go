package deployment

// =============================================================================
// Container Plan Types
// =============================================================================

// ContainerPlan represents a planned container configuration.
// This is the pure output of planning, ready for the shell to execute.
type ContainerPlan struct {
	Name          string
	Image         string
	Env           []string // KEY=VALUE, in order
	Labels        map[string]string
	Ports         []PortPlan
	Volumes       []VolumePlan
	Network       string
	Aliases       []string // aliases on Network
	RestartPolicy RestartPolicyPlan
}

// PortPlan represents a planned port binding.
type PortPlan struct {
	ContainerPort int
	HostPort      int
	Protocol      string
}

// VolumePlan represents a planned named volume mount.
type VolumePlan struct {
	Source string
	Target string
}

// RestartPolicyPlan represents a restart policy.
type RestartPolicyPlan struct {
	Name              string
	MaximumRetryCount int
}

// =============================================================================
// Builder Parameter Types
// =============================================================================

// SingleModuleParams contains the inputs for single module mode.
type SingleModuleParams struct {
	Topology  Topology
	Inputs    []string // input names of the target module
	InputPort int      // host port of the test utility
}
