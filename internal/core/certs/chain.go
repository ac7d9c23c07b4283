package certs

// Certificate IDs of the simulator chain.
const (
	DeviceCA  = "edge-device-ca"
	AgentCA   = "edge-agent-ca"
	HubServer = "edge-hub-server"
	ChainCA   = "edge-chain-ca"
)

// DefaultValidityDays is the lifetime of every certificate in the edge chain.
const DefaultValidityDays = 365

// ChainMembers lists the certificates concatenated into ChainCA, leaf side first.
var ChainMembers = []string{AgentCA, DeviceCA}

// NewEdgeChain creates the device CA, the terminal agent CA it signs, and
// the hub server certificate for hostname signed by the agent CA.
func NewEdgeChain(hostname string, opts ...Option) (*Authority, error) {
	a := NewAuthority(opts...)

	if err := a.CreateRootCA(DeviceCA, DefaultSubject(), DefaultValidityDays, ""); err != nil {
		return nil, err
	}
	if err := a.CreateIntermediateCA(AgentCA, DeviceCA, "Edge Agent CA", DefaultValidityDays, "", true); err != nil {
		return nil, err
	}
	if err := a.CreateServerCert(HubServer, AgentCA, hostname, DefaultValidityDays, ""); err != nil {
		return nil, err
	}
	return a, nil
}
