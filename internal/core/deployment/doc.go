// Package deployment provides pure functions for turning a deployment
// manifest into something the container engine can run.
//
// This package contains the functional core of the simulator. All functions
// are pure (no I/O, no side effects); the imperative shell
// (internal/shell/simulator) supplies the topology and executes the result.
//
// # Functions
//
//   - Manifest: Read modules, routes and registry logins (ParseManifest)
//   - Topology: Network, volume, label and environment defaults (NewTopology)
//   - Composer: Build the compose document of a solution (Composer.Compose)
//   - Container: Build hub and test utility plans for one module (BuildHubPlan, BuildInputPlan)
//
// # Usage
//
//	manifest, err := deployment.ParseManifest(data)
//	topology := deployment.NewTopology("/mnt", "gateway", connStrs)
//	doc, err := deployment.NewComposer(topology, logger).Compose(manifest)
//	out, err := compose.Marshal(doc)
package deployment
