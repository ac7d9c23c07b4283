package docker

import (
	"github.com/artpar/iotedgehubdev/internal/core/deployment"
)

// SpecFromPlan converts a planned simulator container into a create spec.
func SpecFromPlan(plan deployment.ContainerPlan) ContainerSpec {
	spec := ContainerSpec{
		Name:           plan.Name,
		Image:          plan.Image,
		Env:            plan.Env,
		Labels:         plan.Labels,
		Network:        plan.Network,
		NetworkAliases: plan.Aliases,
		RestartPolicy: RestartPolicy{
			Name:              plan.RestartPolicy.Name,
			MaximumRetryCount: plan.RestartPolicy.MaximumRetryCount,
		},
	}
	for _, p := range plan.Ports {
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
		})
	}
	for _, v := range plan.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source: v.Source,
			Target: v.Target,
		})
	}
	return spec
}
