package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "modulesContent": {
    "$edgeAgent": {
      "properties.desired": {
        "schemaVersion": "1.0",
        "runtime": {
          "type": "docker",
          "settings": {
            "minDockerVersion": "v1.25",
            "registryCredentials": {
              "myacr": {"username": "user", "password": "pa$word", "address": "myacr.azurecr.io"},
              "docker": {"username": "u2", "password": "p2", "address": "docker.io"}
            }
          }
        },
        "systemModules": {
          "edgeAgent": {
            "type": "docker",
            "settings": {"image": "mcr.microsoft.com/azureiotedge-agent:1.0", "createOptions": ""}
          },
          "edgeHub": {
            "type": "docker",
            "status": "running",
            "restartPolicy": "always",
            "settings": {
              "image": "mcr.microsoft.com/azureiotedge-hub:1.0",
              "createOptions": "{\"HostConfig\":{\"PortBindings\":{\"5671/tcp\":[{\"HostPort\":\"5671\"}],\"8883/tcp\":[{\"HostPort\":\"8883\"}],\"443/tcp\":[{\"HostPort\":\"443\"}]}}}"
            }
          }
        },
        "modules": {
          "tempSensor": {
            "version": "1.0",
            "type": "docker",
            "status": "running",
            "restartPolicy": "on-failure",
            "settings": {
              "image": "mcr.microsoft.com/azureiotedge-simulated-temperature-sensor:1.0",
              "createOptions": "{\"Env\":[\"A=1\",\"B=2\"],\"ExposedPorts\":{\"9000/tcp\":{}},",
              "createOptions01": "\"HostConfig\":{\"PortBindings\":{\"9000/tcp\":[{\"HostPort\":\"9000\"}]}}}"
            },
            "env": {
              "B": {"value": "3"},
              "C": {}
            }
          },
          "filter": {
            "version": "1.0",
            "type": "docker",
            "status": "running",
            "restartPolicy": "never",
            "settings": {
              "image": "localhost:5000/filter:0.0.1-amd64",
              "createOptions": {"HostConfig": {"Binds": ["/data:/data:ro"]}}
            }
          }
        }
      }
    },
    "$edgeHub": {
      "properties.desired": {
        "schemaVersion": "1.0",
        "routes": {
          "sensorToFilter": "FROM /messages/modules/tempSensor/outputs/temperatureOutput INTO BrokeredEndpoint(\"/modules/filter/inputs/input1\")",
          "filterToUpstream": {"route": "FROM /messages/modules/filter/outputs/* INTO $upstream", "priority": 0}
        },
        "storeAndForwardConfiguration": {"timeToLiveSecs": 7200}
      }
    }
  }
}`

// =============================================================================
// ParseManifest Tests
// =============================================================================

func TestParseManifest_Sample(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, Module{
		Name:          "$edgeHub",
		Image:         "mcr.microsoft.com/azureiotedge-hub:1.0",
		CreateOptions: `{"HostConfig":{"PortBindings":{"5671/tcp":[{"HostPort":"5671"}],"8883/tcp":[{"HostPort":"8883"}],"443/tcp":[{"HostPort":"443"}]}}}`,
		RestartPolicy: "always",
	}, m.Hub)

	require.Len(t, m.Modules, 2)
	assert.Equal(t, "tempSensor", m.Modules[0].Name)
	assert.Equal(t, "filter", m.Modules[1].Name)

	sensor := m.Modules[0]
	assert.Equal(t, "on-failure", sensor.RestartPolicy)
	assert.Equal(t,
		`{"Env":["A=1","B=2"],"ExposedPorts":{"9000/tcp":{}},"HostConfig":{"PortBindings":{"9000/tcp":[{"HostPort":"9000"}]}}}`,
		sensor.CreateOptions)
	assert.Equal(t, []EnvVar{
		{Name: "B", Value: "3", HasValue: true},
		{Name: "C"},
	}, sensor.Env)

	filter := m.Modules[1]
	assert.Equal(t, "never", filter.RestartPolicy)
	assert.Equal(t, `{"HostConfig":{"Binds":["/data:/data:ro"]}}`, filter.CreateOptions)
	assert.Nil(t, filter.Env)

	assert.Equal(t, []Route{
		{Name: "sensorToFilter", Rule: `FROM /messages/modules/tempSensor/outputs/temperatureOutput INTO BrokeredEndpoint("/modules/filter/inputs/input1")`},
		{Name: "filterToUpstream", Rule: "FROM /messages/modules/filter/outputs/* INTO $upstream"},
	}, m.Routes)

	assert.Equal(t, []RegistryCredential{
		{Name: "myacr", Address: "myacr.azurecr.io", Username: "user", Password: "pa$word"},
		{Name: "docker", Address: "docker.io", Username: "u2", Password: "p2"},
	}, m.RegistryCredentials)
}

func TestParseManifest_LegacyModuleContent(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"moduleContent": {
			"$edgeAgent": {"properties.desired": {
				"systemModules": {"edgeHub": {"restartPolicy": "always", "settings": {"image": "hub"}}}
			}},
			"$edgeHub": {"properties.desired": {}}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "hub", m.Hub.Image)
	assert.Empty(t, m.Hub.CreateOptions)
	assert.Empty(t, m.Modules)
	assert.Empty(t, m.Routes)
	assert.Empty(t, m.RegistryCredentials)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		mention string
	}{
		{
			name:    "not json",
			input:   `{"modulesContent": `,
			wantErr: ErrInvalidManifest,
		},
		{
			name:    "not an object",
			input:   `[]`,
			wantErr: ErrInvalidManifest,
		},
		{
			name:    "no content",
			input:   `{}`,
			wantErr: ErrMissingSection,
			mention: "modulesContent",
		},
		{
			name:    "no agent",
			input:   `{"modulesContent": {"$edgeHub": {"properties.desired": {}}}}`,
			wantErr: ErrMissingSection,
			mention: "$edgeAgent",
		},
		{
			name: "no hub module",
			input: `{"modulesContent": {
				"$edgeAgent": {"properties.desired": {"systemModules": {}}},
				"$edgeHub": {"properties.desired": {}}
			}}`,
			wantErr: ErrMissingSection,
			mention: "edgeHub",
		},
		{
			name: "no image",
			input: `{"modulesContent": {
				"$edgeAgent": {"properties.desired": {"systemModules": {"edgeHub": {"settings": {}}}}},
				"$edgeHub": {"properties.desired": {}}
			}}`,
			wantErr: ErrMissingSection,
			mention: "image",
		},
		{
			name: "no hub desired properties",
			input: `{"modulesContent": {
				"$edgeAgent": {"properties.desired": {"systemModules": {"edgeHub": {"settings": {"image": "hub"}}}}}
			}}`,
			wantErr: ErrMissingSection,
			mention: "$edgeHub",
		},
		{
			name: "route object without rule",
			input: `{"modulesContent": {
				"$edgeAgent": {"properties.desired": {"systemModules": {"edgeHub": {"settings": {"image": "hub"}}}}},
				"$edgeHub": {"properties.desired": {"routes": {"r": {"priority": 1}}}}
			}}`,
			wantErr: ErrMissingSection,
			mention: "route",
		},
		{
			name:    "trailing data",
			input:   `{} {}`,
			wantErr: ErrInvalidManifest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.mention != "" {
				assert.Contains(t, err.Error(), tt.mention)
			}
		})
	}
}

func TestParseManifest_KeepsModuleOrder(t *testing.T) {
	m, err := ParseManifest([]byte(`{"modulesContent": {
		"$edgeAgent": {"properties.desired": {
			"systemModules": {"edgeHub": {"settings": {"image": "hub"}}},
			"modules": {
				"zeta": {"settings": {"image": "z"}},
				"alpha": {"settings": {"image": "a"}},
				"mid": {"settings": {"image": "m"}}
			}
		}},
		"$edgeHub": {"properties.desired": {"routes": {"b": "rule b", "a": "rule a"}}}
	}}`))
	require.NoError(t, err)

	var names []string
	for _, mod := range m.Modules {
		names = append(names, mod.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, []Route{{Name: "b", Rule: "rule b"}, {Name: "a", Rule: "rule a"}}, m.Routes)
}
