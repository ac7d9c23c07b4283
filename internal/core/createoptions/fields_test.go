package createoptions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/iotedgehubdev/internal/core/compose"
)

func TestFields_UniqueKeys(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range Fields() {
		assert.False(t, seen[f.Key], "duplicate compose key %s", f.Key)
		seen[f.Key] = true
		assert.NotEmpty(t, f.Sources, f.Key)
	}
	assert.Len(t, seen, 37)
}

func TestMap_FullDocument(t *testing.T) {
	svc, err := MapString(`{
		"Hostname": "sensor",
		"Domainname": "edge.local",
		"User": "1000",
		"ExposedPorts": {"9000/tcp": {}},
		"Tty": false,
		"Env": ["A=1", "B=2"],
		"Cmd": ["node", "app.js"],
		"Image": "overridden:1",
		"WorkingDir": "/app",
		"Entrypoint": ["/bin/sh"],
		"MacAddress": "02:42:ac:11:00:02",
		"Labels": {"tier": "edge"},
		"StopSignal": "SIGTERM",
		"StopTimeout": 20,
		"HostConfig": {
			"PortBindings": {"9000/tcp": [{"HostPort": "9000"}]},
			"Privileged": true,
			"NetworkMode": "bridge",
			"Devices": [{"PathOnHost": "/dev/ttyS0", "PathInContainer": "/dev/ttyS0", "CgroupPermissions": "rwm"}],
			"Dns": ["8.8.8.8"],
			"DnsSearch": ["local"],
			"RestartPolicy": {"Name": "on-failure", "MaximumRetryCount": 3},
			"CapAdd": ["NET_ADMIN"],
			"CapDrop": ["MKNOD"],
			"Ulimits": [{"Name": "nofile", "Soft": 1024, "Hard": 2048}],
			"LogConfig": {"Type": "json-file", "Config": {"max-size": "10m"}},
			"ExtraHosts": ["host:10.0.0.1"],
			"ReadonlyRootfs": true,
			"PidMode": "host",
			"SecurityOpt": ["no-new-privileges"],
			"IpcMode": "shareable",
			"CgroupParent": "/edge",
			"Sysctls": {"net.core.somaxconn": "1024"},
			"UsernsMode": "host",
			"Isolation": "default",
			"Binds": ["/var/data:/data"]
		},
		"NetworkingConfig": {"EndpointsConfig": {"extra": {"Aliases": ["s"]}}}
	}`)
	require.NoError(t, err)

	expected := &compose.Service{
		CapAdd:          []string{"NET_ADMIN"},
		CapDrop:         []string{"MKNOD"},
		CgroupParent:    "/edge",
		Command:         "node app.js",
		Devices:         []string{"/dev/ttyS0:/dev/ttyS0:rwm"},
		DNS:             []string{"8.8.8.8"},
		DNSSearch:       []string{"local"},
		Domainname:      "edge.local",
		Entrypoint:      compose.List([]string{"/bin/sh"}),
		Environment:     []string{"A=1", "B=2"},
		Expose:          []string{"9000/tcp"},
		ExtraHosts:      []string{"host:10.0.0.1"},
		Hostname:        "sensor",
		Image:           "overridden:1",
		Ipc:             "shareable",
		Isolation:       "default",
		Labels:          map[string]string{"tier": "edge"},
		Logging:         &compose.Logging{Driver: "json-file", Options: map[string]string{"max-size": "10m"}},
		MacAddress:      "02:42:ac:11:00:02",
		NetworkMode:     "bridge",
		Networks:        map[string]*compose.NetworkAttachment{"extra": {Aliases: []string{"s"}}},
		Pid:             "host",
		Ports:           []string{"9000:9000/tcp"},
		Privileged:      compose.Bool(true),
		ReadOnly:        compose.Bool(true),
		Restart:         "on-failure:3",
		SecurityOpt:     []string{"no-new-privileges"},
		StopGracePeriod: "20s",
		StopSignal:      "SIGTERM",
		Sysctls:         map[string]string{"net.core.somaxconn": "1024"},
		Tty:             compose.Bool(false),
		Ulimits:         map[string]compose.Ulimit{"nofile": {Soft: 1024, Hard: 2048}},
		User:            "1000",
		UsernsMode:      "host",
		Volumes: []compose.MountSpec{
			{Type: "bind", Source: compose.Str("/var/data"), Target: "/data"},
		},
		WorkingDir: "/app",
	}
	assert.Equal(t, expected, svc)
}

func TestMap_AbsentFieldsAreOmitted(t *testing.T) {
	svc, err := MapString(`{"Env": ["A=1"], "HostConfig": {}, "Hostname": null, "Unknown": 1}`)
	require.NoError(t, err)
	assert.Equal(t, &compose.Service{Environment: []string{"A=1"}}, svc)

	svc, err = MapString("")
	require.NoError(t, err)
	assert.Equal(t, &compose.Service{}, svc)
}

func TestMap_ErrorsCarryComposeKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		key     string
		wantErr error
	}{
		{
			name:    "restart policy",
			input:   `{"HostConfig": {"RestartPolicy": {"Name": "never"}}}`,
			key:     "restart",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "healthcheck",
			input:   `{"Healthcheck": {"Test": ["CMD"], "Interval": 999999, "Timeout": 0, "Retries": 1, "StartPeriod": 0}}`,
			key:     "healthcheck",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "binds",
			input:   `{"HostConfig": {"Binds": ["a:b:c:d"]}}`,
			key:     "volumes",
			wantErr: ErrInvalidValue,
		},
		{
			name:    "wrong scalar type",
			input:   `{"Hostname": 42}`,
			key:     "hostname",
			wantErr: ErrInvalidType,
		},
		{
			name:    "stop timeout",
			input:   `{"StopTimeout": "ten"}`,
			key:     "stop_grace_period",
			wantErr: ErrInvalidType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapString(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var oe *OptionError
			require.True(t, errors.As(err, &oe))
			assert.Equal(t, tt.key, oe.Key)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{`{"Env": [`, `["not", "an", "object"]`, `{} {}`, `{'Env': []}`} {
		_, err := Parse(input)
		assert.ErrorIs(t, err, ErrInvalidJSON, input)
	}
}

func TestDocument_Lookup(t *testing.T) {
	doc, err := Parse(`{"HostConfig": {"PortBindings": {"80/tcp": []}, "Privileged": null}, "Retries": 3}`)
	require.NoError(t, err)

	v, ok := doc.Lookup("HostConfig", "PortBindings")
	assert.True(t, ok)
	assert.NotNil(t, v)

	_, ok = doc.Lookup("HostConfig", "Privileged")
	assert.False(t, ok)

	_, ok = doc.Lookup("HostConfig", "Missing", "Deeper")
	assert.False(t, ok)

	_, ok = doc.Lookup("Retries", "Nested")
	assert.False(t, ok)

	retries, ok := doc.Lookup("Retries")
	assert.True(t, ok)
	assert.Equal(t, int64(3), retries)
}
