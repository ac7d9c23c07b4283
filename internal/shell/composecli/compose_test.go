package composecli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, stdout, _ io.Writer, name string, args ...string) error {
	f.calls = append(f.calls, call{name: name, args: args})
	if stdout != nil && f.output != "" {
		_, _ = io.WriteString(stdout, f.output)
	}
	return f.err
}

func TestNew_Defaults(t *testing.T) {
	c, err := New("", "/data/docker-compose.yml", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"docker-compose"}, c.command)
	assert.Equal(t, "/data/docker-compose.yml", c.File())
	assert.IsType(t, ExecRunner{}, c.runner)
}

func TestNew_BlankBinary(t *testing.T) {
	_, err := New("   ", "f.yml", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBinary)
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		invoke func(*Compose) error
		want   call
	}{
		{
			name:   "pull",
			binary: "docker-compose",
			invoke: func(c *Compose) error { return c.Pull(context.Background(), "edgeHubDev") },
			want:   call{"docker-compose", []string{"-f", "f.yml", "pull", "edgeHubDev"}},
		},
		{
			name:   "up detached",
			binary: "docker-compose",
			invoke: func(c *Compose) error { return c.Up(context.Background(), true, nil) },
			want:   call{"docker-compose", []string{"-f", "f.yml", "up", "-d"}},
		},
		{
			name:   "up attached",
			binary: "docker-compose",
			invoke: func(c *Compose) error { return c.Up(context.Background(), false, io.Discard) },
			want:   call{"docker-compose", []string{"-f", "f.yml", "up"}},
		},
		{
			name:   "down with plugin",
			binary: "docker compose",
			invoke: func(c *Compose) error { return c.Down(context.Background()) },
			want:   call{"docker", []string{"compose", "-f", "f.yml", "down"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			c, err := New(tt.binary, "f.yml", r, nil)
			require.NoError(t, err)

			require.NoError(t, tt.invoke(c))
			require.Len(t, r.calls, 1)
			assert.Equal(t, tt.want, r.calls[0])
		})
	}
}

func TestUp_StreamsOutput(t *testing.T) {
	r := &fakeRunner{output: "edgeHubDev | started\n"}
	c, err := New("", "f.yml", r, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, c.Up(context.Background(), false, &out))
	assert.Equal(t, "edgeHubDev | started\n", out.String())
}

func TestRun_Error(t *testing.T) {
	exitErr := errors.New("exit status 1")
	r := &fakeRunner{output: "no such service\n", err: exitErr}
	c, err := New("", "f.yml", r, nil)
	require.NoError(t, err)

	err = c.Pull(context.Background(), "edgeHubDev")
	require.Error(t, err)
	assert.ErrorIs(t, err, exitErr)

	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"docker-compose", "-f", "f.yml", "pull", "edgeHubDev"}, ce.Args)
	assert.Equal(t, "docker-compose -f f.yml pull edgeHubDev failed: exit status 1: no such service", ce.Error())
}
