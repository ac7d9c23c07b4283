// Package hostplatform locates the simulator's files on the host and
// persists the settings written by setup.
package hostplatform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	edgeDir        = ".iotedgehubdev"
	settingsFile   = "edgehub.json"
	composeFile    = "docker-compose.yml"
	composeVersion = "version: '3.6'"
)

// =============================================================================
// Paths
// =============================================================================

// Paths resolves the simulator directory layout under one home directory.
type Paths struct {
	Home string
}

// DefaultHome returns the per-user simulator directory: %LOCALAPPDATA% on
// Windows, $HOME elsewhere.
func DefaultHome() (string, error) {
	return homeFor(runtime.GOOS, os.Getenv)
}

func homeFor(goos string, getenv func(string) string) (string, error) {
	envKey := "HOME"
	if goos == "windows" {
		envKey = "LOCALAPPDATA"
	}
	base := getenv(envKey)
	if base == "" {
		return "", fmt.Errorf("cannot locate simulator home: %s is not set", envKey)
	}
	return filepath.Join(base, edgeDir), nil
}

// NewPaths returns the layout rooted at home.
func NewPaths(home string) Paths {
	return Paths{Home: home}
}

func (p Paths) ConfigDir() string    { return filepath.Join(p.Home, "config") }
func (p Paths) SettingsFile() string { return filepath.Join(p.ConfigDir(), settingsFile) }
func (p Paths) DataDir() string      { return filepath.Join(p.Home, "data") }
func (p Paths) CertDir() string      { return filepath.Join(p.DataDir(), "certs") }
func (p Paths) ShareDataDir() string { return filepath.Join(p.DataDir(), "data") }
func (p Paths) ComposeFile() string  { return filepath.Join(p.ShareDataDir(), composeFile) }

// PrepareShareData creates the shared data directory and an empty compose
// file so that compose commands have a target before the first start.
func (p Paths) PrepareShareData() error {
	dir := p.ShareDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dir, err)
	}
	file := p.ComposeFile()
	if err := os.WriteFile(file, []byte(composeVersion), 0o666); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	if err := os.Chmod(file, 0o777); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", file, err)
	}
	return nil
}

// =============================================================================
// Settings
// =============================================================================

var (
	// ErrNotConfigured is returned when setup has never been run.
	ErrNotConfigured = errors.New("cannot find config file, please run `iotedgehubdev setup` first")

	// ErrIncompleteSettings is returned when the settings file lacks a key.
	ErrIncompleteSettings = errors.New("missing keys in config file, please run `iotedgehubdev setup` again")
)

// Settings is what setup persists for later commands.
type Settings struct {
	ConnectionString string `json:"connectionString" mapstructure:"connectionString"`
	CertPath         string `json:"certPath" mapstructure:"certPath"`
	GatewayHost      string `json:"gatewayhost" mapstructure:"gatewayhost"`
}

// LoadSettings reads the settings file at path.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var missing []string
	for _, key := range []string{"connectionString", "certPath", "gatewayhost"} {
		if !v.IsSet(key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteSettings, strings.Join(missing, ", "))
	}

	return &Settings{
		ConnectionString: v.GetString("connectionString"),
		CertPath:         v.GetString("certPath"),
		GatewayHost:      v.GetString("gatewayhost"),
	}, nil
}

// SaveSettings replaces the settings file at path.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	// viper lower-cases keys on write, which would change the file format.
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
