package deployment

import (
	"fmt"
	"strings"
)

// =============================================================================
// Mount Paths
// =============================================================================

const mountDir = "mnt"

// MountBase returns the in-container directory the shared volumes are
// mounted under for a container engine of the given OS type.
//
// Example:
//
//	MountBase("linux")   // returns "/mnt"
//	MountBase("Windows") // returns "c:/mnt"
func MountBase(osType string) (string, error) {
	switch strings.ToLower(osType) {
	case "linux":
		return "/" + mountDir, nil
	case "windows":
		return "c:/" + mountDir, nil
	default:
		return "", fmt.Errorf("unsupported container engine OS type %q", osType)
	}
}

// HubMount is where the hub volume is mounted.
func HubMount(base string) string {
	return base + "/edgehub"
}

// ModuleMount is where the module volume is mounted.
func ModuleMount(base string) string {
	return base + "/edgemodule"
}

// =============================================================================
// Certificate Files
// =============================================================================

// File names of the certificate artifacts copied into the shared volumes.
const (
	ChainCAFile     = "edge-chain-ca.cert.pem"
	HubServerPFX    = "edge-hub-server.cert.pfx"
	DeviceCAFile    = "edge-device-ca.cert.pem"
	hubConfigSource = "configSource=local"
)

// HubEnv returns the certificate environment of the hub.
func HubEnv(base string) []string {
	mount := HubMount(base)
	return []string{
		fmt.Sprintf("EdgeModuleHubServerCAChainCertificateFile=%s/%s", mount, ChainCAFile),
		fmt.Sprintf("EdgeModuleHubServerCertificateFile=%s/%s", mount, HubServerPFX),
		hubConfigSource,
		fmt.Sprintf("SSL_CERTIFICATE_PATH=%s/", mount),
		"SSL_CERTIFICATE_NAME=" + HubServerPFX,
	}
}

// ModuleEnv returns the certificate environment of a custom module.
func ModuleEnv(base string) []string {
	return []string{ModuleCAEnv(ModuleMount(base) + "/" + DeviceCAFile)}
}

// ModuleCAEnv points a module at the device CA certificate.
func ModuleCAEnv(path string) string {
	return "EdgeModuleCACertificateFile=" + path
}

// HubConnectionEnv carries the hub's own IoT Hub connection string.
func HubConnectionEnv(conn string) string {
	return "IotHubConnectionString=" + conn
}

// ModuleConnectionEnv carries a module's connection string to the hub.
func ModuleConnectionEnv(conn string) string {
	return "EdgeHubConnectionString=" + conn
}

// RouteEnv encodes one hub route as an environment entry.
//
// Example:
//
//	RouteEnv("upstream", "FROM /messages/* INTO $upstream")
//	// returns "routes__upstream=FROM /messages/* INTO $upstream"
func RouteEnv(name, rule string) string {
	return fmt.Sprintf("routes__%s=%s", name, rule)
}
