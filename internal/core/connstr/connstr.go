// Package connstr parses device connection strings and signs access tokens.
// This is part of the Functional Core - all functions are pure with no I/O.
//
// A device connection string is a semicolon separated list of KEY=VALUE
// pairs, for example:
//
//	HostName=myhub.azure-devices.net;DeviceId=edge1;SharedAccessKey=c2VjcmV0
package connstr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidConnectionString is returned when a connection string lacks a required part.
	ErrInvalidConnectionString = errors.New("invalid connection string")

	// ErrHubConnectionString is returned when an IoT Hub connection string is
	// supplied where a device connection string is expected.
	ErrHubConnectionString = errors.New("IoT Hub connection string supplied instead of a device connection string")

	// ErrModuleConnectionString is returned when a module connection string cannot be built.
	ErrModuleConnectionString = errors.New("invalid module connection string")

	// ErrInvalidKey is returned when a shared access key is not valid base64.
	ErrInvalidKey = errors.New("shared access key is not valid base64")
)

// Connection string keys.
const (
	KeyHostName        = "HostName"
	KeyDeviceID        = "DeviceId"
	KeyModuleID        = "ModuleId"
	KeyGatewayHostName = "GatewayHostName"
	KeySharedAccessKey = "SharedAccessKey"
	KeyAccessKeyName   = "SharedAccessKeyName"
)

// =============================================================================
// Device Connection String
// =============================================================================

// Device is a parsed device connection string.
type Device struct {
	HostName        string
	DeviceID        string
	SharedAccessKey string
}

// Parse reads a device connection string. Keys match case-insensitively
// and surrounding whitespace is trimmed.
func Parse(s string) (*Device, error) {
	parts := Split(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: nothing to parse", ErrInvalidConnectionString)
	}

	d := &Device{
		HostName:        parts[strings.ToLower(KeyHostName)],
		DeviceID:        parts[strings.ToLower(KeyDeviceID)],
		SharedAccessKey: parts[strings.ToLower(KeySharedAccessKey)],
	}
	if d.HostName == "" || d.DeviceID == "" || d.SharedAccessKey == "" {
		if _, ok := parts[strings.ToLower(KeyAccessKeyName)]; ok {
			return nil, ErrHubConnectionString
		}
		return nil, fmt.Errorf("%w: %s, %s and %s are required; wrap the value in double quotes on the command line",
			ErrInvalidConnectionString, KeyHostName, KeyDeviceID, KeySharedAccessKey)
	}
	return d, nil
}

// Split breaks s into its KEY=VALUE parts, keyed by lower-cased key.
// Parts without "=" are ignored and later duplicates win.
func Split(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// URI is the resource URI of the device, used as the token audience.
func (d *Device) URI() string {
	return fmt.Sprintf("%s/devices/%s", d.HostName, d.DeviceID)
}

// String formats d back into connection string form.
func (d *Device) String() string {
	return fmt.Sprintf("%s=%s;%s=%s;%s=%s",
		KeyHostName, d.HostName, KeyDeviceID, d.DeviceID, KeySharedAccessKey, d.SharedAccessKey)
}

// =============================================================================
// Module Connection Strings
// =============================================================================

// HubModuleString is the connection string the hub module uses to reach
// IoT Hub directly.
func (d *Device) HubModuleString(moduleID, key string) (string, error) {
	if moduleID == "" || key == "" {
		return "", fmt.Errorf("%w: module id and key are required", ErrModuleConnectionString)
	}
	return fmt.Sprintf("%s=%s;%s=%s;%s=%s;%s=%s",
		KeyHostName, d.HostName,
		KeyDeviceID, d.DeviceID,
		KeyModuleID, moduleID,
		KeySharedAccessKey, key,
	), nil
}

// ModuleString is the connection string a custom module uses to reach the
// hub through gateway.
func (d *Device) ModuleString(gateway, moduleID, key string) (string, error) {
	if moduleID == "" || key == "" || gateway == "" {
		return "", fmt.Errorf("%w: gateway, module id and key are required", ErrModuleConnectionString)
	}
	return fmt.Sprintf("%s=%s;%s=%s;%s=%s;%s=%s;%s=%s",
		KeyHostName, d.HostName,
		KeyGatewayHostName, gateway,
		KeyDeviceID, d.DeviceID,
		KeyModuleID, moduleID,
		KeySharedAccessKey, key,
	), nil
}

// =============================================================================
// Shared Access Signatures
// =============================================================================

// SASToken signs uri with the base64 encoded key, valid until expiry.
// policy is added as skn when not empty.
//
// Example:
//
//	tok, _ := SASToken("hub.net/devices/d1", key, "", time.Now().Add(time.Hour))
//	// SharedAccessSignature sr=hub.net%2Fdevices%2Fd1&sig=...&se=1700000000
func SASToken(uri, key, policy string, expiry time.Time) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	se := strconv.FormatInt(expiry.Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(url.QueryEscape(uri) + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	token := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s",
		url.QueryEscape(uri), url.QueryEscape(sig), se)
	if policy != "" {
		token += "&skn=" + url.QueryEscape(policy)
	}
	return token, nil
}
