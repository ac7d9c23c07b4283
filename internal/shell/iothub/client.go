// Package iothub is a minimal IoT Hub registry client for module identities.
// Requests are authorized with a SAS token derived from the device key.
package iothub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/iotedgehubdev/internal/core/connstr"
)

const (
	DefaultAPIVersion = "2018-06-30"
	DefaultTokenTTL   = time.Hour

	authTypeSAS = "sas"
)

// ErrNoPrimaryKey is returned when the hub answers without a module key.
var ErrNoPrimaryKey = errors.New("module has no primary key")

// ResponseError is a non-2xx answer from IoT Hub.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: code %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 ResponseError.
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// =============================================================================
// Module Types
// =============================================================================

// Module is a module identity as returned by the registry.
type Module struct {
	ModuleID       string          `json:"moduleId"`
	DeviceID       string          `json:"deviceId"`
	ETag           string          `json:"etag,omitempty"`
	Authentication *Authentication `json:"authentication,omitempty"`
}

// Authentication describes how a module authenticates.
type Authentication struct {
	Type         string        `json:"type"`
	SymmetricKey *SymmetricKey `json:"symmetricKey,omitempty"`
}

// SymmetricKey holds a module's shared access keys.
type SymmetricKey struct {
	PrimaryKey   string `json:"primaryKey,omitempty"`
	SecondaryKey string `json:"secondaryKey,omitempty"`
}

// PrimaryKey returns the module's primary key, or "" when it has none.
func (m *Module) PrimaryKey() string {
	if m.Authentication == nil || m.Authentication.SymmetricKey == nil {
		return ""
	}
	return m.Authentication.SymmetricKey.PrimaryKey
}

func (m *Module) hasSASKey() bool {
	return m.Authentication != nil && m.Authentication.Type == authTypeSAS && m.PrimaryKey() != ""
}

// =============================================================================
// Client
// =============================================================================

// Config holds IoT Hub client configuration.
type Config struct {
	APIVersion string
	TokenTTL   time.Duration
	Timeout    time.Duration
	BaseURL    string // defaults to https://<HostName>
}

// Client manages module identities of one device.
type Client struct {
	device     *connstr.Device
	baseURL    string
	apiVersion string
	tokenTTL   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a client acting as device.
func NewClient(device *connstr.Device, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + device.HostName
	}
	return &Client{
		device:     device,
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		tokenTTL:   cfg.TokenTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// GetOrAddModule returns moduleID with a usable SAS primary key. A missing
// module is created; one without SAS keys is switched to SAS auth.
func (c *Client) GetOrAddModule(ctx context.Context, moduleID string) (*Module, error) {
	m, err := c.GetModule(ctx, moduleID)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		c.logger.Info("creating module identity", "module", moduleID, "device", c.device.DeviceID)
		return c.AddModule(ctx, moduleID)
	}
	if m.hasSASKey() {
		return m, nil
	}
	c.logger.Info("switching module identity to sas", "module", moduleID)
	return c.UpdateModule(ctx, moduleID)
}

// GetModule fetches a module identity.
func (c *Client) GetModule(ctx context.Context, moduleID string) (*Module, error) {
	var m Module
	if err := c.do(ctx, http.MethodGet, moduleID, nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// AddModule creates a module identity.
func (c *Client) AddModule(ctx context.Context, moduleID string) (*Module, error) {
	body := Module{ModuleID: moduleID, DeviceID: c.device.DeviceID}
	return c.put(ctx, moduleID, body, nil)
}

// UpdateModule overwrites a module identity with SAS authentication.
func (c *Client) UpdateModule(ctx context.Context, moduleID string) (*Module, error) {
	body := Module{
		ModuleID:       moduleID,
		DeviceID:       c.device.DeviceID,
		Authentication: &Authentication{Type: authTypeSAS},
	}
	return c.put(ctx, moduleID, body, map[string]string{"If-Match": `"*"`})
}

func (c *Client) put(ctx context.Context, moduleID string, body Module, headers map[string]string) (*Module, error) {
	var m Module
	if err := c.do(ctx, http.MethodPut, moduleID, body, headers, &m); err != nil {
		return nil, err
	}
	if m.PrimaryKey() == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, moduleID)
	}
	return &m, nil
}

func (c *Client) moduleURL(moduleID string) string {
	return fmt.Sprintf("%s/devices/%s/modules/%s?api-version=%s",
		c.baseURL, url.PathEscape(c.device.DeviceID), url.PathEscape(moduleID), url.QueryEscape(c.apiVersion))
}

func (c *Client) do(ctx context.Context, method, moduleID string, in any, headers map[string]string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal module: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.moduleURL(moduleID)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	token, err := connstr.SASToken(c.device.URI(), c.device.SharedAccessKey, "", c.now().Add(c.tokenTTL))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("iot hub request", "method", method, "module", moduleID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &ResponseError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
