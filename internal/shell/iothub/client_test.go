package iothub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/iotedgehubdev/internal/core/connstr"
)

const testConn = "HostName=hub.azure-devices.net;DeviceId=edge1;SharedAccessKey=c2VjcmV0a2V5"

type recorded struct {
	method  string
	path    string
	ifMatch string
	body    Module
}

// fakeHub serves module identities from memory.
type fakeHub struct {
	mu       sync.Mutex
	modules  map[string]Module
	requests []recorded
	status   int
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := recorded{method: r.Method, path: r.URL.Path, ifMatch: r.Header.Get("If-Match")}
	if r.Method == http.MethodPut {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.requests = append(f.requests, rec)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"Message":"boom"}`))
		return
	}

	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	switch r.Method {
	case http.MethodGet:
		m, ok := f.modules[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"Message":"ModuleNotFound"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(m)
	case http.MethodPut:
		m := rec.body
		m.Authentication = &Authentication{Type: "sas", SymmetricKey: &SymmetricKey{PrimaryKey: "key-" + id}}
		f.modules[id] = m
		_ = json.NewEncoder(w).Encode(m)
	}
}

func newTestClient(t *testing.T, hub *fakeHub) *Client {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	device, err := connstr.Parse(testConn)
	require.NoError(t, err)
	return NewClient(device, Config{BaseURL: server.URL}, nil)
}

func TestNewClient_Defaults(t *testing.T) {
	device, err := connstr.Parse(testConn)
	require.NoError(t, err)

	c := NewClient(device, Config{}, nil)
	assert.Equal(t, "https://hub.azure-devices.net", c.baseURL)
	assert.Equal(t, DefaultAPIVersion, c.apiVersion)
	assert.Equal(t, time.Hour, c.tokenTTL)
	assert.NotNil(t, c.logger)
	assert.Equal(t,
		"https://hub.azure-devices.net/devices/edge1/modules/$edgeHub?api-version=2018-06-30",
		c.moduleURL("$edgeHub"))
}

func TestGetOrAddModule_Existing(t *testing.T) {
	hub := &fakeHub{modules: map[string]Module{
		"filter": {
			ModuleID:       "filter",
			DeviceID:       "edge1",
			Authentication: &Authentication{Type: "sas", SymmetricKey: &SymmetricKey{PrimaryKey: "pk"}},
		},
	}}
	c := newTestClient(t, hub)

	m, err := c.GetOrAddModule(context.Background(), "filter")
	require.NoError(t, err)
	assert.Equal(t, "pk", m.PrimaryKey())
	require.Len(t, hub.requests, 1)
	assert.Equal(t, http.MethodGet, hub.requests[0].method)
	assert.Equal(t, "/devices/edge1/modules/filter", hub.requests[0].path)
}

func TestGetOrAddModule_CreatesMissing(t *testing.T) {
	hub := &fakeHub{modules: map[string]Module{}}
	c := newTestClient(t, hub)

	m, err := c.GetOrAddModule(context.Background(), "$edgeHub")
	require.NoError(t, err)
	assert.Equal(t, "key-$edgeHub", m.PrimaryKey())

	require.Len(t, hub.requests, 2)
	put := hub.requests[1]
	assert.Equal(t, http.MethodPut, put.method)
	assert.Empty(t, put.ifMatch)
	assert.Equal(t, Module{ModuleID: "$edgeHub", DeviceID: "edge1"}, put.body)
}

func TestGetOrAddModule_UpdatesNonSAS(t *testing.T) {
	hub := &fakeHub{modules: map[string]Module{
		"x509mod": {ModuleID: "x509mod", DeviceID: "edge1", Authentication: &Authentication{Type: "selfSigned"}},
	}}
	c := newTestClient(t, hub)

	m, err := c.GetOrAddModule(context.Background(), "x509mod")
	require.NoError(t, err)
	assert.Equal(t, "key-x509mod", m.PrimaryKey())

	require.Len(t, hub.requests, 2)
	put := hub.requests[1]
	assert.Equal(t, `"*"`, put.ifMatch)
	require.NotNil(t, put.body.Authentication)
	assert.Equal(t, "sas", put.body.Authentication.Type)
}

func TestGetOrAddModule_ServerError(t *testing.T) {
	hub := &fakeHub{modules: map[string]Module{}, status: http.StatusUnauthorized}
	c := newTestClient(t, hub)

	_, err := c.GetOrAddModule(context.Background(), "filter")
	require.Error(t, err)

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
	assert.Equal(t, http.MethodGet, re.Method)
	assert.Contains(t, re.Body, "boom")
	assert.False(t, IsNotFound(err))
	assert.Len(t, hub.requests, 1)
}

func TestRequest_Authorization(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "2018-06-30", r.URL.Query().Get("api-version"))
		_ = json.NewEncoder(w).Encode(Module{ModuleID: "m"})
	}))
	defer server.Close()

	device, err := connstr.Parse(testConn)
	require.NoError(t, err)
	c := NewClient(device, Config{BaseURL: server.URL, TokenTTL: time.Minute}, nil)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	_, err = c.GetModule(context.Background(), "m")
	require.NoError(t, err)

	want, err := connstr.SASToken(device.URI(), device.SharedAccessKey, "", time.Unix(1700000060, 0))
	require.NoError(t, err)
	assert.Equal(t, want, auth)
}

func TestPut_MissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Module{ModuleID: "m", DeviceID: "edge1"})
	}))
	defer server.Close()

	device, err := connstr.Parse(testConn)
	require.NoError(t, err)
	c := NewClient(device, Config{BaseURL: server.URL}, nil)

	_, err = c.AddModule(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}
