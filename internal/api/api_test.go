package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/network"
	"github.com/openvern/netplane/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *network.Manager) {
	t.Helper()
	store, dir := testutil.SetupTestStore(t)
	m, err := network.NewManager(context.Background(), testutil.NewTestConfig(), store, dir, backend.NewFake())
	require.NoError(t, err)
	testutil.SeedProject(t, dir, "proj-a")

	r := chi.NewRouter()
	NewAPI(m).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, m
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestAPI_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	status := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_Vlans(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.GetProjectNetwork(context.Background(), "proj-a", "")
	require.NoError(t, err)

	var body map[string]int
	status := getJSON(t, srv.URL+"/v1/vlans", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 100, body["proj-a"])
}

func TestAPI_Networks(t *testing.T) {
	srv, m := newTestServer(t)
	_, err := m.GetProjectNetwork(context.Background(), "proj-a", "")
	require.NoError(t, err)

	var body []networkResponse
	status := getJSON(t, srv.URL+"/v1/networks", &body)
	assert.Equal(t, http.StatusOK, status)

	// The public pool record plus the tenant network.
	require.Len(t, body, 2)
	byID := map[string]networkResponse{}
	for _, rec := range body {
		byID[rec.ID] = rec
	}
	assert.Equal(t, "10.0.0.0/24", byID["proj-a:default"].CIDR)
	assert.Equal(t, "br100", byID["proj-a:default"].BridgeName)
	assert.Equal(t, "public", byID[network.PublicNetworkID].Kind)
}

func TestAPI_Leases(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()
	n, err := m.GetProjectNetwork(ctx, "proj-a", "")
	require.NoError(t, err)
	address, err := n.AllocateAddress(ctx, "m1")
	require.NoError(t, err)

	var body map[string]string
	status := getJSON(t, srv.URL+"/v1/networks/proj-a:default/leases", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "m1", body[address])

	var errBody map[string]string
	status = getJSON(t, srv.URL+"/v1/networks/ghost/leases", &errBody)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Addresses(t *testing.T) {
	srv, m := newTestServer(t)
	ctx := context.Background()

	public, err := m.Public().AllocateAddress(ctx, "user-a", "proj-a")
	require.NoError(t, err)
	require.NoError(t, m.Public().Associate(ctx, public, "10.0.0.3", "i-1"))

	var body []addressResponse
	status := getJSON(t, srv.URL+"/v1/addresses", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, public, body[0].Address)
	assert.Equal(t, "i-1", body[0].InstanceID)
	assert.Equal(t, "10.0.0.3", body[0].PrivateIP)
}
