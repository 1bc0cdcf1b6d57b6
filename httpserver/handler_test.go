package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetworks/fleet-provisioning-backend/api"
	"github.com/fleetworks/fleet-provisioning-backend/controlplane"
	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/provision"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
	"github.com/fleetworks/fleet-provisioning-backend/status"
)

const testToken = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *controlplane.MockClient, *registry.FileStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := registry.NewFileStore(filepath.Join(t.TempDir(), "registry.json"), logger)
	require.NoError(t, err)

	cp := new(controlplane.MockClient)
	orch := provision.NewOrchestrator(provision.Config{
		SourceRepo:      "fleetworks/workspace-app",
		ServicePrefix:   "ws-",
		VolumeMountPath: "/data",
		StateDir:        "/data/state",
		WorkspaceDir:    "/data/workspace",
		ListenPort:      8080,
	}, cp, nil, store, logger)
	resolver := status.NewResolver(cp, logger)

	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		AuthToken:                testToken,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(store, orch, resolver, logger))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts, cp, store
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func expectHappyPath(cp *controlplane.MockClient) {
	cp.On("CreateProject", mock.Anything, mock.Anything).Return(interfaces.ProjectRef{ProjectID: "proj-1", EnvironmentID: "env-1"}, nil)
	cp.On("CreateService", mock.Anything, "proj-1", mock.Anything, "fleetworks/workspace-app").Return("svc-1", nil)
	cp.On("CreateVolume", mock.Anything, "proj-1", "env-1", "svc-1", "/data").Return("vol-1", nil)
	cp.On("UpsertVariables", mock.Anything, "proj-1", "env-1", "svc-1", mock.Anything).Return(nil)
	cp.On("CreateServiceDomain", mock.Anything, "env-1", "svc-1").Return("ws-demo.up.example.net", nil)
	cp.On("DeployService", mock.Anything, "svc-1", "env-1").Return(nil)
}

func TestLivenessSkipsAuth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/tenants", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tenants", "wrong-secret", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/readyz", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tenants", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTenantLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tenants", testToken, api.CreateTenantRequest{Name: "Acme Corp", Notes: "pilot"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tenant := decode[registry.Tenant](t, resp)
	assert.Equal(t, "acme-corp", tenant.Slug)

	// The bootstrap default tenant is always present.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tenants", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tenants := decode[[]registry.TenantSummary](t, resp)
	require.Len(t, tenants, 2)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/tenants", testToken, api.CreateTenantRequest{Name: "acme?? corp"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/tenants", testToken, api.CreateTenantRequest{Name: "???"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	newName := "Acme Holdings"
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/tenants/"+tenant.ID, testToken, api.UpdateTenantRequest{Name: &newName})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decode[registry.Tenant](t, resp)
	assert.Equal(t, "acme-holdings", renamed.Slug)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tenants/"+tenant.ID, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[api.TenantDetailResponse](t, resp)
	assert.Equal(t, "Acme Holdings", detail.Tenant.Name)
	assert.Empty(t, detail.Instances)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/tenants/"+tenant.ID, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deleted := decode[api.DeleteTenantResponse](t, resp)
	assert.True(t, deleted.Deleted)
	assert.Empty(t, deleted.Warnings)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tenants/"+tenant.ID, testToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstanceLifecycle(t *testing.T) {
	ts, cp, store := newTestServer(t)
	expectHappyPath(cp)

	tenant, err := store.CreateTenant("Acme Corp", "")
	require.NoError(t, err)
	base := ts.URL + "/api/tenants/" + tenant.ID + "/instances"

	resp := doJSON(t, http.MethodPost, base, testToken, api.CreateInstanceRequest{Name: "Demo Space"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.CreateInstanceResponse](t, resp)
	require.NotNil(t, created.Instance)
	assert.Equal(t, "Demo Space", created.Instance.Name)
	// Seven steps without a configured mesh issuer.
	assert.Len(t, created.Steps, 7)

	// Status on the detail view: no deployment yet.
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	resp = doJSON(t, http.MethodGet, base+"/"+created.Instance.ID, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[api.InstanceDetailResponse](t, resp)
	require.NotNil(t, detail.Status)
	assert.Equal(t, status.StatusNoDeployment, detail.Status.Status)

	resp = doJSON(t, http.MethodGet, base+"/"+created.Instance.ID+"/status", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cp.On("RedeployService", mock.Anything, "svc-1", "env-1").Return(nil)
	resp = doJSON(t, http.MethodPost, base+"/"+created.Instance.ID+"/redeploy", testToken, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	cp.On("DeleteProject", mock.Anything, "proj-1").Return(nil)
	resp = doJSON(t, http.MethodDelete, base+"/"+created.Instance.ID, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/"+created.Instance.ID, testToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstanceDetailReadsFreshStatus(t *testing.T) {
	ts, cp, store := newTestServer(t)

	tenant, err := store.CreateTenant("Acme Corp", "")
	require.NoError(t, err)
	require.NoError(t, store.AddInstance(tenant.ID, &registry.Instance{
		ID:     "inst-1",
		Name:   "demo",
		Remote: registry.RemoteRefs{ProjectID: "proj-1", ServiceID: "svc-1", EnvironmentID: "env-1"},
	}))

	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	url := ts.URL + "/api/tenants/" + tenant.ID + "/instances/inst-1"

	// The detail view bypasses the snapshot cache on every request.
	resp := doJSON(t, http.MethodGet, url, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, url, testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 2)

	// The plain status endpoint still serves the cached snapshot.
	resp = doJSON(t, http.MethodGet, url+"/status", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 2)
}

func TestCreateInstanceFailureReturnsSteps(t *testing.T) {
	ts, cp, store := newTestServer(t)
	cp.On("CreateProject", mock.Anything, mock.Anything).Return(interfaces.ProjectRef{ProjectID: "proj-1", EnvironmentID: "env-1"}, nil)
	cp.On("CreateService", mock.Anything, "proj-1", mock.Anything, mock.Anything).Return("svc-1", nil)
	cp.On("CreateVolume", mock.Anything, "proj-1", "env-1", "svc-1", "/data").Return("vol-1", nil)
	cp.On("UpsertVariables", mock.Anything, "proj-1", "env-1", "svc-1", mock.Anything).
		Return(&interfaces.RemoteAPIError{Operation: "variableCollectionUpsert", StatusCode: 500, Message: "boom"})

	tenant, err := store.CreateTenant("Acme Corp", "")
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tenants/"+tenant.ID+"/instances", testToken, api.CreateInstanceRequest{Name: "demo"})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decode[api.ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "variableCollectionUpsert")
	assert.Len(t, body.Steps, 3)
}

func TestLegacyRoutesUseDefaultTenant(t *testing.T) {
	ts, cp, store := newTestServer(t)
	expectHappyPath(cp)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", testToken, api.CreateInstanceRequest{Name: "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[api.CreateInstanceResponse](t, resp)

	def, err := store.DefaultTenant()
	require.NoError(t, err)
	_, err = store.GetInstance(def.ID, created.Instance.ID)
	require.NoError(t, err)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/instances", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	instances := decode[[]*registry.Instance](t, resp)
	require.Len(t, instances, 1)
}

func TestLegacyLookupSpansTenants(t *testing.T) {
	ts, cp, store := newTestServer(t)

	tenant, err := store.CreateTenant("Acme Corp", "")
	require.NoError(t, err)
	require.NoError(t, store.AddInstance(tenant.ID, &registry.Instance{
		ID:     "inst-1",
		Name:   "demo",
		Remote: registry.RemoteRefs{ProjectID: "proj-1", ServiceID: "svc-1", EnvironmentID: "env-1"},
	}))

	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	// The instance lives outside the default tenant but is still reachable
	// by ID on the unscoped route.
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/instances/inst-1", testToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[api.InstanceDetailResponse](t, resp)
	assert.Equal(t, "inst-1", detail.Instance.ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/instances/no-such-instance", testToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDrainCycle(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/readyz", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/drain", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/readyz", testToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/undrain", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/readyz", testToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
