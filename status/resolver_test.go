package status

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fleetworks/fleet-provisioning-backend/controlplane"
	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
)

func testInstance() *registry.Instance {
	return &registry.Instance{
		ID:   "inst-1",
		Name: "workspace",
		Remote: registry.RemoteRefs{
			ProjectID:     "proj-1",
			ServiceID:     "svc-1",
			EnvironmentID: "env-1",
		},
	}
}

func newTestResolver(cp interfaces.ControlPlaneClient) *Resolver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewResolver(cp, logger)
	r.probeScheme = "http"
	return r
}

func successDeployment() *interfaces.Deployment {
	return &interfaces.Deployment{
		ID:        "dep-1",
		Status:    interfaces.DeployStatusSuccess,
		CreatedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestResolveRunning(t *testing.T) {
	probeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, healthPath, r.URL.Path)
		w.Write([]byte(`{"configured":true,"gateway":{"reachable":true}}`))
	}))
	defer probeSrv.Close()
	domain := probeSrv.Listener.Addr().String()

	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(successDeployment(), nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{Assigned: []string{domain}}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)

	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, domain, snap.Domain)
	require.NotNil(t, snap.Health)
	assert.True(t, snap.Health.Configured)
}

func TestResolveProbeFailureIsUnhealthy(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(successDeployment(), nil)
	// Nothing listens here, the probe fails and health data stays absent.
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{Assigned: []string{"127.0.0.1:1"}}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)

	assert.Equal(t, StatusUnhealthy, snap.Status)
	assert.Nil(t, snap.Health)
}

func TestResolveNeedsSetup(t *testing.T) {
	probeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"configured":false,"gateway":{"reachable":false}}`))
	}))
	defer probeSrv.Close()

	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(successDeployment(), nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{Assigned: []string{probeSrv.Listener.Addr().String()}}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)
	assert.Equal(t, StatusNeedsSetup, snap.Status)
}

func TestResolveBuildingSkipsProbe(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(&interfaces.Deployment{
		ID: "dep-1", Status: interfaces.DeployStatusBuilding,
	}, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{Assigned: []string{"example.invalid"}}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)
	assert.Equal(t, StatusBuilding, snap.Status)
	assert.Nil(t, snap.Health)
}

func TestResolveNoDeployment(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)
	assert.Equal(t, StatusNoDeployment, snap.Status)
}

func TestResolveQueryErrorDegradesToUnknown(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, &interfaces.RemoteAPIError{Operation: "deployments", StatusCode: 500})
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)
	assert.Equal(t, StatusUnknown, snap.Status)
}

func TestResolveRemovedIsStopped(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(&interfaces.Deployment{
		ID: "dep-1", Status: interfaces.DeployStatusRemoved,
	}, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	snap := newTestResolver(cp).Resolve(context.Background(), testInstance(), false)
	assert.Equal(t, StatusStopped, snap.Status)
}

func TestSnapshotCache(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	resolver := newTestResolver(cp)
	current := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	resolver.now = func() time.Time { return current }

	inst := testInstance()
	first := resolver.Resolve(context.Background(), inst, false)

	// Within the TTL the identical snapshot is served without a new query.
	current = current.Add(29 * time.Second)
	second := resolver.Resolve(context.Background(), inst, false)
	assert.Same(t, first, second)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 1)

	// Past the TTL a fresh query happens.
	current = current.Add(2 * time.Second)
	third := resolver.Resolve(context.Background(), inst, false)
	assert.NotSame(t, first, third)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 2)
}

func TestForceBypassesCache(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	resolver := newTestResolver(cp)
	inst := testInstance()

	resolver.Resolve(context.Background(), inst, false)
	resolver.Resolve(context.Background(), inst, true)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 2)
}

func TestInvalidateEvicts(t *testing.T) {
	cp := new(controlplane.MockClient)
	cp.On("LatestDeployment", mock.Anything, "proj-1", "svc-1", "env-1").Return(nil, nil)
	cp.On("ServiceDomains", mock.Anything, "env-1", "svc-1").Return(interfaces.ServiceDomains{}, nil)

	resolver := newTestResolver(cp)
	inst := testInstance()

	resolver.Resolve(context.Background(), inst, false)
	resolver.Invalidate(inst.ID)
	resolver.Resolve(context.Background(), inst, false)
	cp.AssertNumberOfCalls(t, "LatestDeployment", 2)
}
