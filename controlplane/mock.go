package controlplane

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
)

// MockClient is a testify mock of interfaces.ControlPlaneClient for use in
// orchestrator, resolver and handler tests.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateProject(ctx context.Context, name string) (interfaces.ProjectRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.ProjectRef), args.Error(1)
}

func (m *MockClient) DeleteProject(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

func (m *MockClient) CreateService(ctx context.Context, projectID, name, repo string) (string, error) {
	args := m.Called(ctx, projectID, name, repo)
	return args.String(0), args.Error(1)
}

func (m *MockClient) CreateVolume(ctx context.Context, projectID, environmentID, serviceID, mountPath string) (string, error) {
	args := m.Called(ctx, projectID, environmentID, serviceID, mountPath)
	return args.String(0), args.Error(1)
}

func (m *MockClient) UpsertVariables(ctx context.Context, projectID, environmentID, serviceID string, vars map[string]string) error {
	args := m.Called(ctx, projectID, environmentID, serviceID, vars)
	return args.Error(0)
}

func (m *MockClient) DeployService(ctx context.Context, serviceID, environmentID string) error {
	args := m.Called(ctx, serviceID, environmentID)
	return args.Error(0)
}

func (m *MockClient) RedeployService(ctx context.Context, serviceID, environmentID string) error {
	args := m.Called(ctx, serviceID, environmentID)
	return args.Error(0)
}

func (m *MockClient) RestartDeployment(ctx context.Context, deploymentID string) error {
	args := m.Called(ctx, deploymentID)
	return args.Error(0)
}

func (m *MockClient) LatestDeployment(ctx context.Context, projectID, serviceID, environmentID string) (*interfaces.Deployment, error) {
	args := m.Called(ctx, projectID, serviceID, environmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Deployment), args.Error(1)
}

func (m *MockClient) ServiceDomains(ctx context.Context, environmentID, serviceID string) (interfaces.ServiceDomains, error) {
	args := m.Called(ctx, environmentID, serviceID)
	return args.Get(0).(interfaces.ServiceDomains), args.Error(1)
}

func (m *MockClient) CreateServiceDomain(ctx context.Context, environmentID, serviceID string) (string, error) {
	args := m.Called(ctx, environmentID, serviceID)
	return args.String(0), args.Error(1)
}
