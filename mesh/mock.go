package mesh

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
)

// MockIssuer is a testify mock of interfaces.MeshKeyIssuer.
type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockIssuer) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockIssuer) CreateKey(ctx context.Context, token, hostname string) (interfaces.AuthKey, error) {
	args := m.Called(ctx, token, hostname)
	return args.Get(0).(interfaces.AuthKey), args.Error(1)
}
