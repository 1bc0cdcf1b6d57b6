package interfaces

import "context"

// ControlPlaneClient provides typed access to the remote control plane.
// All calls are blocking and bounded by the client's transport behavior;
// an HTTP 429 response is retried once internally.
type ControlPlaneClient interface {
	// CreateProject creates a project and returns its id together with the
	// id of its default environment.
	CreateProject(ctx context.Context, name string) (ProjectRef, error)

	// DeleteProject tears down a project and everything in it.
	DeleteProject(ctx context.Context, projectID string) error

	// CreateService creates a service inside a project from a named source
	// repository and returns the service id.
	CreateService(ctx context.Context, projectID, name, repo string) (string, error)

	// CreateVolume creates a persistent volume attached to a service at the
	// given mount path and returns the volume id.
	CreateVolume(ctx context.Context, projectID, environmentID, serviceID, mountPath string) (string, error)

	// UpsertVariables adds environment variables to a service instance.
	// Variables that already exist keep their current value.
	UpsertVariables(ctx context.Context, projectID, environmentID, serviceID string, vars map[string]string) error

	// DeployService triggers a deployment of a service instance.
	DeployService(ctx context.Context, serviceID, environmentID string) error

	// RedeployService redeploys a service instance from its current source.
	RedeployService(ctx context.Context, serviceID, environmentID string) error

	// RestartDeployment restarts a running deployment in place.
	RestartDeployment(ctx context.Context, deploymentID string) error

	// LatestDeployment returns the most recent deployment of a service, or
	// nil when the service has never been deployed.
	LatestDeployment(ctx context.Context, projectID, serviceID, environmentID string) (*Deployment, error)

	// ServiceDomains returns the domains currently attached to a service.
	ServiceDomains(ctx context.Context, environmentID, serviceID string) (ServiceDomains, error)

	// CreateServiceDomain requests a public domain for a service and
	// returns the assigned domain name.
	CreateServiceDomain(ctx context.Context, environmentID, serviceID string) (string, error)
}

// MeshKeyIssuer issues one-time join credentials for the private mesh
// network. Implementations must be safe to call when unconfigured:
// Configured reports whether credentials are present.
type MeshKeyIssuer interface {
	Configured() bool

	// Token performs the OAuth client-credentials exchange and returns a
	// bearer token for the key API.
	Token(ctx context.Context) (string, error)

	// CreateKey requests a single-use, pre-authorized, tagged join key for
	// the given device hostname.
	CreateKey(ctx context.Context, token, hostname string) (AuthKey, error)
}
