package interfaces

import (
	"fmt"
	"time"
)

// Deployment status codes reported by the control plane. Anything outside
// this set is treated as unknown by the status resolver.
const (
	DeployStatusBuilding  = "BUILDING"
	DeployStatusDeploying = "DEPLOYING"
	DeployStatusSuccess   = "SUCCESS"
	DeployStatusFailed    = "FAILED"
	DeployStatusCrashed   = "CRASHED"
	DeployStatusRemoved   = "REMOVED"
)

// Deployment is the most recent deployment record of a service, as reported
// by the control plane.
type Deployment struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectRef identifies a freshly created control-plane project together
// with its default environment.
type ProjectRef struct {
	ProjectID     string `json:"project_id"`
	EnvironmentID string `json:"environment_id"`
}

// ServiceDomains holds the domains discovered for a service. Custom domains
// take precedence over control-plane assigned ones.
type ServiceDomains struct {
	Custom   []string `json:"custom"`
	Assigned []string `json:"assigned"`
}

// Preferred returns the domain to use for reaching the service, or an empty
// string when none is assigned yet.
func (d ServiceDomains) Preferred() string {
	if len(d.Custom) > 0 {
		return d.Custom[0]
	}
	if len(d.Assigned) > 0 {
		return d.Assigned[0]
	}
	return ""
}

// AuthKey is a single-use, pre-authorized mesh network join credential.
type AuthKey struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// RemoteAPIError wraps a failure from the control plane or the mesh API,
// carrying the upstream HTTP status and message.
type RemoteAPIError struct {
	// Operation is the remote operation that failed.
	Operation string

	// StatusCode is the upstream HTTP status, 0 when the request never
	// completed.
	StatusCode int

	// Message is the upstream error message.
	Message string

	// Err is the underlying transport error, if any.
	Err error
}

func (e *RemoteAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }
