package api

import (
	"github.com/fleetworks/fleet-provisioning-backend/registry"
	"github.com/fleetworks/fleet-provisioning-backend/status"
)

// CreateTenantRequest creates a new tenant. The name is sanitized and the
// slug is derived from it server-side.
type CreateTenantRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

// UpdateTenantRequest edits a tenant. Nil fields are left unchanged;
// renaming recomputes the slug.
type UpdateTenantRequest struct {
	Name  *string `json:"name,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// TenantDetailResponse is one tenant together with its instances.
type TenantDetailResponse struct {
	Tenant    *registry.Tenant     `json:"tenant"`
	Instances []*registry.Instance `json:"instances"`
}

// DeleteTenantResponse reports a cascade delete. Warnings list the remote
// deletions that failed; the tenant record is removed regardless.
type DeleteTenantResponse struct {
	Deleted  bool     `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`
}

// CreateInstanceRequest provisions a new instance. SetupPassword is
// generated when absent.
type CreateInstanceRequest struct {
	Name          string `json:"name"`
	SetupPassword string `json:"setup_password,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// UpdateInstanceRequest edits an instance. Only notes are mutable.
type UpdateInstanceRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// CreateInstanceResponse returns the committed instance and the workflow
// step log.
type CreateInstanceResponse struct {
	Instance *registry.Instance `json:"instance"`
	Steps    []string           `json:"steps"`
}

// InstanceDetailResponse is one instance together with a status snapshot.
type InstanceDetailResponse struct {
	Instance *registry.Instance `json:"instance"`
	Status   *status.Snapshot   `json:"status"`
}

// ErrorResponse is the JSON error body. Steps carries the partial
// provisioning step log when a workflow aborted midway.
type ErrorResponse struct {
	Error string   `json:"error"`
	Steps []string `json:"steps,omitempty"`
}
