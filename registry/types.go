package registry

import (
	"errors"
	"time"
)

// SchemaVersion is the current registry document version.
const SchemaVersion = 2

// DefaultTenantSlug is the slug of the tenant that always exists.
const DefaultTenantSlug = "default"

var (
	// ErrInvalidName is returned when a name sanitizes to an empty string.
	ErrInvalidName = errors.New("name is empty after sanitization")

	// ErrDuplicateSlug is returned when another tenant already holds the slug.
	ErrDuplicateSlug = errors.New("tenant slug already in use")

	// ErrTenantNotFound is returned when a tenant id is unknown.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInstanceNotFound is returned when an instance id is unknown.
	ErrInstanceNotFound = errors.New("instance not found")
)

// RemoteRefs holds the control-plane identifiers captured during
// provisioning. Once populated by a successful run they are never rewritten.
type RemoteRefs struct {
	ProjectID     string `json:"project_id"`
	ServiceID     string `json:"service_id"`
	EnvironmentID string `json:"environment_id"`
	VolumeID      string `json:"volume_id"`
}

// Secrets holds the credentials generated once at provisioning time.
type Secrets struct {
	SetupPassword string `json:"setup_password"`
	GatewayToken  string `json:"gateway_token"`
}

// Instance is one provisioned deployment, owned by exactly one tenant.
type Instance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
	Remote    RemoteRefs `json:"remote"`
	Secrets   Secrets    `json:"secrets"`

	// MeshHostname is set when the instance was attached to the mesh
	// network at provisioning time. Immutable once set.
	MeshHostname string `json:"mesh_hostname,omitempty"`
}

// MeshCredentials is reserved for per-tenant mesh accounts. Always absent in
// the current schema.
type MeshCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Tenant is an isolation boundary grouping one client's instances.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`

	Mesh *MeshCredentials `json:"mesh_credentials,omitempty"`

	// Instances is keyed by instance id.
	Instances map[string]*Instance `json:"instances"`
}

// TenantSummary is the list view of a tenant.
type TenantSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	CreatedAt     time.Time `json:"created_at"`
	Notes         string    `json:"notes,omitempty"`
	InstanceCount int       `json:"instance_count"`
}

// Document is the persisted envelope holding all tenants. It is the unit of
// atomic write.
type Document struct {
	Version int                `json:"version"`
	Tenants map[string]*Tenant `json:"tenants"`

	// Instances is the legacy version 1 flat map. Only read during
	// migration, never written back.
	Instances map[string]*Instance `json:"instances,omitempty"`
}
