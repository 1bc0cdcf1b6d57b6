// Package interfaces defines the collaborator contracts and shared types of
// the fleet provisioning service, separating interface definitions from
// implementations.
//
// # Collaborators
//
// ControlPlaneClient: Typed access to the remote control plane that owns the
// actual compute resources (projects, services, volumes, domains,
// deployments). Implemented by the controlplane package.
//
// MeshKeyIssuer: Optional issuer of one-time join credentials for the
// private mesh network. Implemented by the mesh package; absent when the
// process has no mesh credentials configured.
//
// # Shared Types
//
// Deployment, ProjectRef, ServiceDomains and AuthKey carry control-plane and
// mesh responses across package boundaries. RemoteAPIError wraps any
// upstream failure together with the HTTP status it came with.
package interfaces
