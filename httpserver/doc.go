// Package httpserver implements the HTTP API of the fleet provisioning
// service.
//
// The server exposes tenant and instance management routes under /api,
// protected by a shared-secret bearer token, plus unauthenticated liveness
// and authenticated readiness/drain endpoints. A set of unscoped /api/instances
// routes is kept for clients that predate tenants; they operate on the
// default tenant, resolving instance IDs across all tenants.
package httpserver
