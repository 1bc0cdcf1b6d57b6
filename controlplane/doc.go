// Package controlplane implements the typed client for the remote
// control-plane API that owns projects, services, volumes, domains and
// deployments.
//
// The API is a single GraphQL endpoint: every call goes through
// Client.Execute, an HTTPS POST with bearer-token auth. A non-2xx response
// or a non-empty error list in the response body fails the call. An HTTP 429
// triggers exactly one wait-and-retry using the server-provided Retry-After
// interval (5 seconds when absent); all other failures surface to the caller
// for operator-driven retry.
package controlplane
