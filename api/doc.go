// Package api defines the HTTP surface of the fleet provisioning service:
// the server configuration and the request/response types shared between the
// server and API consumers.
package api
