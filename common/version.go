// Package common holds process-wide helpers shared by all commands:
// logger setup and build metadata.
package common

// PackageName identifies this service in logs and metrics.
const PackageName = "fleet-provisioning-backend"

// Version is set at build time via -ldflags.
var Version = "dev"
