package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig carries the settings of the API server.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	// AuthToken is the shared-secret credential required on every route
	// except the liveness endpoint.
	AuthToken string

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}
