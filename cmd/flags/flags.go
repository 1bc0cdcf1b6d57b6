// Package flags holds the CLI flags and setup helpers shared by the service
// binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/fleetworks/fleet-provisioning-backend/api"
	"github.com/fleetworks/fleet-provisioning-backend/common"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		AuthToken:                cCtx.String(APITokenFlag.Name),
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	EnvVars: []string{"LISTEN_ADDR"},
	Usage:   "address to listen on for API",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	EnvVars: []string{"METRICS_ADDR"},
	Usage:   "address to listen on for Prometheus metrics",
}
var APITokenFlag = &cli.StringFlag{
	Name:     "api-token",
	Required: true,
	EnvVars:  []string{"API_TOKEN"},
	Usage:    "shared secret required as a bearer token on every API request",
}
var RegistryPathFlag = &cli.StringFlag{
	Name:    "registry-path",
	Value:   "instances.json",
	EnvVars: []string{"REGISTRY_PATH"},
	Usage:   "path of the instance registry file",
}

var ControlPlaneEndpointFlag = &cli.StringFlag{
	Name:    "controlplane-endpoint",
	Value:   "https://backboard.railway.com/graphql/v2",
	EnvVars: []string{"CONTROLPLANE_ENDPOINT"},
	Usage:   "GraphQL endpoint of the deployment control plane",
}
var ControlPlaneTokenFlag = &cli.StringFlag{
	Name:     "controlplane-token",
	Required: true,
	EnvVars:  []string{"CONTROLPLANE_TOKEN"},
	Usage:    "API token for the deployment control plane",
}

var MeshClientIDFlag = &cli.StringFlag{
	Name:    "mesh-client-id",
	EnvVars: []string{"MESH_CLIENT_ID"},
	Usage:   "OAuth client ID for the mesh network API (optional)",
}
var MeshClientSecretFlag = &cli.StringFlag{
	Name:    "mesh-client-secret",
	EnvVars: []string{"MESH_CLIENT_SECRET"},
	Usage:   "OAuth client secret for the mesh network API (optional)",
}
var MeshTailnetFlag = &cli.StringFlag{
	Name:    "mesh-tailnet",
	EnvVars: []string{"MESH_TAILNET"},
	Usage:   "tailnet the issued device keys belong to",
}
var MeshTagFlag = &cli.StringFlag{
	Name:    "mesh-tag",
	Value:   "tag:workspace",
	EnvVars: []string{"MESH_TAG"},
	Usage:   "ACL tag applied to issued device keys",
}

var SourceRepoFlag = &cli.StringFlag{
	Name:    "source-repo",
	Value:   "fleetworks/workspace-app",
	EnvVars: []string{"SOURCE_REPO"},
	Usage:   "source repository every provisioned service deploys from",
}
var ServicePrefixFlag = &cli.StringFlag{
	Name:    "service-prefix",
	Value:   "ws-",
	EnvVars: []string{"SERVICE_PREFIX"},
	Usage:   "prefix of remote service names",
}
var VolumeMountPathFlag = &cli.StringFlag{
	Name:    "volume-mount-path",
	Value:   "/data",
	EnvVars: []string{"VOLUME_MOUNT_PATH"},
	Usage:   "mount path of the persistent volume in provisioned services",
}
var StateDirFlag = &cli.StringFlag{
	Name:    "instance-state-dir",
	Value:   "/data/state",
	EnvVars: []string{"INSTANCE_STATE_DIR"},
	Usage:   "state directory injected into provisioned services",
}
var WorkspaceDirFlag = &cli.StringFlag{
	Name:    "instance-workspace-dir",
	Value:   "/data/workspace",
	EnvVars: []string{"INSTANCE_WORKSPACE_DIR"},
	Usage:   "workspace directory injected into provisioned services",
}
var InstancePortFlag = &cli.IntFlag{
	Name:    "instance-port",
	Value:   8080,
	EnvVars: []string{"INSTANCE_PORT"},
	Usage:   "port provisioned services listen on",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

var CommonFlags = []cli.Flag{
	LogJSONFlag,
	LogDebugFlag,
	LogUIDFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
