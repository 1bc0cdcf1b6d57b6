package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fleetworks/fleet-provisioning-backend/cmd/flags"
	"github.com/fleetworks/fleet-provisioning-backend/common"
	"github.com/fleetworks/fleet-provisioning-backend/controlplane"
	"github.com/fleetworks/fleet-provisioning-backend/httpserver"
	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/mesh"
	"github.com/fleetworks/fleet-provisioning-backend/provision"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
	"github.com/fleetworks/fleet-provisioning-backend/status"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.APITokenFlag,
	flags.RegistryPathFlag,
	flags.ControlPlaneEndpointFlag,
	flags.ControlPlaneTokenFlag,
	flags.MeshClientIDFlag,
	flags.MeshClientSecretFlag,
	flags.MeshTailnetFlag,
	flags.MeshTagFlag,
	flags.SourceRepoFlag,
	flags.ServicePrefixFlag,
	flags.VolumeMountPathFlag,
	flags.StateDirFlag,
	flags.WorkspaceDirFlag,
	flags.InstancePortFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:    common.PackageName,
		Usage:   "Serve the tenant and instance provisioning API",
		Version: common.Version,
		Flags:   serverFlags,
		Action:  runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	store, err := registry.NewFileStore(cCtx.String(flags.RegistryPathFlag.Name), logger)
	if err != nil {
		logger.Error("Failed to open instance registry", "err", err)
		return err
	}
	// Bootstraps and migrates the registry file up front so a broken file
	// fails the process at startup, not on the first request.
	if _, err := store.Load(); err != nil {
		logger.Error("Failed to load instance registry", "err", err)
		return err
	}

	cp := controlplane.New(controlplane.Config{
		Endpoint: cCtx.String(flags.ControlPlaneEndpointFlag.Name),
		Token:    cCtx.String(flags.ControlPlaneTokenFlag.Name),
	}, logger)

	var issuer interfaces.MeshKeyIssuer = mesh.New(mesh.Config{
		ClientID:     cCtx.String(flags.MeshClientIDFlag.Name),
		ClientSecret: cCtx.String(flags.MeshClientSecretFlag.Name),
		Tailnet:      cCtx.String(flags.MeshTailnetFlag.Name),
		Tag:          cCtx.String(flags.MeshTagFlag.Name),
	}, logger)
	if !issuer.Configured() {
		logger.Info("Mesh network credentials not configured, attachment step disabled")
	}

	orch := provision.NewOrchestrator(provision.Config{
		SourceRepo:      cCtx.String(flags.SourceRepoFlag.Name),
		ServicePrefix:   cCtx.String(flags.ServicePrefixFlag.Name),
		VolumeMountPath: cCtx.String(flags.VolumeMountPathFlag.Name),
		StateDir:        cCtx.String(flags.StateDirFlag.Name),
		WorkspaceDir:    cCtx.String(flags.WorkspaceDirFlag.Name),
		ListenPort:      cCtx.Int(flags.InstancePortFlag.Name),
	}, cp, issuer, store, logger)

	resolver := status.NewResolver(cp, logger)
	handler := httpserver.NewHandler(store, orch, resolver, logger)

	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}
