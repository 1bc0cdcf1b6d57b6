package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/metrics"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
)

// Variable names injected into every provisioned service.
const (
	varSetupPassword = "SETUP_PASSWORD"
	varGatewayToken  = "GATEWAY_TOKEN"
	varStateDir      = "STATE_DIR"
	varWorkspaceDir  = "WORKSPACE_DIR"
	varPort          = "PORT"
	varMeshAuthKey   = "TAILSCALE_AUTHKEY"
	varMeshHostname  = "TAILSCALE_HOSTNAME"
)

// Config carries the process-wide provisioning settings. It is passed in
// explicitly at construction so tests can substitute their own.
type Config struct {
	// SourceRepo is the fixed source repository every service deploys from.
	SourceRepo string

	// ServicePrefix namespaces remote service names.
	ServicePrefix string

	// VolumeMountPath is where the persistent volume is mounted.
	VolumeMountPath string

	// StateDir and WorkspaceDir are the fixed application directory paths
	// injected as variables.
	StateDir     string
	WorkspaceDir string

	// ListenPort is the port the application listens on.
	ListenPort int
}

// Orchestrator creates and tears down instances end-to-end.
type Orchestrator struct {
	cfg   Config
	cp    interfaces.ControlPlaneClient
	mesh  interfaces.MeshKeyIssuer
	store *registry.FileStore
	log   *slog.Logger
}

// NewOrchestrator wires the orchestrator up. mesh may be unconfigured; the
// mesh attachment step is skipped then.
func NewOrchestrator(cfg Config, cp interfaces.ControlPlaneClient, mesh interfaces.MeshKeyIssuer, store *registry.FileStore, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		cp:    cp,
		mesh:  mesh,
		store: store,
		log:   log,
	}
}

// CreateInstance provisions one new instance for a tenant. It returns the
// committed instance together with the step log; on failure the log collected
// so far is returned with the error. Remote resources created before the
// failing step are not rolled back.
//
// There is no idempotency: calling twice with the same name creates two
// independent projects and two instances.
func (o *Orchestrator) CreateInstance(ctx context.Context, tenantID, name, setupPassword, notes string) (*registry.Instance, []string, error) {
	tenant, err := o.store.GetTenant(tenantID)
	if err != nil {
		return nil, nil, err
	}

	sanitized := registry.SanitizeName(name)
	if sanitized == "" {
		return nil, nil, registry.ErrInvalidName
	}

	var steps []string
	fail := func(err error) (*registry.Instance, []string, error) {
		metrics.ProvisioningRuns.WithLabelValues("failure").Inc()
		return nil, steps, err
	}

	// Step 1: project. Non-default tenants get their slug in the project
	// name; default-tenant names stay short.
	projectName := sanitized
	if tenant.Slug != registry.DefaultTenantSlug {
		projectName = tenant.Slug + "-" + sanitized
	}
	ref, err := o.cp.CreateProject(ctx, projectName)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, fmt.Sprintf("created project %q (project %s, environment %s)", projectName, ref.ProjectID, ref.EnvironmentID))

	// Step 2: service from the fixed source repository.
	serviceName := o.serviceName(sanitized)
	serviceID, err := o.cp.CreateService(ctx, ref.ProjectID, serviceName, o.cfg.SourceRepo)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, fmt.Sprintf("created service %q (service %s) from %s", serviceName, serviceID, o.cfg.SourceRepo))

	// Step 3: persistent volume.
	volumeID, err := o.cp.CreateVolume(ctx, ref.ProjectID, ref.EnvironmentID, serviceID, o.cfg.VolumeMountPath)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, fmt.Sprintf("created volume %s mounted at %s", volumeID, o.cfg.VolumeMountPath))

	// Step 4: variables. Existing keys are never overwritten.
	if setupPassword == "" {
		setupPassword = randomHex(16)
	}
	gatewayToken := randomHex(32)
	vars := map[string]string{
		varSetupPassword: setupPassword,
		varGatewayToken:  gatewayToken,
		varStateDir:      o.cfg.StateDir,
		varWorkspaceDir:  o.cfg.WorkspaceDir,
		varPort:          strconv.Itoa(o.cfg.ListenPort),
	}
	if err := o.cp.UpsertVariables(ctx, ref.ProjectID, ref.EnvironmentID, serviceID, vars); err != nil {
		return fail(err)
	}
	steps = append(steps, "configured service variables (setup password, gateway token, paths, port)")

	// Step 5 (best-effort): mesh attachment.
	meshHostname := o.attachMesh(ctx, ref, serviceID, serviceName, &steps)

	// Step 6 (best-effort): public domain. A domain may also be assigned
	// asynchronously later.
	if domain, err := o.cp.CreateServiceDomain(ctx, ref.EnvironmentID, serviceID); err != nil {
		o.log.Warn("Domain request failed, continuing", "err", err, "serviceID", serviceID)
		steps = append(steps, fmt.Sprintf("domain request failed (continuing): %v", err))
	} else {
		steps = append(steps, fmt.Sprintf("requested public domain %s", domain))
	}

	// Step 7: first deployment.
	if err := o.cp.DeployService(ctx, serviceID, ref.EnvironmentID); err != nil {
		return fail(err)
	}
	steps = append(steps, "triggered initial deployment")

	// Step 8: commit to the registry. The instance is only ever persisted
	// fully built.
	inst := &registry.Instance{
		ID:        uuid.NewString(),
		Name:      sanitized,
		CreatedAt: time.Now().UTC(),
		Notes:     notes,
		Remote: registry.RemoteRefs{
			ProjectID:     ref.ProjectID,
			ServiceID:     serviceID,
			EnvironmentID: ref.EnvironmentID,
			VolumeID:      volumeID,
		},
		Secrets: registry.Secrets{
			SetupPassword: setupPassword,
			GatewayToken:  gatewayToken,
		},
		MeshHostname: meshHostname,
	}
	if err := o.store.AddInstance(tenant.ID, inst); err != nil {
		return fail(err)
	}
	steps = append(steps, fmt.Sprintf("registered instance %s with tenant %q", inst.ID, tenant.Slug))

	metrics.ProvisioningRuns.WithLabelValues("success").Inc()
	o.log.Info("Provisioned instance", "instanceID", inst.ID, "tenant", tenant.Slug, "project", ref.ProjectID)
	return inst, steps, nil
}

// attachMesh runs the optional mesh attachment step. Every failure is logged
// into the step log and swallowed; it returns the device hostname on success
// and an empty string otherwise.
func (o *Orchestrator) attachMesh(ctx context.Context, ref interfaces.ProjectRef, serviceID, hostname string, steps *[]string) string {
	if o.mesh == nil || !o.mesh.Configured() {
		return ""
	}

	token, err := o.mesh.Token(ctx)
	if err != nil {
		o.log.Warn("Mesh token exchange failed, continuing", "err", err)
		*steps = append(*steps, fmt.Sprintf("mesh attachment failed (continuing): %v", err))
		return ""
	}

	key, err := o.mesh.CreateKey(ctx, token, hostname)
	if err != nil {
		o.log.Warn("Mesh key issuance failed, continuing", "err", err)
		*steps = append(*steps, fmt.Sprintf("mesh attachment failed (continuing): %v", err))
		return ""
	}

	vars := map[string]string{
		varMeshAuthKey:  key.Key,
		varMeshHostname: hostname,
	}
	if err := o.cp.UpsertVariables(ctx, ref.ProjectID, ref.EnvironmentID, serviceID, vars); err != nil {
		o.log.Warn("Mesh variable upsert failed, continuing", "err", err)
		*steps = append(*steps, fmt.Sprintf("mesh attachment failed (continuing): %v", err))
		return ""
	}

	*steps = append(*steps, fmt.Sprintf("attached to mesh network as %q (key %s)", hostname, key.ID))
	return hostname
}

// serviceName derives the remote service name: lowercase, hyphens for
// whitespace, only [a-z0-9-], under a fixed namespace prefix.
func (o *Orchestrator) serviceName(sanitized string) string {
	s := strings.ToLower(sanitized)
	s = strings.Join(strings.Fields(s), "-")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return o.cfg.ServicePrefix + b.String()
}

// RedeployInstance redeploys an instance from its current source.
func (o *Orchestrator) RedeployInstance(ctx context.Context, inst *registry.Instance) error {
	return o.cp.RedeployService(ctx, inst.Remote.ServiceID, inst.Remote.EnvironmentID)
}

// RestartInstance restarts the latest deployment in place, falling back to a
// fresh deployment when the instance has never been deployed.
func (o *Orchestrator) RestartInstance(ctx context.Context, inst *registry.Instance) error {
	dep, err := o.cp.LatestDeployment(ctx, inst.Remote.ProjectID, inst.Remote.ServiceID, inst.Remote.EnvironmentID)
	if err != nil {
		return err
	}
	if dep == nil {
		return o.cp.DeployService(ctx, inst.Remote.ServiceID, inst.Remote.EnvironmentID)
	}
	return o.cp.RestartDeployment(ctx, dep.ID)
}
