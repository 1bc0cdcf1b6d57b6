// Package status resolves the authoritative lifecycle status of an
// instance. It reconciles three eventually-consistent signals, the latest
// control-plane deployment, the discovered service domain and an
// application-level health probe, into one composite status label, and
// caches the result for a short, fixed interval to avoid over-querying the
// control plane.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/metrics"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
)

// Composite is the single lifecycle label derived from all raw signals.
type Composite string

const (
	StatusNoDeployment Composite = "no-deployment"
	StatusBuilding     Composite = "building"
	StatusDeploying    Composite = "deploying"
	StatusFailed       Composite = "failed"
	StatusNeedsSetup   Composite = "needs-setup"
	StatusRunning      Composite = "running"
	StatusUnhealthy    Composite = "unhealthy"
	StatusStopped      Composite = "stopped"
	StatusUnknown      Composite = "unknown"
)

const (
	// snapshotTTL bounds how stale a served snapshot may be.
	snapshotTTL = 30 * time.Second

	// probeTimeout bounds the application health probe.
	probeTimeout = 5 * time.Second

	// healthPath is the fixed application health endpoint.
	healthPath = "/api/health"
)

// Health is the application-level health payload reported by an instance.
type Health struct {
	Configured bool `json:"configured"`
	Gateway    struct {
		Reachable bool `json:"reachable"`
	} `json:"gateway"`
}

// Snapshot is the derived, cached view of one instance's live state.
type Snapshot struct {
	InstanceID string                 `json:"instance_id"`
	Deployment *interfaces.Deployment `json:"deployment,omitempty"`
	Domain     string                 `json:"domain,omitempty"`
	Health     *Health                `json:"health,omitempty"`
	Status     Composite              `json:"status"`
	ResolvedAt time.Time              `json:"resolved_at"`

	// queryFailed records that the control-plane read degraded; the
	// snapshot is still served, with StatusUnknown.
	queryFailed bool
}

// Resolver computes composite instance statuses with a 30-second snapshot
// cache keyed by instance id. The cache is unbounded; fleet sizes are small.
type Resolver struct {
	cp    interfaces.ControlPlaneClient
	probe *http.Client
	log   *slog.Logger

	mu    sync.Mutex
	cache map[string]*Snapshot

	// replaceable in tests
	now         func() time.Time
	probeScheme string
}

// NewResolver creates a status resolver on top of the control-plane client.
func NewResolver(cp interfaces.ControlPlaneClient, log *slog.Logger) *Resolver {
	return &Resolver{
		cp:          cp,
		probe:       &http.Client{Timeout: probeTimeout},
		log:         log,
		cache:       map[string]*Snapshot{},
		now:         time.Now,
		probeScheme: "https",
	}
}

// Resolve returns the current snapshot for an instance. A snapshot computed
// less than 30 seconds ago is returned unchanged unless force is set; detail
// views meant for a human use force to always read fresh state.
//
// Resolve never fails: control-plane errors degrade the composite status to
// "unknown" and a probe failure is treated as missing health data.
func (r *Resolver) Resolve(ctx context.Context, inst *registry.Instance, force bool) *Snapshot {
	r.mu.Lock()
	cached, ok := r.cache[inst.ID]
	r.mu.Unlock()

	if ok && !force && r.now().Sub(cached.ResolvedAt) < snapshotTTL {
		metrics.StatusCacheHits.Inc()
		return cached
	}
	metrics.StatusCacheMisses.Inc()

	snap := r.resolve(ctx, inst)

	r.mu.Lock()
	r.cache[inst.ID] = snap
	r.mu.Unlock()
	return snap
}

// Invalidate evicts an instance's cache entry. Every lifecycle-mutating
// operation (redeploy, restart, delete) must call it so the next status read
// is fresh.
func (r *Resolver) Invalidate(instanceID string) {
	r.mu.Lock()
	delete(r.cache, instanceID)
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context, inst *registry.Instance) *Snapshot {
	snap := &Snapshot{
		InstanceID: inst.ID,
		ResolvedAt: r.now(),
	}

	deployment, err := r.cp.LatestDeployment(ctx, inst.Remote.ProjectID, inst.Remote.ServiceID, inst.Remote.EnvironmentID)
	if err != nil {
		r.log.Warn("Deployment query failed, degrading status", "err", err, "instanceID", inst.ID)
		snap.queryFailed = true
	}
	snap.Deployment = deployment

	domains, err := r.cp.ServiceDomains(ctx, inst.Remote.EnvironmentID, inst.Remote.ServiceID)
	if err != nil {
		r.log.Warn("Domain query failed", "err", err, "instanceID", inst.ID)
	} else {
		snap.Domain = domains.Preferred()
	}

	if !snap.queryFailed && snap.Domain != "" &&
		deployment != nil && deployment.Status == interfaces.DeployStatusSuccess {
		snap.Health = r.probeHealth(ctx, snap.Domain)
	}

	snap.Status = deriveComposite(snap)
	return snap
}

// probeHealth issues the application health probe. Any failure (transport,
// timeout, non-2xx, malformed body) yields nil: "no health data", not an
// error.
func (r *Resolver) probeHealth(ctx context.Context, domain string) *Health {
	url := r.probeScheme + "://" + domain + healthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}

	resp, err := r.probe.Do(req)
	if err != nil {
		r.log.Debug("Health probe failed", "err", err, "url", url)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	var health Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		r.log.Debug("Health probe returned malformed body", "err", err, "url", url)
		return nil
	}
	return &health
}

// deriveComposite applies the status decision table, top to bottom, first
// match wins.
func deriveComposite(snap *Snapshot) Composite {
	if snap.queryFailed {
		return StatusUnknown
	}
	if snap.Deployment == nil {
		return StatusNoDeployment
	}

	switch snap.Deployment.Status {
	case interfaces.DeployStatusBuilding:
		return StatusBuilding
	case interfaces.DeployStatusDeploying:
		return StatusDeploying
	case interfaces.DeployStatusFailed, interfaces.DeployStatusCrashed:
		return StatusFailed
	case interfaces.DeployStatusSuccess:
		if snap.Health == nil {
			return StatusUnhealthy
		}
		if !snap.Health.Configured {
			return StatusNeedsSetup
		}
		if snap.Health.Gateway.Reachable {
			return StatusRunning
		}
		return StatusUnhealthy
	case interfaces.DeployStatusRemoved:
		return StatusStopped
	default:
		return StatusUnknown
	}
}
