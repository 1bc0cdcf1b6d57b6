package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetworks/fleet-provisioning-backend/api"
	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
	"github.com/fleetworks/fleet-provisioning-backend/provision"
	"github.com/fleetworks/fleet-provisioning-backend/registry"
	"github.com/fleetworks/fleet-provisioning-backend/status"
)

// Handler implements the tenant and instance API on top of the registry,
// the provisioning orchestrator and the status resolver.
type Handler struct {
	store    *registry.FileStore
	orch     *provision.Orchestrator
	resolver *status.Resolver
	log      *slog.Logger
}

func NewHandler(store *registry.FileStore, orch *provision.Orchestrator, resolver *status.Resolver, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		orch:     orch,
		resolver: resolver,
		log:      log,
	}
}

// RegisterRoutes mounts the API under the given router. The unscoped
// /instances routes predate tenants and operate on the default tenant,
// except for ID lookups which search across all tenants.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.handleListTenants)
		r.Post("/", h.handleCreateTenant)
		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/", h.handleGetTenant)
			r.Patch("/", h.handleUpdateTenant)
			r.Delete("/", h.handleDeleteTenant)
			r.Route("/instances", func(r chi.Router) {
				r.Get("/", h.handleListInstances)
				r.Post("/", h.handleCreateInstance)
				r.Route("/{instanceID}", func(r chi.Router) {
					r.Get("/", h.handleGetInstance)
					r.Patch("/", h.handleUpdateInstance)
					r.Delete("/", h.handleDeleteInstance)
					r.Get("/status", h.handleInstanceStatus)
					r.Post("/redeploy", h.handleRedeployInstance)
					r.Post("/restart", h.handleRestartInstance)
				})
			})
		})
	})

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", h.legacyTenant(h.handleListInstances))
		r.Post("/", h.legacyTenant(h.handleCreateInstance))
		r.Route("/{instanceID}", func(r chi.Router) {
			r.Get("/", h.legacyInstance(h.handleGetInstance))
			r.Patch("/", h.legacyInstance(h.handleUpdateInstance))
			r.Delete("/", h.legacyInstance(h.handleDeleteInstance))
			r.Get("/status", h.legacyInstance(h.handleInstanceStatus))
			r.Post("/redeploy", h.legacyInstance(h.handleRedeployInstance))
			r.Post("/restart", h.legacyInstance(h.handleRestartInstance))
		})
	})
}

type ctxKey string

const tenantIDKey ctxKey = "tenantID"

// legacyTenant routes an unscoped collection request to the default tenant.
func (h *Handler) legacyTenant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := h.store.DefaultTenant()
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
		next(w, h.withTenantID(r, tenant.ID))
	}
}

// legacyInstance resolves an unscoped instance ID to its owning tenant.
func (h *Handler) legacyInstance(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, tenant, err := h.store.FindInstance(chi.URLParam(r, "instanceID"))
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
		next(w, h.withTenantID(r, tenant.ID))
	}
}

func (h *Handler) withTenantID(r *http.Request, tenantID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), tenantIDKey, tenantID))
}

func (h *Handler) tenantID(r *http.Request) string {
	if id, ok := r.Context().Value(tenantIDKey).(string); ok {
		return id
	}
	return chi.URLParam(r, "tenantID")
}

// Tenants

func (h *Handler) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants()
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}

	tenant, err := h.store.CreateTenant(req.Name, req.Notes)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusCreated, tenant)
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.store.GetTenant(h.tenantID(r))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	instances, err := h.store.ListInstances(tenant.ID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, api.TenantDetailResponse{Tenant: tenant, Instances: instances})
}

func (h *Handler) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}

	tenant, err := h.store.UpdateTenant(h.tenantID(r), req.Name, req.Notes)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, tenant)
}

func (h *Handler) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := h.tenantID(r)

	tenant, err := h.store.GetTenant(tenantID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	for id := range tenant.Instances {
		h.resolver.Invalidate(id)
	}

	warnings, err := h.orch.DeleteTenant(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, api.DeleteTenantResponse{Deleted: true, Warnings: warnings})
}

// Instances

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.store.ListInstances(h.tenantID(r))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, instances)
}

func (h *Handler) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req api.CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}

	inst, steps, err := h.orch.CreateInstance(r.Context(), h.tenantID(r), req.Name, req.SetupPassword, req.Notes)
	if err != nil {
		h.writeError(w, err, steps)
		return
	}
	h.writeJSON(w, http.StatusCreated, api.CreateInstanceResponse{Instance: inst, Steps: steps})
}

func (h *Handler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.store.GetInstance(h.tenantID(r), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	// The detail view is for a human inspecting one instance; always read
	// fresh state instead of serving a cached snapshot.
	snap := h.resolver.Resolve(r.Context(), inst, true)
	h.writeJSON(w, http.StatusOK, api.InstanceDetailResponse{Instance: inst, Status: snap})
}

func (h *Handler) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest, nil)
		return
	}

	inst, err := h.store.GetInstance(h.tenantID(r), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if req.Notes != nil {
		inst, err = h.store.UpdateInstanceNotes(h.tenantID(r), inst.ID, *req.Notes)
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
	}
	h.writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if err := h.orch.DeleteInstance(r.Context(), h.tenantID(r), instanceID); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.resolver.Invalidate(instanceID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) handleInstanceStatus(w http.ResponseWriter, r *http.Request) {
	inst, err := h.store.GetInstance(h.tenantID(r), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	force := r.URL.Query().Get("refresh") != ""
	h.writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context(), inst, force))
}

func (h *Handler) handleRedeployInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.store.GetInstance(h.tenantID(r), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	if err := h.orch.RedeployInstance(r.Context(), inst); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.resolver.Invalidate(inst.ID)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "redeploying"})
}

func (h *Handler) handleRestartInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.store.GetInstance(h.tenantID(r), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}

	if err := h.orch.RestartInstance(r.Context(), inst); err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.resolver.Invalidate(inst.ID)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

// Responses

var errBadRequest = errors.New("malformed request body")

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, steps []string) {
	code := http.StatusInternalServerError

	var remoteErr *interfaces.RemoteAPIError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, registry.ErrInvalidName):
		code = http.StatusBadRequest
	case errors.Is(err, registry.ErrDuplicateSlug):
		code = http.StatusConflict
	case errors.Is(err, registry.ErrTenantNotFound), errors.Is(err, registry.ErrInstanceNotFound):
		code = http.StatusNotFound
	case errors.As(err, &remoteErr):
		code = http.StatusBadGateway
	}

	if code == http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	}
	h.writeJSON(w, code, api.ErrorResponse{Error: err.Error(), Steps: steps})
}
