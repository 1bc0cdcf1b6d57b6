package provision

import (
	"context"
	"fmt"
)

// DeleteInstance tears down a single instance: the remote project is deleted
// first, and the registry record is only removed when that call succeeded. A
// failed delete leaves the record in place and is fully recoverable by
// calling again.
func (o *Orchestrator) DeleteInstance(ctx context.Context, tenantID, instanceID string) error {
	inst, err := o.store.GetInstance(tenantID, instanceID)
	if err != nil {
		return err
	}

	if inst.Remote.ProjectID != "" {
		if err := o.cp.DeleteProject(ctx, inst.Remote.ProjectID); err != nil {
			return err
		}
	}

	return o.store.RemoveInstance(tenantID, instanceID)
}

// DeleteTenant cascades over every owned instance, requesting remote project
// deletion and collecting failures into the returned warning log, then
// removes the tenant record unconditionally. Orphaned remote projects left
// by failed deletions must be reconciled out of band.
func (o *Orchestrator) DeleteTenant(ctx context.Context, tenantID string) ([]string, error) {
	tenant, err := o.store.GetTenant(tenantID)
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, inst := range tenant.Instances {
		if inst.Remote.ProjectID == "" {
			continue
		}
		if err := o.cp.DeleteProject(ctx, inst.Remote.ProjectID); err != nil {
			o.log.Warn("Remote project deletion failed during tenant cascade",
				"err", err, "instanceID", inst.ID, "projectID", inst.Remote.ProjectID)
			warnings = append(warnings, fmt.Sprintf("failed to delete project %s for instance %s: %v", inst.Remote.ProjectID, inst.ID, err))
		}
	}

	if err := o.store.RemoveTenant(tenantID); err != nil {
		return warnings, err
	}
	return warnings, nil
}
