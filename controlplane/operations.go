package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetworks/fleet-provisioning-backend/interfaces"
)

// GraphQL documents for the operations the service needs. Field selections
// are kept minimal: only identifiers and coarse status are ever read.
const (
	createProjectMutation = `mutation projectCreate($input: ProjectCreateInput!) {
  projectCreate(input: $input) {
    id
    environments { edges { node { id name } } }
  }
}`

	deleteProjectMutation = `mutation projectDelete($id: String!) {
  projectDelete(id: $id)
}`

	createServiceMutation = `mutation serviceCreate($input: ServiceCreateInput!) {
  serviceCreate(input: $input) { id }
}`

	createVolumeMutation = `mutation volumeCreate($input: VolumeCreateInput!) {
  volumeCreate(input: $input) { id }
}`

	upsertVariablesMutation = `mutation variableCollectionUpsert($input: VariableCollectionUpsertInput!) {
  variableCollectionUpsert(input: $input)
}`

	deployServiceMutation = `mutation serviceInstanceDeploy($serviceId: String!, $environmentId: String!) {
  serviceInstanceDeploy(serviceId: $serviceId, environmentId: $environmentId)
}`

	redeployServiceMutation = `mutation serviceInstanceRedeploy($serviceId: String!, $environmentId: String!) {
  serviceInstanceRedeploy(serviceId: $serviceId, environmentId: $environmentId)
}`

	restartDeploymentMutation = `mutation deploymentRestart($id: String!) {
  deploymentRestart(id: $id)
}`

	latestDeploymentQuery = `query deployments($input: DeploymentListInput!) {
  deployments(input: $input, first: 1) {
    edges { node { id status createdAt } }
  }
}`

	serviceDomainsQuery = `query domains($environmentId: String!, $serviceId: String!) {
  domains(environmentId: $environmentId, serviceId: $serviceId) {
    customDomains { domain }
    serviceDomains { domain }
  }
}`

	createServiceDomainMutation = `mutation serviceDomainCreate($input: ServiceDomainCreateInput!) {
  serviceDomainCreate(input: $input) { domain }
}`
)

// CreateProject creates a project and captures the id of its default
// environment from the creation response. The first environment named
// "production" is preferred, falling back to the first one listed.
func (c *Client) CreateProject(ctx context.Context, name string) (interfaces.ProjectRef, error) {
	data, err := c.Execute(ctx, "projectCreate", createProjectMutation, map[string]any{
		"input": map[string]any{"name": name},
	})
	if err != nil {
		return interfaces.ProjectRef{}, err
	}

	var out struct {
		ProjectCreate struct {
			ID           string `json:"id"`
			Environments struct {
				Edges []struct {
					Node struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"environments"`
		} `json:"projectCreate"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return interfaces.ProjectRef{}, &interfaces.RemoteAPIError{Operation: "projectCreate", Err: err}
	}

	ref := interfaces.ProjectRef{ProjectID: out.ProjectCreate.ID}
	for _, edge := range out.ProjectCreate.Environments.Edges {
		if ref.EnvironmentID == "" || edge.Node.Name == "production" {
			ref.EnvironmentID = edge.Node.ID
		}
	}
	if ref.ProjectID == "" || ref.EnvironmentID == "" {
		return interfaces.ProjectRef{}, &interfaces.RemoteAPIError{
			Operation: "projectCreate",
			Message:   "response missing project or environment id",
		}
	}
	return ref, nil
}

// DeleteProject tears down a project and all resources in it.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	_, err := c.Execute(ctx, "projectDelete", deleteProjectMutation, map[string]any{
		"id": projectID,
	})
	return err
}

// CreateService creates a service from a named source repository.
func (c *Client) CreateService(ctx context.Context, projectID, name, repo string) (string, error) {
	data, err := c.Execute(ctx, "serviceCreate", createServiceMutation, map[string]any{
		"input": map[string]any{
			"projectId": projectID,
			"name":      name,
			"source":    map[string]any{"repo": repo},
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ServiceCreate struct {
			ID string `json:"id"`
		} `json:"serviceCreate"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &interfaces.RemoteAPIError{Operation: "serviceCreate", Err: err}
	}
	return out.ServiceCreate.ID, nil
}

// CreateVolume creates a persistent volume mounted into the service.
func (c *Client) CreateVolume(ctx context.Context, projectID, environmentID, serviceID, mountPath string) (string, error) {
	data, err := c.Execute(ctx, "volumeCreate", createVolumeMutation, map[string]any{
		"input": map[string]any{
			"projectId":     projectID,
			"environmentId": environmentID,
			"serviceId":     serviceID,
			"mountPath":     mountPath,
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		VolumeCreate struct {
			ID string `json:"id"`
		} `json:"volumeCreate"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &interfaces.RemoteAPIError{Operation: "volumeCreate", Err: err}
	}
	return out.VolumeCreate.ID, nil
}

// UpsertVariables adds variables to a service instance. Existing keys keep
// their current value (replace=false).
func (c *Client) UpsertVariables(ctx context.Context, projectID, environmentID, serviceID string, vars map[string]string) error {
	_, err := c.Execute(ctx, "variableCollectionUpsert", upsertVariablesMutation, map[string]any{
		"input": map[string]any{
			"projectId":     projectID,
			"environmentId": environmentID,
			"serviceId":     serviceID,
			"variables":     vars,
			"replace":       false,
		},
	})
	return err
}

// DeployService triggers a deployment of the service instance.
func (c *Client) DeployService(ctx context.Context, serviceID, environmentID string) error {
	_, err := c.Execute(ctx, "serviceInstanceDeploy", deployServiceMutation, map[string]any{
		"serviceId":     serviceID,
		"environmentId": environmentID,
	})
	return err
}

// RedeployService redeploys the service instance from its current source.
func (c *Client) RedeployService(ctx context.Context, serviceID, environmentID string) error {
	_, err := c.Execute(ctx, "serviceInstanceRedeploy", redeployServiceMutation, map[string]any{
		"serviceId":     serviceID,
		"environmentId": environmentID,
	})
	return err
}

// RestartDeployment restarts a running deployment in place.
func (c *Client) RestartDeployment(ctx context.Context, deploymentID string) error {
	_, err := c.Execute(ctx, "deploymentRestart", restartDeploymentMutation, map[string]any{
		"id": deploymentID,
	})
	return err
}

// LatestDeployment returns the most recent deployment record for a service,
// or nil when the service has never been deployed.
func (c *Client) LatestDeployment(ctx context.Context, projectID, serviceID, environmentID string) (*interfaces.Deployment, error) {
	data, err := c.Execute(ctx, "deployments", latestDeploymentQuery, map[string]any{
		"input": map[string]any{
			"projectId":     projectID,
			"serviceId":     serviceID,
			"environmentId": environmentID,
		},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Deployments struct {
			Edges []struct {
				Node struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					CreatedAt string `json:"createdAt"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"deployments"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &interfaces.RemoteAPIError{Operation: "deployments", Err: err}
	}
	if len(out.Deployments.Edges) == 0 {
		return nil, nil
	}

	node := out.Deployments.Edges[0].Node
	createdAt, err := time.Parse(time.RFC3339, node.CreatedAt)
	if err != nil {
		return nil, &interfaces.RemoteAPIError{
			Operation: "deployments",
			Message:   fmt.Sprintf("bad createdAt %q", node.CreatedAt),
		}
	}
	return &interfaces.Deployment{ID: node.ID, Status: node.Status, CreatedAt: createdAt}, nil
}

// ServiceDomains returns the custom and control-plane assigned domains of a
// service.
func (c *Client) ServiceDomains(ctx context.Context, environmentID, serviceID string) (interfaces.ServiceDomains, error) {
	data, err := c.Execute(ctx, "domains", serviceDomainsQuery, map[string]any{
		"environmentId": environmentID,
		"serviceId":     serviceID,
	})
	if err != nil {
		return interfaces.ServiceDomains{}, err
	}

	var out struct {
		Domains struct {
			CustomDomains []struct {
				Domain string `json:"domain"`
			} `json:"customDomains"`
			ServiceDomains []struct {
				Domain string `json:"domain"`
			} `json:"serviceDomains"`
		} `json:"domains"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return interfaces.ServiceDomains{}, &interfaces.RemoteAPIError{Operation: "domains", Err: err}
	}

	var domains interfaces.ServiceDomains
	for _, d := range out.Domains.CustomDomains {
		domains.Custom = append(domains.Custom, d.Domain)
	}
	for _, d := range out.Domains.ServiceDomains {
		domains.Assigned = append(domains.Assigned, d.Domain)
	}
	return domains, nil
}

// CreateServiceDomain requests a public domain for the service instance.
func (c *Client) CreateServiceDomain(ctx context.Context, environmentID, serviceID string) (string, error) {
	data, err := c.Execute(ctx, "serviceDomainCreate", createServiceDomainMutation, map[string]any{
		"input": map[string]any{
			"environmentId": environmentID,
			"serviceId":     serviceID,
		},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ServiceDomainCreate struct {
			Domain string `json:"domain"`
		} `json:"serviceDomainCreate"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &interfaces.RemoteAPIError{Operation: "serviceDomainCreate", Err: err}
	}
	return out.ServiceDomainCreate.Domain, nil
}
