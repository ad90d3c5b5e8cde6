package jobs

import (
	"context"
	"fmt"

	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/types"
	"github.com/cuemby/temps/internal/workflow"
)

// ConfigureRoutesJob inserts or updates the route-table-feeding rows for
// this environment (spec §4.2).
type ConfigureRoutesJob struct {
	store         store.Store
	notifier      *store.Notifier
	UpstreamJobID string
	Domains       []string
	ProjectID     string
	EnvironmentID string
}

// NewConfigureRoutesJob builds a ConfigureRoutesJob reading
// backend_host/backend_port from upstreamJobID's outputs and routing
// every domain in domains to that backend.
func NewConfigureRoutesJob(s store.Store, notifier *store.Notifier, upstreamJobID string, domains []string, projectID, environmentID string) *ConfigureRoutesJob {
	return &ConfigureRoutesJob{store: s, notifier: notifier, UpstreamJobID: upstreamJobID, Domains: domains, ProjectID: projectID, EnvironmentID: environmentID}
}

func (j *ConfigureRoutesJob) Type() string { return TypeConfigureRoutes }

func (j *ConfigureRoutesJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	var backendHost string
	var backendPort int
	if jc.Read(j.UpstreamJobID, "backend_host", &backendHost) != workflow.AccessValue {
		return fmt.Errorf("backend_host not available from job %s", j.UpstreamJobID)
	}
	if jc.Read(j.UpstreamJobID, "backend_port", &backendPort) != workflow.AccessValue {
		return fmt.Errorf("backend_port not available from job %s", j.UpstreamJobID)
	}

	for _, domain := range j.Domains {
		record := &types.RouteRecord{
			Domain:        domain,
			Source:        types.RouteSourceEnvironmentDomain,
			BackendHost:   backendHost,
			BackendPort:   backendPort,
			ProjectID:     j.ProjectID,
			EnvironmentID: j.EnvironmentID,
			DeploymentID:  jc.Deployment.ID,
		}
		if err := j.store.CreateRoute(record); err != nil {
			return fmt.Errorf("create route for %s: %w", domain, err)
		}
	}

	jc.Log.Info("routes configured", map[string]string{"count": fmt.Sprint(len(j.Domains))})
	j.notifier.Publish(store.ChannelRouteTable)

	return jc.Write("routes_added", len(j.Domains))
}
