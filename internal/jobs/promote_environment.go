package jobs

import (
	"context"
	"fmt"

	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/workflow"
)

// PromoteEnvironmentJob sets the environment's current_deployment_id to
// this deployment. It emits no outputs and must be the last job unless
// cron or screenshot jobs follow (spec §4.2).
type PromoteEnvironmentJob struct {
	store store.Store
}

// NewPromoteEnvironmentJob builds a PromoteEnvironmentJob.
func NewPromoteEnvironmentJob(s store.Store) *PromoteEnvironmentJob {
	return &PromoteEnvironmentJob{store: s}
}

func (j *PromoteEnvironmentJob) Type() string { return TypePromoteEnv }

func (j *PromoteEnvironmentJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	env, err := j.store.GetEnvironment(jc.Deployment.EnvironmentID)
	if err != nil {
		return fmt.Errorf("get environment %s: %w", jc.Deployment.EnvironmentID, err)
	}

	previous := env.CurrentDeploymentID
	env.CurrentDeploymentID = jc.Deployment.ID

	if err := j.store.UpdateEnvironment(env); err != nil {
		return fmt.Errorf("promote environment: %w", err)
	}

	jc.Log.Info("environment promoted", map[string]string{
		"previous_deployment_id": previous,
		"new_deployment_id":      jc.Deployment.ID,
	})
	return nil
}
