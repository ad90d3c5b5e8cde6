// Package jobs implements the concrete Deployment Jobs (spec §4.2) and the
// planner that orders them into a workflow.Engine-executable plan.
package jobs

import (
	"fmt"

	"github.com/cuemby/temps/internal/types"
	"github.com/cuemby/temps/internal/workflow"
)

// Job type identifiers, also used as workflow.Job.Type() values and as
// metric labels.
const (
	TypeDownloadRepo      = "download_repo"
	TypeBuildImage        = "build_image"
	TypePullExternalImage = "pull_external_image"
	TypeDeployImage       = "deploy_image"
	TypeConfigureRoutes   = "configure_routes"
	TypePromoteEnv        = "promote_environment"
	TypeConfigureCrons    = "configure_crons"
	TypeTakeScreenshot    = "take_screenshot"
)

// Spec is the deployment-specific input the planner needs beyond the
// persisted Deployment record: whether to build from source or pull a
// pre-built image, and which optional tail jobs to append.
type Spec struct {
	UsePrebuiltImage bool // true selects PullExternalImage over BuildImage
	ImageRef         string // required when UsePrebuiltImage
	WantCrons        bool
	WantScreenshot   bool
}

// Planner implements workflow.Planner with the fixed ordering policy of
// spec §4.2: DownloadRepo → BuildImage|PullExternalImage → DeployImage →
// ConfigureRoutes → PromoteEnvironment → (optional tail).
type Planner struct {
	spec Spec
}

// NewPlanner builds a Planner for one deployment's job spec.
func NewPlanner(spec Spec) *Planner {
	return &Planner{spec: spec}
}

// Plan returns the ordered DeploymentJob list. execution_order is assigned
// strictly increasing along the fixed chain; Producers records the job
// each stage reads its inputs from.
func (p *Planner) Plan(deployment *types.Deployment) ([]*types.DeploymentJob, error) {
	var jobs []*types.DeploymentJob
	order := 0

	newJob := func(jobType, name string, continueOnFail bool, producers []string, outputs []string) *types.DeploymentJob {
		order++
		return &types.DeploymentJob{
			ID:              fmt.Sprintf("%s-%s-%d", deployment.ID, jobType, order),
			DeploymentID:    deployment.ID,
			JobType:         jobType,
			Name:            name,
			Status:          types.JobPending,
			ExecutionOrder:  order,
			ContinueOnFail:  continueOnFail,
			Producers:       producers,
			DeclaredOutputs: outputs,
			CreatedAt:       deployment.CreatedAt,
		}
	}

	var buildJob *types.DeploymentJob
	if p.spec.UsePrebuiltImage {
		if p.spec.ImageRef == "" {
			return nil, fmt.Errorf("UsePrebuiltImage requires ImageRef")
		}
		buildJob = newJob(TypePullExternalImage, "Pull External Image", false, nil,
			[]string{"image_ref", "image_id", "size_bytes", "tag", "digest", "image_tag"})
		jobs = append(jobs, buildJob)
	} else {
		downloadJob := newJob(TypeDownloadRepo, "Download Repository", false, nil,
			[]string{"workspace_path", "resolved_ref"})
		jobs = append(jobs, downloadJob)

		buildJob = newJob(TypeBuildImage, "Build Image", false, []string{downloadJob.ID},
			[]string{"image_id", "image_tag", "size_bytes"})
		jobs = append(jobs, buildJob)
	}

	deployJob := newJob(TypeDeployImage, "Deploy Image", false, []string{buildJob.ID},
		[]string{"container_id", "backend_host", "backend_port"})
	jobs = append(jobs, deployJob)

	routesJob := newJob(TypeConfigureRoutes, "Configure Routes", false, []string{deployJob.ID},
		[]string{"routes_added"})
	jobs = append(jobs, routesJob)

	promoteJob := newJob(TypePromoteEnv, "Promote Environment", false, []string{routesJob.ID}, nil)
	jobs = append(jobs, promoteJob)

	if p.spec.WantCrons {
		jobs = append(jobs, newJob(TypeConfigureCrons, "Configure Crons", true, []string{promoteJob.ID}, nil))
	}
	if p.spec.WantScreenshot {
		jobs = append(jobs, newJob(TypeTakeScreenshot, "Take Screenshot", true, []string{promoteJob.ID}, nil))
	}

	return jobs, nil
}

var _ workflow.Planner = (*Planner)(nil)
