package jobs

import (
	"fmt"

	"github.com/cuemby/temps/internal/git"
	"github.com/cuemby/temps/internal/imagebuilder"
	"github.com/cuemby/temps/internal/runtime"
	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/types"
	"github.com/cuemby/temps/internal/workflow"
)

// Deps bundles the collaborators job implementations need. A single Deps
// value is shared by a Factory across every job in a deployment's plan.
type Deps struct {
	Git        *git.Client
	Builder    *imagebuilder.Builder
	Runtime    *runtime.Runtime
	Store      store.Store
	Notifier   *store.Notifier
	ScratchDir string
}

// BuildSpec carries the per-deployment parameters the factory cannot infer
// from a planned DeploymentJob alone (source coordinates, target ports,
// domains).
type BuildSpec struct {
	CloneURL      string
	Ref           string
	ImageRef      string // UsePrebuiltImage path
	ServiceName   string
	Namespace     string
	HostPort      int
	ContainerPort int
	Env           []string
	HealthPath    string
	Domains       []string
	ProjectID     string
	EnvironmentID string
	ImageTag      string
	BuildArgs     map[string]string
}

// NewFactory returns a workflow.Factory that builds the concrete Job for
// each planned DeploymentJob, wiring in deps and spec.
func NewFactory(deps Deps, spec BuildSpec) workflow.Factory {
	return func(planned *types.DeploymentJob) (workflow.Job, error) {
		switch planned.JobType {
		case TypeDownloadRepo:
			return NewDownloadRepoJob(deps.Git, spec.CloneURL, spec.Ref, deps.ScratchDir), nil
		case TypeBuildImage:
			upstream := firstProducer(planned)
			return NewBuildImageJob(deps.Builder, upstream, spec.ImageTag, spec.BuildArgs), nil
		case TypePullExternalImage:
			return NewPullExternalImageJob(deps.Builder, spec.ImageRef), nil
		case TypeDeployImage:
			upstream := firstProducer(planned)
			return NewDeployImageJob(deps.Runtime, upstream, spec.ServiceName, spec.Namespace, spec.HostPort, spec.ContainerPort, spec.Env, spec.HealthPath), nil
		case TypeConfigureRoutes:
			upstream := firstProducer(planned)
			return NewConfigureRoutesJob(deps.Store, deps.Notifier, upstream, spec.Domains, spec.ProjectID, spec.EnvironmentID), nil
		case TypePromoteEnv:
			return NewPromoteEnvironmentJob(deps.Store), nil
		case TypeConfigureCrons:
			return &ConfigureCronsJob{}, nil
		case TypeTakeScreenshot:
			return &TakeScreenshotJob{}, nil
		default:
			return nil, fmt.Errorf("unknown job type %q", planned.JobType)
		}
	}
}

func firstProducer(j *types.DeploymentJob) string {
	if len(j.Producers) == 0 {
		return ""
	}
	return j.Producers[0]
}
