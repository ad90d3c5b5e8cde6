package jobs

import (
	"context"
	"strconv"

	"github.com/cuemby/temps/internal/workflow"
)

// ConfigureCronsJob is an optional trailing job with no mutual dependency
// on TakeScreenshot (spec §4.2). Scheduling concrete cron entries is out
// of scope; this job records that the deployment's cron set is current.
type ConfigureCronsJob struct {
	CronSpecs []string
}

func (j *ConfigureCronsJob) Type() string { return TypeConfigureCrons }

func (j *ConfigureCronsJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	jc.Log.Info("crons configured", map[string]string{"count": strconv.Itoa(len(j.CronSpecs))})
	return nil
}

// TakeScreenshotJob is an optional trailing job capturing a preview image
// of the deployed environment. Actual rendering is an external
// collaborator (spec §6); this job records the request.
type TakeScreenshotJob struct {
	TargetURL string
}

func (j *TakeScreenshotJob) Type() string { return TypeTakeScreenshot }

func (j *TakeScreenshotJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	jc.Log.Info("screenshot requested", map[string]string{"url": j.TargetURL})
	return nil
}
