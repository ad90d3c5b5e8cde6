package workflow

import (
	"context"

	"github.com/cuemby/temps/internal/types"
)

// CleanupFunc runs on workflow teardown, in reverse registration order,
// whenever the deployment does not finish in a plain success (spec §4.1).
type CleanupFunc func(ctx context.Context)

// Job is one unit of deployment work (download, build, deploy, route,
// promote, ...). Implementations live in the jobs package; the engine only
// knows this contract.
type Job interface {
	// Type identifies the job for logging, metrics, and Plan output.
	Type() string

	// Run executes the job. A non-nil error marks the job Failed; the
	// planned job's ContinueOnFail flag decides whether the whole
	// deployment continues or must stop.
	Run(ctx context.Context, jc *JobContext) error
}

// JobContext is the per-job execution surface: an immutable view of
// upstream outputs, a writable output scope under this job's own ID, a
// typed log sink, and a cleanup registry (spec §4.1).
type JobContext struct {
	Job          *types.DeploymentJob
	Deployment   *types.Deployment
	WorkflowCtx  *Context
	Log          LogWriter
	cleanupStack *[]CleanupFunc
}

// LogWriter is the typed per-job log sink (spec §4.11: structured log
// entries tagged by job and deployment).
type LogWriter interface {
	Info(msg string, fields map[string]string)
	Warn(msg string, fields map[string]string)
	Error(msg string, fields map[string]string)
}

// Write publishes a value under this job's own ID into the shared
// WorkflowContext, for downstream jobs to Read.
func (jc *JobContext) Write(key string, value interface{}) error {
	return jc.WorkflowCtx.Write(jc.Job.ID, key, value)
}

// Read decodes the value published by producerJobID under key.
func (jc *JobContext) Read(producerJobID, key string, out interface{}) AccessResult {
	return jc.WorkflowCtx.Read(producerJobID, key, out)
}

// RegisterCleanup pushes fn onto the cleanup stack. All registered
// cleanups run in reverse order when the deployment terminates without a
// plain success (spec §4.1).
func (jc *JobContext) RegisterCleanup(fn CleanupFunc) {
	*jc.cleanupStack = append(*jc.cleanupStack, fn)
}
