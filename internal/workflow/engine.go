package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/temps/internal/log"
	"github.com/cuemby/temps/internal/metrics"
	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/types"
)

// Planner turns a Deployment into its ordered job list (spec §4.1). The
// concrete ordering policy (download → build|pull → deploy → routes →
// promote → tail) lives with the jobs package; the engine only consumes
// the result.
type Planner interface {
	Plan(deployment *types.Deployment) ([]*types.DeploymentJob, error)
}

// Factory builds a runnable Job for one planned DeploymentJob.
type Factory func(planned *types.DeploymentJob) (Job, error)

// Engine executes a planned job list against a Store, publishing outputs
// into a per-deployment Context and invoking cleanup callbacks on any
// non-plain-success termination (spec §4.1).
type Engine struct {
	store   store.Store
	planner Planner
	factory Factory

	mu      sync.Mutex
	running map[string]chan struct{} // deploymentID -> cancel signal
}

// NewEngine builds an Engine backed by s, planning with planner and
// constructing jobs with factory.
func NewEngine(s store.Store, planner Planner, factory Factory) *Engine {
	return &Engine{
		store:   s,
		planner: planner,
		factory: factory,
		running: make(map[string]chan struct{}),
	}
}

// Cancel signals cooperative cancellation for a running deployment. The
// engine polls for it between jobs, never mid-job (spec §4.1).
func (e *Engine) Cancel(deploymentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.running[deploymentID]; ok {
		close(ch)
		delete(e.running, deploymentID)
	}
}

// Plan computes the job list for deployment, persists it, and returns it.
func (e *Engine) Plan(deployment *types.Deployment) ([]*types.DeploymentJob, error) {
	planned, err := e.planner.Plan(deployment)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindInternal, "planning failed", err)
	}
	sort.SliceStable(planned, func(i, j int) bool { return planned[i].ExecutionOrder < planned[j].ExecutionOrder })
	for _, job := range planned {
		if err := e.store.CreateJob(job); err != nil {
			return nil, paaserr.Wrap(paaserr.KindInternal, "persisting planned job failed", err)
		}
	}
	return planned, nil
}

// Execute runs every planned job for deploymentID in execution_order,
// publishing outputs into a shared Context, running cleanup callbacks in
// reverse order on any non-plain-success termination, and polling for
// cancellation between jobs (spec §4.1).
func (e *Engine) Execute(ctx context.Context, deploymentID string) error {
	logger := log.WithComponent("workflow")
	timer := metrics.NewTimer()

	deployment, err := e.store.GetDeployment(deploymentID)
	if err != nil {
		return paaserr.Wrap(paaserr.KindNotFound, "deployment not found", err)
	}

	jobs, err := e.store.ListJobsByDeployment(deploymentID)
	if err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "listing jobs failed", err)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].ExecutionOrder < jobs[j].ExecutionOrder })

	cancelCh := make(chan struct{})
	e.mu.Lock()
	e.running[deploymentID] = cancelCh
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, deploymentID)
		e.mu.Unlock()
	}()

	wfCtx := NewContext()
	var cleanups []CleanupFunc
	runCleanups := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i](ctx)
		}
	}

	deployment.State = types.DeploymentRunning
	_ = e.store.UpdateDeployment(deployment)

	for _, job := range jobs {
		select {
		case <-cancelCh:
			job.Status = types.JobSkipped
			_ = e.store.UpdateJob(job)
			e.finishCancelled(deployment, jobs, job)
			runCleanups()
			timer.ObserveDuration(metrics.DeploymentDuration)
			metrics.DeploymentsTotal.WithLabelValues("cancelled").Inc()
			return paaserr.New(paaserr.KindCancelled, "deployment cancelled")
		case <-ctx.Done():
			runCleanups()
			metrics.DeploymentsTotal.WithLabelValues("cancelled").Inc()
			return paaserr.Wrap(paaserr.KindCancelled, "context cancelled", ctx.Err())
		default:
		}

		runnable, err := e.factory(job)
		if err != nil {
			return e.fail(ctx, deployment, job, jobs, cleanups, fmt.Errorf("building job %s: %w", job.JobType, err))
		}

		job.Status = types.JobRunning
		_ = e.store.UpdateJob(job)

		jobLogger := newJobLogger(logger, deploymentID, job.ID)
		jc := &JobContext{Job: job, Deployment: deployment, WorkflowCtx: wfCtx, Log: jobLogger, cleanupStack: &cleanups}

		jobTimer := metrics.NewTimer()
		runErr := runnable.Run(ctx, jc)
		jobTimer.ObserveDurationVec(metrics.JobDuration, job.JobType)

		if runErr != nil {
			if !validateDeclaredOutputs(wfCtx, job) {
				logger.Warn().Str("job", job.JobType).Msg("job failed before declaring all outputs")
			}
			if job.ContinueOnFail {
				job.Status = types.JobFailed
				job.ErrorMessage = runErr.Error()
				_ = e.store.UpdateJob(job)
				metrics.JobsTotal.WithLabelValues(job.JobType, "failed-continued").Inc()
				continue
			}
			return e.fail(ctx, deployment, job, jobs, cleanups, runErr)
		}

		if !validateDeclaredOutputs(wfCtx, job) {
			return e.fail(ctx, deployment, job, jobs, cleanups,
				paaserr.New(paaserr.KindInternal, fmt.Sprintf("job %s did not publish all declared outputs", job.JobType)))
		}

		job.Status = types.JobSucceeded
		_ = e.store.UpdateJob(job)
		metrics.JobsTotal.WithLabelValues(job.JobType, "succeeded").Inc()
	}

	deployment.State = types.DeploymentDeployed
	_ = e.store.UpdateDeployment(deployment)
	timer.ObserveDuration(metrics.DeploymentDuration)
	metrics.DeploymentsTotal.WithLabelValues("succeeded").Inc()
	return nil
}

// fail marks job and deployment Failed, skips the remaining not-yet-run
// jobs, runs cleanups in reverse order, and returns the triggering error.
func (e *Engine) fail(ctx context.Context, deployment *types.Deployment, failed *types.DeploymentJob, all []*types.DeploymentJob, cleanups []CleanupFunc, cause error) error {
	failed.Status = types.JobFailed
	failed.ErrorMessage = cause.Error()
	failed.ErrorKind = string(paaserr.KindOf(cause))
	_ = e.store.UpdateJob(failed)

	e.finishCancelled(deployment, all, failed)

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i](ctx)
	}

	deployment.State = types.DeploymentFailed
	_ = e.store.UpdateDeployment(deployment)
	metrics.JobsTotal.WithLabelValues(failed.JobType, "failed").Inc()
	metrics.DeploymentsTotal.WithLabelValues("failed").Inc()
	return paaserr.Wrap(paaserr.KindInternal, fmt.Sprintf("job %s failed", failed.JobType), cause)
}

// finishCancelled marks every job at or after stopped (exclusive) as
// Skipped, since the workflow never runs them.
func (e *Engine) finishCancelled(deployment *types.Deployment, all []*types.DeploymentJob, stopped *types.DeploymentJob) {
	reached := false
	for _, j := range all {
		if j.ID == stopped.ID {
			reached = true
			continue
		}
		if reached && j.Status == types.JobPending {
			j.Status = types.JobSkipped
			_ = e.store.UpdateJob(j)
		}
	}
}

// validateDeclaredOutputs confirms every key job.DeclaredOutputs names was
// actually written to the workflow context (spec §4.1).
func validateDeclaredOutputs(wfCtx *Context, job *types.DeploymentJob) bool {
	for _, key := range job.DeclaredOutputs {
		if !wfCtx.Has(job.ID, key) {
			return false
		}
	}
	return true
}
