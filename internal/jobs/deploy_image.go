package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/temps/internal/health"
	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/runtime"
	"github.com/cuemby/temps/internal/workflow"
)

// DeployImageJob starts the built/pulled image as a container and waits
// for readiness (spec §4.2, §4.6).
type DeployImageJob struct {
	rt            *runtime.Runtime
	UpstreamJobID string
	ServiceName   string
	Namespace     string
	HostPort      int
	ContainerPort int
	Env           []string
	HealthPath    string // empty selects the TCP fallback
	ReadyTimeout  time.Duration
}

// NewDeployImageJob builds a DeployImageJob reading image_tag from
// upstreamJobID's outputs.
func NewDeployImageJob(rt *runtime.Runtime, upstreamJobID, serviceName, namespace string, hostPort, containerPort int, env []string, healthPath string) *DeployImageJob {
	return &DeployImageJob{
		rt: rt, UpstreamJobID: upstreamJobID, ServiceName: serviceName, Namespace: namespace,
		HostPort: hostPort, ContainerPort: containerPort, Env: env, HealthPath: healthPath,
		ReadyTimeout: 15 * time.Second,
	}
}

func (j *DeployImageJob) Type() string { return TypeDeployImage }

func (j *DeployImageJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	var imageTag string
	if jc.Read(j.UpstreamJobID, "image_tag", &imageTag) != workflow.AccessValue {
		return fmt.Errorf("image_tag not available from job %s", j.UpstreamJobID)
	}

	containerID := fmt.Sprintf("%s-%s", j.Namespace, j.ServiceName)
	jc.Log.Info("starting container", map[string]string{"image": imageTag, "container_id": containerID})

	spec := runtime.ContainerSpec{
		ID:    containerID,
		Image: imageTag,
		Env:   j.Env,
		PortBindings: []runtime.PortBinding{
			{ContainerPort: j.ContainerPort, HostPort: j.HostPort, Protocol: "tcp"},
		},
	}

	if _, err := j.rt.Create(ctx, spec); err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "start-failed", err)
	}

	jc.RegisterCleanup(func(cleanupCtx context.Context) {
		jc.Log.Warn("removing container during cleanup", map[string]string{"container_id": containerID})
		_ = j.rt.Remove(cleanupCtx, containerID, true)
	})

	if err := j.rt.Start(ctx, containerID); err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "start-failed", err)
	}

	var checker health.Checker
	backendHost := "127.0.0.1"
	if j.HealthPath != "" {
		checker = health.NewHTTPChecker(fmt.Sprintf("http://%s:%d%s", backendHost, j.HostPort, j.HealthPath))
	} else {
		checker = health.NewTCPChecker(fmt.Sprintf("%s:%d", backendHost, j.HostPort))
	}

	cfg := health.DefaultConfig()
	status, err := health.PollUntilReady(ctx, checker, cfg, j.ReadyTimeout)
	if err != nil || !status.Healthy {
		jc.Log.Error("readiness failed, force-removing container", map[string]string{"container_id": containerID})
		if removeErr := j.rt.Remove(ctx, containerID, true); removeErr != nil {
			jc.Log.Error("force-remove after readiness failure also failed", map[string]string{"error": removeErr.Error()})
		}
		return paaserr.New(paaserr.KindTimeout, "healthcheck-timeout")
	}

	jc.Log.Info("container ready", map[string]string{"container_id": containerID})

	if err := jc.Write("container_id", containerID); err != nil {
		return err
	}
	if err := jc.Write("backend_host", backendHost); err != nil {
		return err
	}
	return jc.Write("backend_port", j.HostPort)
}
