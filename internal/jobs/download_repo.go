package jobs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cuemby/temps/internal/git"
	"github.com/cuemby/temps/internal/workflow"
)

// DownloadRepoJob materialises a git repository into a workflow-scoped
// temporary directory (spec §4.2).
type DownloadRepoJob struct {
	client    *git.Client
	CloneURL  string
	Ref       string
	ScratchDir string
}

// NewDownloadRepoJob builds a DownloadRepoJob backed by client.
func NewDownloadRepoJob(client *git.Client, cloneURL, ref, scratchDir string) *DownloadRepoJob {
	return &DownloadRepoJob{client: client, CloneURL: cloneURL, Ref: ref, ScratchDir: scratchDir}
}

func (j *DownloadRepoJob) Type() string { return TypeDownloadRepo }

func (j *DownloadRepoJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	dest := filepath.Join(j.ScratchDir, jc.Deployment.ID)

	jc.Log.Info("cloning repository", map[string]string{"url": j.CloneURL, "ref": j.Ref})

	info, err := j.client.CloneRepository(ctx, j.CloneURL, j.Ref, dest)
	if err != nil {
		jc.Log.Error("clone failed", map[string]string{"error": err.Error()})
		return fmt.Errorf("clone repository: %w", err)
	}

	jc.Log.Info("clone complete", map[string]string{"resolved_ref": info.ResolvedRef})

	if err := jc.Write("workspace_path", info.WorkspacePath); err != nil {
		return err
	}
	return jc.Write("resolved_ref", info.ResolvedRef)
}
