package jobs

import (
	"context"
	"fmt"

	"github.com/cuemby/temps/internal/imagebuilder"
	"github.com/cuemby/temps/internal/preset"
	"github.com/cuemby/temps/internal/workflow"
)

// BuildImageJob builds a tagged local image from a downloaded workspace
// using the Image Builder (spec §4.2).
type BuildImageJob struct {
	builder      *imagebuilder.Builder
	UpstreamJobID string
	Tag           string
	BuildArgs     map[string]string
}

// NewBuildImageJob builds a BuildImageJob reading workspace_path from
// upstreamJobID's outputs and producing an image tagged tag.
func NewBuildImageJob(builder *imagebuilder.Builder, upstreamJobID, tag string, buildArgs map[string]string) *BuildImageJob {
	return &BuildImageJob{builder: builder, UpstreamJobID: upstreamJobID, Tag: tag, BuildArgs: buildArgs}
}

func (j *BuildImageJob) Type() string { return TypeBuildImage }

func (j *BuildImageJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	var workspacePath string
	if jc.Read(j.UpstreamJobID, "workspace_path", &workspacePath) != workflow.AccessValue {
		return fmt.Errorf("workspace_path not available from job %s", j.UpstreamJobID)
	}

	det, err := preset.Detect(workspacePath)
	if err != nil {
		return fmt.Errorf("preset detection: %w", err)
	}
	if det.Kind == preset.KindNone {
		jc.Log.Error("no preset detected", map[string]string{"workspace_path": workspacePath})
		return fmt.Errorf("no preset detected in %s", workspacePath)
	}

	jc.Log.Info("building image", map[string]string{"preset": string(det.Kind), "tag": j.Tag})

	result, err := j.builder.Build(ctx, workspacePath, det, j.Tag, j.BuildArgs)
	if err != nil {
		jc.Log.Error("build failed", map[string]string{"error": err.Error()})
		return err
	}

	jc.Log.Info("build succeeded", map[string]string{"image_id": result.ImageID})

	if err := jc.Write("image_id", result.ImageID); err != nil {
		return err
	}
	if err := jc.Write("image_tag", result.ImageRef); err != nil {
		return err
	}
	return jc.Write("size_bytes", result.SizeBytes)
}
