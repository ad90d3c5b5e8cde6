package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/temps/internal/imagebuilder"
	"github.com/cuemby/temps/internal/workflow"
)

// PullExternalImageJob pulls a pre-built image in place of BuildImage
// (spec §4.2).
type PullExternalImageJob struct {
	builder  *imagebuilder.Builder
	ImageRef string
}

// NewPullExternalImageJob builds a PullExternalImageJob for imageRef.
func NewPullExternalImageJob(builder *imagebuilder.Builder, imageRef string) *PullExternalImageJob {
	return &PullExternalImageJob{builder: builder, ImageRef: imageRef}
}

func (j *PullExternalImageJob) Type() string { return TypePullExternalImage }

// parseImageRef splits a reference of the form [registry[:port]/]name[:tag]
// into (registry, name, tag). The registry is present iff the first
// "/"-segment contains "." or ":"; a trailing ":text" is a tag only if
// text does not itself contain "/" (text such as "5000/app" is a registry
// port followed by the image path) — spec §4.2 / §8.
func parseImageRef(ref string) (registry string, name string, tag string) {
	imageName := ref
	tag = "latest"

	if idx := strings.LastIndexByte(ref, ':'); idx != -1 {
		potentialTag := ref[idx+1:]
		if !strings.Contains(potentialTag, "/") {
			imageName = ref[:idx]
			tag = potentialTag
		}
	}

	parts := strings.SplitN(imageName, "/", 2)
	if len(parts) > 1 && (strings.Contains(parts[0], ".") || strings.Contains(parts[0], ":")) {
		registry = parts[0]
	}

	return registry, imageName, tag
}

func (j *PullExternalImageJob) Run(ctx context.Context, jc *workflow.JobContext) error {
	registry, _, tag := parseImageRef(j.ImageRef)
	displayRegistry := registry
	if displayRegistry == "" {
		displayRegistry = "docker.io"
	}

	jc.Log.Info("pulling external image", map[string]string{
		"image_ref": j.ImageRef, "registry": displayRegistry, "tag": tag,
	})

	imageID, err := j.builder.Pull(ctx, j.ImageRef)
	if err != nil {
		jc.Log.Error("pull failed", map[string]string{"error": err.Error()})
		return fmt.Errorf("pull external image %s: %w", j.ImageRef, err)
	}

	var sizeBytes int64
	var digest string
	if info, err := j.builder.Inspect(ctx, j.ImageRef); err == nil {
		sizeBytes = info.SizeBytes
		if len(info.RepoDigests) > 0 {
			if idx := strings.LastIndexByte(info.RepoDigests[0], '@'); idx != -1 {
				digest = info.RepoDigests[0][idx+1:]
			}
		}
	}

	jc.Log.Info("image pulled", map[string]string{"image_id": imageID})

	if err := jc.Write("image_ref", j.ImageRef); err != nil {
		return err
	}
	if err := jc.Write("image_id", imageID); err != nil {
		return err
	}
	if err := jc.Write("size_bytes", sizeBytes); err != nil {
		return err
	}
	if err := jc.Write("tag", tag); err != nil {
		return err
	}
	if err := jc.Write("digest", digest); err != nil {
		return err
	}
	// image_tag is an alias of image_ref, kept for DeployImage's consumer
	// compatibility (spec §4.2).
	return jc.Write("image_tag", j.ImageRef)
}
