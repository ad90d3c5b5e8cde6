package imagebuilder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/preset"
	"github.com/cuemby/temps/internal/runtime"
)

// BuildResult is the outcome of Build.
type BuildResult struct {
	ImageID   string
	ImageRef  string
	SizeBytes int64
}

// Builder is the Image Builder: it writes a generated or discovered
// Dockerfile into the source tree and delegates the actual build to
// `nerdctl build`, then records the result via the Container Runtime
// Adapter's InspectImage. containerd has no native build primitive, so the
// build step alone still shells out — but it targets the same containerd
// socket and namespace `rt` talks to (nerdctl's `--address`/`--namespace`
// flags), unlike a plain `docker build`, which writes into the Docker
// daemon's own (typically "moby") namespace and would leave InspectImage
// looking in the wrong place for the image that was just built.
type Builder struct {
	rt *runtime.Runtime
}

// NewBuilder returns a Builder that inspects built images via rt.
func NewBuilder(rt *runtime.Runtime) *Builder {
	return &Builder{rt: rt}
}

// Build detects det's preset (Dockerfile presets use the file as-is,
// Nixpacks presets shell to the nixpacks CLI, everything else is
// generated), runs the build, and inspects the resulting image
// (spec §4.3).
func (b *Builder) Build(ctx context.Context, sourcePath string, det *preset.Detection, tag string, buildArgs map[string]string) (*BuildResult, error) {
	contextDir := filepath.Join(sourcePath, det.Dir)

	switch det.Kind {
	case preset.KindDockerfile:
		// Dockerfile already present in contextDir; nothing to generate.
	case preset.KindNixpacks:
		if err := runNixpacksPlan(ctx, contextDir); err != nil {
			return nil, paaserr.Wrap(paaserr.KindInternal, "dockerfile-generation-failed", err)
		}
	case preset.KindNone:
		return nil, paaserr.New(paaserr.KindValidation, "no preset detected")
	default:
		df, err := GenerateDockerfile(det, buildArgs)
		if err != nil {
			return nil, paaserr.Wrap(paaserr.KindInternal, "dockerfile-generation-failed", err)
		}
		if err := os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte(df.Content), 0o644); err != nil {
			return nil, paaserr.Wrap(paaserr.KindInternal, "dockerfile-generation-failed", err)
		}
	}

	if err := b.dockerBuild(ctx, contextDir, tag, buildArgs); err != nil {
		return nil, paaserr.Wrap(paaserr.KindInternal, "build-failed", err)
	}

	info, err := b.rt.InspectImage(ctx, tag)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindInternal, "inspect-failed", err)
	}

	return &BuildResult{ImageID: info.ID, ImageRef: tag, SizeBytes: info.SizeBytes}, nil
}

func (b *Builder) dockerBuild(ctx context.Context, contextDir, tag string, buildArgs map[string]string) error {
	args := []string{
		"--address", b.rt.SocketPath(),
		"--namespace", b.rt.Namespace(),
		"build", "-t", tag, contextDir,
	}
	for k, v := range buildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, v))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "nerdctl", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("nerdctl build: %w: %s", err, stderr.String())
	}
	return nil
}

// runNixpacksPlan shells out to the nixpacks CLI to generate a Dockerfile
// at <contextDir>/Dockerfile, covering the provider set {Node,
// Python, Rust, Go, Java, PHP, Ruby, Deno, Elixir, C#, Dart, Staticfile}
// nixpacks itself auto-detects (spec §4.3).
func runNixpacksPlan(ctx context.Context, contextDir string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "nixpacks", "plan", contextDir, "--format", "dockerfile")
	cmd.Dir = contextDir
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("nixpacks plan: %w: %s", err, stderr.String())
	}

	dockerfilePath := filepath.Join(contextDir, "Dockerfile")
	return os.WriteFile(dockerfilePath, bytes.TrimSpace(out), 0o644)
}

// Inspect returns size and digest information for an already-pulled image.
func (b *Builder) Inspect(ctx context.Context, ref string) (runtime.ImageInfo, error) {
	return b.rt.InspectImage(ctx, ref)
}

// Pull delegates to the runtime adapter's image pull, draining progress.
func (b *Builder) Pull(ctx context.Context, reference string) (string, error) {
	progressCh := make(chan runtime.PullProgress, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- b.rt.CreateImagePull(ctx, reference, progressCh) }()

	var lastTerminal bool
	for p := range progressCh {
		lastTerminal = lastTerminal || p.Terminal
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	if !lastTerminal {
		return "", fmt.Errorf("pull of %s did not reach a terminal status", reference)
	}

	info, err := b.rt.InspectImage(ctx, reference)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Import loads tarballPath as tag via the Container Runtime Adapter's
// ImportImage, landing the image in the same containerd namespace every
// other Runtime call reads from.
func (b *Builder) Import(ctx context.Context, tarballPath, tag string) (string, error) {
	info, err := b.rt.ImportImage(ctx, tarballPath, tag)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Extract copies sourcePath out of an image by creating a throwaway
// container and delegating to the runtime adapter's DownloadFromContainer.
func (b *Builder) Extract(ctx context.Context, image, sourcePath, destPath string) error {
	id, err := b.rt.Create(ctx, runtime.ContainerSpec{ID: "extract-" + strings.ReplaceAll(image, "/", "-"), Image: image})
	if err != nil {
		return err
	}
	defer b.rt.Remove(ctx, id, true)

	if err := b.rt.Start(ctx, id); err != nil {
		return err
	}

	rc, err := b.rt.DownloadFromContainer(ctx, id, sourcePath)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.ReadFrom(rc)
	return err
}

// List returns every image tag known to the Container Runtime Adapter's
// namespace.
func (b *Builder) List(ctx context.Context) ([]string, error) {
	return b.rt.ListImages(ctx)
}

// Remove deletes tag from the Container Runtime Adapter's namespace.
func (b *Builder) Remove(ctx context.Context, tag string) error {
	return b.rt.RemoveImage(ctx, tag)
}
