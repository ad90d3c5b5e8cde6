// Package runtime is the Container Runtime Adapter (spec §4.4): a narrow
// capability surface over containerd covering the operations the workflow
// jobs and managed-service supervisors need — list, create, start, stop,
// remove, inspect_image, create_image_pull and download_from_container.
package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/images"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cuemby/temps/internal/log"
)

const (
	// DefaultNamespace is the containerd namespace the control plane uses.
	DefaultNamespace = "temps"

	// DefaultSocketPath is the default containerd socket path.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// PortBinding maps a container's private port to a host port, encoded
// string-typed on the wire as "<container_port>/tcp" per spec §4.4.
type PortBinding struct {
	ContainerPort int
	HostPort      int
	Protocol      string // "tcp" or "udp", defaults to "tcp"
}

// VolumeBind describes one volume mapping. Create mounts every VolumeBind
// as a bind mount of Source; Named is not consulted and no named volume
// is created.
type VolumeBind struct {
	Source      string // host path or named volume name
	Destination string
	Named       bool // true: named volume; false: bind mount
	ReadOnly    bool
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	ID            string
	Image         string
	Command       []string
	Env           []string
	PortBindings  []PortBinding
	Volumes       []VolumeBind
	RestartPolicy string
	CPULimitCores float64
	MemoryLimitBytes int64
	SecretsPath   string // bind-mounted read-only at /run/secrets
	ResolvConfPath string
}

// ContainerInfo is the summary returned by ListContainers.
type ContainerInfo struct {
	ID           string
	Names        []string
	State        string
	PortBindings []PortBinding
}

// ImageInfo is the result of InspectImage.
type ImageInfo struct {
	ID          string
	SizeBytes   int64
	RepoDigests []string
}

// PullProgress is one line of progress emitted while pulling an image.
// Terminal == true marks the line that signals completion ("Digest:" or
// "Status:"), matching the Docker-compatible pull stream convention.
type PullProgress struct {
	Status   string
	Terminal bool
}

// Runtime is the containerd-backed implementation of the Container Runtime
// Adapter.
type Runtime struct {
	client     *containerd.Client
	namespace  string
	socketPath string
}

// New connects to containerd at socketPath (DefaultSocketPath if empty).
func New(socketPath string) (*Runtime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	return &Runtime{client: client, namespace: DefaultNamespace, socketPath: socketPath}, nil
}

// Namespace returns the containerd namespace every Runtime call is scoped
// to, so collaborators that must shell out to a separate containerd-native
// CLI (the Image Builder's `nerdctl build`, §4.3) can target the same
// namespace this client reads images back from.
func (r *Runtime) Namespace() string { return r.namespace }

// SocketPath returns the containerd socket this Runtime is connected to.
func (r *Runtime) SocketPath() string { return r.socketPath }

// Close closes the containerd client connection.
func (r *Runtime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Runtime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

// ListContainers lists containers in the control plane's namespace.
// When includeStopped is false, only containers whose state is "running"
// are returned; when true, every container in the namespace is returned
// (a container without a task reports "pending").
func (r *Runtime) ListContainers(ctx context.Context, includeStopped bool) ([]ContainerInfo, error) {
	ctx = r.ctx(ctx)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		state, _ := r.containerState(ctx, c)
		if !includeStopped && state != "running" {
			continue
		}
		out = append(out, ContainerInfo{ID: c.ID(), Names: []string{c.ID()}, State: state})
	}
	return out, nil
}

func (r *Runtime) containerState(ctx context.Context, c containerd.Container) (string, error) {
	task, err := c.Task(ctx, nil)
	if err != nil {
		return "pending", nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return "failed", err
	}
	switch status.Status {
	case containerd.Running:
		return "running", nil
	case containerd.Paused:
		return "running", nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return "exited", nil
		}
		return "failed", nil
	default:
		return "pending", nil
	}
}

// Create builds a container from spec but does not start it.
func (r *Runtime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	ctx = r.ctx(ctx)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		return "", fmt.Errorf("get image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}
	if len(spec.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.Command...))
	}

	if spec.CPULimitCores > 0 {
		shares := uint64(spec.CPULimitCores * 1024)
		quota := int64(spec.CPULimitCores * 100000)
		const period = uint64(100000)
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, period))
	}
	if spec.MemoryLimitBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(spec.MemoryLimitBytes)))
	}

	var mounts []specs.Mount
	if spec.SecretsPath != "" {
		mounts = append(mounts, specs.Mount{
			Source:      spec.SecretsPath,
			Destination: "/run/secrets",
			Type:        "bind",
			Options:     []string{"ro", "bind"},
		})
	}
	for _, v := range spec.Volumes {
		opt := "rw"
		if v.ReadOnly {
			opt = "ro"
		}
		mounts = append(mounts, specs.Mount{
			Source:      v.Source,
			Destination: v.Destination,
			Type:        "bind",
			Options:     []string{opt, "bind"},
		})
	}
	if spec.ResolvConfPath != "" {
		mounts = append(mounts, specs.Mount{
			Source:      spec.ResolvConfPath,
			Destination: "/etc/resolv.conf",
			Type:        "bind",
			Options:     []string{"ro", "bind"},
		})
	}
	if len(mounts) > 0 {
		opts = append(opts, oci.WithMounts(mounts))
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	return ctrdContainer.ID(), nil
}

// Start creates and starts the containerd task for an already-created
// container.
func (r *Runtime) Start(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("load container %s: %w", id, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	return nil
}

// Stop gracefully stops a running container, escalating to SIGKILL if it
// has not exited within graceSeconds.
func (r *Runtime) Stop(ctx context.Context, id string, graceSeconds int) error {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return fmt.Errorf("load container %s: %w", id, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // no task: already stopped
	}

	grace := time.Duration(graceSeconds) * time.Second
	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	return nil
}

// Remove deletes a container and its snapshot. If force is true and the
// container is running, it is stopped first with a short grace period.
func (r *Runtime) Remove(ctx context.Context, id string, force bool) error {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil // already gone
	}

	if force {
		if err := r.Stop(ctx, id, 10); err != nil {
			log.WithComponent("runtime").Warn().Err(err).Str("container_id", id).Msg("stop before remove failed, continuing")
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}

	return nil
}

// InspectImage returns size and digest information for an already-pulled
// image reference.
func (r *Runtime) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	ctx = r.ctx(ctx)

	image, err := r.client.GetImage(ctx, ref)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("get image %s: %w", ref, err)
	}

	size, err := image.Size(ctx)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("image size: %w", err)
	}

	return ImageInfo{
		ID:          image.Target().Digest.String(),
		SizeBytes:   size,
		RepoDigests: []string{image.Name()},
	}, nil
}

// ImportImage loads an OCI/Docker-format tarball into the control plane's
// namespace and names the resulting image tag, so it lands in the exact
// namespace InspectImage/ListImages/RemoveImage read from.
func (r *Runtime) ImportImage(ctx context.Context, tarballPath, tag string) (ImageInfo, error) {
	ctx = r.ctx(ctx)

	f, err := os.Open(tarballPath)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("open tarball %s: %w", tarballPath, err)
	}
	defer f.Close()

	imported, err := r.client.Import(ctx, f)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("import tarball %s: %w", tarballPath, err)
	}
	if len(imported) == 0 {
		return ImageInfo{}, fmt.Errorf("tarball %s produced no images", tarballPath)
	}

	src := imported[0]
	if src.Name != tag {
		if _, err := r.client.ImageService().Create(ctx, images.Image{Name: tag, Target: src.Target}); err != nil {
			return ImageInfo{}, fmt.Errorf("tag imported image as %s: %w", tag, err)
		}
	}

	return r.InspectImage(ctx, tag)
}

// ListImages returns every image tag known to the control plane's
// namespace.
func (r *Runtime) ListImages(ctx context.Context) ([]string, error) {
	ctx = r.ctx(ctx)

	imgs, err := r.client.ImageService().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	tags := make([]string, 0, len(imgs))
	for _, img := range imgs {
		tags = append(tags, img.Name)
	}
	return tags, nil
}

// RemoveImage deletes an image tag from the control plane's namespace.
func (r *Runtime) RemoveImage(ctx context.Context, ref string) error {
	ctx = r.ctx(ctx)

	if err := r.client.ImageService().Delete(ctx, ref); err != nil {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// CreateImagePull pulls ref, reporting progress on progressCh. The channel
// is closed when the pull completes (successfully or not). The caller
// decides success by the last PullProgress.Terminal seen, per spec §4.4:
// "terminal 'Digest:' or 'Status:' signals success."
func (r *Runtime) CreateImagePull(ctx context.Context, ref string, progressCh chan<- PullProgress) error {
	defer close(progressCh)
	ctx = r.ctx(ctx)

	select {
	case progressCh <- PullProgress{Status: fmt.Sprintf("Pulling from %s", ref)}:
	case <-ctx.Done():
		return ctx.Err()
	}

	image, err := r.client.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		select {
		case progressCh <- PullProgress{Status: fmt.Sprintf("Error: %v", err)}:
		case <-ctx.Done():
		}
		return fmt.Errorf("pull image %s: %w", ref, err)
	}

	select {
	case progressCh <- PullProgress{Status: fmt.Sprintf("Digest: %s", image.Target().Digest), Terminal: true}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// DownloadFromContainer streams a path out of a running container as a tar
// archive via a `tar` process that nsenter runs inside the container's
// mount, UTS, IPC, network and PID namespaces. This
// mirrors the teacher's own os/exec-based GetContainerIP implementation
// rather than introducing a new checkpoint/diff-based content API.
func (r *Runtime) DownloadFromContainer(ctx context.Context, id string, path string) (io.ReadCloser, error) {
	ctx = r.ctx(ctx)

	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w", id, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("get task status: %w", err)
	}
	if status.Status != containerd.Running {
		return nil, fmt.Errorf("container %s is not running", id)
	}

	return execTarStream(ctx, task.Pid(), path)
}

// parsePortBindingWireKey parses the string-typed wire encoding
// "<container_port>/tcp" spec §4.4 specifies for port bindings.
func parsePortBindingWireKey(key string) (port int, proto string, err error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("malformed port binding key %q", key)
	}
	var n int
	if _, err := fmt.Sscanf(parts[0], "%d", &n); err != nil {
		return 0, "", fmt.Errorf("malformed port in %q: %w", key, err)
	}
	return n, parts[1], nil
}
