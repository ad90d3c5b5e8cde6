// Package managedservice is the Managed-Service Supervisor (spec §4.5): for
// each supported dependency service (KV store, object store) it adopts or
// creates a backing container, verifies responsiveness, and publishes a
// typed client handle.
package managedservice

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/temps/internal/log"
	"github.com/cuemby/temps/internal/metrics"
	"github.com/cuemby/temps/internal/paaserr"
	"github.com/cuemby/temps/internal/runtime"
)

// State is a node in the supervisor's state machine (spec §4.5).
type State string

const (
	StateUninitialised   State = "uninitialised"
	StateAdopting        State = "adopting"
	StateProbingExisting State = "probing_existing"
	StatePulling         State = "pulling"
	StateCreating        State = "creating"
	StateProbingNew      State = "probing_new"
	StateReady           State = "ready"
)

const (
	readinessAttempts = 30
	readinessInterval = 500 * time.Millisecond
	portScanRange     = 100
)

// Probe checks whether a managed service is responding correctly at
// host:port and returns a plain error on failure. When the probe of an
// adopted container fails (for example because it rejects the
// supervisor's credentials), adopt wraps that error as a conflict rather
// than recreating the container.
type Probe func(ctx context.Context, host string, port int) error

// Supervisor drives one managed service's adopt-or-create lifecycle.
type Supervisor struct {
	rt            *runtime.Runtime
	Kind          string // "kv" or "object", used in logs/metrics
	FixedName     string // substring the container name must contain
	Image         string
	PreferredPort int
	PrivatePort   int // the port inside the container the service listens on
	Password      string
	Probe         Probe

	// ConsolePrivatePort is the container-side port of a second,
	// non-API port to expose alongside PrivatePort (the object store's web
	// console, spec §4.5). Zero means "single-port service" (the KV store).
	ConsolePrivatePort int

	mu          sync.Mutex
	state       State
	host        string
	port        int
	consoleHost string
	consolePort int
}

// NewSupervisor builds a Supervisor. Call Init to run the adopt-or-create
// sequence.
func NewSupervisor(rt *runtime.Runtime, kind, fixedName, image string, preferredPort, privatePort int, password string, probe Probe) *Supervisor {
	return &Supervisor{
		rt: rt, Kind: kind, FixedName: fixedName, Image: image,
		PreferredPort: preferredPort, PrivatePort: privatePort, Password: password,
		Probe: probe, state: StateUninitialised,
	}
}

// ConsoleEndpoint returns the host:port of the Ready service's secondary
// console port, or ("", 0, false) if this service has no console port or
// is not yet ready.
func (s *Supervisor) ConsoleEndpoint() (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.ConsolePrivatePort == 0 {
		return "", 0, false
	}
	return s.consoleHost, s.consolePort, true
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the host:port of the Ready service, or ("", 0, false).
func (s *Supervisor) Endpoint() (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return "", 0, false
	}
	return s.host, s.port, true
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
	metrics.ManagedServiceStateTransitionsTotal.WithLabelValues(s.Kind, string(to)).Inc()
}

// Init runs the full state machine: look for an existing container, adopt
// or create, then probe until ready (spec §4.5).
func (s *Supervisor) Init(ctx context.Context) error {
	logger := log.WithComponent("managed-service").With().Str("service", s.Kind).Logger()
	started := time.Now()

	s.transition(StateAdopting)

	existing, err := s.findExisting(ctx)
	if err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "listing containers failed", err)
	}

	if existing != nil {
		if err := s.adopt(ctx, existing); err != nil {
			return err
		}
	} else {
		if err := s.createNew(ctx); err != nil {
			return err
		}
	}

	s.transition(StateReady)
	metrics.ManagedServiceReadyDuration.WithLabelValues(s.Kind).Observe(time.Since(started).Seconds())
	logger.Info().Str("host", s.host).Int("port", s.port).Msg("managed service ready")
	return nil
}

func (s *Supervisor) findExisting(ctx context.Context) (*runtime.ContainerInfo, error) {
	containers, err := s.rt.ListContainers(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range containers {
		for _, name := range containers[i].Names {
			if strings.Contains(name, s.FixedName) {
				return &containers[i], nil
			}
		}
	}
	return nil, nil
}

// adopt handles the "found existing" branch: running containers are
// probed directly; stopped containers are started, given a small fixed
// delay, then probed. A probe failure on an adopted container surfaces a
// typed conflict rather than silently recreating (spec §4.5).
func (s *Supervisor) adopt(ctx context.Context, existing *runtime.ContainerInfo) error {
	s.transition(StateProbingExisting)

	if existing.State != "running" {
		if err := s.rt.Start(ctx, existing.ID); err != nil {
			return paaserr.Wrap(paaserr.KindInternal, "start-failed", err)
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	host, port, err := s.resolveBoundPortFor(existing, s.PrivatePort)
	if err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "could not resolve adopted container's bound port", err)
	}

	if err := s.probeUntilReady(ctx, host, port); err != nil {
		return paaserr.Wrap(paaserr.KindConflict,
			fmt.Sprintf("adopted container %s did not respond to a valid probe; remove it manually if it is stale", existing.ID), err)
	}

	s.host, s.port = host, port

	if s.ConsolePrivatePort != 0 {
		consoleHost, consolePort, err := s.resolveBoundPortFor(existing, s.ConsolePrivatePort)
		if err != nil {
			return paaserr.Wrap(paaserr.KindInternal, "could not resolve adopted container's console port", err)
		}
		s.consoleHost, s.consolePort = consoleHost, consolePort
	}

	return nil
}

// createNew pulls the image, binds a free port range, creates and starts
// the container, then probes until ready (spec §4.5).
func (s *Supervisor) createNew(ctx context.Context) error {
	s.transition(StatePulling)

	progressCh := make(chan runtime.PullProgress, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- s.rt.CreateImagePull(ctx, s.Image, progressCh) }()
	for range progressCh {
	}
	if err := <-errCh; err != nil {
		return paaserr.Wrap(paaserr.KindSourceUnavailable, "image pull failed", err)
	}

	s.transition(StateCreating)

	hostPort, err := findAvailablePort(s.PreferredPort, portScanRange, nil)
	if err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "no available port found", err)
	}

	portBindings := []runtime.PortBinding{
		{ContainerPort: s.PrivatePort, HostPort: hostPort, Protocol: "tcp"},
	}

	var consoleHostPort int
	if s.ConsolePrivatePort != 0 {
		consoleHostPort, err = AllocateConsolePort(hostPort)
		if err != nil {
			return paaserr.Wrap(paaserr.KindInternal, "no available console port found", err)
		}
		portBindings = append(portBindings, runtime.PortBinding{
			ContainerPort: s.ConsolePrivatePort, HostPort: consoleHostPort, Protocol: "tcp",
		})
	}

	containerID := fmt.Sprintf("%s-%d", s.FixedName, time.Now().UnixNano())
	spec := runtime.ContainerSpec{
		ID:           containerID,
		Image:        s.Image,
		Env:          s.envForPassword(),
		PortBindings: portBindings,
	}

	if _, err := s.rt.Create(ctx, spec); err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "start-failed", err)
	}
	if err := s.rt.Start(ctx, containerID); err != nil {
		return paaserr.Wrap(paaserr.KindInternal, "start-failed", err)
	}

	s.transition(StateProbingNew)

	if err := s.probeUntilReady(ctx, "127.0.0.1", hostPort); err != nil {
		return paaserr.Wrap(paaserr.KindTimeout, "newly created managed service never became ready", err)
	}

	s.host, s.port = "127.0.0.1", hostPort
	if s.ConsolePrivatePort != 0 {
		s.consoleHost, s.consolePort = "127.0.0.1", consoleHostPort
	}
	return nil
}

func (s *Supervisor) envForPassword() []string {
	switch s.Kind {
	case "object":
		return []string{"MINIO_ROOT_PASSWORD=" + s.Password}
	default:
		return []string{"REDIS_PASSWORD=" + s.Password}
	}
}

func (s *Supervisor) probeUntilReady(ctx context.Context, host string, port int) error {
	var lastErr error
	for i := 0; i < readinessAttempts; i++ {
		if err := s.Probe(ctx, host, port); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessInterval):
		}
	}
	return fmt.Errorf("not ready after %d attempts: %w", readinessAttempts, lastErr)
}

// resolveBoundPortFor extracts the host port bound to containerPort from an
// already-known container's port bindings.
func (s *Supervisor) resolveBoundPortFor(c *runtime.ContainerInfo, containerPort int) (string, int, error) {
	for _, pb := range c.PortBindings {
		if pb.ContainerPort == containerPort {
			return "127.0.0.1", pb.HostPort, nil
		}
	}
	return "", 0, fmt.Errorf("no port binding for container port %d", containerPort)
}

// findAvailablePort bind-tests ports starting at preferred for count ports,
// skipping any ports in exclude. For a second port search (object-store
// API + console), AllocateConsolePort starts the search at the first
// port + 1 and also passes the first port in exclude.
func findAvailablePort(preferred, count int, exclude map[int]bool) (int, error) {
	for p := preferred; p < preferred+count; p++ {
		if exclude[p] {
			continue
		}
		if portFree(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free port in [%d, %d)", preferred, preferred+count)
}

func portFree(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
