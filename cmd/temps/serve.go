package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/temps/internal/git"
	"github.com/cuemby/temps/internal/imagebuilder"
	"github.com/cuemby/temps/internal/ingress"
	"github.com/cuemby/temps/internal/jobs"
	"github.com/cuemby/temps/internal/log"
	"github.com/cuemby/temps/internal/managedservice"
	"github.com/cuemby/temps/internal/metrics"
	"github.com/cuemby/temps/internal/runtime"
	"github.com/cuemby/temps/internal/security"
	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the temps control plane: workflow engine, edge router and managed-service supervisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
		httpAddr, _ := cmd.Flags().GetString("http-addr")
		httpsAddr, _ := cmd.Flags().GetString("https-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		kvEnabled, _ := cmd.Flags().GetBool("enable-kv")
		objectEnabled, _ := cmd.Flags().GetBool("enable-object-store")
		kvContainerName, _ := cmd.Flags().GetString("kv-container-name")
		objectContainerName, _ := cmd.Flags().GetString("object-container-name")
		kvPort, _ := cmd.Flags().GetInt("kv-port")
		objectPort, _ := cmd.Flags().GetInt("object-port")

		reg, err := buildRegistry(registryConfig{
			dataDir:             dataDir,
			containerdSocket:    containerdSocket,
			httpAddr:            httpAddr,
			httpsAddr:           httpsAddr,
			kvContainerName:     kvContainerName,
			objectContainerName: objectContainerName,
			kvPort:              kvPort,
			objectPort:          objectPort,
		})
		if err != nil {
			return fmt.Errorf("failed to build registry: %w", err)
		}
		defer reg.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stopLoader := make(chan struct{})
		go reg.routeLoader.Run(stopLoader)

		proxyErrCh := make(chan error, 1)
		go func() {
			if err := reg.proxy.Start(ctx); err != nil {
				proxyErrCh <- err
			}
		}()

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithComponent("serve").Error().Err(err).Msg("metrics server exited")
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)

		var supervisorWG sync.WaitGroup
		if kvEnabled {
			supervisorWG.Add(1)
			go func() {
				defer supervisorWG.Done()
				if err := reg.kv.Init(ctx); err != nil {
					log.WithComponent("serve").Error().Err(err).Msg("kv managed service failed to initialise")
				}
			}()
		}
		if objectEnabled {
			supervisorWG.Add(1)
			go func() {
				defer supervisorWG.Done()
				if err := reg.objectStore.Init(ctx); err != nil {
					log.WithComponent("serve").Error().Err(err).Msg("object store managed service failed to initialise")
					return
				}
				if host, port, ok := reg.objectStore.ConsoleEndpoint(); ok {
					log.WithComponent("serve").Info().Str("host", host).Int("port", port).Msg("object store console ready")
				}
			}()
		}

		fmt.Printf("edge proxy listening: http=%s https=%s\n", httpAddr, httpsAddr)
		fmt.Println("temps is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nshutting down...")
		case err := <-proxyErrCh:
			fmt.Fprintf(os.Stderr, "\nproxy error: %v\n", err)
		}

		close(stopLoader)
		cancel()
		supervisorWG.Wait()

		return nil
	},
}

func init() {
	serveCmd.Flags().String("containerd-socket", runtime.DefaultSocketPath, "containerd socket path")
	serveCmd.Flags().String("http-addr", ":8000", "Edge proxy HTTP listen address")
	serveCmd.Flags().String("https-addr", ":8443", "Edge proxy HTTPS listen address")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics HTTP listen address")
	serveCmd.Flags().Bool("enable-kv", false, "Initialise the KV managed service on startup")
	serveCmd.Flags().Bool("enable-object-store", false, "Initialise the object-store managed service on startup")
	serveCmd.Flags().String("kv-container-name", "temps-kv", "Fixed container name for the adopted/created KV instance")
	serveCmd.Flags().String("object-container-name", "temps-object", "Fixed container name for the adopted/created object-store instance")
	serveCmd.Flags().Int("kv-port", 6379, "Preferred host port for the KV managed service")
	serveCmd.Flags().Int("object-port", 9000, "Preferred host port for the object-store managed service")
}

// registry is the process-wide set of collaborators, constructed once at
// startup and passed explicitly to whatever needs it (spec §9: "no hidden
// singletons"). Nothing here is a package-level global.
type registry struct {
	store       store.Store
	notifier    *store.Notifier
	rt          *runtime.Runtime
	encryption  *security.EncryptionService
	routeTable  *ingress.RouteTable
	routeLoader *ingress.Loader
	proxy       *ingress.Proxy
	engine      *workflow.Engine
	builder     *imagebuilder.Builder
	git         *git.Client
	kv          *managedservice.Supervisor
	objectStore *managedservice.Supervisor
}

type registryConfig struct {
	dataDir             string
	containerdSocket    string
	httpAddr            string
	httpsAddr           string
	kvContainerName     string
	objectContainerName string
	kvPort              int
	objectPort          int
}

func buildRegistry(cfg registryConfig) (*registry, error) {
	s, err := store.NewBoltStore(cfg.dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc, err := loadEncryptionService(cfg.dataDir)
	if err != nil {
		s.Close()
		return nil, err
	}

	rt, err := runtime.New(cfg.containerdSocket)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	notifier := store.NewNotifier()
	notifier.Start()

	table := ingress.NewRouteTable()
	loader := ingress.NewLoader(table, s, notifier)

	certs, err := s.ListCertificates()
	if err != nil {
		rt.Close()
		s.Close()
		return nil, fmt.Errorf("load certificates: %w", err)
	}
	certProvider := ingress.NewCertificateProvider(svc)
	loaded := map[string]*tls.Certificate{}
	for _, c := range certs {
		cert, err := security.LoadTLSCertificate(svc, c)
		if err != nil {
			log.WithComponent("serve").Warn().Err(err).Str("domain", c.Domain).Msg("skipping certificate that failed to load")
			continue
		}
		loaded[c.Domain] = cert
	}
	certProvider.Update(loaded)

	proxy := ingress.NewProxy(table, noopAcmeStore{}, certProvider, cfg.httpAddr, cfg.httpsAddr)

	builder := imagebuilder.NewBuilder(rt)
	gitClient := git.NewClient()

	planner := jobs.NewPlanner(jobs.Spec{})
	deps := jobs.Deps{Git: gitClient, Builder: builder, Runtime: rt, Store: s, Notifier: notifier, ScratchDir: cfg.dataDir}
	factory := jobs.NewFactory(deps, jobs.BuildSpec{})
	engine := workflow.NewEngine(s, planner, factory)

	return &registry{
		store:       s,
		notifier:    notifier,
		rt:          rt,
		encryption:  svc,
		routeTable:  table,
		routeLoader: loader,
		proxy:       proxy,
		engine:      engine,
		builder:     builder,
		git:         gitClient,
		kv:          managedservice.NewKVSupervisor(rt, cfg.kvContainerName, derivePassword(cfg.dataDir, "kv"), cfg.kvPort),
		objectStore: managedservice.NewObjectStoreSupervisor(rt, cfg.objectContainerName, derivePassword(cfg.dataDir, "object"), cfg.objectPort),
	}, nil
}

func (r *registry) close() {
	r.notifier.Stop()
	r.rt.Close()
	r.store.Close()
}

// derivePassword deterministically derives a per-service fixed password from
// the master key file and kind, so re-running serve reconnects to the same
// adopted managed-service container without persisting a separate
// credential. Unlike EncryptionService.Encrypt, this must be deterministic
// across restarts, so it hashes rather than seals.
func derivePassword(dataDir, kind string) string {
	raw, err := os.ReadFile(filepath.Join(dataDir, "encryption_key"))
	if err != nil {
		return kind
	}
	sum := sha256.Sum256(append(raw, []byte(kind)...))
	return hex.EncodeToString(sum[:])
}

// noopAcmeStore is the ACME HTTP-01 challenge store wiring point; cert
// issuance automation is out of scope (spec §6), so the proxy's challenge
// endpoint always reports no matching token.
type noopAcmeStore struct{}

func (noopAcmeStore) Lookup(token string) (string, bool) { return "", false }
