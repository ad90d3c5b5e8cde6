package managedservice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cuemby/temps/internal/runtime"
)

// ObjectStoreImage is the default container image for the object-store
// managed service (an S3-API-compatible server).
const ObjectStoreImage = "minio/minio:latest"

// objectStoreAPIPort is the private port the object store's S3 API
// listens on; objectStoreConsolePort is its web console.
const (
	objectStoreAPIPort     = 9000
	objectStoreConsolePort = 9001
)

// NewObjectStoreProbe returns a Probe that GETs the object store's health
// endpoint (spec §4.5: "the object-store probe is an HTTP health
// endpoint").
func NewObjectStoreProbe() Probe {
	return func(ctx context.Context, host string, port int) error {
		client := &http.Client{Timeout: 3 * time.Second}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d/minio/health/live", host, port), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("object store health check failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("object store health check returned %d", resp.StatusCode)
		}
		return nil
	}
}

// NewObjectStoreSupervisor builds a Supervisor for the object-store managed
// service. Its console port is allocated by Supervisor.createNew via
// AllocateConsolePort once the API port is known, starting strictly above
// it and excluding it, per spec §4.5's "second search starts strictly above
// the first port and excludes it".
func NewObjectStoreSupervisor(rt *runtime.Runtime, fixedName, password string, preferredPort int) *Supervisor {
	s := NewSupervisor(rt, "object", fixedName, ObjectStoreImage, preferredPort, objectStoreAPIPort, password, NewObjectStoreProbe())
	s.ConsolePrivatePort = objectStoreConsolePort
	return s
}

// AllocateConsolePort finds a free port for the object store's console,
// starting strictly above apiPort and excluding it.
func AllocateConsolePort(apiPort int) (int, error) {
	return findAvailablePort(apiPort+1, portScanRange, map[int]bool{apiPort: true})
}

// ObjectStoreHandle is the cloneable typed client handle: an S3-shaped
// client pointed at the adopted or created object store (spec §4.5).
type ObjectStoreHandle struct {
	client *awss3.Client
}

// NewObjectStoreHandle builds an ObjectStoreHandle for the Supervisor's
// current endpoint, authenticated with the given accessKey and secretKey.
func NewObjectStoreHandle(ctx context.Context, s *Supervisor, accessKey, secretKey string) (*ObjectStoreHandle, error) {
	host, port, ok := s.Endpoint()
	if !ok {
		return nil, fmt.Errorf("object store supervisor not ready")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("http://%s:%d", host, port))
		o.UsePathStyle = true
	})

	return &ObjectStoreHandle{client: client}, nil
}

// Unwrap returns the underlying AWS SDK S3 client for advanced operations.
func (h *ObjectStoreHandle) Unwrap() *awss3.Client {
	return h.client
}
