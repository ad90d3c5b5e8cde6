// Package types defines the core entities shared across the control plane:
// deployments, jobs, workflow context, routes, and the managed-service and
// certificate records that the proxy depends on.
package types

import "time"

// Deployment is one attempt to realise a source revision in an environment.
type Deployment struct {
	ID            string
	ProjectID     string
	EnvironmentID string
	Slug          string
	State         DeploymentState
	ImageRef      string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// DeploymentState is the lifecycle state of a Deployment.
type DeploymentState string

const (
	DeploymentPending   DeploymentState = "pending"
	DeploymentRunning   DeploymentState = "running"
	DeploymentDeployed  DeploymentState = "deployed"
	DeploymentFailed    DeploymentState = "failed"
	DeploymentCancelled DeploymentState = "cancelled"
)

// Terminal reports whether the state is one the workflow engine will not
// transition out of on its own.
func (s DeploymentState) Terminal() bool {
	switch s {
	case DeploymentDeployed, DeploymentFailed, DeploymentCancelled:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle state of a DeploymentJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobSkipped   JobStatus = "skipped"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job will not be scheduled again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobSkipped, JobCancelled:
		return true
	default:
		return false
	}
}

// DeploymentJob is one stage of a Deployment's workflow.
type DeploymentJob struct {
	ID               string
	DeploymentID     string
	JobType          string
	Name             string
	Status           JobStatus
	ExecutionOrder   int
	ContinueOnFail   bool
	Producers        []string // job IDs whose outputs this job declares as inputs
	DeclaredOutputs  []string // output keys this job must write on success
	ErrorKind        string
	ErrorMessage     string
	InputContext     map[string]string // JSON-encoded input snapshot, informational
	OutputContext    map[string]string // JSON-encoded output snapshot, informational
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// DeploymentContainer records a running container created by the Deploy job.
type DeploymentContainer struct {
	ID                string
	DeploymentID      string
	BackendHost       string
	ContainerPort     int
	RuntimeContainerID string
	Health            string
	CreatedAt         time.Time
	DestroyedAt       *time.Time
}

// Environment holds the currently-promoted deployment for a project.
type Environment struct {
	ID                 string
	ProjectID          string
	Name               string
	PrimaryHostname    string
	CurrentDeploymentID string // weak reference; replacing does not delete the old Deployment
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RouteSource identifies which persistent-store table a RouteRecord derives from.
type RouteSource string

const (
	RouteSourceCustomRoute           RouteSource = "custom_route"
	RouteSourceEnvironmentDomain     RouteSource = "environment_domain"
	RouteSourceProjectCustomDomain   RouteSource = "project_custom_domain"
)

// RouteRecord is a derived, in-memory row of the Route Table.
//
// It either forwards (BackendHost/BackendPort set) or redirects
// (RedirectTo/StatusCode set), never both.
type RouteRecord struct {
	Domain       string
	Source       RouteSource
	BackendHost  string
	BackendPort  int
	RedirectTo   string
	StatusCode   int
	ProjectID    string
	EnvironmentID string
	DeploymentID string
}

// IsRedirect reports whether this record redirects rather than forwards.
func (r RouteRecord) IsRedirect() bool {
	return r.RedirectTo != ""
}

// LogLevel is the severity of a StructuredLogEntry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// StructuredLogEntry is one append-only line of a job's log stream.
type StructuredLogEntry struct {
	Level     LogLevel
	Message   string
	Timestamp time.Time
	Line      int
	Metadata  map[string]string
}

// ManagedServiceKind distinguishes the two supported dependency services.
type ManagedServiceKind string

const (
	ManagedServiceKV     ManagedServiceKind = "kv"
	ManagedServiceObject ManagedServiceKind = "object"
)

// ManagedServiceConfig is the per-service runtime configuration, present
// once the service has been initialised in the current process.
type ManagedServiceConfig struct {
	Kind          ManagedServiceKind
	ContainerName string
	ImageRef      string
	HostPort      int
	ConsolePort   int // object store only
	Password      string
	CreatedAt     time.Time
}

// CertVerificationMethod records how a DomainCertificate was obtained.
type CertVerificationMethod string

const (
	VerificationManual       CertVerificationMethod = "manual"
	VerificationDNSAutomated CertVerificationMethod = "dns-automated"
	VerificationHTTPAutomated CertVerificationMethod = "http-automated"
)

// CertStatus is the lifecycle state of a DomainCertificate.
type CertStatus string

const (
	CertStatusActive  CertStatus = "active"
	CertStatusPending CertStatus = "pending"
	CertStatusFailed  CertStatus = "failed"
	CertStatusExpired CertStatus = "expired"
)

// DomainCertificate is a domain's certificate chain and encrypted key.
type DomainCertificate struct {
	Domain               string
	PEMChain             string
	EncryptedPrivateKey  string
	NotAfter             time.Time
	IsWildcard           bool
	VerificationMethod   CertVerificationMethod
	Status               CertStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
