// Package store is the Persistent Store collaborator (spec §6): transactional
// insert/update of deployments, jobs, containers, environments and routing
// tables, plus a notification channel standing in for LISTEN/NOTIFY.
package store

import "github.com/cuemby/temps/internal/types"

// Store is the narrow persistence surface the rest of the control plane
// depends on. BoltStore is the only implementation.
type Store interface {
	CreateDeployment(d *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments() ([]*types.Deployment, error)
	UpdateDeployment(d *types.Deployment) error
	DeleteDeployment(id string) error

	CreateJob(j *types.DeploymentJob) error
	GetJob(id string) (*types.DeploymentJob, error)
	ListJobsByDeployment(deploymentID string) ([]*types.DeploymentJob, error)
	UpdateJob(j *types.DeploymentJob) error
	DeleteJobsByDeployment(deploymentID string) error

	CreateContainer(c *types.DeploymentContainer) error
	GetContainer(id string) (*types.DeploymentContainer, error)
	ListContainersByDeployment(deploymentID string) ([]*types.DeploymentContainer, error)
	UpdateContainer(c *types.DeploymentContainer) error
	DeleteContainer(id string) error

	CreateEnvironment(e *types.Environment) error
	GetEnvironment(id string) (*types.Environment, error)
	ListEnvironments() ([]*types.Environment, error)
	UpdateEnvironment(e *types.Environment) error

	CreateRoute(r *types.RouteRecord) error
	ListRoutes() ([]*types.RouteRecord, error)
	DeleteRoute(domain string, source types.RouteSource) error

	CreateCertificate(c *types.DomainCertificate) error
	GetCertificate(domain string) (*types.DomainCertificate, error)
	ListCertificates() ([]*types.DomainCertificate, error)
	UpdateCertificate(c *types.DomainCertificate) error

	Close() error
}
