package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/temps/internal/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeploymentCRUDRoundtrip(t *testing.T) {
	s := newTestStore(t)

	dep := &types.Deployment{ID: "dep-1", ProjectID: "proj-1", State: types.DeploymentPending}
	require.NoError(t, s.CreateDeployment(dep))

	got, err := s.GetDeployment("dep-1")
	require.NoError(t, err)
	assert.Equal(t, "proj-1", got.ProjectID)

	got.State = types.DeploymentDeployed
	require.NoError(t, s.UpdateDeployment(got))

	reloaded, err := s.GetDeployment("dep-1")
	require.NoError(t, err)
	assert.Equal(t, types.DeploymentDeployed, reloaded.State)

	all, err := s.ListDeployments()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteDeployment("dep-1"))
	_, err = s.GetDeployment("dep-1")
	assert.Error(t, err)
}

func TestJobCRUDAndListByDeployment(t *testing.T) {
	s := newTestStore(t)

	j1 := &types.DeploymentJob{ID: "j1", DeploymentID: "dep-1", JobType: "download", Status: types.JobPending}
	j2 := &types.DeploymentJob{ID: "j2", DeploymentID: "dep-1", JobType: "build", Status: types.JobPending}
	j3 := &types.DeploymentJob{ID: "j3", DeploymentID: "dep-2", JobType: "download", Status: types.JobPending}
	require.NoError(t, s.CreateJob(j1))
	require.NoError(t, s.CreateJob(j2))
	require.NoError(t, s.CreateJob(j3))

	jobs, err := s.ListJobsByDeployment("dep-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	j1.Status = types.JobSucceeded
	require.NoError(t, s.UpdateJob(j1))
	got, err := s.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, types.JobSucceeded, got.Status)

	require.NoError(t, s.DeleteJobsByDeployment("dep-1"))
	jobs, err = s.ListJobsByDeployment("dep-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 0)

	remaining, err := s.ListJobsByDeployment("dep-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestContainerCRUD(t *testing.T) {
	s := newTestStore(t)

	c := &types.DeploymentContainer{ID: "c1", DeploymentID: "dep-1", BackendHost: "10.0.0.1", ContainerPort: 8080}
	require.NoError(t, s.CreateContainer(c))

	got, err := s.GetContainer("c1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.BackendHost)

	list, err := s.ListContainersByDeployment("dep-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteContainer("c1"))
	_, err = s.GetContainer("c1")
	assert.Error(t, err)
}

func TestEnvironmentCRUD(t *testing.T) {
	s := newTestStore(t)

	e := &types.Environment{ID: "env-1", ProjectID: "proj-1", Name: "production"}
	require.NoError(t, s.CreateEnvironment(e))

	got, err := s.GetEnvironment("env-1")
	require.NoError(t, err)
	assert.Equal(t, "production", got.Name)

	got.Name = "staging"
	require.NoError(t, s.UpdateEnvironment(got))
	reloaded, err := s.GetEnvironment("env-1")
	require.NoError(t, err)
	assert.Equal(t, "staging", reloaded.Name)

	all, err := s.ListEnvironments()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRouteCRUDKeyedBySourceAndDomain(t *testing.T) {
	s := newTestStore(t)

	r1 := &types.RouteRecord{Domain: "app.example.com", Source: types.RouteSourceCustomRoute, BackendHost: "10.0.0.1", BackendPort: 8080}
	r2 := &types.RouteRecord{Domain: "app.example.com", Source: types.RouteSourceProjectCustomDomain, BackendHost: "10.0.0.2", BackendPort: 8081}
	require.NoError(t, s.CreateRoute(r1))
	require.NoError(t, s.CreateRoute(r2))

	all, err := s.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, all, 2, "same domain from different sources must not collide in storage")

	require.NoError(t, s.DeleteRoute("app.example.com", types.RouteSourceCustomRoute))
	all, err = s.ListRoutes()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, types.RouteSourceProjectCustomDomain, all[0].Source)
}

func TestCertificateCRUD(t *testing.T) {
	s := newTestStore(t)

	c := &types.DomainCertificate{Domain: "example.com", Status: types.CertStatusPending}
	require.NoError(t, s.CreateCertificate(c))

	got, err := s.GetCertificate("example.com")
	require.NoError(t, err)
	assert.Equal(t, types.CertStatusPending, got.Status)

	got.Status = types.CertStatusActive
	require.NoError(t, s.UpdateCertificate(got))
	reloaded, err := s.GetCertificate("example.com")
	require.NoError(t, err)
	assert.Equal(t, types.CertStatusActive, reloaded.Status)

	all, err := s.ListCertificates()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDeployment("does-not-exist")
	assert.Error(t, err)
}
