package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/temps/internal/types"
)

func testDeployment() *types.Deployment {
	return &types.Deployment{ID: "dep-1", ProjectID: "proj-1", EnvironmentID: "env-1", CreatedAt: time.Now()}
}

func TestPlannerSourceBuildOrdering(t *testing.T) {
	p := NewPlanner(Spec{})
	planned, err := p.Plan(testDeployment())
	require.NoError(t, err)

	require.Len(t, planned, 5)
	wantTypes := []string{TypeDownloadRepo, TypeBuildImage, TypeDeployImage, TypeConfigureRoutes, TypePromoteEnv}
	for i, job := range planned {
		assert.Equal(t, wantTypes[i], job.JobType)
		assert.Equal(t, i+1, job.ExecutionOrder)
	}

	assert.Equal(t, []string{planned[0].ID}, planned[1].Producers)
	assert.Equal(t, []string{planned[1].ID}, planned[2].Producers)
}

func TestPlannerPrebuiltImageSkipsDownloadAndBuild(t *testing.T) {
	p := NewPlanner(Spec{UsePrebuiltImage: true, ImageRef: "nginx:latest"})
	planned, err := p.Plan(testDeployment())
	require.NoError(t, err)

	require.Len(t, planned, 4)
	assert.Equal(t, TypePullExternalImage, planned[0].JobType)
	assert.Equal(t, TypeDeployImage, planned[1].JobType)
}

func TestPlannerRequiresImageRefForPrebuilt(t *testing.T) {
	p := NewPlanner(Spec{UsePrebuiltImage: true})
	_, err := p.Plan(testDeployment())
	assert.Error(t, err)
}

func TestPlannerOptionalTailJobs(t *testing.T) {
	p := NewPlanner(Spec{WantCrons: true, WantScreenshot: true})
	planned, err := p.Plan(testDeployment())
	require.NoError(t, err)

	require.Len(t, planned, 7)
	assert.Equal(t, TypeConfigureCrons, planned[5].JobType)
	assert.Equal(t, TypeTakeScreenshot, planned[6].JobType)
	assert.True(t, planned[5].ContinueOnFail)
	assert.True(t, planned[6].ContinueOnFail)
}

func TestPlannerExecutionOrderIsPermutation(t *testing.T) {
	p := NewPlanner(Spec{WantCrons: true})
	planned, err := p.Plan(testDeployment())
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, job := range planned {
		assert.False(t, seen[job.ExecutionOrder], "duplicate execution_order %d", job.ExecutionOrder)
		seen[job.ExecutionOrder] = true
	}
	for i := 1; i <= len(planned); i++ {
		assert.True(t, seen[i])
	}
}
