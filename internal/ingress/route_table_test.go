package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/temps/internal/types"
)

func TestBuildSnapshotPriorityOrder(t *testing.T) {
	records := []*types.RouteRecord{
		{Domain: "app.example.com", Source: types.RouteSourceCustomRoute, BackendHost: "10.0.0.1", BackendPort: 8080},
		{Domain: "app.example.com", Source: types.RouteSourceEnvironmentDomain, BackendHost: "10.0.0.2", BackendPort: 8081},
		{Domain: "app.example.com", Source: types.RouteSourceProjectCustomDomain, BackendHost: "10.0.0.3", BackendPort: 8082},
	}

	snap := buildSnapshot(records)
	require := assert.New(t)
	require.Len(snap, 1)
	require.Equal("10.0.0.3", snap["app.example.com"].Backend.Host, "project_custom_domain must win over environment and custom routes")
}

func TestBuildSnapshotKeepsIndependentDomains(t *testing.T) {
	records := []*types.RouteRecord{
		{Domain: "a.example.com", Source: types.RouteSourceCustomRoute, BackendHost: "10.0.0.1", BackendPort: 8080},
		{Domain: "b.example.com", Source: types.RouteSourceEnvironmentDomain, BackendHost: "10.0.0.2", BackendPort: 8081},
	}

	snap := buildSnapshot(records)
	assert.Len(t, snap, 2)
}

func TestBuildSnapshotRedirectRecord(t *testing.T) {
	records := []*types.RouteRecord{
		{Domain: "old.example.com", Source: types.RouteSourceCustomRoute, RedirectTo: "https://new.example.com", StatusCode: 301},
	}

	snap := buildSnapshot(records)
	info := snap["old.example.com"]
	assert.Nil(t, info.Backend)
	require := assert.New(t)
	require.NotNil(info.Redirect)
	require.Equal("https://new.example.com", info.Redirect.Target)
	require.Equal(301, info.Redirect.StatusCode)
}

func TestRouteTableLookupMissing(t *testing.T) {
	table := NewRouteTable()
	_, ok := table.Lookup("nowhere.example.com")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Size())
}

func TestRouteTableSwapIsAtomic(t *testing.T) {
	table := NewRouteTable()
	table.swap(buildSnapshot([]*types.RouteRecord{
		{Domain: "app.example.com", Source: types.RouteSourceCustomRoute, BackendHost: "10.0.0.1", BackendPort: 8080},
	}))

	info, ok := table.Lookup("app.example.com")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", info.Backend.Host)
	assert.Equal(t, 1, table.Size())

	table.swap(buildSnapshot(nil))
	_, ok = table.Lookup("app.example.com")
	assert.False(t, ok, "swap must fully replace the previous snapshot")
}

func TestPriorityOrdering(t *testing.T) {
	assert.Greater(t, priority(types.RouteSourceProjectCustomDomain), priority(types.RouteSourceEnvironmentDomain))
	assert.Greater(t, priority(types.RouteSourceEnvironmentDomain), priority(types.RouteSourceCustomRoute))
}
