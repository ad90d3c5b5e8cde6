// Package ingress is the Route Table + Edge Proxy (spec §4.7, §4.8): an
// in-memory hostname→backend snapshot reloaded on persistent-store
// notifications, and the HTTP(S) entrypoint that serves off it.
package ingress

import (
	"sync/atomic"
	"time"

	"github.com/cuemby/temps/internal/log"
	"github.com/cuemby/temps/internal/metrics"
	"github.com/cuemby/temps/internal/store"
	"github.com/cuemby/temps/internal/types"
)

// Backend is a forwarding target.
type Backend struct {
	Host string
	Port int
}

// Redirect is a redirect target.
type Redirect struct {
	Target     string
	StatusCode int
}

// RouteInfo is either a Backend or a Redirect, never both, plus
// observability annotations (spec §4.7).
type RouteInfo struct {
	Backend       *Backend
	Redirect      *Redirect
	ProjectID     string
	EnvironmentID string
	DeploymentID  string
}

// snapshot is the immutable map swapped atomically on each reload.
type snapshot struct {
	routes map[string]RouteInfo
}

// RouteTable answers "for hostname H, what is the backend or redirect?" in
// O(1) off a point-in-time snapshot. Lookups are lock-free: readers load a
// shared pointer to the current map (spec §5); the loader below is the
// table's single writer.
type RouteTable struct {
	current atomic.Pointer[snapshot]
}

// NewRouteTable returns an empty, ready-to-serve RouteTable. Until the
// first Reload, lookups report no route rather than blocking.
func NewRouteTable() *RouteTable {
	t := &RouteTable{}
	t.current.Store(&snapshot{routes: map[string]RouteInfo{}})
	return t
}

// Lookup returns the route for hostname, if any. Cheap: it loads the
// current snapshot pointer once and indexes the map; RouteInfo is small
// enough that copying it out is cheaper than returning a pointer into a map
// that might be replaced concurrently.
func (t *RouteTable) Lookup(hostname string) (RouteInfo, bool) {
	snap := t.current.Load()
	info, ok := snap.routes[hostname]
	return info, ok
}

// Size returns the number of routes in the current snapshot.
func (t *RouteTable) Size() int {
	return len(t.current.Load().routes)
}

// swap installs a newly built map as the current snapshot in one atomic
// store, so readers never observe a torn state (spec §4.7).
func (t *RouteTable) swap(routes map[string]RouteInfo) {
	t.current.Store(&snapshot{routes: routes})
	metrics.RouteTableSize.Set(float64(len(routes)))
}

// priority of RouteSource on hostname collision: project_custom_domains >
// environment_domains > custom_routes (spec §4.7).
func priority(source types.RouteSource) int {
	switch source {
	case types.RouteSourceProjectCustomDomain:
		return 3
	case types.RouteSourceEnvironmentDomain:
		return 2
	case types.RouteSourceCustomRoute:
		return 1
	default:
		return 0
	}
}

// buildSnapshot reduces the persisted RouteRecords into the
// hostname→RouteInfo map a RouteTable serves, resolving collisions by
// source priority.
func buildSnapshot(records []*types.RouteRecord) map[string]RouteInfo {
	routes := make(map[string]RouteInfo, len(records))
	won := make(map[string]int, len(records))

	for _, r := range records {
		p := priority(r.Source)
		if existing, ok := won[r.Domain]; ok && existing >= p {
			continue
		}
		won[r.Domain] = p

		info := RouteInfo{
			ProjectID:     r.ProjectID,
			EnvironmentID: r.EnvironmentID,
			DeploymentID:  r.DeploymentID,
		}
		if r.IsRedirect() {
			info.Redirect = &Redirect{Target: r.RedirectTo, StatusCode: r.StatusCode}
		} else {
			info.Backend = &Backend{Host: r.BackendHost, Port: r.BackendPort}
		}
		routes[r.Domain] = info
	}

	return routes
}

// Loader owns the RouteTable's reload protocol: full reload on startup and
// on each debounced notification. It holds the only reference to the
// notification subscription; the table itself holds no back-reference,
// avoiding the cyclic ownership Design Notes §9 calls out.
type Loader struct {
	table    *RouteTable
	store    store.Store
	notifier *store.Notifier
	debounce time.Duration
}

// NewLoader builds a Loader for table backed by s, subscribing to notifier
// for reload triggers.
func NewLoader(table *RouteTable, s store.Store, notifier *store.Notifier) *Loader {
	return &Loader{table: table, store: s, notifier: notifier, debounce: 100 * time.Millisecond}
}

// Reload performs one full refresh: list routes from the store, build a new
// map, and swap it in atomically. On error, the previous snapshot is left
// in place and the error is logged — the table never serves a partially
// built map (spec §4.7).
func (l *Loader) Reload() {
	timer := metrics.NewTimer()
	logger := log.WithComponent("route-table")

	records, err := l.store.ListRoutes()
	if err != nil {
		metrics.RouteTableReloadsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("route table reload failed, keeping previous snapshot")
		return
	}

	l.table.swap(buildSnapshot(records))
	timer.ObserveDuration(metrics.RouteTableReloadDuration)
	metrics.RouteTableReloadsTotal.WithLabelValues("ok").Inc()
	logger.Debug().Int("routes", len(records)).Msg("route table reloaded")
}

// Run performs an initial Reload, then reloads on each notification,
// debouncing bursts within l.debounce into a single refresh (spec §4.7:
// "multiple notifications within a small window (≤100 ms) coalesce into
// one refresh").
func (l *Loader) Run(stop <-chan struct{}) {
	l.Reload()

	sub := l.notifier.Subscribe()
	defer l.notifier.Unsubscribe(sub)

	var pending bool
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case note := <-sub:
			if note.Channel != store.ChannelRouteTable {
				continue
			}
			if !pending {
				pending = true
				timer.Reset(l.debounce)
			}
		case <-timer.C:
			if pending {
				pending = false
				l.Reload()
			}
		case <-stop:
			return
		}
	}
}
