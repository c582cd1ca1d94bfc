// Package router implements component C6: cluster topology with
// roles/weights, a health ticker with circuit breaker, consistency
// policies, read-your-writes stickiness, and transaction-config mapping.
//
// The immutable-snapshot/atomic-swap pattern is grounded on
// JeelKantaria-db-bouncer/internal/router's routerSnapshot: reads never
// take a lock, mutations clone-and-swap under a write mutex. The health
// ticker is grounded on that repo's internal/health/checker.go: a ticking
// loop with a bounded worker pool and a consecutive-failure threshold,
// generalized here to per-node circuit breaker state and replica lag.
package router

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Usub-development/upq/pool"
	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/wire"
)

// Role is a node's position in the cluster.
type Role int

const (
	Primary Role = iota
	SyncReplica
	AsyncReplica
	Analytics
	Archive
	Maintenance
)

// BreakerState is a node's circuit-breaker state.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

// Consistency is a read's consistency requirement.
type Consistency int

const (
	Strong Consistency = iota
	BoundedStaleness
	Eventual
)

// Kind distinguishes a read from a write for routing purposes.
type Kind int

const (
	Read Kind = iota
	Write
)

// StalenessBudget bounds how far behind a replica may be under
// BoundedStaleness.
type StalenessBudget struct {
	LagMS  int64
	LagLSN int64
}

// RouteHint carries a call's routing requirements.
type RouteHint struct {
	Kind          Kind
	Consistency   Consistency
	Staleness     StalenessBudget
	ReadMyWrites  bool
	Identity      string // RMW memo key: caller-chosen, e.g. user ID or session ID
}

// Health is one node's live health record, read and written from the
// ticker goroutine and read from the hot routing path; every field the
// routing path reads is an atomic, so route() never blocks on the
// ticker. Only the server version, which the ticker alone uses, sits
// behind versionMu.
type Health struct {
	healthy   atomic.Bool
	rttMicros atomic.Int64
	replayLag atomic.Int64 // milliseconds
	lsnLag    atomic.Int64

	breaker       atomic.Int32 // BreakerState
	failureCount  atomic.Int32
	nextProbeUnix atomic.Int64 // unix nanos; HalfOpen trial gate

	versionMu sync.Mutex
	version   *semver.Version // nil until the first successful probe parses one
}

func newHealth() *Health {
	h := &Health{}
	h.healthy.Store(true)
	h.breaker.Store(int32(Closed))
	return h
}

func (h *Health) snapshot() HealthSnapshot {
	return HealthSnapshot{
		Healthy:   h.healthy.Load(),
		RTT:       time.Duration(h.rttMicros.Load()) * time.Microsecond,
		ReplayLag: h.replayLag.Load(),
		LSNLag:    h.lsnLag.Load(),
		Breaker:   BreakerState(h.breaker.Load()),
	}
}

// HealthSnapshot is a consistent point-in-time read of a Health record.
type HealthSnapshot struct {
	Healthy   bool
	RTT       time.Duration
	ReplayLag int64
	LSNLag    int64
	Breaker   BreakerState
}

// Node is one cluster member: its own pool, never sharing connections
// with any other node.
type Node struct {
	Name     string
	Endpoint *wire.Config
	Role     Role
	Weight   int
	MaxPool  int32

	pool   *pool.Pool
	health *Health
}

// Pool returns the node's connection pool.
func (n *Node) Pool() *pool.Pool { return n.pool }

// noteVersion records the server_version a probe connection reported,
// parsing it once with Masterminds/semver so later probes can gate
// queries on it (e.g. pg_last_wal_replay_lsn vs its pre-PG10 name)
// without re-parsing the raw string every tick.
func (n *Node) noteVersion(raw string) {
	v, err := semver.NewVersion(coerceServerVersion(raw))
	if err != nil {
		return
	}
	n.health.versionMu.Lock()
	n.health.version = v
	n.health.versionMu.Unlock()
}

// atLeastPG10 reports whether the last-known server_version is >= 10,
// the release that renamed pg_last_xlog_replay_location and friends to
// their current pg_last_wal_* names. Unknown (never probed) is treated
// as true, the common case for a fresh, modern cluster.
func (n *Node) atLeastPG10() bool {
	n.health.versionMu.Lock()
	v := n.health.version
	n.health.versionMu.Unlock()
	if v == nil {
		return true
	}
	return v.Major() >= 10
}

// coerceServerVersion trims a Postgres server_version string (which may
// carry a suffix like "13beta1" or "14.2 (Debian 14.2-1)") down to the
// dotted numeric prefix semver.NewVersion can parse.
func coerceServerVersion(raw string) string {
	end := 0
	dots := 0
	for end < len(raw) {
		c := raw[end]
		if c >= '0' && c <= '9' {
			end++
			continue
		}
		if c == '.' && dots < 2 {
			dots++
			end++
			continue
		}
		break
	}
	if end == 0 {
		return raw
	}
	if dots == 0 {
		return raw[:end] + ".0.0"
	}
	if dots == 1 {
		return raw[:end] + ".0"
	}
	return raw[:end]
}

// Health returns a consistent snapshot of the node's health.
func (n *Node) Health() HealthSnapshot { return n.health.snapshot() }

// NodeSpec describes one node at build time.
type NodeSpec struct {
	Name     string
	Endpoint *wire.Config
	Role     Role
	Weight   int
	MaxPool  int32
}

// topology is the immutable snapshot swapped atomically on Build/rebuild,
// mirroring routerSnapshot's clone-and-swap discipline.
type topology struct {
	nodes           map[string]*Node
	primaryFailover []string // node names, in promotion order
}

// Config configures health probing and the RMW memo.
type Config struct {
	ProbeInterval    time.Duration
	Probe            string
	FailThreshold    int32
	OpenDuration     time.Duration
	ReadMyWritesTTL  time.Duration
}

func defaultConfig() Config {
	return Config{
		ProbeInterval:   5 * time.Second,
		Probe:           "SELECT 1",
		FailThreshold:   3,
		OpenDuration:    10 * time.Second,
		ReadMyWritesTTL: 2 * time.Second,
	}
}

// Router is immutable after Build: topology changes replace the shared
// snapshot atomically, never mutate nodes in place.
type Router struct {
	cfg  Config
	topo atomic.Value // *topology
	log  upqlog.Facade

	rmwMu  sync.Mutex
	rmw    map[string]time.Time // identity -> expiry

	stop chan struct{}
}

// SetLogger wires a sink into the router's log facade.
func (r *Router) SetLogger(logger upqlog.Logger, level upqlog.LogLevel) {
	r.log = upqlog.Facade{Logger: logger, LogLevel: level}
}

// Build constructs a Router from a node list and primary-failover order.
// Pools are created (not connected) eagerly for every node.
func Build(specs []NodeSpec, primaryFailover []string, cfg *Config) *Router {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}

	nodes := make(map[string]*Node, len(specs))
	for _, s := range specs {
		nodes[s.Name] = &Node{
			Name:     s.Name,
			Endpoint: s.Endpoint,
			Role:     s.Role,
			Weight:   s.Weight,
			MaxPool:  s.MaxPool,
			pool:     newNodePool(s),
			health:   newHealth(),
		}
	}

	r := &Router{cfg: c, rmw: make(map[string]time.Time)}
	r.topo.Store(&topology{nodes: nodes, primaryFailover: append([]string(nil), primaryFailover...)})
	return r
}

func (r *Router) load() *topology {
	return r.topo.Load().(*topology)
}

func newNodePool(s NodeSpec) *pool.Pool {
	return pool.New(s.Endpoint, s.MaxPool, nil)
}

// pin returns a named node's pool directly, bypassing consistency
// selection — used for analytics/archive nodes addressed by name.
func (r *Router) pin(name string) *pool.Pool {
	t := r.load()
	n, ok := t.nodes[name]
	if !ok {
		return nil
	}
	return n.pool
}

// Pin is pin's exported form, taking a RouteHint for symmetry with
// route/route_for_tx even though hint is currently unused by name-based
// lookup.
func (r *Router) Pin(name string, _ RouteHint) *pool.Pool {
	return r.pin(name)
}

func primaryNode(t *topology) *Node {
	for _, n := range t.nodes {
		if n.Role == Primary {
			return n
		}
	}
	return nil
}

// Route selects a pool for hint, applying the write/strong, bounded
// staleness, eventual, and read-my-writes rules.
func (r *Router) Route(hint RouteHint) *pool.Pool {
	t := r.load()

	if hint.ReadMyWrites && hint.Identity != "" && r.rmwActive(hint.Identity) {
		if p := primaryNode(t); p != nil && isUsable(p) {
			return p.pool
		}
	}

	if hint.Kind == Write || hint.Consistency == Strong {
		return r.routePrimaryOrFailover(t)
	}

	switch hint.Consistency {
	case BoundedStaleness:
		if p := r.routeBoundedStaleness(t, hint.Staleness); p != nil {
			return p.pool
		}
		if pr := primaryNode(t); pr != nil {
			return pr.pool
		}
		return nil
	case Eventual:
		if p := r.routeAnyHealthyReplica(t); p != nil {
			return p.pool
		}
		return nil
	default:
		return r.routePrimaryOrFailover(t)
	}
}

func (r *Router) routePrimaryOrFailover(t *topology) *pool.Pool {
	if p := primaryNode(t); p != nil && isUsable(p) {
		return p.pool
	}
	for _, name := range t.primaryFailover {
		if n, ok := t.nodes[name]; ok && isUsable(n) {
			return n.pool
		}
	}
	return nil
}

func (r *Router) routeBoundedStaleness(t *topology, budget StalenessBudget) *Node {
	var candidates []*Node
	for _, n := range t.nodes {
		if n.Role != SyncReplica && n.Role != AsyncReplica {
			continue
		}
		if !isUsable(n) {
			continue
		}
		snap := n.health.snapshot()
		if snap.ReplayLag <= budget.LagMS && snap.LSNLag <= budget.LagLSN {
			candidates = append(candidates, n)
		}
	}
	return bestCandidate(candidates)
}

func (r *Router) routeAnyHealthyReplica(t *topology) *Node {
	var candidates []*Node
	for _, n := range t.nodes {
		if n.Role != SyncReplica && n.Role != AsyncReplica {
			continue
		}
		if isUsable(n) {
			candidates = append(candidates, n)
		}
	}
	return bestCandidate(candidates)
}

// bestCandidate orders by (healthy, lower RTT, higher weight)
// lexicographically, returning nil for an empty candidate set.
func bestCandidate(candidates []*Node) *Node {
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].health.snapshot(), candidates[j].health.snapshot()
		if a.Healthy != b.Healthy {
			return a.Healthy
		}
		if a.RTT != b.RTT {
			return a.RTT < b.RTT
		}
		return candidates[i].Weight > candidates[j].Weight
	})
	return candidates[0]
}

func isUsable(n *Node) bool {
	snap := n.health.snapshot()
	return snap.Healthy && snap.Breaker != Open
}

// TxConfig is the subset of tx.Config the router needs to pick a node,
// avoiding an import of package tx (which would create a cycle since tx
// sits above pool, not router).
type TxConfig struct {
	ReadOnly   bool
	Deferrable bool
}

// RouteForTx maps a transaction's config to a node per route_for_tx:
// read_only && deferrable prefers a SyncReplica; read_only &&
// !deferrable prefers any replica under default consistency; otherwise
// the primary.
func (r *Router) RouteForTx(cfg TxConfig) *pool.Pool {
	t := r.load()
	if cfg.ReadOnly && cfg.Deferrable {
		for _, n := range t.nodes {
			if n.Role == SyncReplica && isUsable(n) {
				return n.pool
			}
		}
		return r.routePrimaryOrFailover(t)
	}
	if cfg.ReadOnly {
		if n := r.routeAnyHealthyReplica(t); n != nil {
			return n.pool
		}
		return r.routePrimaryOrFailover(t)
	}
	return r.routePrimaryOrFailover(t)
}

// NoteWrite records that hint.Identity just wrote, opening the
// read-my-writes stickiness window for ReadMyWritesTTL.
func (r *Router) NoteWrite(identity string) {
	if identity == "" {
		return
	}
	r.rmwMu.Lock()
	r.rmw[identity] = time.Now().Add(r.cfg.ReadMyWritesTTL)
	r.rmwMu.Unlock()
}

func (r *Router) rmwActive(identity string) bool {
	r.rmwMu.Lock()
	defer r.rmwMu.Unlock()
	expiry, ok := r.rmw[identity]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(r.rmw, identity)
		return false
	}
	return true
}
