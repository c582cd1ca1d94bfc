package router

import (
	"context"
	"time"

	"github.com/Usub-development/upq/pool"
	"github.com/Usub-development/upq/upqlog"
)

// StartHealthLoop launches the cooperative ticker that probes every
// node, in its own goroutine per tick the way
// JeelKantaria-db-bouncer/internal/health/checker.go bounds its worker
// fan-out, generalized to circuit-breaker transitions and replica lag.
func (r *Router) StartHealthLoop(ctx context.Context) {
	r.stop = make(chan struct{})
	ticker := time.NewTicker(r.cfg.ProbeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.probeAll(ctx)
			}
		}
	}()
}

// StopHealthLoop stops the ticker.
func (r *Router) StopHealthLoop() {
	if r.stop != nil {
		close(r.stop)
	}
}

func (r *Router) probeAll(ctx context.Context) {
	t := r.load()
	for _, n := range t.nodes {
		go r.probeNode(ctx, n)
	}
}

func (r *Router) probeNode(ctx context.Context, n *Node) {
	if !n.breakerAllowsProbe() {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeInterval)
	defer cancel()

	start := time.Now()
	pc, err := n.pool.AcquireConnection(probeCtx)
	if err != nil {
		r.noteFailure(n, err.Error())
		return
	}
	res := pc.Conn().ExecSimple(probeCtx, r.cfg.Probe)
	rtt := time.Since(start)

	if !res.Ok {
		pc.Release()
		r.noteFailure(n, res.Message)
		return
	}

	n.health.rttMicros.Store(rtt.Microseconds())
	n.recordSuccess()
	n.noteVersion(pc.Conn().ServerVersion())

	if n.Role == SyncReplica || n.Role == AsyncReplica {
		r.probeReplicaLag(probeCtx, n, pc)
		return
	}
	pc.Release()
}

// probeReplicaLag measures two lags on the replica itself: the replay
// delay in milliseconds (now() minus pg_last_xact_replay_timestamp()) and
// the distance between the WAL positions the replica has received and
// replayed. The primary's own LSN is not queried. The WAL function names were
// renamed in PG10 (pg_last_xlog_* -> pg_last_wal_*, pg_xlog_location_diff
// -> pg_wal_lsn_diff); noteVersion's semver parse of server_version picks
// the matching pair so pre-PG10 replicas don't just fail the query.
func (r *Router) probeReplicaLag(ctx context.Context, n *Node, pc *pool.PooledConn) {
	defer pc.Release()
	res := pc.Conn().ExecSimple(ctx, "SELECT extract(epoch from (now() - pg_last_xact_replay_timestamp())) * 1000")
	if !res.Ok || len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return
	}
	lagMS := parseLagMS(res.Rows[0][0])
	n.health.replayLag.Store(lagMS)

	lsnQuery := "SELECT pg_wal_lsn_diff(pg_last_wal_receive_lsn(), pg_last_wal_replay_lsn())"
	if !n.atLeastPG10() {
		lsnQuery = "SELECT pg_xlog_location_diff(pg_last_xlog_receive_location(), pg_last_xlog_replay_location())"
	}
	lsnRes := pc.Conn().ExecSimple(ctx, lsnQuery)
	if lsnRes.Ok && len(lsnRes.Rows) > 0 && len(lsnRes.Rows[0]) > 0 {
		n.health.lsnLag.Store(parseLagMS(lsnRes.Rows[0][0]))
	}
}

func parseLagMS(s string) int64 {
	var whole, frac int64
	var scanned int
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			break
		}
		scanned++
	}
	_ = frac
	if scanned == 0 {
		return 0
	}
	var n int64
	for i := 0; i < scanned; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return whole
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

// breakerAllowsProbe reports whether the circuit permits a probe now:
// always when Closed or HalfOpen, and when Open only once the open
// duration has elapsed — at which point it advances to HalfOpen for
// exactly one trial probe.
func (n *Node) breakerAllowsProbe() bool {
	switch BreakerState(n.health.breaker.Load()) {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Now().UnixNano() >= n.health.nextProbeUnix.Load() {
			n.health.breaker.Store(int32(HalfOpen))
			return true
		}
		return false
	}
	return true
}

// noteFailure records a failed probe and logs the resulting breaker
// transition, if any.
func (r *Router) noteFailure(n *Node, reason string) {
	before := BreakerState(n.health.breaker.Load())
	n.recordFailure(r.cfg)
	after := BreakerState(n.health.breaker.Load())
	if after != before {
		r.log.Log(context.Background(), upqlog.LogLevelWarn, "circuit breaker opened", map[string]any{
			"node":   n.Name,
			"reason": reason,
		})
	}
}

func (n *Node) recordFailure(cfg Config) {
	n.health.healthy.Store(false)
	fails := n.health.failureCount.Add(1)

	switch BreakerState(n.health.breaker.Load()) {
	case HalfOpen:
		n.openBreaker(cfg)
	case Closed:
		if fails >= cfg.FailThreshold {
			n.openBreaker(cfg)
		}
	}
}

func (n *Node) openBreaker(cfg Config) {
	n.health.breaker.Store(int32(Open))
	n.health.nextProbeUnix.Store(time.Now().Add(cfg.OpenDuration).UnixNano())
}

func (n *Node) recordSuccess() {
	n.health.healthy.Store(true)
	n.health.failureCount.Store(0)
	n.health.breaker.Store(int32(Closed))
}
