// Package pool implements component C3: a bounded
// multi-producer/multi-consumer idle queue of connections with
// non-blocking acquisition, dirty handling, draining, retirement and
// periodic health probing.
//
// Grounded on pgxpool/pool.go and the smaller pool/pool.go reference: both
// build the idle queue on github.com/jackc/puddle, a lock-free resource
// pool that already gives us the MPMC idle queue and the suspend-on-empty
// waiter list a connection pool needs — we don't hand-roll it.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle"

	"github.com/Usub-development/upq/conn"
	"github.com/Usub-development/upq/upqlog"
	"github.com/Usub-development/upq/wire"
)

// HealthConfig configures the periodic health checker.
type HealthConfig struct {
	Interval time.Duration // default 600_000ms
	Probe    string        // default "SELECT 1"
	SampleN  int           // how many idle connections to sample per tick
}

func defaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval: 10 * time.Minute,
		Probe:    "SELECT 1",
		SampleN:  4,
	}
}

// Stats are the health counters
type Stats struct {
	Checked     atomic.Int64
	Alive       atomic.Int64
	Reconnected atomic.Int64
}

// Pool is the Pool: target size, current live count, an
// idle MPMC queue, connection parameters, health configuration/counters,
// and waiters blocked on acquisition (the last two delegated to puddle).
type Pool struct {
	p           *puddle.Pool
	cfg         *wire.Config
	maxPoolSize int32
	health      HealthConfig
	stats       Stats
	log         upqlog.Facade

	stopHealth chan struct{}
}

// SetLogger wires a sink into the pool's log facade; nil disables
// logging (the zero-value facade already logs nothing, since its Logger
// is nil).
func (pl *Pool) SetLogger(logger upqlog.Logger, level upqlog.LogLevel) {
	pl.log = upqlog.Facade{Logger: logger, LogLevel: level}
}

// New creates a Pool for cfg with the given max size. No connections are
// created eagerly; growth happens on first Acquire past an empty idle
// queue step 2.
func New(cfg *wire.Config, maxPoolSize int32, health *HealthConfig) *Pool {
	hc := defaultHealthConfig()
	if health != nil {
		hc = *health
	}

	pl := &Pool{cfg: cfg, maxPoolSize: maxPoolSize, health: hc}

	pl.p = puddle.NewPool(
		func(ctx context.Context) (interface{}, error) {
			return conn.Connect(ctx, cfg)
		},
		func(value interface{}) {
			value.(*conn.Conn).MarkDead()
		},
		maxPoolSize,
	)

	return pl
}

// StartHealthLoop launches the single cooperative task that periodically
// probes idle connections. Call once; Close stops it.
func (pl *Pool) StartHealthLoop(ctx context.Context) {
	pl.stopHealth = make(chan struct{})
	ticker := time.NewTicker(pl.health.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pl.stopHealth:
				return
			case <-ticker.C:
				pl.runHealthTick(ctx)
			}
		}
	}()
}

// runHealthTick samples up to SampleN idle connections, probes each, and
// retires failures. The health loop never holds a connection longer than
// the probe itself. Exercises scenario S5.
func (pl *Pool) runHealthTick(ctx context.Context) {
	resources := pl.p.AcquireAllIdle()
	sampled := resources
	if len(sampled) > pl.health.SampleN {
		sampled = sampled[:pl.health.SampleN]
	}

	for _, res := range resources[len(sampled):] {
		res.ReleaseUnused()
	}

	for _, res := range sampled {
		pl.stats.Checked.Add(1)
		c := res.Value().(*conn.Conn)

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		r := c.ExecSimple(probeCtx, pl.health.Probe)
		cancel()

		if r.Ok {
			pl.stats.Alive.Add(1)
			res.Release()
			continue
		}

		res.Destroy()
		pl.stats.Reconnected.Add(1)
		pl.log.Log(ctx, upqlog.LogLevelWarn, "health probe failed, retiring connection", map[string]any{
			"probe": pl.health.Probe,
			"error": r.Message,
		})
	}
}

// StopHealthLoop stops the health ticker.
func (pl *Pool) StopHealthLoop() {
	if pl.stopHealth != nil {
		close(pl.stopHealth)
	}
}

// PooledConn is the handle Acquire hands to callers: a *conn.Conn plus
// enough of the underlying puddle.Resource to implement the
// release/retire paths. Mirrors pgxpool's *Conn wrapper.
type PooledConn struct {
	res  *puddle.Resource
	pool *Pool
}

// Conn returns the underlying Connection.
func (pc *PooledConn) Conn() *conn.Conn {
	return pc.res.Value().(*conn.Conn)
}

// Release returns the connection
// fast path: only an Idle connection goes back on the idle queue and
// wakes at most one waiter (puddle.Resource.Release does this
// internally). Dirty/Bad and anything still mid-COPY or mid-cursor
// (InCopyIn/InCopyOut/InCursor) or otherwise not yet settled (Busy) is
// retired rather than drained, since this path has no context to drain
// with. Callers that want a mid-COPY/cursor connection recycled instead
// of retired should use ReleaseAsync. Satisfies invariant 2: a
// connection released anything but Idle is never re-issued.
func (pc *PooledConn) Release() {
	switch pc.Conn().State() {
	case conn.Idle:
		pc.res.Release()
	default:
		pc.res.Destroy()
	}
}

// ReleaseAsync drains a possibly-dirty connection before recycling it —
// the path scenario S1 (dirty recycle) exercises, so applications that
// misuse COPY or cursors avoid leaking "another command is already in
// progress" errors.
func (pc *PooledConn) ReleaseAsync(ctx context.Context) {
	c := pc.Conn()
	switch c.State() {
	case conn.Idle:
		pc.res.Release()
		return
	case conn.Bad:
		pc.res.Destroy()
		return
	default:
		c.DrainAsync(ctx)
		if c.State() == conn.Bad {
			pc.res.Destroy()
		} else {
			pc.res.Release()
		}
	}
}

// MarkDead is the explicit retirement path for a connection the caller
// knows is doomed.
func (pc *PooledConn) MarkDead() {
	pc.Conn().MarkDead()
	pc.res.Destroy()
}

// AcquireConnection implements the acquisition algorithm: pop
// an idle connection if one is ready and still connected, else grow up to
// max_pool_size by dialing asynchronously, else suspend the caller on
// puddle's wait queue until the next release.
func (pl *Pool) AcquireConnection(ctx context.Context) (*PooledConn, error) {
	for {
		res, err := pl.p.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		c := res.Value().(*conn.Conn)
		if c.State() != conn.Bad {
			return &PooledConn{res: res, pool: pl}, nil
		}
		res.Destroy()
	}
}

// Stat exposes puddle's pool statistics alongside upq's health counters.
// live_count <= max_pool_size (invariant 1) always holds because
// puddle.Pool enforces its maxSize internally.
func (pl *Pool) Stat() (*puddle.Stat, *Stats) {
	return pl.p.Stat(), &pl.stats
}

// Close closes every connection in the pool and stops the health loop.
func (pl *Pool) Close() {
	pl.StopHealthLoop()
	pl.p.Close()
}
