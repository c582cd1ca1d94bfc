// Package conn implements component C2: a stateful
// owner of one wire.Conn that enforces the single-in-flight invariant,
// detects dirtiness, and exposes the full query surface to the
// transaction and pool layers.
package conn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
	"github.com/Usub-development/upq/wire"
)

// State is the connection lifecycle
type State int32

const (
	Connecting State = iota
	Idle
	Busy
	InCopyIn
	InCopyOut
	InCursor
	Dirty
	Bad
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case InCopyIn:
		return "in_copy_in"
	case InCopyOut:
		return "in_copy_out"
	case InCursor:
		return "in_cursor"
	case Dirty:
		return "dirty"
	case Bad:
		return "bad"
	default:
		return "unknown"
	}
}

// Conn is a Connection: single in-flight command, a
// monotonic cursor-name counter, an optional pipeline-depth counter, and
// the connection parameters it was dialed with.
type Conn struct {
	w *wire.Conn

	state     atomic.Int32
	cursorSeq atomic.Uint64
	pipelined atomic.Int32 // >0 when pipeline mode is active

	cfg *wire.Config

	mu              sync.Mutex
	pendingPipeline int // pipelined sends not yet Sync'd
}

// Connect opens a new Connection. Created on pool growth
func Connect(ctx context.Context, cfg *wire.Config) (*Conn, error) {
	c := &Conn{cfg: cfg}
	c.state.Store(int32(Connecting))

	w, err := wire.ConnectAsync(ctx, cfg)
	if err != nil {
		c.state.Store(int32(Bad))
		return nil, err
	}
	c.w = w
	c.state.Store(int32(Idle))
	return c, nil
}

func (c *Conn) State() State { return State(c.state.Load()) }

// ServerVersion returns the backend's reported server_version, used by
// the router to gate version-dependent probe queries.
func (c *Conn) ServerVersion() string { return c.w.ServerVersion() }

// connected reports whether the connection is usable at all (not Bad).
func (c *Conn) connected() bool { return c.State() != Bad }

// TryAcquire transitions Idle -> Busy atomically; ExecSimple and
// ExecParams gate on it so one connection never carries more than one
// in-flight command.
func (c *Conn) TryAcquire() bool {
	return c.state.CompareAndSwap(int32(Idle), int32(Busy))
}

// Release returns the connection to Idle after a command completes
// cleanly. If the connection ended up dirty mid-command the caller
// (the query methods below) has already set Dirty instead.
func (c *Conn) Release() {
	c.state.CompareAndSwap(int32(Busy), int32(Idle))
}

// MarkDead forces the connection into Bad, the explicit retirement path
// a caller uses when it knows the connection is doomed.
func (c *Conn) MarkDead() {
	c.state.Store(int32(Bad))
}

// markDirty records that the socket still has pending results or remains
// in a COPY/cursor mode after a call returned.
func (c *Conn) markDirty() {
	c.state.Store(int32(Dirty))
}

// nextCursorName generates "upq_cur_<monotonic>"
func (c *Conn) nextCursorName() string {
	n := c.cursorSeq.Add(1)
	return fmt.Sprintf("upq_cur_%d", n)
}

// SetPipelineMode records a call-time pipeline-mode flag, not a type
// change. ExecSimple and ExecParams do not read it; pipelined submission
// goes through PipelineExec and PipelineSync.
func (c *Conn) SetPipelineMode(on bool) {
	if on {
		c.pipelined.Store(1)
	} else {
		c.pipelined.Store(0)
	}
}

func (c *Conn) pipelineMode() bool { return c.pipelined.Load() != 0 }

// ExecSimple runs sql with no parameters. Returns InvalidFuture if the
// connection is not Idle when called, matching the single-in-flight rule.
func (c *Conn) ExecSimple(ctx context.Context, sql string) result.QueryResult {
	if !c.connected() {
		return result.Err(pgerr.ConnectionClosed, "conn: connection is bad")
	}
	if !c.TryAcquire() {
		return result.Err(pgerr.InvalidFuture, "conn: not idle")
	}
	res := c.w.ExecSimple(ctx, sql)
	c.detectDirty(res.Ok, res.Code)
	return res
}

// ExecParams runs sql with textual parameters via the extended query
// protocol.
func (c *Conn) ExecParams(ctx context.Context, sql string, params []*string) result.QueryResult {
	if !c.connected() {
		return result.Err(pgerr.ConnectionClosed, "conn: connection is bad")
	}
	if !c.TryAcquire() {
		return result.Err(pgerr.InvalidFuture, "conn: not idle")
	}
	formats := make([]int16, len(params))
	res := c.w.ExecParams(ctx, sql, params, formats)
	c.detectDirty(res.Ok, res.Code)
	return res
}

// PipelineExec queues sql for pipelined submission; call PipelineSync to
// flush and collect all queued results in send order.
func (c *Conn) PipelineExec(sql string, params []*string) {
	c.mu.Lock()
	c.pendingPipeline++
	c.mu.Unlock()
	c.w.PipelineExec(sql, params)
}

// PipelineSync flushes every queued PipelineExec call.
func (c *Conn) PipelineSync(ctx context.Context) []result.QueryResult {
	c.mu.Lock()
	n := c.pendingPipeline
	c.pendingPipeline = 0
	c.mu.Unlock()

	results := c.w.PipelineSync(ctx, n)
	for _, r := range results {
		if !r.Ok && r.Code == pgerr.ConnectionClosed {
			c.state.Store(int32(Bad))
		}
	}
	return results
}

// detectDirty is the dirty-detection hook called after every command:
// a transport failure marks the connection Bad; a cancelled await marks
// it Dirty, since the backend may still be mid-command and the socket
// needs draining before reuse; any other non-Ok result still leaves the
// socket in a clean idle state for the simple/extended query protocols
// used here, so the connection returns to Idle.
func (c *Conn) detectDirty(ok bool, code pgerr.Code) {
	switch code {
	case pgerr.ConnectionClosed, pgerr.SocketReadFailed:
		c.state.Store(int32(Bad))
		return
	case pgerr.AwaitCanceled:
		c.markDirty()
		return
	}
	c.state.CompareAndSwap(int32(Busy), int32(Idle))
}

// DrainAsync consumes and discards results until Idle or Bad, the
// recovery path release_connection_async uses for misused COPY/cursor
// sessions.
func (c *Conn) DrainAsync(ctx context.Context) {
	switch c.State() {
	case InCopyOut:
		for {
			data, err := c.w.CopyOutRead(ctx)
			if err != nil || len(data) == 0 {
				break
			}
		}
	case InCopyIn:
		c.w.CopyInFinish(ctx)
	case InCursor:
		// ROLLBACK ends the implicit transaction block CursorDeclare opened,
		// which closes every cursor declared inside it; conn does not keep
		// the cursor names itself.
		c.w.ExecSimple(ctx, "ROLLBACK")
	}
	if c.connected() {
		c.state.Store(int32(Idle))
	}
}
