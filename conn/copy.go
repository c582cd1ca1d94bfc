package conn

import (
	"context"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

// CopyInStart begins a COPY ... FROM STDIN session. The connection is
// left InCopyIn until CopyInFinish is called; a connection returned to
// the pool while InCopyIn is dirty
func (c *Conn) CopyInStart(ctx context.Context, sql string) error {
	if !c.state.CompareAndSwap(int32(Idle), int32(Busy)) {
		return pgerr.New(pgerr.InvalidFuture, "conn: not idle")
	}
	if err := c.w.CopyInStart(ctx, sql); err != nil {
		c.state.Store(int32(Bad))
		return err
	}
	c.state.Store(int32(InCopyIn))
	return nil
}

// CopyInSend streams one chunk of COPY data.
func (c *Conn) CopyInSend(ctx context.Context, data []byte) error {
	if c.State() != InCopyIn {
		return pgerr.New(pgerr.InvalidFuture, "conn: not in copy-in")
	}
	return c.w.CopyInSend(ctx, data)
}

// CopyInFinish completes the COPY and returns the connection to Idle. If
// the caller never calls this, S1 (dirty recycle) applies: the
// connection stays InCopyIn and is dirty when released.
func (c *Conn) CopyInFinish(ctx context.Context) result.CopyResult {
	if c.State() != InCopyIn {
		return result.CopyResult{Code: pgerr.InvalidFuture, Message: "conn: not in copy-in"}
	}
	res := c.w.CopyInFinish(ctx)
	if res.Code == pgerr.ConnectionClosed {
		c.state.Store(int32(Bad))
	} else {
		c.state.Store(int32(Idle))
	}
	return res
}

// CopyOutStart begins a COPY ... TO STDOUT session.
func (c *Conn) CopyOutStart(ctx context.Context, sql string) error {
	if !c.state.CompareAndSwap(int32(Idle), int32(Busy)) {
		return pgerr.New(pgerr.InvalidFuture, "conn: not idle")
	}
	if err := c.w.CopyOutStart(ctx, sql); err != nil {
		c.state.Store(int32(Bad))
		return err
	}
	c.state.Store(int32(InCopyOut))
	return nil
}

// CopyOutRead returns the next chunk; an empty slice signals EOF and
// returns the connection to Idle.
func (c *Conn) CopyOutRead(ctx context.Context) ([]byte, error) {
	if c.State() != InCopyOut {
		return nil, pgerr.New(pgerr.InvalidFuture, "conn: not in copy-out")
	}
	data, err := c.w.CopyOutRead(ctx)
	if err != nil {
		c.state.Store(int32(Bad))
		return nil, err
	}
	if len(data) == 0 {
		c.state.Store(int32(Idle))
	}
	return data, nil
}

// CursorDeclare opens a named server-side cursor inside an implicit
// transaction block. Leaves the connection InCursor until CursorClose.
func (c *Conn) CursorDeclare(ctx context.Context, sql string) (name string, res result.QueryResult) {
	if !c.state.CompareAndSwap(int32(Idle), int32(Busy)) {
		return "", result.Err(pgerr.InvalidFuture, "conn: not idle")
	}
	name = c.nextCursorName()
	res = c.w.CursorDeclare(ctx, name, sql)
	if !res.Ok {
		c.state.Store(int32(Idle))
		return name, res
	}
	c.state.Store(int32(InCursor))
	return name, res
}

// CursorFetch pulls up to n rows from the named cursor.
func (c *Conn) CursorFetch(ctx context.Context, name string, n int) result.CursorChunk {
	if c.State() != InCursor {
		return result.CursorChunk{Code: pgerr.InvalidFuture, Message: "conn: not in cursor"}
	}
	return c.w.CursorFetch(ctx, name, n)
}

// CursorClose closes the cursor, commits the implicit transaction block,
// and returns the connection to Idle.
func (c *Conn) CursorClose(ctx context.Context, name string) result.QueryResult {
	if c.State() != InCursor {
		return result.Err(pgerr.InvalidFuture, "conn: not in cursor")
	}
	res := c.w.CursorClose(ctx, name)
	if res.Code == pgerr.ConnectionClosed {
		c.state.Store(int32(Bad))
	} else {
		c.state.Store(int32(Idle))
	}
	return res
}
