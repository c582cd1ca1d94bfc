package wire

import (
	"context"
	"fmt"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

// CursorDeclare wraps the cursor in an implicit transaction block
// (BEGIN; DECLARE name ... sql).
func (c *Conn) CursorDeclare(ctx context.Context, name, sql string) result.QueryResult {
	begin := c.ExecSimple(ctx, "BEGIN")
	if !begin.Ok {
		return begin
	}
	stmt := fmt.Sprintf("DECLARE %s CURSOR FOR %s", QuoteIdentifier(name), sql)
	res := c.ExecSimple(ctx, stmt)
	if !res.Ok {
		c.ExecSimple(ctx, "ROLLBACK")
	}
	return res
}

// CursorFetch pulls up to n rows from an open cursor. done is true when
// fewer than n rows came back, signalling end-of-cursor
func (c *Conn) CursorFetch(ctx context.Context, name string, n int) result.CursorChunk {
	stmt := fmt.Sprintf("FETCH FORWARD %d FROM %s", n, QuoteIdentifier(name))
	res := c.ExecSimple(ctx, stmt)
	if !res.Ok {
		return result.CursorChunk{Ok: false, Code: res.Code, Message: res.Message}
	}
	return result.CursorChunk{Ok: true, Code: pgerr.OK, Rows: res.Rows, Done: len(res.Rows) < n}
}

// CursorClose closes the cursor and commits the implicit transaction
// block CursorDeclare opened.
func (c *Conn) CursorClose(ctx context.Context, name string) result.QueryResult {
	closeRes := c.ExecSimple(ctx, "CLOSE "+QuoteIdentifier(name))
	if !closeRes.Ok {
		c.ExecSimple(ctx, "ROLLBACK")
		return closeRes
	}
	return c.ExecSimple(ctx, "COMMIT")
}
