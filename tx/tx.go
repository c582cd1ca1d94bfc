// Package tx implements component C4: pins a
// connection, issues BEGIN/COMMIT/ROLLBACK with isolation/readonly/
// deferrable, and nested SAVEPOINT subtransactions.
package tx

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Usub-development/upq/conn"
	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/pool"
	"github.com/Usub-development/upq/result"
	"github.com/Usub-development/upq/scan"
)

// Isolation is the transaction isolation level
type Isolation int

const (
	ReadUncommitted Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) sql() string {
	switch i {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// Config is a transaction's isolation/readonly/deferrable configuration.
type Config struct {
	Isolation   Isolation
	ReadOnly    bool
	Deferrable  bool
	HasIsolation bool // distinguishes "isolation explicitly set" from the zero value
}

// Tx is the Transaction: pool, pinned connection,
// config, active flag, and nesting depth for SAVEPOINT naming.
type Tx struct {
	pl     *pool.Pool
	pc     *pool.PooledConn
	cfg    Config
	active bool
	depth  int64

	savepointSeq atomic.Int64
	parent       *Tx
}

// Begin acquires a connection from pl and issues BEGIN with the given
// config
func Begin(ctx context.Context, pl *pool.Pool, cfg Config) (*Tx, error) {
	pc, err := pl.AcquireConnection(ctx)
	if err != nil {
		return nil, err
	}
	t := &Tx{pl: pl, pc: pc, cfg: cfg}
	if err := t.sendBegin(ctx); err != nil {
		pc.Release()
		return nil, err
	}
	t.active = true
	return t, nil
}

// BeginOn starts a transaction on an already-acquired connection instead
// of acquiring its own.
func BeginOn(ctx context.Context, pl *pool.Pool, pc *pool.PooledConn, cfg Config) (*Tx, error) {
	t := &Tx{pl: pl, pc: pc, cfg: cfg}
	if err := t.sendBegin(ctx); err != nil {
		return nil, err
	}
	t.active = true
	return t, nil
}

func (t *Tx) sendBegin(ctx context.Context) error {
	stmt := "BEGIN"
	if t.cfg.HasIsolation {
		stmt += " ISOLATION LEVEL " + t.cfg.Isolation.sql()
	}
	if t.cfg.ReadOnly {
		stmt += " READ ONLY"
	} else {
		stmt += " READ WRITE"
	}
	if t.cfg.ReadOnly && t.cfg.Deferrable {
		stmt += " DEFERRABLE"
	} else if t.cfg.ReadOnly {
		stmt += " NOT DEFERRABLE"
	}

	res := t.pc.Conn().ExecSimple(ctx, stmt)
	if !res.Ok {
		return pgerr.New(res.Code, res.Message)
	}
	return nil
}

// failIfClosed returns InvalidFuture once a transaction has failed or
// finished's "subsequent statements short-circuit".
func (t *Tx) failIfClosed() error {
	if !t.active {
		return pgerr.New(pgerr.InvalidFuture, "tx: inactive transaction")
	}
	return nil
}

// Query runs sql on the pinned connection; the legacy surface returning
// a raw row-vector with implicit error swallowing.
func (t *Tx) Query(ctx context.Context, sql string, params ...string) []result.Row {
	if err := t.failIfClosed(); err != nil {
		return nil
	}
	res := t.execParamsOrSimple(ctx, sql, params)
	if !res.Ok {
		if res.Code == pgerr.ConnectionClosed {
			t.fail()
		}
		return nil
	}
	return res.Rows
}

func (t *Tx) execParamsOrSimple(ctx context.Context, sql string, params []string) result.QueryResult {
	if len(params) == 0 {
		return t.pc.Conn().ExecSimple(ctx, sql)
	}
	ptrs := make([]*string, len(params))
	for i := range params {
		ptrs[i] = &params[i]
	}
	return t.pc.Conn().ExecParams(ctx, sql, ptrs)
}

// ExecReflect runs sql and returns the preferred Ok|Err surface with no
// row decoding — just the command's success/failure.
func (t *Tx) ExecReflect(ctx context.Context, sql string, params ...string) (int64, *pgerr.OpError) {
	if err := t.failIfClosed(); err != nil {
		return 0, err.(*pgerr.OpError)
	}
	res := t.execParamsOrSimple(ctx, sql, params)
	if !res.Ok {
		if res.Code == pgerr.ConnectionClosed {
			t.fail()
		}
		return 0, &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	return res.RowsAffected, nil
}

// QueryReflect decodes every row into destSlice via the scan package,
//.
func (t *Tx) QueryReflect(ctx context.Context, sql string, columns []string, destSlice any, mode scan.Mode, params ...string) *pgerr.OpError {
	if err := t.failIfClosed(); err != nil {
		return err.(*pgerr.OpError)
	}
	res := t.execParamsOrSimple(ctx, sql, params)
	if !res.Ok {
		if res.Code == pgerr.ConnectionClosed {
			t.fail()
		}
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	if err := scan.All(res, columns, destSlice, mode); err != nil {
		return pgerr.New(pgerr.Unknown, err.Error())
	}
	return nil
}

// QueryReflectExpected decodes exactly the rows present (0..n) into
// destSlice, same as QueryReflect; kept as a distinct name for callers
// that expect a specific row count and want that intent documented at
// the call site.
func (t *Tx) QueryReflectExpected(ctx context.Context, sql string, columns []string, destSlice any, mode scan.Mode, params ...string) *pgerr.OpError {
	return t.QueryReflect(ctx, sql, columns, destSlice, mode, params...)
}

// QueryReflectExpectedOne decodes the single expected row into dest,
// returning ErrNoRows if none matched.
func (t *Tx) QueryReflectExpectedOne(ctx context.Context, sql string, columns []string, dest any, mode scan.Mode, params ...string) *pgerr.OpError {
	if err := t.failIfClosed(); err != nil {
		return err.(*pgerr.OpError)
	}
	res := t.execParamsOrSimple(ctx, sql, params)
	if !res.Ok {
		if res.Code == pgerr.ConnectionClosed {
			t.fail()
		}
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	found, err := scan.One(res, columns, dest, mode)
	if err != nil {
		return pgerr.New(pgerr.Unknown, err.Error())
	}
	if !found {
		return pgerr.ErrNoRows
	}
	return nil
}

func (t *Tx) fail() {
	t.active = false
	t.pc.MarkDead()
}

// Commit issues COMMIT.
func (t *Tx) Commit(ctx context.Context) *pgerr.OpError {
	if err := t.failIfClosed(); err != nil {
		return err.(*pgerr.OpError)
	}
	res := t.pc.Conn().ExecSimple(ctx, "COMMIT")
	t.active = false
	if !res.Ok {
		if res.Code == pgerr.ConnectionClosed {
			t.pc.MarkDead()
		} else {
			t.pc.Release()
		}
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	t.pc.Release()
	return nil
}

// Rollback issues ROLLBACK.
func (t *Tx) Rollback(ctx context.Context) *pgerr.OpError {
	if !t.active {
		return nil
	}
	res := t.pc.Conn().ExecSimple(ctx, "ROLLBACK")
	t.active = false
	if !res.Ok && res.Code == pgerr.ConnectionClosed {
		t.pc.MarkDead()
	} else {
		t.pc.Release()
	}
	if !res.Ok {
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	return nil
}

// Finish is idempotent cleanup: rollback if still active, then release
// the pinned connection.
func (t *Tx) Finish(ctx context.Context) {
	if t.active {
		t.Rollback(ctx)
	}
}

// MakeSubtx issues SAVEPOINT sp_N and returns the child subtransaction;
// the child's CommitSubtx and RollbackSubtx issue RELEASE SAVEPOINT sp_N
// and ROLLBACK TO SAVEPOINT sp_N. The child's Commit and Rollback are not
// mapped to savepoints: they issue COMMIT and ROLLBACK.
func (t *Tx) MakeSubtx(ctx context.Context) (*Tx, error) {
	if err := t.failIfClosed(); err != nil {
		return nil, err
	}
	n := t.rootCounter().savepointSeq.Add(1)
	child := &Tx{pl: t.pl, pc: t.pc, depth: n, parent: t}

	res := t.pc.Conn().ExecSimple(ctx, fmt.Sprintf("SAVEPOINT sp_%d", n))
	if !res.Ok {
		return nil, pgerr.New(res.Code, res.Message)
	}
	child.active = true
	return child, nil
}

func (t *Tx) rootCounter() *Tx {
	root := t
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// CommitSubtx issues RELEASE SAVEPOINT for a subtransaction.
func (t *Tx) CommitSubtx(ctx context.Context) *pgerr.OpError {
	if t.parent == nil {
		return pgerr.New(pgerr.InvalidFuture, "tx: not a subtransaction")
	}
	if err := t.failIfClosed(); err != nil {
		return err.(*pgerr.OpError)
	}
	res := t.pc.Conn().ExecSimple(ctx, fmt.Sprintf("RELEASE SAVEPOINT sp_%d", t.depth))
	t.active = false
	if !res.Ok {
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	return nil
}

// RollbackSubtx issues ROLLBACK TO SAVEPOINT, leaving the enclosing
// transaction able to commit.
func (t *Tx) RollbackSubtx(ctx context.Context) *pgerr.OpError {
	if t.parent == nil {
		return pgerr.New(pgerr.InvalidFuture, "tx: not a subtransaction")
	}
	res := t.pc.Conn().ExecSimple(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT sp_%d", t.depth))
	t.active = false
	if !res.Ok {
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	return nil
}

// PinnedConn exposes the pinned connection for callers that need direct
// COPY/cursor access within a transaction.
func (t *Tx) PinnedConn() *conn.Conn { return t.pc.Conn() }
