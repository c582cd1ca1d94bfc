package pool

import (
	"context"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
	"github.com/Usub-development/upq/scan"
)

func execParamsOrSimple(ctx context.Context, pc *PooledConn, sql string, params []string) result.QueryResult {
	if len(params) == 0 {
		return pc.Conn().ExecSimple(ctx, sql)
	}
	ptrs := make([]*string, len(params))
	for i := range params {
		ptrs[i] = &params[i]
	}
	return pc.Conn().ExecParams(ctx, sql, ptrs)
}

// QueryAwaitable acquires a connection, runs sql with params, and
// releases the connection before returning — the single-shot query a
// caller reaches for when it doesn't need a transaction.
func (pl *Pool) QueryAwaitable(ctx context.Context, sql string, params ...string) result.QueryResult {
	pc, err := pl.AcquireConnection(ctx)
	if err != nil {
		return result.Err(pgerr.Unknown, err.Error())
	}
	defer pc.Release()
	return execParamsOrSimple(ctx, pc, sql, params)
}

// QueryOn runs sql with params on an already-acquired connection,
// leaving release to the caller.
func (pl *Pool) QueryOn(ctx context.Context, pc *PooledConn, sql string, params ...string) result.QueryResult {
	return execParamsOrSimple(ctx, pc, sql, params)
}

// ExecReflect runs sql on a fresh connection and returns the preferred
// Ok|Err surface with no row decoding.
func (pl *Pool) ExecReflect(ctx context.Context, sql string, params ...string) (int64, *pgerr.OpError) {
	pc, err := pl.AcquireConnection(ctx)
	if err != nil {
		return 0, pgerr.New(pgerr.Unknown, err.Error())
	}
	defer pc.Release()
	res := execParamsOrSimple(ctx, pc, sql, params)
	if !res.Ok {
		return 0, &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	return res.RowsAffected, nil
}

// QueryReflect acquires a connection, runs sql, and decodes every row
// into destSlice via the scan package.
func (pl *Pool) QueryReflect(ctx context.Context, sql string, columns []string, destSlice any, mode scan.Mode, params ...string) *pgerr.OpError {
	pc, err := pl.AcquireConnection(ctx)
	if err != nil {
		return pgerr.New(pgerr.Unknown, err.Error())
	}
	defer pc.Release()
	res := execParamsOrSimple(ctx, pc, sql, params)
	if !res.Ok {
		return &pgerr.OpError{Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
	}
	if err := scan.All(res, columns, destSlice, mode); err != nil {
		return pgerr.New(pgerr.Unknown, err.Error())
	}
	return nil
}

// QueryReflectExpectedOne acquires a connection, runs sql, and decodes
// the single expected row into dest, returning ErrNoRows if none matched.
func (pl *Pool) QueryReflectExpectedOne(ctx context.Context, sql string, columns []string, dest any, mode scan.Mode, params ...string) *pgerr.OpError {
	pc, err := pl.AcquireConnection(ctx)
	if err != nil {
		return pgerr.New(pgerr.Unknown, err.Error())
	}
	defer pc.Release()
	res := execParamsOrSimple(ctx, pc, sql, params)
	if !res.Ok {
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
