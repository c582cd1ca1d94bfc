package wire

import (
	"context"
	"strconv"

	"github.com/jackc/pgproto3/v2"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

// ExecSimple runs sql with the simple query protocol (no parameters) and
// collects the full result, looping on receive until ReadyForQuery.
// Implements exec_simple.
func (c *Conn) ExecSimple(ctx context.Context, sql string) result.QueryResult {
	msg := &pgproto3.Query{String: sql}
	if _, err := c.netConn.Write(msg.Encode(nil)); err != nil {
		return result.Err(pgerr.SocketReadFailed, err.Error())
	}
	return c.collectSimple(ctx)
}

func (c *Conn) collectSimple(ctx context.Context) result.QueryResult {
	var rows []result.Row
	var cols []string
	var affected int64
	var failure *result.QueryResult

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			if oe, ok := err.(*pgerr.OpError); ok {
				return result.Err(oe.Code, oe.Message)
			}
			return result.Err(pgerr.Unknown, err.Error())
		}

		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			cols = make([]string, len(m.Fields))
			for i, f := range m.Fields {
				cols[i] = string(f.Name)
			}
		case *pgproto3.DataRow:
			row := make(result.Row, len(m.Values))
			for i, v := range m.Values {
				if v == nil {
					row[i] = ""
					continue
				}
				row[i] = string(v)
			}
			if len(cols) != 0 && len(row) != len(cols) {
				failure = rptr(result.ErrTruncated(pgerr.ParserTruncatedRow, "wire: row column count mismatch"))
				continue
			}
			rows = append(rows, row)
		case *pgproto3.CommandComplete:
			affected = parseRowsAffected(string(m.CommandTag))
		case *pgproto3.ErrorResponse:
			res := serverResultFromResponse(m)
			failure = &res
		case *pgproto3.ReadyForQuery:
			if failure != nil {
				return *failure
			}
			return result.Success(rows, affected)
		default:
			continue
		}
	}
}

func rptr(r result.QueryResult) *result.QueryResult { return &r }

// parseRowsAffected extracts the row count from a CommandComplete tag
// such as "INSERT 0 3" or "UPDATE 7".
func parseRowsAffected(tag string) int64 {
	var last string
	start := 0
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ' ' {
			last = tag[start:i]
			start = i + 1
		}
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ExecParams runs sql via the extended query protocol with textual
// parameters (NULL represented by a nil entry), then Syncs and collects.
// Implements exec_params.
func (c *Conn) ExecParams(ctx context.Context, sql string, params []*string, paramFormats []int16) result.QueryResult {
	c.sendParamsExec(sql, params)
	c.frontend.SendSync(&pgproto3.Sync{})
	if err := c.frontend.Flush(); err != nil {
		return result.Err(pgerr.SocketReadFailed, err.Error())
	}
	return c.collectExtended(ctx)
}

func (c *Conn) sendParamsExec(sql string, params []*string) {
	values := make([][]byte, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		if p == nil {
			values[i] = nil
		} else {
			values[i] = []byte(*p)
		}
		formats[i] = 0 // textual
	}

	c.frontend.SendParse(&pgproto3.Parse{Query: sql})
	c.frontend.SendBind(&pgproto3.Bind{
		ParameterFormatCodes: formats,
		Parameters:           values,
		ResultFormatCodes:    []int16{0},
	})
	c.frontend.SendDescribe(&pgproto3.Describe{ObjectType: 'P'})
	c.frontend.SendExecute(&pgproto3.Execute{})
}

// collectExtended drains the extended-protocol response stream up to and
// including the next ReadyForQuery, the shared tail of ExecParams and
// PipelineExec's trailing synchronise.
func (c *Conn) collectExtended(ctx context.Context) result.QueryResult {
	var rows []result.Row
	var cols []string
	var affected int64
	var failure *result.QueryResult

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			if oe, ok := err.(*pgerr.OpError); ok {
				return result.Err(oe.Code, oe.Message)
			}
			return result.Err(pgerr.Unknown, err.Error())
		}

		switch m := msg.(type) {
		case *pgproto3.ParseComplete, *pgproto3.BindComplete:
			continue
		case *pgproto3.RowDescription:
			cols = make([]string, len(m.Fields))
			for i, f := range m.Fields {
				cols[i] = string(f.Name)
			}
		case *pgproto3.DataRow:
			row := make(result.Row, len(m.Values))
			for i, v := range m.Values {
				if v != nil {
					row[i] = string(v)
				}
			}
			if len(cols) != 0 && len(row) != len(cols) {
				failure = rptr(result.ErrTruncated(pgerr.ParserTruncatedRow, "wire: row column count mismatch"))
				continue
			}
			rows = append(rows, row)
		case *pgproto3.CommandComplete:
			affected = parseRowsAffected(string(m.CommandTag))
		case *pgproto3.ErrorResponse:
			res := serverResultFromResponse(m)
			failure = &res
		case *pgproto3.ReadyForQuery:
			if failure != nil {
				return *failure
			}
			return result.Success(rows, affected)
		default:
			continue
		}
	}
}

// PipelineExec queues a parameterized statement's send without waiting
// for its result; the caller must follow with PipelineSync to drain all
// queued statements' results in order.
// pipeline_exec and pipeline_test.go's send-many/sync-once shape.
func (c *Conn) PipelineExec(sql string, params []*string) {
	c.sendParamsExec(sql, params)
}

// PipelineSync flushes every queued PipelineExec call and collects all
// pending results in send order.
func (c *Conn) PipelineSync(ctx context.Context, n int) []result.QueryResult {
	c.frontend.SendSync(&pgproto3.Sync{})
	if err := c.frontend.Flush(); err != nil {
		out := make([]result.QueryResult, n)
		for i := range out {
			out[i] = result.Err(pgerr.SocketReadFailed, err.Error())
		}
		return out
	}

	results := make([]result.QueryResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, c.collectExtended(ctx))
	}
	return results
}
