// Package result holds the row-set types shared by wire, conn, pool and
// tx: QueryResult, CopyResult and CursorChunk
package result

import "github.com/Usub-development/upq/pgerr"

// Row is one row of textual columns, as returned by the wire protocol's
// DataRow message before any aggregate mapping is applied.
type Row []string

// QueryResult is the row-set returned by every simple/parameterized/
// pipelined query. Invariants: if Rows is non-empty every
// row has the same non-zero column count; if Ok is false, Code is set;
// if Ok is true and Rows is empty the command succeeded with no tuples.
type QueryResult struct {
	Ok           bool
	Code         pgerr.Code
	Message      string
	Diagnostics  pgerr.Diagnostics
	Rows         []Row
	RowsValid    bool
	RowsAffected int64
}

// Err builds a failed QueryResult of the given code.
func Err(code pgerr.Code, message string) QueryResult {
	return QueryResult{Ok: false, Code: code, Message: message, RowsValid: true}
}

// ErrServer builds a failed QueryResult from a server-reported error,
// carrying full SQLSTATE diagnostics.
func ErrServer(pe *pgerr.PgError) QueryResult {
	d := pe.Diagnostics()
	return QueryResult{Ok: false, Code: pgerr.ServerError, Message: pe.Message, Diagnostics: d, RowsValid: true}
}

// ErrTruncated builds a failed QueryResult for a parser-truncation
// failure; RowsValid is always false Invariant 6.
func ErrTruncated(code pgerr.Code, message string) QueryResult {
	return QueryResult{Ok: false, Code: code, Message: message, RowsValid: false}
}

// Success builds an Ok QueryResult.
func Success(rows []Row, rowsAffected int64) QueryResult {
	return QueryResult{Ok: true, Code: pgerr.OK, Rows: rows, RowsValid: true, RowsAffected: rowsAffected}
}

// CopyResult mirrors QueryResult's error surface for COPY IN/OUT commands.
type CopyResult struct {
	Ok           bool
	Code         pgerr.Code
	Message      string
	Diagnostics  pgerr.Diagnostics
	RowsAffected int64
}

// CursorChunk is one FETCH batch from a server-side cursor.
type CursorChunk struct {
	Ok      bool
	Code    pgerr.Code
	Message string
	Rows    []Row
	Done    bool
}
