package wire

import (
	"context"

	"github.com/jackc/pgproto3/v2"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

// CopyInStart issues a COPY ... FROM STDIN and waits for the server's
// CopyInResponse. Implements copy_in_start.
func (c *Conn) CopyInStart(ctx context.Context, sql string) error {
	msg := &pgproto3.Query{String: sql}
	if _, err := c.netConn.Write(msg.Encode(nil)); err != nil {
		return pgerr.New(pgerr.SocketReadFailed, err.Error())
	}
	for {
		bm, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch bm.(type) {
		case *pgproto3.CopyInResponse:
			return nil
		case *pgproto3.ErrorResponse:
			return serverErrorFromResponse(bm.(*pgproto3.ErrorResponse))
		default:
			continue
		}
	}
}

// CopyInSend streams one chunk of COPY data. It never blocks beyond
// ctx's deadline: the write goes straight to the socket, which the
// caller is expected to size so a single Flush does not starve the
// event loop.
func (c *Conn) CopyInSend(ctx context.Context, data []byte) error {
	msg := &pgproto3.CopyData{Data: data}
	if _, err := c.netConn.Write(msg.Encode(nil)); err != nil {
		return pgerr.New(pgerr.SocketReadFailed, err.Error())
	}
	return nil
}

// CopyInFinish sends CopyDone and collects the command's final result.
// Implements copy_in_finish.
func (c *Conn) CopyInFinish(ctx context.Context) result.CopyResult {
	done := &pgproto3.CopyDone{}
	if _, err := c.netConn.Write(done.Encode(nil)); err != nil {
		return result.CopyResult{Code: pgerr.SocketReadFailed, Message: err.Error()}
	}

	var tag string
	for {
		bm, err := c.receive(ctx)
		if err != nil {
			if oe, ok := err.(*pgerr.OpError); ok {
				return result.CopyResult{Code: oe.Code, Message: oe.Message}
			}
			return result.CopyResult{Code: pgerr.Unknown, Message: err.Error()}
		}
		switch m := bm.(type) {
		case *pgproto3.CommandComplete:
			tag = string(m.CommandTag)
			continue
		case *pgproto3.ErrorResponse:
			res := serverResultFromResponse(m)
			return result.CopyResult{Ok: false, Code: res.Code, Message: res.Message, Diagnostics: res.Diagnostics}
		case *pgproto3.ReadyForQuery:
			return result.CopyResult{Ok: true, Code: pgerr.OK, RowsAffected: parseRowsAffected(tag)}
		default:
			continue
		}
	}
}

// CopyOutStart issues a COPY ... TO STDOUT and waits for CopyOutResponse.
func (c *Conn) CopyOutStart(ctx context.Context, sql string) error {
	msg := &pgproto3.Query{String: sql}
	if _, err := c.netConn.Write(msg.Encode(nil)); err != nil {
		return pgerr.New(pgerr.SocketReadFailed, err.Error())
	}
	for {
		bm, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch bm.(type) {
		case *pgproto3.CopyOutResponse:
			return nil
		case *pgproto3.ErrorResponse:
			return serverErrorFromResponse(bm.(*pgproto3.ErrorResponse))
		default:
			continue
		}
	}
}

// CopyOutRead returns the next chunk of COPY OUT data; an empty (but
// non-nil) slice signals EOF
func (c *Conn) CopyOutRead(ctx context.Context) ([]byte, error) {
	for {
		bm, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		switch m := bm.(type) {
		case *pgproto3.CopyData:
			return m.Data, nil
		case *pgproto3.CopyDone:
			continue
		case *pgproto3.CommandComplete:
			continue
		case *pgproto3.ErrorResponse:
			return nil, serverErrorFromResponse(m)
		case *pgproto3.ReadyForQuery:
			return []byte{}, nil
		default:
			continue
		}
	}
}
