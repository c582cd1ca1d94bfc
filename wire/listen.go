package wire

import (
	"context"
	"time"

	"github.com/jackc/pgproto3/v2"

	"github.com/Usub-development/upq/pgerr"
)

// Notification is one PostgreSQL NOTIFY event, as delivered by an
// asynchronous NotificationResponse message.
type Notification struct {
	Channel    string
	Payload    string
	BackendPID uint32
}

// WaitReadableForListener suspends until the socket reports readable,
// used only by the notification multiplexer's read loop.
// It never consumes a message; it only waits, mirroring pgx's
// WaitForNotification Peek(1) trick without pulling a byte off the wire.
func (c *Conn) WaitReadableForListener(ctx context.Context) error {
	type res struct{ err error }
	done := make(chan res, 1)
	go func() {
		_, err := c.rawReader().Peek(1)
		done <- res{err}
	}()

	select {
	case <-ctx.Done():
		return pgerr.New(pgerr.AwaitCanceled, "wire: wait-readable canceled")
	case r := <-done:
		if r.err != nil {
			return errAsSocketFailure(r.err)
		}
		return nil
	}
}

// DrainNotifications consumes every NotificationResponse currently
// buffered without blocking, returning them in arrival order. Used by the
// multiplexer's steady-state dispatch loop.
func (c *Conn) DrainNotifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	deadline := time.Now().Add(10 * time.Millisecond)
	for {
		if time.Now().After(deadline) {
			return out, nil
		}
		msg, err := c.receive(ctx)
		if err != nil {
			return out, err
		}
		switch m := msg.(type) {
		case *pgproto3.NotificationResponse:
			out = append(out, Notification{Channel: m.Channel, Payload: m.Payload, BackendPID: m.PID})
		case *pgproto3.ReadyForQuery, *pgproto3.ParameterStatus:
			continue
		default:
			return out, nil
		}
	}
}

// Listen issues LISTEN <channel> with identifier quoting
func (c *Conn) Listen(ctx context.Context, channel string) error {
	res := c.ExecSimple(ctx, "LISTEN "+QuoteIdentifier(channel))
	if !res.Ok {
		return pgerr.New(res.Code, res.Message)
	}
	return nil
}

// Unlisten issues UNLISTEN <channel>.
func (c *Conn) Unlisten(ctx context.Context, channel string) error {
	res := c.ExecSimple(ctx, "UNLISTEN "+QuoteIdentifier(channel))
	if !res.Ok {
		return pgerr.New(res.Code, res.Message)
	}
	return nil
}
