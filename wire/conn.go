// Package wire is the non-blocking wire adapter. It is a thin cooperative
// wrapper around github.com/jackc/pgproto3/v2, the non-blocking PostgreSQL
// v3 wire-protocol binding this package treats as an external collaborator:
// wire never parses protocol bytes itself, it only drives pgproto3's
// Frontend and classifies what comes back.
package wire

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgproto3/v2"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

// Conn is one socket's worth of wire-protocol state. It never blocks an
// OS thread: every wait is a context-aware select over the socket or a
// cooperative timer; no method here blocks an OS thread.
type Conn struct {
	netConn  net.Conn
	frontend *pgproto3.Frontend
	cfg      *Config

	backendPID uint32
	backendKey uint32

	serverVersion string
}

// ConnectAsync advances the non-blocking connect handshake (TCP connect,
// optional TLS negotiation, startup message, authentication) honouring
// deadline via ctx. Grounded on pgconn.ConnectConfig's connect/startup/auth
// sequence.
func ConnectAsync(ctx context.Context, cfg *Config) (*Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = deadline
	}

	dialer := net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("wire: dial: %w", err)
	}

	if cfg.SSLMode != SSLDisable {
		netConn, err = negotiateTLS(ctx, netConn, cfg)
		if err != nil {
			return nil, err
		}
	}

	c := &Conn{
		netConn:  netConn,
		frontend: pgproto3.NewFrontend(pgproto3.NewChunkReader(netConn), netConn),
		cfg:      cfg,
	}

	if err := c.startup(ctx); err != nil {
		netConn.Close()
		return nil, err
	}

	return c, nil
}

func negotiateTLS(ctx context.Context, conn net.Conn, cfg *Config) (net.Conn, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.SSLMode == SSLRequire}
	return tls.Client(conn, tlsConfig), nil
}

func (c *Conn) startup(ctx context.Context) error {
	startup := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters: map[string]string{
			"user":     c.cfg.User,
			"database": c.cfg.Database,
		},
	}
	if _, err := c.netConn.Write(startup.Encode(nil)); err != nil {
		return fmt.Errorf("wire: startup: %w", errAsSocketFailure(err))
	}

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			continue
		case *pgproto3.AuthenticationCleartextPassword:
			if err := c.sendPassword(c.cfg.Password); err != nil {
				return err
			}
		case *pgproto3.AuthenticationMD5Password:
			if err := c.sendPassword(md5Password(c.cfg.User, c.cfg.Password, m.Salt)); err != nil {
				return err
			}
		case *pgproto3.AuthenticationSASL:
			if err := c.scramSHA256(ctx, m); err != nil {
				return err
			}
		case *pgproto3.BackendKeyData:
			c.backendPID = m.ProcessID
			c.backendKey = m.SecretKey
		case *pgproto3.ParameterStatus:
			if m.Name == "server_version" {
				c.serverVersion = m.Value
			}
			continue
		case *pgproto3.ReadyForQuery:
			return nil
		case *pgproto3.ErrorResponse:
			return serverErrorFromResponse(m)
		default:
			continue
		}
	}
}

func (c *Conn) sendPassword(pw string) error {
	msg := &pgproto3.PasswordMessage{Password: pw}
	_, err := c.netConn.Write(msg.Encode(nil))
	if err != nil {
		return fmt.Errorf("wire: password: %w", errAsSocketFailure(err))
	}
	return nil
}

func md5Password(user, password string, salt [4]byte) string {
	s1 := md5.Sum([]byte(password + user))
	h1 := hex.EncodeToString(s1[:])
	s2 := md5.Sum(append([]byte(h1), salt[:]...))
	return "md5" + hex.EncodeToString(s2[:])
}

// receive waits for the next backend message, suspending cooperatively on
// ctx cancellation or socket readability — never on a blocking thread
// wait longer than the caller's context allows.
func (c *Conn) receive(ctx context.Context) (pgproto3.BackendMessage, error) {
	type result struct {
		msg pgproto3.BackendMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.frontend.Receive()
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		c.netConn.SetDeadline(time.Now())
		<-done
		c.netConn.SetDeadline(time.Time{})
		return nil, pgerr.New(pgerr.AwaitCanceled, "wire: receive canceled")
	case r := <-done:
		if r.err != nil {
			return nil, errAsSocketFailure(r.err)
		}
		return r.msg, nil
	}
}

func errAsSocketFailure(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*net.OpError); ok {
		return pgerr.New(pgerr.SocketReadFailed, err.Error())
	}
	return pgerr.New(pgerr.ConnectionClosed, err.Error())
}

func serverErrorFromResponse(er *pgproto3.ErrorResponse) error {
	pe := &pgerr.PgError{
		Severity: er.Severity,
		Code:     er.Code,
		Message:  er.Message,
		Detail:   er.Detail,
		Hint:     er.Hint,
	}
	return pgerr.FromPgError(pe)
}

func serverResultFromResponse(er *pgproto3.ErrorResponse) result.QueryResult {
	return result.ErrServer(&pgerr.PgError{
		Severity: er.Severity,
		Code:     er.Code,
		Message:  er.Message,
		Detail:   er.Detail,
		Hint:     er.Hint,
	})
}

// Close sends Terminate and tears down the socket. The notification
// multiplexer calls it when it drops its dedicated connection.
func (c *Conn) Close() error {
	msg := &pgproto3.Terminate{}
	c.netConn.Write(msg.Encode(nil))
	return c.netConn.Close()
}

// BackendPID returns the server-assigned process ID from BackendKeyData.
// Delivered notifications carry the PID from their own
// NotificationResponse instead.
func (c *Conn) BackendPID() uint32 { return c.backendPID }

// ServerVersion returns the server_version startup parameter exactly as
// the backend reported it (e.g. "14.2" or "13beta1"), used by the router
// to gate version-dependent probe queries.
func (c *Conn) ServerVersion() string { return c.serverVersion }

// rawReader exposes a bufio.Reader view for WaitReadableForListener's
// cheap peek, mirroring pgx's WaitForNotification Peek(1) trick.
func (c *Conn) rawReader() *bufio.Reader {
	return bufio.NewReader(c.netConn)
}
