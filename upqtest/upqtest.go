// Package upqtest provides pgmock-based scripted-backend helpers for
// testing wire/conn/notify against a fake PostgreSQL server instead of a
// live one, the way jackc-pgx/pgxtest wires pgmock into its own
// connection tests.
package upqtest

import (
	"context"
	"net"
	"testing"

	"github.com/jackc/pgmock"
	"github.com/jackc/pgproto3/v2"

	"github.com/Usub-development/upq/wire"
)

// ScriptedServer runs a pgmock.Script against one accepted connection in
// the background, failing t if the script errors.
type ScriptedServer struct {
	t      testing.TB
	server *pgmock.Server
	done   chan error
}

// StartScriptedServer starts a pgmock server and serves script once it
// accepts a connection.
func StartScriptedServer(t testing.TB, script *pgmock.Script) *ScriptedServer {
	t.Helper()

	server, err := pgmock.NewServer(script)
	if err != nil {
		t.Fatalf("upqtest: pgmock.NewServer: %v", err)
	}

	ss := &ScriptedServer{t: t, server: server, done: make(chan error, 1)}
	go func() {
		ss.done <- server.ServeOne()
	}()
	return ss
}

// Addr returns the listener's local address.
func (ss *ScriptedServer) Addr() net.Addr {
	return ss.server.Addr()
}

// HostPort splits Addr into the host/port wire.Config expects.
func (ss *ScriptedServer) HostPort() (string, uint16) {
	tcpAddr := ss.server.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), uint16(tcpAddr.Port)
}

// Wait blocks until the scripted conversation finishes, failing t if the
// script returned an error.
func (ss *ScriptedServer) Wait() {
	ss.t.Helper()
	if err := <-ss.done; err != nil {
		ss.t.Errorf("upqtest: script error: %v", err)
	}
}

// AcceptStartupScript returns the unauthenticated startup steps every
// scripted test needs before its domain-specific conversation: startup
// message, AuthenticationOk, a couple of ParameterStatus messages,
// BackendKeyData, and ReadyForQuery.
func AcceptStartupScript() []pgmock.Step {
	steps := pgmock.AcceptUnauthenticatedConnRequestSteps()
	steps = append(steps,
		pgmock.SendMessage(&pgproto3.ParameterStatus{Name: "server_version", Value: "14.2"}),
		pgmock.SendMessage(&pgproto3.BackendKeyData{ProcessID: 1, SecretKey: 1}),
		pgmock.SendMessage(&pgproto3.ReadyForQuery{TxStatus: 'I'}),
	)
	return steps
}

// Dial connects a wire.Conn to a scripted server at host:port.
func Dial(ctx context.Context, host string, port uint16) (*wire.Conn, error) {
	cfg := &wire.Config{
		Host:     host,
		Port:     port,
		User:     "upq",
		Database: "upq",
		SSLMode:  wire.SSLDisable,
	}
	return wire.ConnectAsync(ctx, cfg)
}
