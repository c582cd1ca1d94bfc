// Package pgerr defines the closed error taxonomy shared by every result
// type in upq (QueryResult, CopyResult, CursorChunk, PgOpError).
//
// Grounded on pgconn/errors.go's PgError/SQLSTATE constant block: the
// Code enum below is upq's analogue of pgconn's distinction between
// transport, protocol, server, and usage failures.
package pgerr

// Code is the closed error taxonomy
type Code int

const (
	OK Code = iota
	InvalidFuture
	ConnectionClosed
	SocketReadFailed
	ProtocolCorrupt
	ParserTruncatedField
	ParserTruncatedRow
	ParserTruncatedHeader
	ServerError
	AuthFailed
	AwaitCanceled
	Unknown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidFuture:
		return "invalid_future"
	case ConnectionClosed:
		return "connection_closed"
	case SocketReadFailed:
		return "socket_read_failed"
	case ProtocolCorrupt:
		return "protocol_corrupt"
	case ParserTruncatedField:
		return "parser_truncated_field"
	case ParserTruncatedRow:
		return "parser_truncated_row"
	case ParserTruncatedHeader:
		return "parser_truncated_header"
	case ServerError:
		return "server_error"
	case AuthFailed:
		return "auth_failed"
	case AwaitCanceled:
		return "await_canceled"
	default:
		return "unknown"
	}
}

// Category is the coarse SQLSTATE classification
type Category int

const (
	Other Category = iota
	UniqueViolation
	ForeignKeyViolation
	Deadlock
	SerializationFailure
	NotNullViolation
	CheckViolation
	LockNotAvailable
	QueryCanceled
)

// sqlstateCategories maps SQLSTATE codes to their Category, following
// pgconn/errors.go's PgError*Code constant block, trimmed to the
// categories Diagnostics.Category distinguishes.
var sqlstateCategories = map[string]Category{
	"23505": UniqueViolation,
	"23503": ForeignKeyViolation,
	"40P01": Deadlock,
	"40001": SerializationFailure,
	"23502": NotNullViolation,
	"23514": CheckViolation,
	"55P03": LockNotAvailable,
	"57014": QueryCanceled,
}

// CategoryFor classifies a five-character SQLSTATE code.
func CategoryFor(sqlstate string) Category {
	if cat, ok := sqlstateCategories[sqlstate]; ok {
		return cat
	}
	return Other
}

// Diagnostics is the structured server-error record
type Diagnostics struct {
	SQLState string
	Message  string
	Detail   string
	Hint     string
	Category Category
}

// PgError mirrors pgconn.PgError: the fields the v3 protocol's
// ErrorResponse carries, reduced to what upq's Diagnostics surfaces.
type PgError struct {
	Severity string
	Code     string
	Message  string
	Detail   string
	Hint     string
}

func (pe *PgError) Error() string {
	return pe.Severity + ": " + pe.Message + " (SQLSTATE " + pe.Code + ")"
}

// SQLState returns the SQLSTATE of the error.
func (pe *PgError) SQLState() string {
	return pe.Code
}

// Diagnostics converts a wire-level PgError into upq's Diagnostics record.
func (pe *PgError) Diagnostics() Diagnostics {
	return Diagnostics{
		SQLState: pe.Code,
		Message:  pe.Message,
		Detail:   pe.Detail,
		Hint:     pe.Hint,
		Category: CategoryFor(pe.Code),
	}
}

// OpError is the preferred error surface returned by the Ok|Err sum type
// described by the callers that need it (Transaction.query_reflect et al).
type OpError struct {
	Code        Code
	Message     string
	Diagnostics Diagnostics
}

func (e *OpError) Error() string {
	return e.Message
}

// ErrNoRows is the Err("no rows") sentinel used by single-row reflect
// queries that matched nothing.
var ErrNoRows = &OpError{Code: Unknown, Message: "no rows"}

// New builds an OpError of the given code with no server diagnostics.
func New(code Code, message string) *OpError {
	return &OpError{Code: code, Message: message}
}

// FromPgError builds a ServerError OpError from a protocol-level PgError.
func FromPgError(pe *PgError) *OpError {
	return &OpError{Code: ServerError, Message: pe.Message, Diagnostics: pe.Diagnostics()}
}
