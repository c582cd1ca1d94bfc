package pgerr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Usub-development/upq/pgerr"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		name     string
		sqlstate string
		want     pgerr.Category
	}{
		{"unique violation", "23505", pgerr.UniqueViolation},
		{"foreign key violation", "23503", pgerr.ForeignKeyViolation},
		{"deadlock", "40P01", pgerr.Deadlock},
		{"serialization failure", "40001", pgerr.SerializationFailure},
		{"not null violation", "23502", pgerr.NotNullViolation},
		{"check violation", "23514", pgerr.CheckViolation},
		{"lock not available", "55P03", pgerr.LockNotAvailable},
		{"query canceled", "57014", pgerr.QueryCanceled},
		{"unmapped code falls back to other", "42601", pgerr.Other},
		{"empty string falls back to other", "", pgerr.Other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pgerr.CategoryFor(tt.sqlstate))
		})
	}
}

func TestPgErrorDiagnostics(t *testing.T) {
	pe := &pgerr.PgError{
		Severity: "ERROR",
		Code:     "23505",
		Message:  "duplicate key value violates unique constraint",
		Detail:   "Key (id)=(1) already exists.",
		Hint:     "",
	}

	d := pe.Diagnostics()
	assert.Equal(t, "23505", d.SQLState)
	assert.Equal(t, pe.Message, d.Message)
	assert.Equal(t, pe.Detail, d.Detail)
	assert.Equal(t, pgerr.UniqueViolation, d.Category)
}

func TestFromPgError(t *testing.T) {
	pe := &pgerr.PgError{Code: "40001", Message: "could not serialize access"}
	op := pgerr.FromPgError(pe)
	assert.Equal(t, pgerr.ServerError, op.Code)
	assert.Equal(t, pe.Message, op.Message)
	assert.Equal(t, pgerr.SerializationFailure, op.Diagnostics.Category)
}

func TestNewCarriesNoDiagnostics(t *testing.T) {
	op := pgerr.New(pgerr.ConnectionClosed, "socket reset")
	assert.Equal(t, pgerr.ConnectionClosed, op.Code)
	assert.Equal(t, "socket reset", op.Error())
	assert.Zero(t, op.Diagnostics)
}

func TestErrNoRowsIsStable(t *testing.T) {
	assert.Equal(t, pgerr.Unknown, pgerr.ErrNoRows.Code)
	assert.Equal(t, "no rows", pgerr.ErrNoRows.Error())
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code pgerr.Code
		want string
	}{
		{pgerr.OK, "ok"},
		{pgerr.ServerError, "server_error"},
		{pgerr.AwaitCanceled, "await_canceled"},
		{pgerr.Code(999), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.String())
	}
}
