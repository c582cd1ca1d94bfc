package result_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Usub-development/upq/pgerr"
	"github.com/Usub-development/upq/result"
)

func TestErrIsNotOkAndRowsValid(t *testing.T) {
	r := result.Err(pgerr.Unknown, "boom")
	assert.False(t, r.Ok)
	assert.Equal(t, pgerr.Unknown, r.Code)
	assert.Equal(t, "boom", r.Message)
	assert.True(t, r.RowsValid)
	assert.Nil(t, r.Rows)
}

func TestErrTruncatedRowsInvalid(t *testing.T) {
	r := result.ErrTruncated(pgerr.ParserTruncatedRow, "short row")
	assert.False(t, r.Ok)
	assert.False(t, r.RowsValid)
}

func TestErrServerCarriesDiagnostics(t *testing.T) {
	pe := &pgerr.PgError{Code: "23505", Message: "duplicate key"}
	r := result.ErrServer(pe)
	assert.False(t, r.Ok)
	assert.Equal(t, pgerr.ServerError, r.Code)
	assert.Equal(t, pgerr.UniqueViolation, r.Diagnostics.Category)
	assert.True(t, r.RowsValid)
}

func TestSuccessCarriesRowsAndCount(t *testing.T) {
	rows := []result.Row{{"1", "a"}, {"2", "b"}}
	r := result.Success(rows, 2)
	assert.True(t, r.Ok)
	assert.Equal(t, pgerr.OK, r.Code)
	assert.Equal(t, rows, r.Rows)
	assert.EqualValues(t, 2, r.RowsAffected)
	assert.True(t, r.RowsValid)
}
