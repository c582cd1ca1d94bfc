package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Usub-development/upq/wire"
)

func TestEncodeArraySimple(t *testing.T) {
	assert.Equal(t, "{a,b,c}", wire.EncodeArray([]string{"a", "b", "c"}))
}

func TestEncodeArrayQuotesSpecialChars(t *testing.T) {
	assert.Equal(t, `{"a,b","c\"d"}`, wire.EncodeArray([]string{"a,b", `c"d`}))
}

func TestEncodeArrayQuotesEmptyAndNullLookalike(t *testing.T) {
	assert.Equal(t, `{"",NULL,"null"}`, wire.EncodeArray([]string{"", "NULL", "null"}))
}

func TestDecodeArrayRoundTripsWithEncodeArray(t *testing.T) {
	in := []string{"plain", "with,comma", `with"quote`, "with space", ""}
	literal := wire.EncodeArray(in)
	out, err := wire.DecodeArray(literal)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeArrayEmpty(t *testing.T) {
	out, err := wire.DecodeArray("{}")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeArrayMalformedReturnsError(t *testing.T) {
	_, err := wire.DecodeArray("not-an-array")
	assert.Error(t, err)
}

func TestQuoteIdentifierPassesThroughSimple(t *testing.T) {
	assert.Equal(t, "orders", wire.QuoteIdentifier("orders"))
	assert.Equal(t, "_private", wire.QuoteIdentifier("_private"))
}

func TestQuoteIdentifierQuotesMixedCase(t *testing.T) {
	assert.Equal(t, `"Orders"`, wire.QuoteIdentifier("Orders"))
}

func TestQuoteIdentifierDoublesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"a""b"`, wire.QuoteIdentifier(`a"b`))
}

func TestQuoteIdentifierQuotesEmptyString(t *testing.T) {
	assert.Equal(t, `""`, wire.QuoteIdentifier(""))
}
