package wire

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerFirstExtractsNonceSaltIterations(t *testing.T) {
	salt := base64.StdEncoding.EncodeToString([]byte("saltsalt"))
	nonce, saltBytes, iterations, err := parseServerFirst("r=abc123,s=" + salt + ",i=4096")
	require.NoError(t, err)
	assert.Equal(t, "abc123", nonce)
	assert.Equal(t, []byte("saltsalt"), saltBytes)
	assert.Equal(t, 4096, iterations)
}

func TestParseServerFirstRejectsIncompleteMessage(t *testing.T) {
	_, _, _, err := parseServerFirst("r=abc123")
	assert.Error(t, err)
}

func TestParseServerFirstRejectsBadSalt(t *testing.T) {
	_, _, _, err := parseServerFirst("r=abc,s=not-base64!!,i=10")
	assert.Error(t, err)
}

func TestContainsMechanismFindsExactMatch(t *testing.T) {
	assert.True(t, containsMechanism([]string{"SCRAM-SHA-256", "SCRAM-SHA-256-PLUS"}, "SCRAM-SHA-256"))
	assert.False(t, containsMechanism([]string{"SCRAM-SHA-256-PLUS"}, "SCRAM-SHA-256"))
}

func TestSaslEscapeUsernameEscapesCommaAndEquals(t *testing.T) {
	assert.Equal(t, "a=3Db=2Cc", saslEscapeUsername("a=b,c"))
}

func TestHmacSHA256IsDeterministic(t *testing.T) {
	a := hmacSHA256([]byte("key"), []byte("data"))
	b := hmacSHA256([]byte("key"), []byte("data"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestXorBytesRoundTrips(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{4, 3, 2, 1}
	x := xorBytes(a, b)
	back := xorBytes(x, b)
	assert.Equal(t, a, back)
}

func TestSha256SumMatchesHmacLength(t *testing.T) {
	assert.Len(t, sha256Sum([]byte("anything")), 32)
}

func TestMD5PasswordIsStableForSameInputs(t *testing.T) {
	salt := [4]byte{1, 2, 3, 4}
	a := md5Password("alice", "secret", salt)
	b := md5Password("alice", "secret", salt)
	assert.Equal(t, a, b)
	assert.Regexp(t, "^md5[0-9a-f]{32}$", a)
}

func TestMD5PasswordDiffersWithDifferentSalt(t *testing.T) {
	a := md5Password("alice", "secret", [4]byte{1, 2, 3, 4})
	b := md5Password("alice", "secret", [4]byte{9, 9, 9, 9})
	assert.NotEqual(t, a, b)
}
