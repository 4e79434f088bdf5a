package util

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"gotest.tools/assert"
)

func TestDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("hello1700000000"))
	expected := hex.EncodeToString(sum[:])
	actual := Digest([]byte("hello"), 1700000000)
	assert.Equal(t, actual, expected)
	assert.Equal(t, len(actual), DigestSize)
}

func TestDigestEmptyPayload(t *testing.T) {
	sum := sha256.Sum256([]byte("1700000000"))
	assert.Equal(t, Digest(nil, 1700000000), hex.EncodeToString(sum[:]))
}

func TestVerifyDigest(t *testing.T) {
	d := Digest([]byte("hello"), 42)
	assert.Assert(t, VerifyDigest([]byte("hello"), 42, d))
	assert.Assert(t, !VerifyDigest([]byte("hellO"), 42, d))
	assert.Assert(t, !VerifyDigest([]byte("hello"), 43, d))
}
