package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Digest returns the hex encoded sha256 of payload followed by the decimal timestamp
func Digest(payload []byte, timestamp int64) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDigest recomputes the digest and compares it exactly with the transmitted one
func VerifyDigest(payload []byte, timestamp int64, digest string) bool {
	return Digest(payload, timestamp) == digest
}
