// Package cryptox computes the content digests kept with transfer history.
package cryptox

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ChecksumSize is the length of a hex digest returned by Checksum.
const ChecksumSize = 2 * blake2b.Size256

// Checksum returns the hex encoded BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data matches a digest produced by Checksum.
func Verify(data []byte, checksum string) bool {
	return len(checksum) == ChecksumSize && Checksum(data) == checksum
}
