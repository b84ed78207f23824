// Package fingerprint computes git-compatible blob hashes for drift detection.
//
// The hash format is sha1("blob " + byteLength + "\0" + content), the same
// scheme git uses for blob objects, so a hash computed here can be compared
// against `git hash-object` output for the same bytes.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Fingerprint captures the identity of one file's content at a point in time.
// It is computed fresh on every read and never cached beyond a single
// operation, except inside the persisted sync manifest.
type Fingerprint struct {
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Hash returns the git blob hash of content as a 40-char hex string.
func Hash(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// HashString is a convenience wrapper for string content.
func HashString(content string) string {
	return Hash([]byte(content))
}

// Equal reports whether two hashes denote identical content.
// Comparison is exact and case-sensitive.
func Equal(a, b string) bool {
	return a == b
}

// Valid reports whether s looks like a well-formed blob hash.
func Valid(s string) bool {
	if len(s) != sha1.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// File builds a Fingerprint for the given path and content.
func File(path string, content []byte) Fingerprint {
	return Fingerprint{
		Path:         path,
		ContentHash:  Hash(content),
		Size:         int64(len(content)),
		LastModified: time.Now(),
	}
}
