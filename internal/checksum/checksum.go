// Package checksum computes document revisions.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag quotes a revision for use in an HTTP header.
func ETag(rev string) string {
	return `"` + rev + `"`
}

// Matches reports whether an If-Match value names rev. An empty tag or "*"
// matches anything; weak and quoted forms are accepted.
func Matches(tag, rev string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "*" {
		return true
	}
	for _, t := range strings.Split(tag, ",") {
		t = strings.TrimSpace(t)
		t = strings.TrimPrefix(t, "W/")
		if strings.Trim(t, `"`) == rev {
			return true
		}
	}
	return false
}
