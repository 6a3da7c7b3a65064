package nomos

import (
	"crypto/md5"
	"encoding/hex"
)

// CanonicalKeySize is the maximum length of a key as stored by the backend.
const CanonicalKeySize = 16

// IsCanonicalKey reports whether k is already 1 to 16 hex characters.
func IsCanonicalKey(k string) bool {
	if len(k) == 0 || len(k) > CanonicalKeySize {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// CanonicalKey returns k unchanged when it is a canonical key, otherwise the
// last 16 hex characters of its MD5 digest. The result is the same in every
// process.
func CanonicalKey(k string) string {
	if IsCanonicalKey(k) {
		return k
	}
	sum := md5.Sum([]byte(k))
	h := hex.EncodeToString(sum[:])
	return h[len(h)-CanonicalKeySize:]
}
