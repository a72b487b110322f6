package tasks

import (
	"crypto/sha1"
	"encoding/hex"
)

const tidLength = sha1.Size * 2

// DeriveTID returns the task identifier for a source URL: the lowercase hex
// SHA-1 of the URL bytes. Identical URLs always map to the same task.
func DeriveTID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// IsTID reports whether tid has the shape produced by DeriveTID. Anything
// else cannot name a stored task and is never used to build lock paths.
func IsTID(tid string) bool {
	if len(tid) != tidLength {
		return false
	}
	for i := 0; i < len(tid); i++ {
		c := tid[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
