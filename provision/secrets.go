package provision

import (
	"crypto/rand"
	"encoding/hex"
)

// randomHex returns n random bytes as a hex string.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
