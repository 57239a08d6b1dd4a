package schema

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// fingerprint returns a 16 byte blake3 digest of text as hex.
func fingerprint(text string) string {
	hasher := blake3.New()
	_, _ = hasher.Write([]byte(text))

	var buf [16]byte
	_, _ = hasher.Digest().Read(buf[:])

	return fmt.Sprintf("%x", buf)
}
