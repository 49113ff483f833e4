package helpers

import (
	"crypto/sha1"
	"fmt"
)

// Sha1 returns the hex encoded SHA1 of the given bytes
func Sha1(bytes []byte) string {
	s := sha1.New()
	s.Write(bytes)
	return fmt.Sprintf("%x", s.Sum(nil))
}
