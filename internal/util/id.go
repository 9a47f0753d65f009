package util

import (
	"crypto/rand"
	"fmt"
	"time"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a human-readable external id of the form
// PREFIX_<unix-millis>_<random suffix>. The suffix carries nine base-36
// characters (~46 bits) from crypto/rand.
func NewID(prefix string) string {
	buf := make([]byte, 9)
	_, _ = rand.Read(buf)
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), suffix)
}
