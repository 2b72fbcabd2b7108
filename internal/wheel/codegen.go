package wheel

import (
	"crypto/rand"
	"fmt"
	"io"
)

// codePrefix brands every coupon code.
const codePrefix = "VC-"

// Minter produces candidate coupon codes. Codes are not unique by
// construction; the spin authorizer retries on storage-level collisions.
type Minter interface {
	Generate() (string, error)
}

// CodeGenerator mints short human-typeable codes from cryptographically
// strong random bytes: the prefix plus 8 uppercase hex characters.
type CodeGenerator struct {
	random io.Reader
}

// NewCodeGenerator builds a generator reading from crypto/rand.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{random: rand.Reader}
}

// Generate returns one candidate code.
func (g *CodeGenerator) Generate() (string, error) {
	var buf [4]byte
	if _, err := io.ReadFull(g.random, buf[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return fmt.Sprintf("%s%X", codePrefix, buf[:]), nil
}
