package wheel

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^VC-[0-9A-F]{8}$`)

func TestGenerateFormat(t *testing.T) {
	gen := NewCodeGenerator()

	for i := 0; i < 100; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
	}
}

func TestGenerateUniqueness(t *testing.T) {
	gen := NewCodeGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
