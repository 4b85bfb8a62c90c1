package shareid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Length(t *testing.T) {
	g := New("", 0)
	code, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, code, DefaultLength)
}

func TestGenerate_UsesOnlyAlphabetChars(t *testing.T) {
	g := New("AB", 16)
	code, err := g.Generate()
	require.NoError(t, err)
	for _, r := range code {
		assert.Contains(t, "AB", string(r))
	}
}

func TestGenerate_ExcludesAmbiguousCharacters(t *testing.T) {
	for _, forbidden := range []rune{'0', 'O', '1', 'I', 'L'} {
		assert.NotContains(t, DefaultAlphabet, string(forbidden))
	}
}

func TestGenerate_Randomized(t *testing.T) {
	g := New("", 0)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}
