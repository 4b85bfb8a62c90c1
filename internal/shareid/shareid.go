// Package shareid generates the short public codes used to share a bill
// link, grounded on the same crypto/rand token-generation idiom the wider
// codebase uses for API tokens.
package shareid

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultAlphabet excludes visually ambiguous characters (0/O, 1/I/L) so a
// code read aloud or handwritten doesn't collide.
const DefaultAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// DefaultLength matches domain.ShareCodeLength.
const DefaultLength = 8

// Generator produces share codes from a fixed alphabet and length.
type Generator struct {
	alphabet string
	length   int
}

// New returns a Generator. An empty alphabet or non-positive length falls
// back to the package defaults.
func New(alphabet string, length int) *Generator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{alphabet: alphabet, length: length}
}

// Generate returns a new random share code.
func (g *Generator) Generate() (string, error) {
	letters := []rune(g.alphabet)
	code := make([]rune, g.length)
	max := big.NewInt(int64(len(letters)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("shareid: %w", err)
		}
		code[i] = letters[n.Int64()]
	}
	return string(code), nil
}
