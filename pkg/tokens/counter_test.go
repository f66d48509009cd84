package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one word", "hello", 2},            // ceil(1 * 1.3)
		{"ten words", "a b c d e f g h i j", 13}, // ceil(10 * 1.3)
		{"whitespace only", "   \n\t ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, heuristicCount(tt.text))
		})
	}
}

func TestCount_Deterministic(t *testing.T) {
	c := NewCounter()
	text := "Patient reports intermittent chest pain radiating to the left arm."
	first := c.Count(text)
	assert.Greater(t, first, 0)
	assert.Equal(t, first, c.Count(text))
}

func TestCountAll(t *testing.T) {
	c := NewCounter()
	a, b := "short text", "a slightly longer piece of text"
	assert.Equal(t, c.Count(a)+c.Count(b), c.CountAll(a, b))
}
