// Package tokens provides deterministic token estimation for context
// budgeting.
package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// wordsPerToken is the heuristic ratio used when no BPE encoding is
// available.
const wordsPerToken = 1.3

// Counter estimates token counts. The BPE encoding is loaded lazily on
// first use; when unavailable (offline environments) the counter falls
// back to a word-count heuristic.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter returns a Counter. Construction never fails; encoding load
// errors surface as the heuristic fallback.
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the estimated token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("BPE encoding unavailable, using word heuristic", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

// CountAll sums Count over all given texts.
func (c *Counter) CountAll(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}

// heuristicCount is ceil(words * 1.3).
func heuristicCount(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	est := float64(words) * wordsPerToken
	n := int(est)
	if est > float64(n) {
		n++
	}
	return n
}
