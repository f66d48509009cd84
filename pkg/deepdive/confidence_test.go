package deepdive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedEngine(variance int) *Engine {
	e := NewEngine(nil, nil)
	e.randInt = func(lo, hi int) int { return variance }
	return e
}

func TestAdjustConfidence_WeightsScaleLLMConfidence(t *testing.T) {
	e := fixedEngine(0)

	// One question: mean weight (1.0 + 0.7 + 0.8 + 0.25) / 4 = 0.6875.
	assert.InDelta(t, 55.0, e.adjustConfidence(80, 1), 0.01)

	// Four questions: mean weight (1.0 + 0.9 + 1.0 + 1.0) / 4 = 0.975.
	assert.InDelta(t, 78.0, e.adjustConfidence(80, 4), 0.01)
}

func TestAdjustConfidence_ClampsToRange(t *testing.T) {
	e := fixedEngine(2)
	assert.LessOrEqual(t, e.adjustConfidence(100, 7), 95.0)

	e = fixedEngine(-2)
	assert.GreaterOrEqual(t, e.adjustConfidence(1, 0), 20.0)
}

func TestAdjustConfidence_ZeroLLMConfidenceUsesBase(t *testing.T) {
	e := fixedEngine(0)

	// base = 25 + 15 * count.
	assert.InDelta(t, 55.0, e.adjustConfidence(0, 2), 0.01)
	assert.InDelta(t, 85.0, e.adjustConfidence(0, 5), 0.01)

	// Clamped to 85 even for long dialogues.
	assert.InDelta(t, 85.0, e.adjustConfidence(0, 7), 0.01)
}

func TestAdjustConfidence_EarlyCertaintyCapped(t *testing.T) {
	e := fixedEngine(2)

	// One answered question can never exceed 65.
	got := e.adjustConfidence(100, 1)
	assert.LessOrEqual(t, got, 65.0)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("When did it start?", "when did it  START?"), 0.001)
	assert.Greater(t, similarity(
		"How severe is the pain on a scale of 1 to 10?",
		"How severe is the pain on a scale from 1 to 10?"), duplicateThreshold)
	assert.Less(t, similarity(
		"How severe is the pain?",
		"Do you have any allergies to medication?"), duplicateThreshold)
}

func TestIsDuplicate(t *testing.T) {
	asked := []string{"When did the symptoms start?", "What makes the pain worse?"}
	assert.True(t, isDuplicate("when did the symptoms start", asked))
	assert.False(t, isDuplicate("Do you have a fever?", asked))
	assert.False(t, isDuplicate("Anything new?", nil))
}
