package deepdive

// Confidence blends the model's self-reported confidence with how much
// diagnostic ground the dialogue has actually covered, so early answers
// cannot claim near-certainty.

// adjustConfidence maps the LLM-reported confidence and the number of
// answered questions to the confidence shown to the user.
func (e *Engine) adjustConfidence(llmConfidence float64, questionCount int) float64 {
	symptomClarity := 1.0
	historyCompleteness := 0.7
	if questionCount >= 3 {
		historyCompleteness = 0.9
	}
	redFlagsAssessed := 0.8
	if questionCount >= 2 {
		redFlagsAssessed = 1.0
	}
	differentialNarrowing := float64(questionCount) * 0.25
	if differentialNarrowing > 1.0 {
		differentialNarrowing = 1.0
	}

	mean := (symptomClarity + historyCompleteness + redFlagsAssessed + differentialNarrowing) / 4

	var result float64
	if llmConfidence > 0 {
		result = llmConfidence*mean + float64(e.randInt(-2, 2))
		result = clamp(result, 20, 95)
	} else {
		result = 25 + 15*float64(questionCount) + float64(e.randInt(-3, 3))
		result = clamp(result, 0, 85)
	}

	if questionCount < 2 && result > 70 {
		result = 65
	}
	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
