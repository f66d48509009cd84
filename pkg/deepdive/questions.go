package deepdive

import (
	"fmt"
	"strings"
)

// Tokens that betray a leaked formatting instruction instead of a real
// question for the user.
var leakedFormatTokens = []string{"json", "format", "response", "ensure", "```"}

// validQuestion reports whether the model produced a usable question.
func validQuestion(q string) bool {
	q = strings.TrimSpace(q)
	if len(q) < 10 {
		return false
	}
	lowered := strings.ToLower(q)
	for _, tok := range leakedFormatTokens {
		if strings.Contains(lowered, tok) {
			return false
		}
	}
	return true
}

// fallbackFirstQuestions are canned openers keyed by body part, used
// when the model's first question fails validation.
var fallbackFirstQuestions = map[string]string{
	"head":    "When did your head symptoms start, and how would you describe the pain or sensation?",
	"chest":   "Can you describe the chest discomfort: where exactly it is, and whether it changes with breathing or exertion?",
	"abdomen": "Where in your abdomen is the discomfort strongest, and when did you first notice it?",
	"back":    "Where on your back is the pain located, and does it spread anywhere else?",
	"skin":    "When did you first notice the skin change, and has it grown, changed color, or started to itch?",
	"knee":    "When did your knee symptoms begin, and was there an injury or activity that set them off?",
	"throat":  "How long has your throat been bothering you, and is it painful to swallow?",
}

const fallbackGenericFirstQuestion = "When did these symptoms first start, and how have they changed since then?"

// firstQuestionFallback picks a canned opener for the given body parts.
func firstQuestionFallback(bodyParts []string) string {
	for _, part := range bodyParts {
		if q, ok := fallbackFirstQuestions[strings.ToLower(strings.TrimSpace(part))]; ok {
			return q
		}
	}
	return fallbackGenericFirstQuestion
}

// contextualFollowUps are generic probes substituted when the model
// repeats itself early in the dialogue.
var contextualFollowUps = []string{
	"Have you noticed anything that makes the symptoms better or worse?",
	"Are you currently taking any medications, and do you have any known allergies?",
	"Have you experienced anything like this before, or is this the first time?",
}

func contextualFollowUp(questionCount int) string {
	if questionCount < 0 {
		questionCount = 0
	}
	return contextualFollowUps[questionCount%len(contextualFollowUps)]
}

// Prompt builders. The model is asked for strict JSON; the tolerant
// extractor cleans up whatever comes back.

func startPrompt(bodyParts []string, formData map[string]any) string {
	var b strings.Builder
	b.WriteString("You are a careful medical intake assistant conducting a focused diagnostic interview.\n")
	fmt.Fprintf(&b, "Affected body parts: %s\n", strings.Join(bodyParts, ", "))
	if len(formData) > 0 {
		b.WriteString("Intake form data:\n")
		writeFormData(&b, formData)
	}
	b.WriteString("\nAsk the single most diagnostically valuable opening question. ")
	b.WriteString("Reply as JSON: {\"question\": \"...\", \"question_type\": \"open_ended\", \"internal_analysis\": {...}}")
	return b.String()
}

func continuePrompt(s sessionView) string {
	var b strings.Builder
	b.WriteString("You are conducting a focused diagnostic interview.\n")
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(s.BodyParts, ", "))
	b.WriteString("Dialogue so far:\n")
	for _, qa := range s.Questions {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
	}
	fmt.Fprintf(&b, "\n%d of at most %d questions asked. ", len(s.Questions), maxQuestions)
	b.WriteString("Decide whether one more question would meaningfully sharpen the differential. ")
	b.WriteString("Reply as JSON: {\"need_another_question\": true|false, \"question\": \"...\" or null, ")
	b.WriteString("\"current_confidence\": 0-100, \"internal_analysis\": {...}}")
	return b.String()
}

func completePrompt(s sessionView, finalAnswer string) string {
	var b strings.Builder
	b.WriteString("Produce the final structured assessment of this diagnostic interview.\n")
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(s.BodyParts, ", "))
	b.WriteString("Dialogue:\n")
	for _, qa := range s.Questions {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", qa.QuestionNumber, qa.Question, qa.QuestionNumber, qa.Answer)
	}
	if finalAnswer != "" {
		fmt.Fprintf(&b, "Final remark from the user: %s\n", finalAnswer)
	}
	b.WriteString("\nReply as JSON with exactly these fields: ")
	b.WriteString(`{"primaryCondition", "likelihood", "symptoms": [], "recommendations": [], ` +
		`"urgency": "low|medium|high|emergency", "differentials": [], "redFlags": [], ` +
		`"selfCare": [], "timeline", "followUp", "confidence": 0-100}`)
	return b.String()
}

func askMorePrompt(s sessionView, currentConfidence, targetConfidence float64) string {
	var b strings.Builder
	b.WriteString("The initial assessment of this case is done but confidence can improve.\n")
	fmt.Fprintf(&b, "Current confidence %.0f, target %.0f.\n", currentConfidence, targetConfidence)
	b.WriteString("Dialogue so far:\n")
	for _, qa := range s.Questions {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	b.WriteString("\nAsk the single question whose answer would most increase diagnostic confidence. ")
	b.WriteString("Reply as JSON: {\"question\": \"...\", \"rationale\": \"...\"}")
	return b.String()
}

func enhancementPrompt(s sessionView, depth string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Re-analyze this completed diagnostic interview with %s.\n", depth)
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(s.BodyParts, ", "))
	b.WriteString("Dialogue:\n")
	for _, qa := range s.Questions {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}
	if len(s.FinalAnalysis) > 0 {
		fmt.Fprintf(&b, "Prior assessment: %v\n", map[string]any(s.FinalAnalysis))
	}
	b.WriteString("\nChallenge the prior conclusion, weigh alternative explanations, and reply as JSON ")
	b.WriteString(`{"primaryCondition", "likelihood", "symptoms": [], "recommendations": [], ` +
		`"urgency": "low|medium|high|emergency", "differentials": [], "redFlags": [], ` +
		`"selfCare": [], "timeline", "followUp", "confidence": 0-100, "key_insights": []}`)
	return b.String()
}

func writeFormData(b *strings.Builder, formData map[string]any) {
	for k, v := range formData {
		fmt.Fprintf(b, "- %s: %v\n", k, v)
	}
}
