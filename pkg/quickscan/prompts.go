package quickscan

import (
	"fmt"
	"strings"

	"github.com/proxima-health/oracle/pkg/models"
)

func scanPrompt(bodyParts []string, formData map[string]any, partsRelationship, userContext string) string {
	var b strings.Builder
	b.WriteString("You are a medical triage assistant. Assess the following symptoms.\n")
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(bodyParts, ", "))
	if partsRelationship != "" {
		fmt.Fprintf(&b, "How the areas relate: %s\n", partsRelationship)
	}
	if len(formData) > 0 {
		b.WriteString("Intake details:\n")
		for k, v := range formData {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	if userContext != "" {
		fmt.Fprintf(&b, "\nRelevant medical history:\n%s\n", userContext)
	}
	b.WriteString("\nReply as JSON: ")
	b.WriteString(`{"primaryCondition", "likelihood", "symptoms": [], "recommendations": [], ` +
		`"urgency": "low|medium|high|emergency", "differentials": [], "redFlags": [], ` +
		`"selfCare": [], "confidence": 0-100}`)
	return b.String()
}

func enhancePrompt(scan *models.QuickScan, depth string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Re-assess this triage case with %s.\n", depth)
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(scan.BodyParts, ", "))
	if len(scan.FormData) > 0 {
		b.WriteString("Intake details:\n")
		for k, v := range scan.FormData {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	fmt.Fprintf(&b, "Prior assessment: %v\n", map[string]any(scan.AnalysisResult))
	b.WriteString("\nChallenge the prior conclusion and reply as JSON with the same schema ")
	b.WriteString(`plus "key_insights": [] and "confidence": 0-100.`)
	return b.String()
}

func askMorePrompt(scan *models.QuickScan) string {
	var b strings.Builder
	b.WriteString("Given this triage assessment, propose 3 to 5 follow-up questions whose answers ")
	b.WriteString("would most sharpen the assessment.\n")
	fmt.Fprintf(&b, "Body parts: %s\n", strings.Join(scan.BodyParts, ", "))
	fmt.Fprintf(&b, "Assessment: %v\n", map[string]any(scan.AnalysisResult))
	b.WriteString("\nReply as JSON: {\"questions\": [\"...\"]}")
	return b.String()
}
