package email

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/proxima-health/oracle/pkg/models"
)

// Inline templates keyed by the queue item's template field. Bodies are
// deliberately plain: medical content arrives via template_data or the
// PDF attachment, not hardcoded copy.
var templates = template.Must(template.New("email").Parse(`
{{define "medical_report"}}
<html><body>
<h2>Your health report is ready</h2>
<p>Hello{{if .recipient_name}} {{.recipient_name}}{{end}},</p>
<p>The report you requested is attached to this email.</p>
{{if .summary}}<p>{{.summary}}</p>{{end}}
<p>This report is informational and is not a medical diagnosis. Share it
with your healthcare provider.</p>
</body></html>
{{end}}

{{define "scan_results"}}
<html><body>
<h2>Your scan results</h2>
{{if .condition}}<p>Assessment: {{.condition}}</p>{{end}}
{{if .urgency}}<p>Urgency: {{.urgency}}</p>{{end}}
{{if .summary}}<p>{{.summary}}</p>{{end}}
<p>This assessment is informational and is not a medical diagnosis.</p>
</body></html>
{{end}}

{{define "photo_reminder"}}
<html><body>
<h2>Time for a follow-up photo</h2>
{{if .condition_name}}<p>You are tracking: {{.condition_name}}</p>{{end}}
<p>Taking a new photo now keeps your progression timeline accurate.</p>
</body></html>
{{end}}
`))

// renderTemplate produces the HTML body for one queue item. Unknown
// template names fail rather than sending an empty body.
func renderTemplate(name string, data models.JSONMap) (string, error) {
	if templates.Lookup(name) == nil {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, map[string]any(data)); err != nil {
		return "", err
	}
	return b.String(), nil
}
