package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/store"
)

// GenerateRequest asks for one report. AnalysisID may name an existing
// classification; specialist requests may carry a pre-assigned id that
// does not exist yet, in which case the analysis is created on demand.
type GenerateRequest struct {
	AnalysisID      string    `json:"analysis_id,omitempty"`
	UserID          string    `json:"user_id"`
	Specialty       string    `json:"specialty,omitempty"`
	TimeRange       TimeRange `json:"time_range,omitempty"`
	QuickScanIDs    []string  `json:"quick_scan_ids,omitempty"`
	DeepDiveIDs     []string  `json:"deep_dive_ids,omitempty"`
	PhotoSessionIDs []string  `json:"photo_session_ids,omitempty"`
}

// GenerateResult is the persisted report plus its payload.
type GenerateResult struct {
	ReportID   string         `json:"report_id"`
	ReportType string         `json:"report_type"`
	Specialty  string         `json:"specialty,omitempty"`
	ReportData models.JSONMap `json:"report_data"`
	Model      string         `json:"model_used"`
}

// Generate builds one report of the named type. For specialist types,
// req.Specialty must name a known specialty.
func (e *Engine) Generate(ctx context.Context, reportType string, req GenerateRequest) (*GenerateResult, error) {
	var profile *specialtyProfile
	if req.Specialty != "" {
		p, ok := specialtyProfiles[req.Specialty]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSpecialty, req.Specialty)
		}
		profile = &p
		reportType = TypeSpecialist
	}

	analysis, err := e.resolveAnalysis(ctx, reportType, req)
	if err != nil {
		return nil, err
	}

	start, end := e.resolveRange(reportType, req.TimeRange)
	bundle, err := e.gather(ctx, analysis, start, end)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(reportType, profile, bundle)
	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		llm.CallOptions{UserID: req.UserID, Endpoint: llm.EndpointReports, ReasoningMode: true})
	if err != nil {
		return nil, fmt.Errorf("generating %s report: %w", reportType, err)
	}

	data := ensureReportShape(models.JSONMap(result.ParsedContent), reportType, profile, bundle)
	confidence, _ := data.GetFloat("confidence")

	report := &models.Report{
		ID:               e.newID(),
		UserID:           req.UserID,
		AnalysisID:       &analysis.ID,
		ReportType:       reportType,
		ReportData:       data,
		ExecutiveSummary: data.GetMap("executive_summary").GetString("one_page_summary"),
		ConfidenceScore:  confidence,
		ModelUsed:        result.Model,
		TimeRangeStart:   &start,
		TimeRangeEnd:     &end,
		CreatedAt:        e.now().UTC(),
	}
	if profile != nil {
		report.Specialty = &profile.Name
	}
	if err := e.store.InsertReport(ctx, report); err != nil {
		return nil, err
	}

	slog.Info("Report generated", "report_id", report.ID, "type", reportType,
		"user_id", req.UserID, "model", result.Model)

	out := &GenerateResult{
		ReportID:   report.ID,
		ReportType: reportType,
		ReportData: data,
		Model:      result.Model,
	}
	if profile != nil {
		out.Specialty = profile.Name
	}
	return out, nil
}

// resolveAnalysis loads the named classification, creating one on
// demand when absent or unnamed.
func (e *Engine) resolveAnalysis(ctx context.Context, reportType string, req GenerateRequest) (*models.ReportAnalysis, error) {
	if req.AnalysisID != "" {
		a, err := e.store.GetReportAnalysis(ctx, req.AnalysisID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	a := &models.ReportAnalysis{
		ID:              req.AnalysisID,
		UserID:          req.UserID,
		RecommendedType: reportType,
		ReportConfig:    models.JSONMap{"report_type": reportType},
		QuickScanIDs:    models.StringSlice(req.QuickScanIDs),
		DeepDiveIDs:     models.StringSlice(req.DeepDiveIDs),
		PhotoSessionIDs: models.StringSlice(req.PhotoSessionIDs),
		CreatedAt:       e.now().UTC(),
	}
	if a.ID == "" {
		a.ID = e.newID()
	}
	if err := e.store.InsertReportAnalysis(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func buildPrompt(reportType string, profile *specialtyProfile, bundle *dataBundle) string {
	var b strings.Builder

	switch {
	case profile != nil:
		fmt.Fprintf(&b, "You are preparing a %s-focused report for a specialist reviewing this patient.\n", profile.Name)
		fmt.Fprintf(&b, "Focus on %s.\n", profile.Focus)
	case reportType == TypeUrgentTriage:
		b.WriteString("You are preparing an urgent triage report. Lead with what needs attention now, where the patient should seek care, and why.\n")
	case reportType == TypeSymptomTimeline:
		b.WriteString("You are preparing a symptom timeline report. Reconstruct the chronology of the patient's symptoms, flagging inflection points and correlations.\n")
	case reportType == TypePhotoProgression:
		b.WriteString("You are preparing a photo progression report. Describe how the photographed condition changed across analyses, citing dates.\n")
	case reportType == TypeAnnualSummary:
		b.WriteString("You are preparing an annual health summary written for the patient in plain language.\n")
	case reportType == TypeAnnual:
		b.WriteString("You are preparing an annual clinical report covering the patient's full year of recorded health data.\n")
	case reportType == Type30Day:
		b.WriteString("You are preparing a 30-day health report summarizing the patient's recent recorded data.\n")
	default:
		b.WriteString("You are preparing a comprehensive medical report for a doctor reviewing this patient.\n")
	}

	b.WriteString("\n")
	b.WriteString(bundle.summarize())

	b.WriteString("\nReply as JSON: ")
	b.WriteString(`{"executive_summary": {"one_page_summary", "chief_complaints": [], "key_findings": []}, ` +
		`"clinical_summary": {"active_concerns": [], "assessment_narrative"}, ` +
		`"recommendations": [], "follow_up_plan": [], "confidence": 0-100`)
	if profile != nil {
		b.WriteString(`, "specialist_focus": {"relevant_findings": [], "referral_rationale"}, ` +
			`"clinical_scales": {`)
		for i, scale := range profile.Scales {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, `%q: {"estimate", "confidence": 0-100}`, scale)
		}
		b.WriteString(`}`)
	}
	b.WriteString(`}`)
	return b.String()
}

// ensureReportShape enforces the report contract so handlers and
// persistence never see a partial payload.
func ensureReportShape(data models.JSONMap, reportType string, profile *specialtyProfile, bundle *dataBundle) models.JSONMap {
	if data == nil {
		data = models.JSONMap{}
	}

	exec := data.GetMap("executive_summary")
	if exec == nil {
		exec = models.JSONMap{}
		data["executive_summary"] = map[string]any(exec)
	}
	if exec.GetString("one_page_summary") == "" {
		if bundle.empty() {
			exec["one_page_summary"] = "No health data was recorded in the reporting window."
		} else {
			exec["one_page_summary"] = "See clinical summary."
		}
	}
	for _, key := range []string{"chief_complaints", "key_findings"} {
		if exec.GetSlice(key) == nil {
			exec[key] = []any{}
		}
	}

	clinical := data.GetMap("clinical_summary")
	if clinical == nil {
		clinical = models.JSONMap{}
		data["clinical_summary"] = map[string]any(clinical)
	}
	if clinical.GetSlice("active_concerns") == nil {
		clinical["active_concerns"] = []any{}
	}

	if data.GetSlice("recommendations") == nil {
		data["recommendations"] = []any{}
	}
	if data.GetSlice("follow_up_plan") == nil {
		data["follow_up_plan"] = []any{}
	}
	if _, ok := data.GetFloat("confidence"); !ok {
		data["confidence"] = 0.0
	}

	if profile != nil {
		if data.GetMap("specialist_focus") == nil {
			data["specialist_focus"] = map[string]any{
				"relevant_findings":  []any{},
				"referral_rationale": "",
			}
		}
		if data.GetMap("clinical_scales") == nil {
			data["clinical_scales"] = map[string]any{}
		}
	}

	data["report_type"] = reportType
	return data
}

// TriageResult names the specialty a case should route to.
type TriageResult struct {
	Specialty     string   `json:"specialty"`
	Reasoning     string   `json:"reasoning"`
	Alternatives  []string `json:"alternatives,omitempty"`
	UrgencyLevel  string   `json:"urgency_level"`
	GeneratedFrom int      `json:"records_considered"`
}

// SpecialtyTriage picks the best specialty for the user's recent data.
func (e *Engine) SpecialtyTriage(ctx context.Context, userID string, symptomFocus string) (*TriageResult, error) {
	end := e.now().UTC()
	start := end.AddDate(0, 0, -90)
	analysis := &models.ReportAnalysis{UserID: userID}
	bundle, err := e.gather(ctx, analysis, start, end)
	if err != nil {
		return nil, err
	}

	names := Specialties()
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Pick the single most appropriate specialist for this patient.\n")
	fmt.Fprintf(&b, "Choices: %s\n", strings.Join(names, ", "))
	if symptomFocus != "" {
		fmt.Fprintf(&b, "The patient is focused on: %s\n", symptomFocus)
	}
	b.WriteString("\n")
	b.WriteString(bundle.summarize())
	b.WriteString("\nReply as JSON: {\"specialty\", \"reasoning\", \"alternatives\": [], \"urgency_level\": \"low|medium|high\"}")

	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: b.String()}},
		llm.CallOptions{UserID: userID, Endpoint: llm.EndpointReports})
	if err != nil {
		return nil, err
	}

	parsed := models.JSONMap(result.ParsedContent)
	specialty := parsed.GetString("specialty")
	if _, ok := specialtyProfiles[specialty]; !ok {
		specialty = "primary_care"
	}
	out := &TriageResult{
		Specialty:     specialty,
		Reasoning:     parsed.GetString("reasoning"),
		Alternatives:  parsed.GetStrings("alternatives"),
		UrgencyLevel:  parsed.GetString("urgency_level"),
		GeneratedFrom: len(bundle.QuickScans) + len(bundle.DeepDives) + len(bundle.PhotoAnalyses),
	}
	if out.UrgencyLevel == "" {
		out.UrgencyLevel = models.UrgencyLow
	}
	return out, nil
}
