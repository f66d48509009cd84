// Package tracking manages user-approved metric configurations and
// their time-series data points: suggestion generation from analyses,
// approval, recording, and chart aggregation.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

const (
	// dashboardSuggestionWindow bounds how old an unactioned suggestion
	// can be and still surface on the dashboard.
	dashboardSuggestionWindow = 7 * 24 * time.Hour

	defaultChartDays   = 30
	maxSuggestionCount = 3
)

// Sentinel errors surfaced to the API layer.
var (
	ErrNotOwner           = errors.New("resource belongs to another user")
	ErrSuggestionActioned = errors.New("suggestion already actioned")
	ErrNoMetricName       = errors.New("metric_name is required")
)

// Store is the persistence the engine needs.
type Store interface {
	InsertTrackingSuggestion(ctx context.Context, t *models.TrackingSuggestion) error
	GetTrackingSuggestion(ctx context.Context, id string) (*models.TrackingSuggestion, error)
	ListUnactionedSuggestions(ctx context.Context, userID string, since time.Time) ([]models.TrackingSuggestion, error)
	MarkSuggestionActioned(ctx context.Context, id, action string, at time.Time) error

	InsertTrackingConfiguration(ctx context.Context, c *models.TrackingConfiguration) error
	GetTrackingConfiguration(ctx context.Context, id string) (*models.TrackingConfiguration, error)
	ListTrackingConfigurations(ctx context.Context, userID string) ([]models.TrackingConfiguration, error)
	HasTrackingConfigurations(ctx context.Context, userID string) (bool, error)

	InsertTrackingDataPoint(ctx context.Context, p *models.TrackingDataPoint) error
	ListTrackingDataPoints(ctx context.Context, configurationID string, since time.Time) ([]models.TrackingDataPoint, error)

	GetQuickScan(ctx context.Context, id string) (*models.QuickScan, error)
	GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error)
}

// Caller is the LLM dependency for deriving metrics from prose
// analyses. May be nil: only explicit trackable_metrics are then used.
type Caller interface {
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// Engine runs symptom tracking.
type Engine struct {
	store  Store
	caller Caller

	now   func() time.Time
	newID func() string
}

// NewEngine wires the engine. caller may be nil.
func NewEngine(st Store, caller Caller) *Engine {
	return &Engine{
		store:  st,
		caller: caller,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// HasActiveTracking reports whether the user records any metric.
func (e *Engine) HasActiveTracking(ctx context.Context, userID string) (bool, error) {
	return e.store.HasTrackingConfigurations(ctx, userID)
}

// Suggest derives tracking suggestions from a stored assessment.
func (e *Engine) Suggest(ctx context.Context, sourceType, sourceID, userID string) ([]models.TrackingSuggestion, error) {
	var analysis models.JSONMap
	switch sourceType {
	case "quick_scan":
		scan, err := e.store.GetQuickScan(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		analysis = scan.AnalysisResult
	case "deep_dive":
		dive, err := e.store.GetDeepDive(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		analysis = dive.FinalAnalysis
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
	if err := e.SuggestFromAnalysis(ctx, sourceType, sourceID, userID, analysis); err != nil {
		return nil, err
	}
	return e.store.ListUnactionedSuggestions(ctx, userID, e.now().UTC().Add(-dashboardSuggestionWindow))
}

// SuggestFromAnalysis materializes tracking suggestions for an
// analysis. Explicit trackable_metrics are used verbatim; otherwise the
// model proposes metrics from the reported symptoms.
func (e *Engine) SuggestFromAnalysis(ctx context.Context, sourceType, sourceID, userID string, analysis models.JSONMap) error {
	metrics := explicitMetrics(analysis)
	if len(metrics) == 0 {
		metrics = e.deriveMetrics(ctx, userID, analysis)
	}
	if len(metrics) > maxSuggestionCount {
		metrics = metrics[:maxSuggestionCount]
	}

	now := e.now().UTC()
	for _, m := range metrics {
		s := suggestionFromMetric(m)
		s.ID = e.newID()
		s.UserID = userID
		s.SourceType = sourceType
		s.SourceID = sourceID
		s.CreatedAt = now
		if s.MetricName == "" {
			continue
		}
		if err := e.store.InsertTrackingSuggestion(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// explicitMetrics pulls trackable_metrics entries out of an analysis.
func explicitMetrics(analysis models.JSONMap) []models.JSONMap {
	var out []models.JSONMap
	for _, raw := range analysis.GetSlice("trackable_metrics") {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, models.JSONMap(m))
		}
	}
	return out
}

// deriveMetrics asks the model for trackable metrics. Best-effort.
func (e *Engine) deriveMetrics(ctx context.Context, userID string, analysis models.JSONMap) []models.JSONMap {
	if e.caller == nil {
		return nil
	}
	condition := analysis.GetString("primaryCondition")
	symptoms := analysis.GetStrings("symptoms")
	if condition == "" && len(symptoms) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Propose up to 3 numeric metrics a patient could track daily for this assessment.\n")
	if condition != "" {
		fmt.Fprintf(&b, "Condition: %s\n", condition)
	}
	if len(symptoms) > 0 {
		fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(symptoms, ", "))
	}
	b.WriteString("\nReply as JSON: {\"metrics\": [{\"metric_name\", \"y_axis_label\", ")
	b.WriteString("\"y_axis_type\": \"numeric|scale\", \"y_axis_min\", \"y_axis_max\", ")
	b.WriteString("\"tracking_type\": \"severity|frequency|duration|occurrence\", ")
	b.WriteString("\"symptom_keywords\": [], \"suggested_questions\": [], \"reasoning\", \"confidence\": 0-100}]}")

	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: b.String()}},
		llm.CallOptions{UserID: userID, Endpoint: llm.EndpointChat})
	if err != nil || result.ParsedContent == nil {
		slog.Warn("Tracking metric derivation failed", "error", err)
		return nil
	}

	var out []models.JSONMap
	for _, raw := range models.JSONMap(result.ParsedContent).GetSlice("metrics") {
		if m, ok := raw.(map[string]any); ok {
			out = append(out, models.JSONMap(m))
		}
	}
	return out
}

// suggestionFromMetric maps one metric object to a suggestion row,
// defaulting out-of-vocabulary fields.
func suggestionFromMetric(m models.JSONMap) *models.TrackingSuggestion {
	s := &models.TrackingSuggestion{
		MetricName:         m.GetString("metric_name"),
		YAxisLabel:         m.GetString("y_axis_label"),
		YAxisType:          m.GetString("y_axis_type"),
		TrackingType:       m.GetString("tracking_type"),
		AIReasoning:        m.GetString("reasoning"),
		SymptomKeywords:    models.StringSlice(m.GetStrings("symptom_keywords")),
		SuggestedQuestions: models.StringSlice(m.GetStrings("suggested_questions")),
	}
	if s.MetricName == "" {
		s.MetricName = m.GetString("name")
	}
	if s.YAxisLabel == "" {
		s.YAxisLabel = s.MetricName
	}
	if s.YAxisType == "" {
		s.YAxisType = "scale"
	}
	switch s.TrackingType {
	case models.TrackingSeverity, models.TrackingFrequency, models.TrackingDuration, models.TrackingOccurrence:
	default:
		s.TrackingType = models.TrackingSeverity
	}
	s.YAxisMin, _ = m.GetFloat("y_axis_min")
	s.YAxisMax, _ = m.GetFloat("y_axis_max")
	if s.YAxisMax <= s.YAxisMin {
		s.YAxisMin, s.YAxisMax = 0, 10
	}
	s.ConfidenceScore, _ = m.GetFloat("confidence")
	return s
}

// ApproveSuggestion turns a suggestion into a configuration verbatim.
func (e *Engine) ApproveSuggestion(ctx context.Context, suggestionID, userID string) (*models.TrackingConfiguration, error) {
	s, err := e.store.GetTrackingSuggestion(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && s.UserID != userID {
		return nil, ErrNotOwner
	}
	if s.ActionTaken != nil {
		return nil, ErrSuggestionActioned
	}

	c := &models.TrackingConfiguration{
		ID:           e.newID(),
		UserID:       s.UserID,
		SuggestionID: &s.ID,
		MetricName:   s.MetricName,
		YAxisLabel:   s.YAxisLabel,
		YAxisType:    s.YAxisType,
		YAxisMin:     s.YAxisMin,
		YAxisMax:     s.YAxisMax,
		TrackingType: s.TrackingType,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.InsertTrackingConfiguration(ctx, c); err != nil {
		return nil, err
	}
	if err := e.store.MarkSuggestionActioned(ctx, s.ID, models.ActionApprovedAll, e.now().UTC()); err != nil {
		slog.Warn("Marking suggestion actioned failed", "suggestion_id", s.ID, "error", err)
	}
	return c, nil
}

// ConfigureRequest carries a user-edited metric, optionally rooted at a
// suggestion.
type ConfigureRequest struct {
	UserID         string  `json:"user_id"`
	SuggestionID   string  `json:"suggestion_id,omitempty"`
	MetricName     string  `json:"metric_name"`
	YAxisLabel     string  `json:"y_axis_label,omitempty"`
	YAxisType      string  `json:"y_axis_type,omitempty"`
	YAxisMin       float64 `json:"y_axis_min,omitempty"`
	YAxisMax       float64 `json:"y_axis_max,omitempty"`
	TrackingType   string  `json:"tracking_type,omitempty"`
	ShowOnHomepage bool    `json:"show_on_homepage,omitempty"`
}

// Configure creates a configuration from user-edited fields. Absent
// fields inherit from the suggestion when one is named.
func (e *Engine) Configure(ctx context.Context, req ConfigureRequest) (*models.TrackingConfiguration, error) {
	c := &models.TrackingConfiguration{
		ID:             e.newID(),
		UserID:         req.UserID,
		MetricName:     req.MetricName,
		YAxisLabel:     req.YAxisLabel,
		YAxisType:      req.YAxisType,
		YAxisMin:       req.YAxisMin,
		YAxisMax:       req.YAxisMax,
		TrackingType:   req.TrackingType,
		ShowOnHomepage: req.ShowOnHomepage,
		CreatedAt:      e.now().UTC(),
	}

	if req.SuggestionID != "" {
		s, err := e.store.GetTrackingSuggestion(ctx, req.SuggestionID)
		if err != nil {
			return nil, err
		}
		if req.UserID != "" && s.UserID != req.UserID {
			return nil, ErrNotOwner
		}
		c.SuggestionID = &s.ID
		if c.MetricName == "" {
			c.MetricName = s.MetricName
		}
		if c.YAxisLabel == "" {
			c.YAxisLabel = s.YAxisLabel
		}
		if c.YAxisType == "" {
			c.YAxisType = s.YAxisType
		}
		if c.TrackingType == "" {
			c.TrackingType = s.TrackingType
		}
		if c.YAxisMax <= c.YAxisMin {
			c.YAxisMin, c.YAxisMax = s.YAxisMin, s.YAxisMax
		}
		if err := e.store.MarkSuggestionActioned(ctx, s.ID, models.ActionApprovedSome, e.now().UTC()); err != nil {
			slog.Warn("Marking suggestion actioned failed", "suggestion_id", s.ID, "error", err)
		}
	}

	if c.MetricName == "" {
		return nil, ErrNoMetricName
	}
	if c.YAxisLabel == "" {
		c.YAxisLabel = c.MetricName
	}
	if c.YAxisType == "" {
		c.YAxisType = "scale"
	}
	if c.TrackingType == "" {
		c.TrackingType = models.TrackingSeverity
	}
	if c.YAxisMax <= c.YAxisMin {
		c.YAxisMin, c.YAxisMax = 0, 10
	}

	if err := e.store.InsertTrackingConfiguration(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddDataPoint records one value against a configuration the user owns.
func (e *Engine) AddDataPoint(ctx context.Context, configurationID, userID string, value float64, notes string, recordedAt *time.Time) (*models.TrackingDataPoint, error) {
	c, err := e.store.GetTrackingConfiguration(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if userID != "" && c.UserID != userID {
		return nil, ErrNotOwner
	}

	at := e.now().UTC()
	if recordedAt != nil {
		at = recordedAt.UTC()
	}
	p := &models.TrackingDataPoint{
		ID:              e.newID(),
		ConfigurationID: c.ID,
		UserID:          c.UserID,
		Value:           value,
		RecordedAt:      at,
	}
	if notes != "" {
		p.Notes = &notes
	}
	if err := e.store.InsertTrackingDataPoint(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Dashboard is the tracking home view.
type Dashboard struct {
	Configurations []models.TrackingConfiguration `json:"configurations"`
	Suggestions    []models.TrackingSuggestion    `json:"suggestions"`
}

// GetDashboard returns recent configurations plus unactioned
// suggestions from the last week.
func (e *Engine) GetDashboard(ctx context.Context, userID string) (*Dashboard, error) {
	configs, err := e.store.ListTrackingConfigurations(ctx, userID)
	if err != nil {
		return nil, err
	}
	suggestions, err := e.store.ListUnactionedSuggestions(ctx, userID, e.now().UTC().Add(-dashboardSuggestionWindow))
	if err != nil {
		return nil, err
	}
	return &Dashboard{Configurations: configs, Suggestions: suggestions}, nil
}

// Chart is the rendered series for one configuration.
type Chart struct {
	ConfigurationID string    `json:"configuration_id"`
	MetricName      string    `json:"metric_name"`
	YAxisLabel      string    `json:"y_axis_label"`
	Labels          []string  `json:"labels"`
	Values          []float64 `json:"values"`
	Min             float64   `json:"min"`
	Max             float64   `json:"max"`
	Avg             float64   `json:"avg"`
	Count           int       `json:"count"`
}

// GetChart aggregates the last `days` of data points for a
// configuration. days <= 0 defaults to 30.
func (e *Engine) GetChart(ctx context.Context, configurationID, userID string, days int) (*Chart, error) {
	c, err := e.store.GetTrackingConfiguration(ctx, configurationID)
	if err != nil {
		return nil, err
	}
	if userID != "" && c.UserID != userID {
		return nil, ErrNotOwner
	}
	if days <= 0 {
		days = defaultChartDays
	}

	points, err := e.store.ListTrackingDataPoints(ctx, c.ID, e.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	chart := &Chart{
		ConfigurationID: c.ID,
		MetricName:      c.MetricName,
		YAxisLabel:      c.YAxisLabel,
		Labels:          make([]string, 0, len(points)),
		Values:          make([]float64, 0, len(points)),
		Count:           len(points),
	}
	var sum float64
	for i, p := range points {
		chart.Labels = append(chart.Labels, p.RecordedAt.Format("Jan 2"))
		chart.Values = append(chart.Values, p.Value)
		sum += p.Value
		if i == 0 || p.Value < chart.Min {
			chart.Min = p.Value
		}
		if i == 0 || p.Value > chart.Max {
			chart.Max = p.Value
		}
	}
	if len(points) > 0 {
		chart.Avg = sum / float64(len(points))
	}
	return chart, nil
}
