package photo

import (
	"math"
	"strings"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// trendDeadband absorbs measurement noise: net changes within ±0.5mm
// read as stable.
const trendDeadband = 0.5

// defaultMetricKey is the measurement tracked when the caller names none.
const defaultMetricKey = "size_estimate_mm"

// Progression status values.
const (
	ProgressionComplete         = "complete"
	ProgressionInsufficientData = "insufficient_data"
)

// Progression summarizes how a session's metric moved over time.
type Progression struct {
	Status          string   `json:"status"`
	Metric          string   `json:"metric"`
	DataPoints      int      `json:"data_points"`
	FirstValue      float64  `json:"first_value"`
	LastValue       float64  `json:"last_value"`
	WeeklyRate      float64  `json:"weekly_rate"`
	Acceleration    string   `json:"acceleration,omitempty"`
	Projection30Day *float64 `json:"projection_30_day,omitempty"`
	OverallTrend    string   `json:"overall_trend,omitempty"`
	MonitoringPhase string   `json:"monitoring_phase,omitempty"`

	RiskIndicators  map[string]bool `json:"risk_indicators,omitempty"`
	OverallRisk     string          `json:"overall_risk_level,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// hasAnalytics reports whether the progression carries computed trends.
func (p *Progression) hasAnalytics() bool {
	return p != nil && p.Status != ProgressionInsufficientData
}

type metricPoint struct {
	at    time.Time
	value float64
}

// AnalyzeProgression computes velocity, acceleration, projection, trend,
// phase, and risk from a session's analyses in time order. conditionName
// gates condition-specific clinical thresholds. Fewer than two
// measurements yield an insufficient_data progression with no analytics.
func AnalyzeProgression(analyses []models.PhotoAnalysis, metric, conditionName string) *Progression {
	if metric == "" {
		metric = defaultMetricKey
	}
	points := metricPoints(analyses, metric)
	if len(points) < 2 {
		return &Progression{
			Status:     ProgressionInsufficientData,
			Metric:     metric,
			DataPoints: len(points),
		}
	}

	first, last := points[0], points[len(points)-1]
	net := last.value - first.value
	weeklyRate := rateBetween(first, last)

	p := &Progression{
		Status:     ProgressionComplete,
		Metric:     metric,
		DataPoints: len(points),
		FirstValue: first.value,
		LastValue:  last.value,
		WeeklyRate: weeklyRate,
	}

	switch {
	case net > trendDeadband:
		p.OverallTrend = "growing"
	case net < -trendDeadband:
		p.OverallTrend = "shrinking"
	default:
		p.OverallTrend = "stable"
	}

	if len(points) >= 3 {
		mid := len(points) / 2
		firstHalf := rateBetween(points[0], points[mid])
		secondHalf := rateBetween(points[mid], points[len(points)-1])
		switch {
		case secondHalf > firstHalf+0.1:
			p.Acceleration = "increasing"
		case secondHalf < firstHalf-0.1:
			p.Acceleration = "decreasing"
		default:
			p.Acceleration = "stable"
		}
	}

	projection := last.value + (weeklyRate/7)*30
	p.Projection30Day = &projection

	switch {
	case len(analyses) <= 2:
		p.MonitoringPhase = "initial"
	case len(analyses) <= 5 && p.OverallTrend != "stable":
		p.MonitoringPhase = "active_monitoring"
	case len(analyses) > 5 && p.OverallTrend == "stable":
		p.MonitoringPhase = "maintenance"
	default:
		p.MonitoringPhase = "ongoing"
	}

	p.RiskIndicators = riskIndicators(points, analyses)
	p.OverallRisk = riskLevel(p.RiskIndicators)
	p.Recommendations = clinicalRecommendations(last.value, conditionName)
	return p
}

func metricPoints(analyses []models.PhotoAnalysis, metric string) []metricPoint {
	var points []metricPoint
	for i := range analyses {
		measurements := analyses[i].AnalysisData.GetMap("key_measurements")
		if v, ok := measurements.GetFloat(metric); ok {
			points = append(points, metricPoint{at: analyses[i].CreatedAt, value: v})
		}
	}
	return points
}

// rateBetween is change per week between two measurements.
func rateBetween(a, b metricPoint) float64 {
	weeks := b.at.Sub(a.at).Hours() / (24 * 7)
	if weeks <= 0 {
		return 0
	}
	return (b.value - a.value) / weeks
}

func riskIndicators(points []metricPoint, analyses []models.PhotoAnalysis) map[string]bool {
	indicators := map[string]bool{
		"rapid_growth":                 false,
		"color_darkening":              false,
		"border_irregularity_increase": false,
		"new_colors_appearing":         false,
		"asymmetry_increasing":         false,
	}

	for i := 1; i < len(points); i++ {
		prev := points[i-1].value
		if prev > 0 && (points[i].value-prev)/prev > 0.20 {
			indicators["rapid_growth"] = true
		}
	}

	// Comparison flags accumulate across analyses: once observed, a
	// change stays flagged.
	for i := range analyses {
		cmp := analyses[i].Comparison
		if cmp == nil {
			cmp = analyses[i].AnalysisData.GetMap("comparison")
		}
		for _, flag := range []string{"color_darkening", "border_irregularity_increase", "new_colors_appearing", "asymmetry_increasing"} {
			if b, ok := cmp[flag].(bool); ok && b {
				indicators[flag] = true
			}
		}
	}
	return indicators
}

func riskLevel(indicators map[string]bool) string {
	count := 0
	for _, v := range indicators {
		if v {
			count++
		}
	}
	switch {
	case count >= 3:
		return "high"
	case count >= 1:
		return "moderate"
	}
	return "low"
}

func clinicalRecommendations(lastValue float64, conditionName string) []string {
	name := strings.ToLower(conditionName)
	var recs []string
	if (strings.Contains(name, "mole") || strings.Contains(name, "lesion")) && lastValue >= 6 {
		recs = append(recs, "Size is at or above 6mm. A dermatology review is recommended.")
	}
	return recs
}

// SuggestFollowUpInterval derives the next photo interval in days and a
// priority from the progression and the latest analysis.
func SuggestFollowUpInterval(p *Progression, latest *models.PhotoAnalysis) (int, string) {
	days := 14.0

	if p.hasAnalytics() {
		switch p.OverallTrend {
		case "growing":
			days = 3
		case "shrinking":
			days = 21
		}
		if p.MonitoringPhase == "initial" {
			days = 7
		}
		if math.Abs(p.WeeklyRate) > 1 {
			days = math.Max(2, days/2)
		} else if math.Abs(p.WeeklyRate) < 0.1 {
			days = math.Min(30, days*1.5)
		}
		switch p.MonitoringPhase {
		case "active_monitoring":
			days = math.Min(days, 7)
		case "maintenance":
			days = math.Max(days, 30)
		}
	}

	redFlags := 0
	significance := ""
	if latest != nil {
		redFlags = len(latest.AnalysisData.GetSlice("red_flags"))
		significance = latest.AnalysisData.GetString("change_significance")
		if redFlags > 0 {
			days = math.Min(days, 7)
		}
		monitoring := latest.AnalysisData.GetMap("next_monitoring")
		if suggested, ok := monitoring.GetFloat("optimal_interval_days"); ok && suggested > 0 {
			days = (days + suggested) / 2
		}
	}

	priority := "routine"
	rapid := p.hasAnalytics() && math.Abs(p.WeeklyRate) > 1
	worsening := p.hasAnalytics() && p.OverallTrend == "growing"
	switch {
	case redFlags > 0 || significance == "critical":
		priority = "urgent"
	case worsening || rapid:
		priority = "important"
	}

	return int(math.Round(days)), priority
}
