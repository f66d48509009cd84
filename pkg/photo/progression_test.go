package photo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/models"
)

func analysisAt(at time.Time, sizeMM float64, extra models.JSONMap) models.PhotoAnalysis {
	data := models.JSONMap{
		"key_measurements": map[string]any{"size_estimate_mm": sizeMM},
	}
	for k, v := range extra {
		data[k] = v
	}
	return models.PhotoAnalysis{AnalysisData: data, CreatedAt: at}
}

func TestAnalyzeProgression_GrowthMath(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	analyses := []models.PhotoAnalysis{
		analysisAt(start, 4.0, nil),
		analysisAt(start.AddDate(0, 0, 7), 5.0, nil),
		analysisAt(start.AddDate(0, 0, 14), 6.5, nil),
	}

	p := AnalyzeProgression(analyses, "", "arm rash")
	require.NotNil(t, p)
	assert.Equal(t, ProgressionComplete, p.Status)
	assert.Equal(t, 3, p.DataPoints)
	assert.InDelta(t, 1.25, p.WeeklyRate, 0.01)
	assert.Equal(t, "growing", p.OverallTrend)
	assert.Equal(t, "increasing", p.Acceleration)
	require.NotNil(t, p.Projection30Day)
	assert.InDelta(t, 6.5+(1.25/7)*30, *p.Projection30Day, 0.01)
	assert.Equal(t, "active_monitoring", p.MonitoringPhase)

	// 25% step increase trips rapid_growth; one indicator is moderate.
	assert.True(t, p.RiskIndicators["rapid_growth"])
	assert.Equal(t, "moderate", p.OverallRisk)
}

func TestAnalyzeProgression_DeadbandReadsStable(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	analyses := []models.PhotoAnalysis{
		analysisAt(start, 5.0, nil),
		analysisAt(start.AddDate(0, 0, 14), 5.3, nil),
	}

	p := AnalyzeProgression(analyses, "", "")
	require.NotNil(t, p)
	assert.Equal(t, "stable", p.OverallTrend)
	assert.Equal(t, "initial", p.MonitoringPhase)
	assert.Equal(t, "low", p.OverallRisk)
}

func TestAnalyzeProgression_ComparisonFlagsRaiseRisk(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	analyses := []models.PhotoAnalysis{
		analysisAt(start, 4.0, nil),
		analysisAt(start.AddDate(0, 0, 7), 5.5, models.JSONMap{
			"comparison": map[string]any{
				"color_darkening":              true,
				"border_irregularity_increase": true,
			},
		}),
	}

	p := AnalyzeProgression(analyses, "", "")
	require.NotNil(t, p)
	assert.True(t, p.RiskIndicators["color_darkening"])
	assert.True(t, p.RiskIndicators["border_irregularity_increase"])
	assert.True(t, p.RiskIndicators["rapid_growth"])
	assert.Equal(t, "high", p.OverallRisk)
}

func TestAnalyzeProgression_MoleThreshold(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	analyses := []models.PhotoAnalysis{
		analysisAt(start, 5.8, nil),
		analysisAt(start.AddDate(0, 0, 30), 6.4, nil),
	}

	p := AnalyzeProgression(analyses, "", "suspicious mole on shoulder")
	require.NotNil(t, p)
	require.Len(t, p.Recommendations, 1)
	assert.Contains(t, p.Recommendations[0], "dermatology")
}

func TestAnalyzeProgression_SingleAnalysisIsInsufficient(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	p := AnalyzeProgression([]models.PhotoAnalysis{analysisAt(start, 5.0, nil)}, "", "")
	require.NotNil(t, p)
	assert.Equal(t, ProgressionInsufficientData, p.Status)
	assert.Equal(t, 1, p.DataPoints)
	assert.Empty(t, p.OverallTrend)
	assert.Nil(t, p.Projection30Day)

	empty := AnalyzeProgression(nil, "", "")
	require.NotNil(t, empty)
	assert.Equal(t, ProgressionInsufficientData, empty.Status)
	assert.Zero(t, empty.DataPoints)
}

func TestSuggestFollowUpInterval_InsufficientDataUsesDefaults(t *testing.T) {
	p := &Progression{Status: ProgressionInsufficientData, DataPoints: 1}

	days, priority := SuggestFollowUpInterval(p, nil)
	assert.Equal(t, 14, days)
	assert.Equal(t, "routine", priority)
}

func TestSuggestFollowUpInterval_RapidGrowth(t *testing.T) {
	p := &Progression{OverallTrend: "growing", WeeklyRate: 1.25, MonitoringPhase: "active_monitoring"}

	days, priority := SuggestFollowUpInterval(p, nil)
	assert.Equal(t, 2, days)
	assert.Equal(t, "important", priority)
}

func TestSuggestFollowUpInterval_RedFlagsAreUrgent(t *testing.T) {
	latest := &models.PhotoAnalysis{AnalysisData: models.JSONMap{
		"red_flags": []any{"bleeding"},
	}}
	p := &Progression{OverallTrend: "stable", WeeklyRate: 0.5, MonitoringPhase: "ongoing"}

	days, priority := SuggestFollowUpInterval(p, latest)
	assert.Equal(t, 7, days)
	assert.Equal(t, "urgent", priority)
}

func TestSuggestFollowUpInterval_MaintenanceStretches(t *testing.T) {
	p := &Progression{OverallTrend: "stable", WeeklyRate: 0.05, MonitoringPhase: "maintenance"}

	days, priority := SuggestFollowUpInterval(p, nil)
	assert.Equal(t, 30, days)
	assert.Equal(t, "routine", priority)
}

func TestSuggestFollowUpInterval_AveragesModelSuggestion(t *testing.T) {
	latest := &models.PhotoAnalysis{AnalysisData: models.JSONMap{
		"next_monitoring": map[string]any{"optimal_interval_days": 10.0},
	}}
	p := &Progression{OverallTrend: "shrinking", WeeklyRate: 0.5, MonitoringPhase: "ongoing"}

	// improving → 21, averaged with the model's 10 → 15.5 → 16.
	days, priority := SuggestFollowUpInterval(p, latest)
	assert.Equal(t, 16, days)
	assert.Equal(t, "routine", priority)
}
