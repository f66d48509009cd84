package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/store"
)

type memStore struct {
	analyses map[string]*models.ReportAnalysis
	reports  map[string]*models.Report
	shares   map[string]*models.ReportShare

	scans       []models.QuickScan
	dives       []models.DeepDiveSession
	photoByID   map[string][]models.PhotoAnalysis
	photoByUser []models.PhotoAnalysis
	sessions    []models.PhotoSession
	configs     []models.TrackingConfiguration
	points      map[string][]models.TrackingDataPoint
	messages    []models.Message

	rangeCalls int
	idCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		analyses:  map[string]*models.ReportAnalysis{},
		reports:   map[string]*models.Report{},
		shares:    map[string]*models.ReportShare{},
		photoByID: map[string][]models.PhotoAnalysis{},
		points:    map[string][]models.TrackingDataPoint{},
	}
}

func (m *memStore) InsertReportAnalysis(_ context.Context, a *models.ReportAnalysis) error {
	cp := *a
	m.analyses[a.ID] = &cp
	return nil
}

func (m *memStore) GetReportAnalysis(_ context.Context, id string) (*models.ReportAnalysis, error) {
	a, ok := m.analyses[id]
	if !ok {
		return nil, fmt.Errorf("report analysis: %w", store.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) InsertReport(_ context.Context, r *models.Report) error {
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) GetReport(_ context.Context, id string) (*models.Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report: %w", store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListReports(_ context.Context, userID string) ([]models.Report, error) {
	var out []models.Report
	for _, r := range m.reports {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) SetReportDoctorNotes(_ context.Context, id string, notes models.JSONMap) error {
	r := m.reports[id]
	r.DoctorNotes = notes
	r.DoctorReviewed = true
	return nil
}

func (m *memStore) AddReportRating(_ context.Context, id string, rating float64) error {
	r := m.reports[id]
	r.RatingSum += rating
	r.RatingCount++
	return nil
}

func (m *memStore) InsertReportShare(_ context.Context, sh *models.ReportShare) error {
	cp := *sh
	m.shares[sh.Token] = &cp
	return nil
}

func (m *memStore) GetReportShareByToken(_ context.Context, token string, now time.Time) (*models.ReportShare, error) {
	sh, ok := m.shares[token]
	if !ok || !sh.ExpiresAt.After(now) {
		return nil, fmt.Errorf("report share: %w", store.ErrNotFound)
	}
	cp := *sh
	return &cp, nil
}

func (m *memStore) ListQuickScansByIDs(_ context.Context, _ string, ids []string) ([]models.QuickScan, error) {
	m.idCalls++
	var out []models.QuickScan
	for _, s := range m.scans {
		for _, id := range ids {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m *memStore) ListQuickScansInRange(_ context.Context, _ string, _, _ time.Time) ([]models.QuickScan, error) {
	m.rangeCalls++
	return m.scans, nil
}

func (m *memStore) ListDeepDivesByIDs(_ context.Context, _ string, ids []string) ([]models.DeepDiveSession, error) {
	m.idCalls++
	var out []models.DeepDiveSession
	for _, d := range m.dives {
		for _, id := range ids {
			if d.ID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (m *memStore) ListDeepDivesInRange(_ context.Context, _ string, _, _ time.Time) ([]models.DeepDiveSession, error) {
	m.rangeCalls++
	return m.dives, nil
}

func (m *memStore) ListPhotoSessions(_ context.Context, _ string) ([]models.PhotoSession, error) {
	return m.sessions, nil
}

func (m *memStore) ListPhotoAnalyses(_ context.Context, sessionID string) ([]models.PhotoAnalysis, error) {
	m.idCalls++
	return m.photoByID[sessionID], nil
}

func (m *memStore) ListPhotoAnalysesForUser(_ context.Context, _ string, _, _ time.Time) ([]models.PhotoAnalysis, error) {
	m.rangeCalls++
	return m.photoByUser, nil
}

func (m *memStore) ListTrackingConfigurations(_ context.Context, _ string) ([]models.TrackingConfiguration, error) {
	return m.configs, nil
}

func (m *memStore) ListTrackingDataPoints(_ context.Context, configurationID string, _ time.Time) ([]models.TrackingDataPoint, error) {
	return m.points[configurationID], nil
}

func (m *memStore) ListUserMessagesInRange(_ context.Context, _ string, _, _ time.Time) ([]models.Message, error) {
	return m.messages, nil
}

type fakeCaller struct {
	response string
	model    string
	err      error
	prompts  []string
}

func (f *fakeCaller) CallWithFallback(_ context.Context, msgs []models.ChatMessage, _ llm.CallOptions) (*llm.CallResult, error) {
	f.prompts = append(f.prompts, msgs[0].Content)
	if f.err != nil {
		return nil, f.err
	}
	model := f.model
	if model == "" {
		model = "test/reasoner"
	}
	r := &llm.CallResult{Content: f.response, Model: model}
	var parsed map[string]any
	if json.Unmarshal([]byte(f.response), &parsed) == nil {
		r.ParsedContent = parsed
	}
	return r, nil
}

func newTestEngine(st *memStore, caller Caller) *Engine {
	e := NewEngine(st, caller, "https://app.example.com/")
	n := 0
	e.newID = func() string { n++; return fmt.Sprintf("r-%d", n) }
	e.now = func() time.Time { return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func reportJSON(summary string, confidence float64) string {
	b, _ := json.Marshal(map[string]any{
		"executive_summary": map[string]any{
			"one_page_summary": summary,
			"key_findings":     []string{"finding"},
		},
		"clinical_summary": map[string]any{"active_concerns": []string{"knee pain"}},
		"recommendations":  []string{"rest"},
		"confidence":       confidence,
	})
	return string(b)
}

func TestAnalyze_Classification(t *testing.T) {
	cases := []struct {
		name string
		req  AnalyzeRequest
		want string
	}{
		{"urgent marker", AnalyzeRequest{UserID: "u1", SymptomFocus: "crushing chest pain"}, TypeUrgentTriage},
		{"annual purpose", AnalyzeRequest{UserID: "u1", Purpose: "annual checkup prep"}, TypeAnnualSummary},
		{"photo sessions", AnalyzeRequest{UserID: "u1", PhotoSessionIDs: []string{"a", "b", "c"}}, TypePhotoProgression},
		{"symptom focus", AnalyzeRequest{UserID: "u1", SymptomFocus: "recurring headaches"}, TypeSymptomTimeline},
		{"specialist audience", AnalyzeRequest{UserID: "u1", TargetAudience: "Specialist"}, TypeSpecialist},
		{"default", AnalyzeRequest{UserID: "u1"}, TypeComprehensive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore()
			e := newTestEngine(st, nil)
			res, err := e.Analyze(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.RecommendedType)
			assert.Equal(t, typeEndpoints[tc.want], res.Endpoint)
			require.Contains(t, st.analyses, res.AnalysisID)
			assert.Equal(t, tc.want, st.analyses[res.AnalysisID].RecommendedType)
		})
	}
}

func TestAnalyze_DefaultTimeRange(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(st, nil)

	res, err := e.Analyze(context.Background(), AnalyzeRequest{UserID: "u1", Purpose: "annual review"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15T12:00:00Z", res.Config.GetString("time_range_start"))
	assert.Equal(t, "2026-06-15T12:00:00Z", res.Config.GetString("time_range_end"))
}

func TestGather_SelectedModeNeverLoadsAll(t *testing.T) {
	st := newMemStore()
	st.scans = []models.QuickScan{{ID: "qs1"}, {ID: "qs2"}}
	e := newTestEngine(st, nil)

	a := &models.ReportAnalysis{
		UserID:       "u1",
		QuickScanIDs: models.StringSlice{"qs1"},
		DeepDiveIDs:  models.StringSlice{},
	}
	b, err := e.gather(context.Background(), a, time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, b.QuickScans, 1)
	assert.Equal(t, "qs1", b.QuickScans[0].ID)
	assert.Empty(t, b.DeepDives)
	assert.Zero(t, st.rangeCalls)
}

func TestGather_ComprehensiveUsesRange(t *testing.T) {
	st := newMemStore()
	st.scans = []models.QuickScan{{ID: "qs1"}}
	st.configs = []models.TrackingConfiguration{{ID: "c1", MetricName: "Pain"}}
	st.points["c1"] = []models.TrackingDataPoint{{Value: 4, RecordedAt: time.Now()}}
	e := newTestEngine(st, nil)

	b, err := e.gather(context.Background(), &models.ReportAnalysis{UserID: "u1"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, b.QuickScans, 1)
	require.Len(t, b.TrackingSeries, 1)
	assert.Equal(t, "Pain", b.TrackingSeries[0].Config.MetricName)
	assert.Equal(t, 3, st.rangeCalls)
}

func TestGenerate_Comprehensive(t *testing.T) {
	st := newMemStore()
	st.scans = []models.QuickScan{{
		ID: "qs1", UserID: ptr("u1"),
		AnalysisResult:  models.JSONMap{"primaryCondition": "Patellar tendinitis"},
		ConfidenceScore: 80, UrgencyLevel: "low",
		BodyParts: models.StringSlice{"knee"},
		CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	caller := &fakeCaller{response: reportJSON("Knee overuse injury, improving.", 82)}
	e := newTestEngine(st, caller)

	res, err := e.Generate(context.Background(), TypeComprehensive, GenerateRequest{UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, TypeComprehensive, res.ReportType)
	assert.Contains(t, caller.prompts[0], "Patellar tendinitis")
	assert.Contains(t, caller.prompts[0], "comprehensive medical report")

	r := st.reports[res.ReportID]
	require.NotNil(t, r)
	assert.Equal(t, "Knee overuse injury, improving.", r.ExecutiveSummary)
	assert.Equal(t, 82.0, r.ConfidenceScore)
	assert.Equal(t, "test/reasoner", r.ModelUsed)
	require.NotNil(t, r.AnalysisID)
	assert.Contains(t, st.analyses, *r.AnalysisID)
}

func TestGenerate_SpecialistCreatesAnalysisOnDemand(t *testing.T) {
	st := newMemStore()
	caller := &fakeCaller{response: reportJSON("Cardiac workup summary.", 75)}
	e := newTestEngine(st, caller)

	res, err := e.Generate(context.Background(), "", GenerateRequest{
		AnalysisID:   "pre-assigned",
		UserID:       "u1",
		Specialty:    "cardiology",
		QuickScanIDs: []string{},
	})
	require.NoError(t, err)

	assert.Equal(t, TypeSpecialist, res.ReportType)
	assert.Equal(t, "cardiology", res.Specialty)
	require.Contains(t, st.analyses, "pre-assigned")
	assert.Contains(t, caller.prompts[0], "cardiology")
	assert.Contains(t, caller.prompts[0], "CHA2DS2-VASc")

	r := st.reports[res.ReportID]
	require.NotNil(t, r.Specialty)
	assert.Equal(t, "cardiology", *r.Specialty)
	assert.NotNil(t, res.ReportData.GetMap("clinical_scales"))
}

func TestGenerate_UnknownSpecialty(t *testing.T) {
	e := newTestEngine(newMemStore(), &fakeCaller{})
	_, err := e.Generate(context.Background(), "", GenerateRequest{UserID: "u1", Specialty: "astrology"})
	assert.ErrorIs(t, err, ErrUnknownSpecialty)
}

func TestGenerate_ShapeDefaultsOnBadModelOutput(t *testing.T) {
	st := newMemStore()
	caller := &fakeCaller{response: "not json"}
	e := newTestEngine(st, caller)

	res, err := e.Generate(context.Background(), Type30Day, GenerateRequest{UserID: "u1"})
	require.NoError(t, err)

	data := res.ReportData
	assert.Equal(t, "No health data was recorded in the reporting window.",
		data.GetMap("executive_summary").GetString("one_page_summary"))
	assert.NotNil(t, data.GetSlice("recommendations"))
	assert.Equal(t, Type30Day, data.GetString("report_type"))
}

func TestDoctorNotes(t *testing.T) {
	st := newMemStore()
	st.reports["r1"] = &models.Report{ID: "r1", UserID: "u1"}
	e := newTestEngine(st, nil)

	err := e.AddDoctorNotes(context.Background(), "r1", models.JSONMap{"note": "agree with assessment"})
	require.NoError(t, err)
	assert.True(t, st.reports["r1"].DoctorReviewed)
	assert.Equal(t, "agree with assessment", st.reports["r1"].DoctorNotes.GetString("note"))
	assert.NotEmpty(t, st.reports["r1"].DoctorNotes.GetString("reviewed_at"))

	err = e.AddDoctorNotes(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestShareAndResolve(t *testing.T) {
	st := newMemStore()
	st.reports["r1"] = &models.Report{ID: "r1", UserID: "u1"}
	e := newTestEngine(st, nil)

	sh, err := e.Share(context.Background(), "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/report/shared/"+sh.Token, sh.URL)
	assert.Equal(t, time.Date(2026, 6, 22, 12, 0, 0, 0, time.UTC), sh.ExpiresAt)

	r, err := e.ResolveShare(context.Background(), sh.Token)
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)

	_, err = e.ResolveShare(context.Background(), "bogus")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRate(t *testing.T) {
	st := newMemStore()
	st.reports["r1"] = &models.Report{ID: "r1", UserID: "u1"}
	e := newTestEngine(st, nil)

	_, err := e.Rate(context.Background(), "r1", 6)
	assert.ErrorIs(t, err, ErrInvalidRating)

	avg, err := e.Rate(context.Background(), "r1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, avg)

	avg, err = e.Rate(context.Background(), "r1", 5)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, avg, 0.001)
}

func TestSpecialtyTriage_FallsBackToPrimaryCare(t *testing.T) {
	st := newMemStore()
	resp, _ := json.Marshal(map[string]any{"specialty": "wizardry", "reasoning": "?"})
	caller := &fakeCaller{response: string(resp)}
	e := newTestEngine(st, caller)

	res, err := e.SpecialtyTriage(context.Background(), "u1", "fatigue")
	require.NoError(t, err)
	assert.Equal(t, "primary_care", res.Specialty)
	assert.Equal(t, models.UrgencyLow, res.UrgencyLevel)
	assert.Contains(t, caller.prompts[0], "fatigue")
	assert.Contains(t, caller.prompts[0], "dermatology")
}

func TestGetReport_Ownership(t *testing.T) {
	st := newMemStore()
	st.reports["r1"] = &models.Report{ID: "r1", UserID: "u1"}
	e := newTestEngine(st, nil)

	_, err := e.GetReport(context.Background(), "r1", "intruder")
	assert.ErrorIs(t, err, ErrNotOwner)

	r, err := e.GetReport(context.Background(), "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
}

func ptr(s string) *string { return &s }
