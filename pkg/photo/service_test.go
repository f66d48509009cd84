package photo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

type memStore struct {
	sessions  map[string]*models.PhotoSession
	uploads   map[string]*models.PhotoUpload
	analyses  []models.PhotoAnalysis
	reminders map[string]*models.PhotoReminder
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  map[string]*models.PhotoSession{},
		uploads:   map[string]*models.PhotoUpload{},
		reminders: map[string]*models.PhotoReminder{},
	}
}

func (m *memStore) InsertPhotoSession(_ context.Context, ps *models.PhotoSession) error {
	cp := *ps
	m.sessions[ps.ID] = &cp
	return nil
}

func (m *memStore) GetPhotoSession(_ context.Context, id string) (*models.PhotoSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("photo session: not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) MarkPhotoSessionSensitive(_ context.Context, id string) error {
	m.sessions[id].IsSensitive = true
	return nil
}

func (m *memStore) InsertPhotoUpload(_ context.Context, u *models.PhotoUpload) error {
	cp := *u
	m.uploads[u.ID] = &cp
	return nil
}

func (m *memStore) ListPhotoUploads(_ context.Context, sessionID string) ([]models.PhotoUpload, error) {
	var out []models.PhotoUpload
	for _, u := range m.uploads {
		if u.SessionID == sessionID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *memStore) ListPhotoUploadsByIDs(_ context.Context, ids []string) ([]models.PhotoUpload, error) {
	var out []models.PhotoUpload
	for _, id := range ids {
		if u, ok := m.uploads[id]; ok {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (m *memStore) InsertPhotoAnalysis(_ context.Context, a *models.PhotoAnalysis) error {
	m.analyses = append(m.analyses, *a)
	return nil
}

func (m *memStore) ListPhotoAnalyses(_ context.Context, sessionID string) ([]models.PhotoAnalysis, error) {
	var out []models.PhotoAnalysis
	for _, a := range m.analyses {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPhotoReminder(_ context.Context, r *models.PhotoReminder) error {
	cp := *r
	m.reminders[r.SessionID] = &cp
	return nil
}

type fakeVision struct {
	responses []string
	failFirst int

	calls   int
	prompts []string
	images  [][]string
	models  []string
}

func (f *fakeVision) CallVision(_ context.Context, prompt string, images []string, model string, _ llm.CallOptions) (*llm.CallResult, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, images)
	f.models = append(f.models, model)
	if f.calls <= f.failFirst {
		return nil, fmt.Errorf("model %s unavailable", model)
	}

	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	r := &llm.CallResult{Content: content, Model: model}
	var parsed map[string]any
	if json.Unmarshal([]byte(content), &parsed) == nil {
		r.ParsedContent = parsed
	}
	return r, nil
}

type memObjects struct {
	files map[string][]byte
}

func newMemObjects() *memObjects { return &memObjects{files: map[string][]byte{}} }

func (m *memObjects) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	m.files[key] = data
	return key, nil
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

type fakeTracker struct {
	calls    int
	sourceID string
}

func (f *fakeTracker) SuggestFromAnalysis(_ context.Context, _, sourceID, _ string, _ models.JSONMap) error {
	f.calls++
	f.sourceID = sourceID
	return nil
}

func catJSON(category string, quality float64) string {
	b, _ := json.Marshal(map[string]any{
		"category":      category,
		"confidence":    92,
		"quality_score": quality,
	})
	return string(b)
}

func newTestService(store *memStore, vision *fakeVision, objects *memObjects, tracker SymptomTracker) *Service {
	s := NewService(store, vision, objects, tracker)
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	s.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func seedSession(store *memStore, sensitive bool) string {
	store.sessions["s1"] = &models.PhotoSession{
		ID:            "s1",
		UserID:        "u1",
		ConditionName: "arm rash",
		IsSensitive:   sensitive,
	}
	return "s1"
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestUpload_RoutesByCategory(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	vision := &fakeVision{responses: []string{
		catJSON("medical_normal", 80),
		catJSON("medical_sensitive", 70),
		catJSON("non_medical", 90),
	}}
	objects := newMemObjects()
	svc := newTestService(store, vision, objects, nil)

	res, err := svc.Upload(context.Background(), "s1", "u1", []UploadInput{
		{Filename: "a.jpg", MimeType: "image/jpeg", Data: b64("photo-a")},
		{Filename: "b.jpg", MimeType: "image/jpeg", Data: b64("photo-b")},
		{Filename: "c.jpg", MimeType: "image/jpeg", Data: b64("photo-c")},
	})
	require.NoError(t, err)
	require.Len(t, res.Uploads, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Nil(t, res.RequiresAction)

	normal := res.Uploads[0]
	require.NotNil(t, normal.StorageURL)
	assert.Nil(t, normal.TemporaryData)
	assert.Equal(t, []byte("photo-a"), objects.files[*normal.StorageURL])

	// Sensitive bytes stay inline and never reach the object store.
	sensitive := res.Uploads[1]
	assert.Nil(t, sensitive.StorageURL)
	require.NotNil(t, sensitive.TemporaryData)
	assert.True(t, strings.HasPrefix(*sensitive.TemporaryData, "data:image/jpeg;base64,"))
	assert.Len(t, objects.files, 1)
	assert.True(t, store.sessions["s1"].IsSensitive)
}

func TestUpload_UnclearRequiresAction(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	vision := &fakeVision{responses: []string{
		catJSON("unclear", 20),
		catJSON("medical_normal", 85),
	}}
	svc := newTestService(store, vision, newMemObjects(), nil)

	res, err := svc.Upload(context.Background(), "s1", "u1", []UploadInput{
		{MimeType: "image/jpeg", Data: b64("blurry")},
		{MimeType: "image/jpeg", Data: b64("sharp")},
	})
	require.NoError(t, err)
	assert.Len(t, res.Uploads, 1)
	require.NotNil(t, res.RequiresAction)
	assert.Equal(t, "unclear_modal", res.RequiresAction.Action)
	assert.Equal(t, []int{0}, res.RequiresAction.PhotoIndexes)
}

func TestUpload_InappropriateRejectsBatch(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	vision := &fakeVision{responses: []string{catJSON("inappropriate", 95)}}
	svc := newTestService(store, vision, newMemObjects(), nil)

	_, err := svc.Upload(context.Background(), "s1", "u1", []UploadInput{
		{MimeType: "image/jpeg", Data: b64("bad")},
	})
	assert.ErrorIs(t, err, ErrInappropriatePhoto)
	assert.Empty(t, store.uploads)
}

func TestUpload_EmptyBatch(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeVision{}, newMemObjects(), nil)
	_, err := svc.Upload(context.Background(), "s1", "u1", nil)
	assert.ErrorIs(t, err, ErrNoPhotos)
}

func analysisJSON() string {
	b, _ := json.Marshal(map[string]any{
		"description":       "Erythematous patch, well demarcated",
		"observations":      []string{"mild swelling"},
		"confidence":        82,
		"trackable_metrics": []any{map[string]any{"metric_name": "redness"}},
		"key_measurements":  map[string]any{"size_estimate_mm": 12.0},
	})
	return string(b)
}

func seedUpload(store *memStore, objects *memObjects, id string, at time.Time) {
	key := "photos/s1/" + id + ".jpg"
	objects.files[key] = []byte("bytes-" + id)
	store.uploads[id] = &models.PhotoUpload{
		ID:           id,
		SessionID:    "s1",
		Category:     models.CategoryMedicalNormal,
		StorageURL:   &key,
		FileMetadata: models.JSONMap{"mime_type": "image/jpeg"},
		UploadedAt:   at,
	}
}

func TestAnalyze_PersistsAndDefaults(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	objects := newMemObjects()
	seedUpload(store, objects, "p1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	vision := &fakeVision{responses: []string{analysisJSON()}}
	tracker := &fakeTracker{}
	svc := newTestService(store, vision, objects, tracker)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SessionID: "s1",
		PhotoIDs:  []string{"p1"},
		Context:   "Is this getting worse?",
	})
	require.NoError(t, err)

	assert.InDelta(t, 82, a.ConfidenceScore, 0.01)
	assert.Nil(t, a.ExpiresAt)
	assert.False(t, a.IsSensitive)

	// Mandatory fields defaulted after extraction.
	assert.NotNil(t, a.AnalysisData["red_flags"])
	assert.NotNil(t, a.AnalysisData["recommendations"])
	assert.Equal(t, "low", a.AnalysisData.GetString("urgency_level"))
	assert.Equal(t, false, a.AnalysisData["question_detected"])

	// The user description and question detection reach the prompt.
	assert.Contains(t, vision.prompts[0], "Is this getting worse?")
	assert.Contains(t, vision.prompts[0], "question_detected")
	assert.NotContains(t, vision.prompts[0], comparisonSeparator)

	assert.Equal(t, 1, tracker.calls)
	assert.Equal(t, a.ID, tracker.sourceID)
}

func TestAnalyze_ComparisonOrdersNewFirst(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	objects := newMemObjects()
	seedUpload(store, objects, "old1", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	seedUpload(store, objects, "new1", time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC))
	vision := &fakeVision{responses: []string{analysisJSON()}}
	svc := newTestService(store, vision, objects, nil)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SessionID:          "s1",
		PhotoIDs:           []string{"new1"},
		ComparisonPhotoIDs: []string{"old1"},
	})
	require.NoError(t, err)

	assert.Contains(t, vision.prompts[0], comparisonSeparator)
	require.Len(t, vision.images[0], 2)
	assert.Contains(t, vision.images[0][0], b64("bytes-new1"))
	assert.Contains(t, vision.images[0][1], b64("bytes-old1"))
}

func TestAnalyze_TemporaryCarriesTTL(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	objects := newMemObjects()
	seedUpload(store, objects, "p1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	vision := &fakeVision{responses: []string{analysisJSON()}}
	tracker := &fakeTracker{}
	svc := newTestService(store, vision, objects, tracker)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SessionID:         "s1",
		PhotoIDs:          []string{"p1"},
		TemporaryAnalysis: true,
	})
	require.NoError(t, err)
	require.NotNil(t, a.ExpiresAt)
	assert.Equal(t, a.CreatedAt.Add(24*time.Hour), *a.ExpiresAt)

	// Temporary analyses never materialize tracking suggestions.
	assert.Equal(t, 0, tracker.calls)
}

func TestAnalyze_SensitiveUploadForcesTTL(t *testing.T) {
	store := newMemStore()
	seedSession(store, true)
	inline := dataURL("image/jpeg", b64("sensitive-bytes"))
	store.uploads["p1"] = &models.PhotoUpload{
		ID:            "p1",
		SessionID:     "s1",
		Category:      models.CategoryMedicalSensitive,
		TemporaryData: &inline,
		UploadedAt:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	vision := &fakeVision{responses: []string{analysisJSON()}}
	svc := newTestService(store, vision, newMemObjects(), nil)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", PhotoIDs: []string{"p1"}})
	require.NoError(t, err)
	assert.True(t, a.IsSensitive)
	require.NotNil(t, a.ExpiresAt)
	assert.Equal(t, inline, vision.images[0][0])
}

func TestAnalyze_VisionChainAdvances(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	objects := newMemObjects()
	seedUpload(store, objects, "p1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	vision := &fakeVision{responses: []string{analysisJSON()}, failFirst: 2}
	svc := newTestService(store, vision, objects, nil)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", PhotoIDs: []string{"p1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, vision.calls)
	assert.Equal(t, svc.visionModels[2], a.ModelUsed)
}

func TestAnalyze_NoAnalyzablePhotos(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	svc := newTestService(store, &fakeVision{}, newMemObjects(), nil)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{SessionID: "s1", PhotoIDs: []string{"missing"}})
	assert.ErrorIs(t, err, ErrNoAnalyzablePhotos)
}

func TestConfigureReminder_ExplicitInterval(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	svc := newTestService(store, &fakeVision{}, newMemObjects(), nil)

	r, err := svc.ConfigureReminder(context.Background(), ReminderRequest{
		SessionID:    "s1",
		AnalysisID:   "a1",
		Enabled:      true,
		IntervalDays: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, r.IntervalDays)
	assert.Equal(t, "email", r.ReminderMethod)
	assert.Equal(t, svc.now().Add(10*24*time.Hour), r.NextReminderDate)
	assert.NotNil(t, store.reminders["s1"])
}

func TestConfigureReminder_DerivedInterval(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store.analyses = []models.PhotoAnalysis{
		analysisAt(start, 4.0, nil),
		analysisAt(start.AddDate(0, 0, 7), 6.0, nil),
	}
	store.analyses[0].SessionID = "s1"
	store.analyses[1].SessionID = "s1"
	svc := newTestService(store, &fakeVision{}, newMemObjects(), nil)

	r, err := svc.ConfigureReminder(context.Background(), ReminderRequest{SessionID: "s1", Enabled: true})
	require.NoError(t, err)
	assert.Greater(t, r.IntervalDays, 0)
	assert.Contains(t, r.AIReasoning, "progression")
}

func TestCompareWithHistory_BatchesAndSuggests(t *testing.T) {
	store := newMemStore()
	seedSession(store, false)
	objects := newMemObjects()
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedUpload(store, objects, fmt.Sprintf("h%d", i), start.AddDate(0, 0, i))
	}
	seedUpload(store, objects, "new1", start.AddDate(0, 0, 30))
	vision := &fakeVision{responses: []string{analysisJSON()}}
	svc := newTestService(store, vision, objects, nil)

	res, err := svc.CompareWithHistory(context.Background(), "s1", []string{"new1"}, "does it look better?")
	require.NoError(t, err)
	assert.Equal(t, 4, res.SelectionInfo.TotalPhotos)
	assert.Equal(t, 4, res.SelectionInfo.PhotosShown)
	assert.Greater(t, res.NextInterval, 0)
	assert.NotEmpty(t, res.Priority)
	assert.Contains(t, vision.prompts[0], comparisonSeparator)
	require.Len(t, vision.images[0], 5)
	assert.Contains(t, vision.images[0][0], b64("bytes-new1"))
}
