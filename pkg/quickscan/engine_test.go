package quickscan

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

type memStore struct {
	scans map[string]*models.QuickScan
}

func newMemStore() *memStore { return &memStore{scans: map[string]*models.QuickScan{}} }

func (m *memStore) InsertQuickScan(_ context.Context, q *models.QuickScan) error {
	cp := *q
	m.scans[q.ID] = &cp
	return nil
}

func (m *memStore) GetQuickScan(_ context.Context, id string) (*models.QuickScan, error) {
	s, ok := m.scans[id]
	if !ok {
		return nil, fmt.Errorf("quick scan: not found")
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) SetQuickScanEnhanced(_ context.Context, id string, data models.JSONMap) error {
	m.scans[id].EnhancedAnalysis = data
	return nil
}

func (m *memStore) SetQuickScanUltra(_ context.Context, id string, data models.JSONMap) error {
	m.scans[id].UltraAnalysis = data
	return nil
}

func (m *memStore) SetQuickScanFollowUps(_ context.Context, id string, qs models.StringSlice) error {
	m.scans[id].FollowUpQuestions = qs
	return nil
}

type fakeCaller struct {
	content string
	err     error
	prompts []string
	models  []string
}

func (f *fakeCaller) result() (*llm.CallResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := &llm.CallResult{Content: f.content, Model: "test/model"}
	var parsed map[string]any
	if json.Unmarshal([]byte(f.content), &parsed) == nil {
		r.ParsedContent = parsed
	}
	return r, nil
}

func (f *fakeCaller) Call(_ context.Context, msgs []models.ChatMessage, model string, _ llm.CallOptions) (*llm.CallResult, error) {
	f.prompts = append(f.prompts, msgs[0].Content)
	f.models = append(f.models, model)
	return f.result()
}

func (f *fakeCaller) CallWithFallback(_ context.Context, msgs []models.ChatMessage, _ llm.CallOptions) (*llm.CallResult, error) {
	f.prompts = append(f.prompts, msgs[0].Content)
	f.models = append(f.models, "")
	return f.result()
}

type fakeContexts struct{ context string }

func (f *fakeContexts) AggregateUserContext(context.Context, string, string) string {
	return f.context
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

func scanJSON() string {
	b, _ := json.Marshal(map[string]any{
		"primaryCondition": "Tension headache",
		"likelihood":       "Likely",
		"symptoms":         []string{"pressure around temples"},
		"recommendations":  []string{"hydrate", "rest", "limit screen time", "consider OTC analgesics"},
		"urgency":          "low",
		"confidence":       74,
	})
	return string(b)
}

func TestScan_PersistsAndDerivesFields(t *testing.T) {
	store := newMemStore()
	caller := &fakeCaller{content: scanJSON()}
	tracker := &fakeTracker{}
	e := NewEngine(store, caller, &fakeContexts{context: "migraine history since 2022"}, tracker)

	res, err := e.Scan(context.Background(), []string{"head"}, map[string]any{"duration": "2 days"}, "u1", "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, res.ScanID)
	assert.InDelta(t, 74, res.Confidence, 0.01)
	assert.Equal(t, "low", res.Urgency)
	assert.Contains(t, res.Analysis.GetString("what_this_means"), "Tension headache")
	assert.Len(t, res.Analysis.GetSlice("immediate_actions"), 3)

	// History reaches the prompt; scans with symptoms feed tracking.
	assert.Contains(t, caller.prompts[0], "migraine history since 2022")
	assert.Equal(t, 1, tracker.calls)
	assert.Equal(t, res.ScanID, tracker.sourceID)

	stored := store.scans[res.ScanID]
	require.NotNil(t, stored)
	assert.False(t, stored.IsMultiPart)
	assert.Equal(t, "u1", *stored.UserID)
}

func TestScan_MultiPart(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, &fakeCaller{content: scanJSON()}, nil, nil)

	res, err := e.Scan(context.Background(), []string{"head", "neck"}, nil, "", "neck pain radiates upward", "")
	require.NoError(t, err)
	assert.True(t, store.scans[res.ScanID].IsMultiPart)
	assert.Nil(t, store.scans[res.ScanID].UserID)
}

func TestScan_Guards(t *testing.T) {
	e := NewEngine(newMemStore(), &fakeCaller{content: scanJSON()}, nil, nil)

	_, err := e.Scan(context.Background(), nil, nil, "", "", "")
	assert.ErrorIs(t, err, ErrNoBodyParts)

	e = NewEngine(newMemStore(), &fakeCaller{content: "not json at all"}, nil, nil)
	_, err = e.Scan(context.Background(), []string{"head"}, nil, "", "", "")
	assert.ErrorContains(t, err, "no structured analysis")
}

func seedScan(store *memStore) string {
	scan := &models.QuickScan{
		ID:              "scan-1",
		BodyParts:       models.StringSlice{"head"},
		AnalysisResult:  models.JSONMap{"primaryCondition": "Tension headache"},
		ConfidenceScore: 74,
		UrgencyLevel:    "low",
	}
	store.scans[scan.ID] = scan
	return scan.ID
}

func TestThinkHarder_MergedUnderTierKey(t *testing.T) {
	store := newMemStore()
	id := seedScan(store)
	caller := &fakeCaller{content: `{"primaryCondition": "Migraine without aura", "confidence": 86}`}
	e := NewEngine(store, caller, nil, nil)

	out, err := e.ThinkHarder(context.Background(), id, "openai/o1")
	require.NoError(t, err)
	conf, _ := out.GetFloat("enhanced_confidence")
	assert.InDelta(t, 86, conf, 0.01)
	improvement, _ := out.GetFloat("confidence_improvement")
	assert.InDelta(t, 12, improvement, 0.01)
	assert.Equal(t, []string{"openai/o1"}, caller.models)

	stored := store.scans[id]
	assert.NotNil(t, stored.EnhancedAnalysis["think_harder"])
	// The original analysis is untouched.
	assert.Equal(t, "Tension headache", stored.AnalysisResult.GetString("primaryCondition"))
}

func TestO4MiniAndThinkHarder_Coexist(t *testing.T) {
	store := newMemStore()
	id := seedScan(store)
	caller := &fakeCaller{content: `{"primaryCondition": "Cluster headache", "confidence": 70}`}
	e := NewEngine(store, caller, nil, nil)

	_, err := e.ThinkHarder(context.Background(), id, "")
	require.NoError(t, err)
	_, err = e.O4Mini(context.Background(), id)
	require.NoError(t, err)

	stored := store.scans[id]
	assert.NotNil(t, stored.EnhancedAnalysis["think_harder"])
	assert.NotNil(t, stored.EnhancedAnalysis["o4_mini"])
}

func TestUltraThink_OwnColumn(t *testing.T) {
	store := newMemStore()
	id := seedScan(store)
	e := NewEngine(store, &fakeCaller{content: `{"primaryCondition": "Migraine", "confidence": 90}`}, nil, nil)

	out, err := e.UltraThink(context.Background(), id, "x-ai/grok-3")
	require.NoError(t, err)
	conf, _ := out.GetFloat("ultra_confidence")
	assert.InDelta(t, 90, conf, 0.01)
	assert.NotNil(t, store.scans[id].UltraAnalysis)
	assert.Nil(t, store.scans[id].EnhancedAnalysis)
}

func TestAskMore_StoresQuestions(t *testing.T) {
	store := newMemStore()
	id := seedScan(store)
	e := NewEngine(store, &fakeCaller{content: `{"questions": ["How long do episodes last?", "Any visual changes?"]}`}, nil, nil)

	qs, err := e.AskMore(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
	assert.Equal(t, models.StringSlice(qs), store.scans[id].FollowUpQuestions)
}

func TestAskMore_FallsBackToDefaults(t *testing.T) {
	store := newMemStore()
	id := seedScan(store)
	e := NewEngine(store, &fakeCaller{content: "no structure here"}, nil, nil)

	qs, err := e.AskMore(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Contains(t, qs[0], "your head")
}
