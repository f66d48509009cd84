// Package followup implements temporally chained re-assessments of a
// primary assessment: question generation, submission analysis, and
// milestone detection.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/store"
)

// Source assessment types a chain can root at.
const (
	SourceQuickScan = "quick_scan"
	SourceDeepDive  = "deep_dive"
)

// confidenceMilestone is the threshold whose crossing emits an event.
const confidenceMilestone = 90.0

// Sentinel errors surfaced to the API layer.
var (
	ErrInvalidAssessmentID = errors.New("assessment_id is not a valid UUID")
	ErrUnknownSourceType   = errors.New("unknown assessment type")
	ErrNoResponses         = errors.New("at least one response is required")
)

// Store is the persistence the engine needs.
type Store interface {
	InsertFollowUp(ctx context.Context, f *models.AssessmentFollowUp) error
	ListFollowUpChain(ctx context.Context, chainID string) ([]models.AssessmentFollowUp, error)
	GetLatestFollowUp(ctx context.Context, chainID string) (*models.AssessmentFollowUp, error)
	GetChainForSource(ctx context.Context, sourceType, sourceID string) (string, error)
	InsertFollowUpEvent(ctx context.Context, e *models.FollowUpEvent) error

	GetQuickScan(ctx context.Context, id string) (*models.QuickScan, error)
	GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error)
}

// Caller is the LLM dependency.
type Caller interface {
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// TrackingReader reports whether the user actively tracks a condition.
// May be nil: question generation then assumes no tracking.
type TrackingReader interface {
	HasActiveTracking(ctx context.Context, userID string) (bool, error)
}

// Engine runs follow-up chains.
type Engine struct {
	store    Store
	caller   Caller
	tracking TrackingReader

	now   func() time.Time
	newID func() string
}

// NewEngine wires the engine. tracking may be nil.
func NewEngine(st Store, caller Caller, tracking TrackingReader) *Engine {
	return &Engine{
		store:    st,
		caller:   caller,
		tracking: tracking,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// assessment is the source-type-independent view of the original.
type assessment struct {
	userID     *string
	condition  string
	confidence float64
	urgency    string
	createdAt  time.Time
	analysis   models.JSONMap
}

func (e *Engine) resolveAssessment(ctx context.Context, sourceType, sourceID string) (*assessment, error) {
	switch sourceType {
	case SourceQuickScan:
		scan, err := e.store.GetQuickScan(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		return &assessment{
			userID:     scan.UserID,
			condition:  scan.AnalysisResult.GetString("primaryCondition"),
			confidence: scan.ConfidenceScore,
			urgency:    scan.UrgencyLevel,
			createdAt:  scan.CreatedAt,
			analysis:   scan.AnalysisResult,
		}, nil
	case SourceDeepDive:
		dive, err := e.store.GetDeepDive(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		a := &assessment{
			userID:    dive.UserID,
			condition: dive.FinalAnalysis.GetString("primaryCondition"),
			createdAt: dive.CreatedAt,
			analysis:  dive.FinalAnalysis,
		}
		if dive.FinalConfidence != nil {
			a.confidence = *dive.FinalConfidence
		}
		a.urgency = dive.FinalAnalysis.GetString("urgency")
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSourceType, sourceType)
}

// QuestionSet is what the client renders for one follow-up round.
type QuestionSet struct {
	ChainID           string         `json:"chain_id"`
	FollowUpNumber    int            `json:"follow_up_number"`
	DaysSinceOriginal int            `json:"days_since_original"`
	DaysSinceLast     int            `json:"days_since_last"`
	BaseQuestions     []BaseQuestion `json:"base_questions"`
	AIQuestions       []string       `json:"ai_questions"`
}

// Questions returns the 5 fixed base questions plus 3 AI-generated ones
// conditioned on the chain so far. The chain id is discovered lazily: a
// source with no follow-ups yet gets a fresh one.
func (e *Engine) Questions(ctx context.Context, assessmentID, assessmentType, userID string) (*QuestionSet, error) {
	if _, err := uuid.Parse(assessmentID); err != nil {
		return nil, ErrInvalidAssessmentID
	}
	original, err := e.resolveAssessment(ctx, assessmentType, assessmentID)
	if err != nil {
		return nil, err
	}

	chainID, err := e.store.GetChainForSource(ctx, assessmentType, assessmentID)
	if err != nil {
		return nil, err
	}
	if chainID == "" {
		chainID = e.newID()
	}

	chain, err := e.store.ListFollowUpChain(ctx, chainID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	daysSinceOriginal := daysBetween(original.createdAt, now)
	daysSinceLast := daysSinceOriginal
	if len(chain) > 0 {
		daysSinceLast = daysBetween(chain[len(chain)-1].CreatedAt, now)
	}

	hasTracking := false
	if e.tracking != nil && userID != "" {
		if tracked, err := e.tracking.HasActiveTracking(ctx, userID); err == nil {
			hasTracking = tracked
		}
	}

	aiQuestions := e.generateQuestions(ctx, original, chain, daysSinceOriginal, daysSinceLast, hasTracking, userID)

	e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventStarted, models.JSONMap{
		"source_type":      assessmentType,
		"source_id":        assessmentID,
		"follow_up_number": len(chain) + 1,
	})

	return &QuestionSet{
		ChainID:           chainID,
		FollowUpNumber:    len(chain) + 1,
		DaysSinceOriginal: daysSinceOriginal,
		DaysSinceLast:     daysSinceLast,
		BaseQuestions:     baseQuestions(),
		AIQuestions:       aiQuestions,
	}, nil
}

// Schedule records that a follow-up round is planned for the chain.
func (e *Engine) Schedule(ctx context.Context, assessmentID, assessmentType, userID string, scheduledFor time.Time) (string, error) {
	if _, err := uuid.Parse(assessmentID); err != nil {
		return "", ErrInvalidAssessmentID
	}
	original, err := e.resolveAssessment(ctx, assessmentType, assessmentID)
	if err != nil {
		return "", err
	}

	chainID, err := e.store.GetChainForSource(ctx, assessmentType, assessmentID)
	if err != nil {
		return "", err
	}
	if chainID == "" {
		chainID = e.newID()
	}
	e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventScheduled, models.JSONMap{
		"source_type":   assessmentType,
		"source_id":     assessmentID,
		"scheduled_for": scheduledFor.UTC().Format(time.RFC3339),
	})
	return chainID, nil
}

// SubmitRequest carries one completed follow-up round.
type SubmitRequest struct {
	AssessmentID   string         `json:"assessment_id"`
	AssessmentType string         `json:"assessment_type"`
	UserID         string         `json:"user_id,omitempty"`
	ChainID        string         `json:"chain_id,omitempty"`
	BaseResponses  models.JSONMap `json:"base_responses"`
	AIResponses    models.JSONMap `json:"ai_responses,omitempty"`
	MedicalVisit   models.JSONMap `json:"medical_visit,omitempty"`
}

// SubmitResult reports the persisted follow-up and its analysis.
type SubmitResult struct {
	FollowUpID       string         `json:"follow_up_id"`
	ChainID          string         `json:"chain_id"`
	FollowUpNumber   int            `json:"follow_up_number"`
	Analysis         models.JSONMap `json:"analysis"`
	ConfidenceChange float64        `json:"confidence_change"`
}

// Submit analyzes one round of responses and appends it to the chain.
// A malformed assessment id is rejected; a malformed chain id is
// silently replaced with a fresh chain.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if _, err := uuid.Parse(req.AssessmentID); err != nil {
		return nil, ErrInvalidAssessmentID
	}
	if len(req.BaseResponses) == 0 && len(req.AIResponses) == 0 {
		return nil, ErrNoResponses
	}

	original, err := e.resolveAssessment(ctx, req.AssessmentType, req.AssessmentID)
	if err != nil {
		return nil, err
	}

	chainID := req.ChainID
	if _, err := uuid.Parse(chainID); err != nil {
		existing, err := e.store.GetChainForSource(ctx, req.AssessmentType, req.AssessmentID)
		if err != nil {
			return nil, err
		}
		chainID = existing
		if chainID == "" {
			chainID = e.newID()
		}
	}

	var previous *models.AssessmentFollowUp
	prev, err := e.store.GetLatestFollowUp(ctx, chainID)
	if err == nil {
		previous = prev
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if req.MedicalVisit.GetString("assessment") != "" {
		req.MedicalVisit["assessment_plain"] = e.translateJargon(ctx, req.MedicalVisit.GetString("assessment"), req.UserID)
	}

	now := e.now().UTC()
	analysis := e.analyze(ctx, original, previous, req, daysBetween(original.createdAt, now))

	newConfidence, _ := analysis.GetFloat("confidence")
	confidenceChange := newConfidence - original.confidence
	analysis.GetMap("assessment_evolution")["confidence_change"] = confidenceChange

	followUpNumber := 1
	var parentID *string
	if previous != nil {
		followUpNumber = previous.FollowUpNumber + 1
		parentID = &previous.ID
	}

	f := &models.AssessmentFollowUp{
		ID:                  e.newID(),
		ChainID:             chainID,
		ParentFollowUpID:    parentID,
		UserID:              original.userID,
		SourceType:          req.AssessmentType,
		SourceID:            req.AssessmentID,
		FollowUpNumber:      followUpNumber,
		DaysSinceOriginal:   daysBetween(original.createdAt, now),
		BaseResponses:       req.BaseResponses,
		AIQuestions:         req.AIResponses,
		AnalysisResult:      analysis,
		PrimaryAssessment:   analysis.GetString("primary_assessment"),
		ConfidenceScore:     newConfidence,
		ConfidenceChange:    confidenceChange,
		AssessmentEvolution: analysis.GetMap("assessment_evolution"),
		CreatedAt:           now,
	}
	if err := e.store.InsertFollowUp(ctx, f); err != nil {
		return nil, err
	}

	e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventCompleted, models.JSONMap{
		"follow_up_id":     f.ID,
		"follow_up_number": followUpNumber,
		"confidence":       newConfidence,
	})
	e.emitMilestones(ctx, chainID, original, previous, f, analysis)

	return &SubmitResult{
		FollowUpID:       f.ID,
		ChainID:          chainID,
		FollowUpNumber:   followUpNumber,
		Analysis:         analysis,
		ConfidenceChange: confidenceChange,
	}, nil
}

// Chain returns every link of the chain rooted at a source assessment.
func (e *Engine) Chain(ctx context.Context, assessmentType, assessmentID string) ([]models.AssessmentFollowUp, error) {
	chainID, err := e.store.GetChainForSource(ctx, assessmentType, assessmentID)
	if err != nil {
		return nil, err
	}
	if chainID == "" {
		return nil, nil
	}
	return e.store.ListFollowUpChain(ctx, chainID)
}

// emitMilestones detects patterns and threshold crossings for one new
// link and emits their events.
func (e *Engine) emitMilestones(ctx context.Context, chainID string, original *assessment, previous *models.AssessmentFollowUp, f *models.AssessmentFollowUp, analysis models.JSONMap) {
	patterns := analysis.GetMap("pattern_insights").GetStrings("discovered_patterns")
	if len(patterns) > 0 {
		e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventPatternDiscovered, models.JSONMap{
			"follow_up_id": f.ID,
			"patterns":     patterns,
		})
	}

	priorConfidence := original.confidence
	priorAssessment := original.condition
	if previous != nil {
		priorConfidence = previous.ConfidenceScore
		if previous.PrimaryAssessment != "" {
			priorAssessment = previous.PrimaryAssessment
		}
	}

	if priorConfidence < confidenceMilestone && f.ConfidenceScore >= confidenceMilestone {
		e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventConfidenceMilestone, models.JSONMap{
			"follow_up_id": f.ID,
			"milestone":    confidenceMilestone,
			"confidence":   f.ConfidenceScore,
		})
	}

	if f.PrimaryAssessment != "" && priorAssessment != "" && f.PrimaryAssessment != priorAssessment {
		e.emitEvent(ctx, chainID, original.userID, models.FollowUpEventDiagnosisChanged, models.JSONMap{
			"follow_up_id": f.ID,
			"from":         priorAssessment,
			"to":           f.PrimaryAssessment,
		})
	}
}

// emitEvent appends to the chain audit trail. Best-effort.
func (e *Engine) emitEvent(ctx context.Context, chainID string, userID *string, eventType string, data models.JSONMap) {
	err := e.store.InsertFollowUpEvent(ctx, &models.FollowUpEvent{
		ChainID:   chainID,
		UserID:    userID,
		EventType: eventType,
		EventData: data,
		Timestamp: e.now().UTC(),
	})
	if err != nil {
		slog.Warn("Follow-up audit write failed", "chain_id", chainID, "event_type", eventType, "error", err)
	}
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from).Hours() / 24
	if d < 0 {
		return 0
	}
	return int(math.Floor(d))
}
