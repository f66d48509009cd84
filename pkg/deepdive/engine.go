// Package deepdive implements the bounded-question diagnostic dialogue:
// a state machine that interviews the user, tracks confidence, and
// produces a structured final assessment.
package deepdive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// Dialogue bounds and confidence targets.
const (
	minQuestions               = 3
	idealQuestions             = 4
	maxQuestions               = 7
	targetConfidence           = 85.0
	minConfidenceForCompletion = 85.0
	askMoreLimit               = 5
	maxTotalWithAskMore        = 11
	askMoreTargetConfidence    = 95.0
)

// Engine errors surfaced to the HTTP layer.
var (
	ErrNoBodyParts      = errors.New("at least one body part is required")
	ErrEmptyAnswer      = errors.New("answer must not be empty")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNotAnalyzed      = errors.New("session has no analysis yet")
	ErrAskMoreClosed    = errors.New("ask-more is not available for this session")
	ErrQuestionLimit    = errors.New("question limit reached")
)

// Store is the persistence the engine needs.
type Store interface {
	InsertDeepDive(ctx context.Context, d *models.DeepDiveSession) error
	GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error)
	UpdateDeepDive(ctx context.Context, d *models.DeepDiveSession) error
}

// Caller is the LLM dependency.
type Caller interface {
	Call(ctx context.Context, messages []models.ChatMessage, model string, opts llm.CallOptions) (*llm.CallResult, error)
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// Engine drives deep-dive sessions.
type Engine struct {
	store  Store
	caller Caller

	now     func() time.Time
	newID   func() string
	randInt func(lo, hi int) int
}

// NewEngine wires the engine.
func NewEngine(store Store, caller Caller) *Engine {
	return &Engine{
		store:  store,
		caller: caller,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		randInt: func(lo, hi int) int {
			return lo + rand.Intn(hi-lo+1)
		},
	}
}

// StartResult is the response of Start.
type StartResult struct {
	SessionID      string `json:"session_id"`
	Question       string `json:"question"`
	QuestionNumber int    `json:"question_number"`
}

// Start opens a session and asks the first question.
func (e *Engine) Start(ctx context.Context, bodyParts []string, formData map[string]any, userID, preferredModel string) (*StartResult, error) {
	if len(bodyParts) == 0 {
		return nil, ErrNoBodyParts
	}

	prompt := startPrompt(bodyParts, formData)
	result, err := e.call(ctx, prompt, preferredModel, userID, llm.EndpointDeepDive)
	if err != nil {
		return nil, fmt.Errorf("generating first question: %w", err)
	}

	question := extractQuestion(result)
	if !validQuestion(question) {
		question = firstQuestionFallback(bodyParts)
	}

	session := &models.DeepDiveSession{
		ID:           e.newID(),
		UserID:       optional(userID),
		BodyParts:    bodyParts,
		FormData:     formData,
		ModelUsed:    result.Model,
		Questions:    models.QuestionList{},
		CurrentStep:  1,
		LastQuestion: question,
		Status:       models.DeepDiveActive,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.InsertDeepDive(ctx, session); err != nil {
		return nil, err
	}
	return &StartResult{SessionID: session.ID, Question: question, QuestionNumber: 1}, nil
}

// ContinueResult is the response of Continue: either the next question
// or the ready-for-analysis signal.
type ContinueResult struct {
	Question            *string `json:"question"`
	QuestionNumber      int     `json:"question_number,omitempty"`
	IsFinalQuestion     bool    `json:"is_final_question,omitempty"`
	CurrentConfidence   float64 `json:"current_confidence"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	QuestionsRemaining  int     `json:"questions_remaining,omitempty"`
	ReadyForAnalysis    bool    `json:"ready_for_analysis,omitempty"`
	QuestionsCompleted  int     `json:"questions_completed,omitempty"`
}

// Continue records the answer and either asks the next question or
// declares the session ready for analysis.
func (e *Engine) Continue(ctx context.Context, sessionID, answer string, questionNumber int, fallbackModel string) (*ContinueResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, ErrEmptyAnswer
	}
	session, err := e.store.GetDeepDive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.DeepDiveActive {
		return nil, ErrSessionNotActive
	}

	if questionNumber <= 0 {
		questionNumber = len(session.Questions) + 1
	}
	session.Questions = append(session.Questions, models.QuestionEntry{
		QuestionNumber: questionNumber,
		Question:       session.LastQuestion,
		Answer:         answer,
		Timestamp:      e.now().UTC(),
	})
	count := len(session.Questions)

	userID := stringOr(session.UserID)
	result, err := e.call(ctx, continuePrompt(viewOf(session, false)), fallbackModel, userID, llm.EndpointDeepDive)
	if err != nil {
		return nil, fmt.Errorf("generating next question: %w", err)
	}

	parsed := models.JSONMap(result.ParsedContent)
	llmConfidence, _ := parsed.GetFloat("current_confidence")
	confidence := e.adjustConfidence(llmConfidence, count)

	needAnother := true
	if v, ok := parsed["need_another_question"].(bool); ok {
		needAnother = v
	}
	shouldComplete := confidence >= targetConfidence ||
		count >= maxQuestions ||
		(count >= 5 && confidence >= minConfidenceForCompletion)

	keepGoing := count < minQuestions ||
		(count < maxQuestions && !shouldComplete && needAnother)

	session.InternalState = mergeState(session.InternalState, models.JSONMap{
		"last_llm_confidence": llmConfidence,
		"last_confidence":     confidence,
		"internal_analysis":   parsed.GetMap("internal_analysis"),
	})

	if keepGoing {
		next := strings.TrimSpace(parsed.GetString("question"))
		if !validQuestion(next) {
			next = contextualFollowUp(count)
		}
		if isDuplicate(next, askedQuestions(session)) {
			if count < 3 {
				next = contextualFollowUp(count)
			} else {
				return e.markReady(ctx, session, confidence)
			}
		}

		session.LastQuestion = next
		session.CurrentStep = count + 1
		if err := e.store.UpdateDeepDive(ctx, session); err != nil {
			return nil, err
		}
		return &ContinueResult{
			Question:            &next,
			QuestionNumber:      count + 1,
			IsFinalQuestion:     count+1 >= maxQuestions,
			CurrentConfidence:   confidence,
			ConfidenceThreshold: targetConfidence,
			QuestionsRemaining:  maxQuestions - count,
		}, nil
	}

	return e.markReady(ctx, session, confidence)
}

func (e *Engine) markReady(ctx context.Context, session *models.DeepDiveSession, confidence float64) (*ContinueResult, error) {
	count := len(session.Questions)
	session.Status = models.DeepDiveAnalysisReady
	session.InitialQuestionsCount = &count
	session.FinalConfidence = &confidence
	if err := e.store.UpdateDeepDive(ctx, session); err != nil {
		return nil, err
	}
	return &ContinueResult{
		Question:           nil,
		ReadyForAnalysis:   true,
		CurrentConfidence:  confidence,
		QuestionsCompleted: count,
	}, nil
}

// Complete produces the final structured analysis. The session stays in
// analysis_ready so ask-more remains available.
func (e *Engine) Complete(ctx context.Context, sessionID, finalAnswer, fallbackModel string) (models.JSONMap, error) {
	session, err := e.store.GetDeepDive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.DeepDiveActive && session.Status != models.DeepDiveAnalysisReady {
		return nil, ErrSessionNotActive
	}
	if len(session.Questions) < minQuestions {
		return nil, fmt.Errorf("%w: %d of %d questions answered", ErrQuestionLimit, len(session.Questions), minQuestions)
	}

	userID := stringOr(session.UserID)
	result, err := e.call(ctx, completePrompt(viewOf(session, true), finalAnswer), fallbackModel, userID, llm.EndpointDeepDive)

	var analysis models.JSONMap
	switch {
	case err != nil:
		slog.Warn("Final analysis generation failed, using derived fallback", "session_id", sessionID, "error", err)
		analysis = e.fallbackAnalysis(session)
	case result.ParsedContent == nil:
		slog.Warn("Final analysis was not parseable, using derived fallback", "session_id", sessionID)
		analysis = e.fallbackAnalysis(session)
	default:
		analysis = ensureAnalysisShape(models.JSONMap(result.ParsedContent))
		session.ModelUsed = result.Model
	}

	confidence, ok := analysis.GetFloat("confidence")
	if !ok && session.FinalConfidence != nil {
		confidence = *session.FinalConfidence
		analysis["confidence"] = confidence
	}

	session.FinalAnalysis = analysis
	session.FinalConfidence = &confidence
	session.Status = models.DeepDiveAnalysisReady
	session.InternalState = mergeState(session.InternalState, models.JSONMap{"allow_more_questions": true})
	if err := e.store.UpdateDeepDive(ctx, session); err != nil {
		return nil, err
	}
	return analysis, nil
}

// ThinkHarder runs a second-pass analysis and stores it next to the
// original, never replacing it.
func (e *Engine) ThinkHarder(ctx context.Context, sessionID, model string) (models.JSONMap, error) {
	return e.enhance(ctx, sessionID, model, llm.EndpointThinkHarder,
		"deeper clinical reasoning", "enhanced_confidence",
		func(s *models.DeepDiveSession, data models.JSONMap) { s.EnhancedAnalysis = data })
}

// UltraThink runs the maximum-reasoning pass.
func (e *Engine) UltraThink(ctx context.Context, sessionID, model string) (models.JSONMap, error) {
	return e.enhance(ctx, sessionID, model, llm.EndpointUltraThink,
		"maximum-depth reasoning, explicitly reconsidering every assumption", "ultra_confidence",
		func(s *models.DeepDiveSession, data models.JSONMap) { s.UltraAnalysis = data })
}

func (e *Engine) enhance(ctx context.Context, sessionID, model string, endpoint llm.Endpoint, depth, confidenceKey string, assign func(*models.DeepDiveSession, models.JSONMap)) (models.JSONMap, error) {
	session, err := e.store.GetDeepDive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.FinalAnalysis == nil {
		return nil, ErrNotAnalyzed
	}

	userID := stringOr(session.UserID)
	result, err := e.call(ctx, enhancementPrompt(viewOf(session, true), depth), model, userID, endpoint)
	if err != nil {
		return nil, fmt.Errorf("running %s pass: %w", endpoint, err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("%s pass returned no structured analysis", endpoint)
	}

	enhanced := ensureAnalysisShape(models.JSONMap(result.ParsedContent))
	newConfidence, _ := enhanced.GetFloat("confidence")
	enhanced[confidenceKey] = newConfidence
	if session.FinalConfidence != nil {
		enhanced["confidence_improvement"] = newConfidence - *session.FinalConfidence
	}

	assign(session, enhanced)
	if err := e.store.UpdateDeepDive(ctx, session); err != nil {
		return nil, err
	}
	return enhanced, nil
}

// AskMoreResult is the response of AskMore.
type AskMoreResult struct {
	Question            string  `json:"question"`
	QuestionNumber      int     `json:"question_number"`
	CurrentConfidence   float64 `json:"current_confidence"`
	TargetConfidence    float64 `json:"target_confidence"`
	ConfidenceGap       float64 `json:"confidence_gap"`
	EstimatedRemaining  int     `json:"estimated_questions_remaining"`
	QuestionsRemaining  int     `json:"questions_remaining"`
}

// AskMore generates one highly leveraged extra question after the
// initial analysis. Sessions stuck in active with answered questions
// are repaired to analysis_ready first.
func (e *Engine) AskMore(ctx context.Context, sessionID string, currentConfidence, target float64, maxExtra int) (*AskMoreResult, error) {
	session, err := e.store.GetDeepDive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.DeepDiveAnalysisReady, models.DeepDiveCompleted:
	case models.DeepDiveActive:
		if len(session.Questions) == 0 {
			return nil, ErrAskMoreClosed
		}
		session.Status = models.DeepDiveAnalysisReady
	default:
		return nil, ErrAskMoreClosed
	}

	if target <= 0 {
		target = askMoreTargetConfidence
	}
	if maxExtra <= 0 || maxExtra > askMoreLimit {
		maxExtra = askMoreLimit
	}
	if len(session.AdditionalQuestions) >= maxExtra ||
		session.TotalQuestionCount() >= maxTotalWithAskMore {
		return nil, ErrQuestionLimit
	}
	if currentConfidence == 0 && session.FinalConfidence != nil {
		currentConfidence = *session.FinalConfidence
	}

	userID := stringOr(session.UserID)
	result, err := e.call(ctx, askMorePrompt(viewOf(session, true), currentConfidence, target), "", userID, llm.EndpointDeepDive)
	if err != nil {
		return nil, fmt.Errorf("generating follow-up question: %w", err)
	}

	question := extractQuestion(result)
	if !validQuestion(question) || isDuplicate(question, askedQuestions(session)) {
		question = contextualFollowUp(session.TotalQuestionCount())
	}

	number := session.TotalQuestionCount() + 1
	session.AdditionalQuestions = append(session.AdditionalQuestions, models.QuestionEntry{
		QuestionNumber: number,
		Question:       question,
		Timestamp:      e.now().UTC(),
	})
	if err := e.store.UpdateDeepDive(ctx, session); err != nil {
		return nil, err
	}

	gap := target - currentConfidence
	if gap < 0 {
		gap = 0
	}
	estimated := int(math.Ceil(gap / 5))
	remaining := maxExtra - len(session.AdditionalQuestions)
	if estimated > remaining {
		estimated = remaining
	}
	return &AskMoreResult{
		Question:           question,
		QuestionNumber:     number,
		CurrentConfidence:  currentConfidence,
		TargetConfidence:   target,
		ConfidenceGap:      gap,
		EstimatedRemaining: estimated,
		QuestionsRemaining: remaining,
	}, nil
}

// call prefers an explicit model, falling back to the tier cascade.
func (e *Engine) call(ctx context.Context, prompt, model, userID string, endpoint llm.Endpoint) (*llm.CallResult, error) {
	messages := []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}
	opts := llm.CallOptions{UserID: userID, Endpoint: endpoint}
	if model != "" {
		return e.caller.Call(ctx, messages, model, opts)
	}
	return e.caller.CallWithFallback(ctx, messages, opts)
}

// fallbackAnalysis derives a well-typed analysis from the dialogue when
// the model's output cannot be parsed.
func (e *Engine) fallbackAnalysis(session *models.DeepDiveSession) models.JSONMap {
	symptoms := make([]any, 0, len(session.Questions))
	for _, qa := range session.Questions {
		symptoms = append(symptoms, qa.Answer)
	}
	confidence := 40.0
	if session.FinalConfidence != nil {
		confidence = *session.FinalConfidence
	}
	return models.JSONMap{
		"primaryCondition": "Assessment incomplete",
		"likelihood":       "Unable to determine from the available answers",
		"symptoms":         symptoms,
		"recommendations":  []any{"Consult a healthcare provider to review these symptoms in person"},
		"urgency":          models.UrgencyMedium,
		"differentials":    []any{},
		"redFlags":         []any{},
		"selfCare":         []any{},
		"timeline":         "See a provider within a few days",
		"followUp":         "Seek care sooner if symptoms worsen",
		"confidence":       confidence,
	}
}

// ensureAnalysisShape defaults mandatory array fields to [] and string
// fields to usable strings.
func ensureAnalysisShape(analysis models.JSONMap) models.JSONMap {
	for _, key := range []string{"symptoms", "recommendations", "differentials", "redFlags", "selfCare"} {
		if _, ok := analysis[key].([]any); !ok {
			analysis[key] = []any{}
		}
	}
	for key, fallback := range map[string]string{
		"primaryCondition": "Undetermined condition",
		"likelihood":       "Uncertain",
		"urgency":          models.UrgencyLow,
		"timeline":         "",
		"followUp":         "",
	} {
		if analysis.GetString(key) == "" {
			analysis[key] = fallback
		}
	}
	return analysis
}

// sessionView is the prompt-facing slice of a session.
type sessionView struct {
	BodyParts     []string
	Questions     []models.QuestionEntry
	FinalAnalysis models.JSONMap
}

// viewOf merges answered ask-more questions into the dialogue when
// includeAdditional is set.
func viewOf(s *models.DeepDiveSession, includeAdditional bool) sessionView {
	questions := []models.QuestionEntry(s.Questions)
	if includeAdditional {
		for _, qa := range s.AdditionalQuestions {
			if qa.Answer != "" {
				questions = append(questions, qa)
			}
		}
	}
	return sessionView{BodyParts: s.BodyParts, Questions: questions, FinalAnalysis: s.FinalAnalysis}
}

func askedQuestions(s *models.DeepDiveSession) []string {
	out := make([]string, 0, s.TotalQuestionCount())
	for _, qa := range s.Questions {
		out = append(out, qa.Question)
	}
	for _, qa := range s.AdditionalQuestions {
		out = append(out, qa.Question)
	}
	return out
}

func extractQuestion(result *llm.CallResult) string {
	if result.ParsedContent != nil {
		if q := models.JSONMap(result.ParsedContent).GetString("question"); q != "" {
			return strings.TrimSpace(q)
		}
	}
	return strings.TrimSpace(result.Content)
}

func mergeState(state, updates models.JSONMap) models.JSONMap {
	if state == nil {
		state = models.JSONMap{}
	}
	for k, v := range updates {
		state[k] = v
	}
	return state
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
