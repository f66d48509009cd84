package photo

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// ReminderRequest configures follow-up reminders for one session.
// IntervalDays 0 means derive the interval from the session's
// progression.
type ReminderRequest struct {
	SessionID    string `json:"session_id"`
	AnalysisID   string `json:"analysis_id"`
	Enabled      bool   `json:"enabled"`
	IntervalDays int    `json:"interval_days,omitempty"`
	Method       string `json:"reminder_method,omitempty"`
}

// ConfigureReminder upserts a session's reminder schedule.
func (s *Service) ConfigureReminder(ctx context.Context, req ReminderRequest) (*models.PhotoReminder, error) {
	session, err := s.store.GetPhotoSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	interval := req.IntervalDays
	reasoning := "User-selected interval"
	if interval <= 0 {
		analyses, err := s.store.ListPhotoAnalyses(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		var latest *models.PhotoAnalysis
		if len(analyses) > 0 {
			latest = &analyses[len(analyses)-1]
		}
		prog := AnalyzeProgression(analyses, "", session.ConditionName)
		var priority string
		interval, priority = SuggestFollowUpInterval(prog, latest)
		reasoning = fmt.Sprintf("Derived from progression (%s priority)", priority)
	}

	method := req.Method
	if method == "" {
		method = "email"
	}

	r := &models.PhotoReminder{
		SessionID:        session.ID,
		AnalysisID:       req.AnalysisID,
		UserID:           session.UserID,
		Enabled:          req.Enabled,
		IntervalDays:     interval,
		ReminderMethod:   method,
		NextReminderDate: s.now().UTC().Add(time.Duration(interval) * 24 * time.Hour),
		AIReasoning:      reasoning,
	}
	if err := s.store.UpsertPhotoReminder(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CompareResult is the outcome of a follow-up comparison.
type CompareResult struct {
	Analysis      *models.PhotoAnalysis `json:"analysis"`
	SelectionInfo SelectionInfo         `json:"selection_info"`
	Progression   *Progression          `json:"progression,omitempty"`
	NextInterval  int                   `json:"next_interval_days"`
	Priority      string                `json:"priority"`
}

// CompareWithHistory analyzes new photos against the session's prior
// photos, batching history down to the vision window when needed.
func (s *Service) CompareWithHistory(ctx context.Context, sessionID string, newPhotoIDs []string, userContext string) (*CompareResult, error) {
	if len(newPhotoIDs) == 0 {
		return nil, ErrNoPhotos
	}
	session, err := s.store.GetPhotoSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListPhotoUploads(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	analyses, err := s.store.ListPhotoAnalyses(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	newSet := map[string]bool{}
	for _, id := range newPhotoIDs {
		newSet[id] = true
	}
	var history []models.PhotoUpload
	for _, u := range all {
		if !newSet[u.ID] && u.Category.Analyzable() {
			history = append(history, u)
		}
	}
	selected, info := s.batcher.Select(history, analyses)

	comparisonIDs := make([]string, 0, len(selected))
	for _, u := range selected {
		comparisonIDs = append(comparisonIDs, u.ID)
	}

	analysis, err := s.Analyze(ctx, AnalyzeRequest{
		SessionID:          session.ID,
		PhotoIDs:           newPhotoIDs,
		Context:            userContext,
		ComparisonPhotoIDs: comparisonIDs,
	})
	if err != nil {
		return nil, err
	}

	analyses = append(analyses, *analysis)
	prog := AnalyzeProgression(analyses, "", session.ConditionName)
	interval, priority := SuggestFollowUpInterval(prog, analysis)

	return &CompareResult{
		Analysis:      analysis,
		SelectionInfo: info,
		Progression:   prog,
		NextInterval:  interval,
		Priority:      priority,
	}, nil
}

// SessionProgression recomputes analytics for a session on demand.
func (s *Service) SessionProgression(ctx context.Context, sessionID, metric string) (*Progression, error) {
	session, err := s.store.GetPhotoSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	analyses, err := s.store.ListPhotoAnalyses(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return AnalyzeProgression(analyses, metric, session.ConditionName), nil
}
