package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertQuickScan persists a new scan.
func (s *Store) InsertQuickScan(ctx context.Context, q *models.QuickScan) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO quick_scans
		   (id, user_id, body_parts, is_multi_part, form_data, analysis_result,
		    confidence_score, urgency_level, model_used, created_at)
		 VALUES
		   (:id, :user_id, :body_parts, :is_multi_part, :form_data, :analysis_result,
		    :confidence_score, :urgency_level, :model_used, :created_at)`, q)
	if err != nil {
		return fmt.Errorf("inserting quick scan: %w", err)
	}
	return nil
}

// GetQuickScan loads one scan.
func (s *Store) GetQuickScan(ctx context.Context, id string) (*models.QuickScan, error) {
	var q models.QuickScan
	err := s.db.GetContext(ctx, &q, `SELECT * FROM quick_scans WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "quick scan")
	}
	return &q, nil
}

// SetQuickScanEnhanced attaches an enhancement pass. The original
// analysis_result column is never touched.
func (s *Store) SetQuickScanEnhanced(ctx context.Context, id string, data models.JSONMap) error {
	return s.exec(ctx, "storing enhanced analysis",
		`UPDATE quick_scans SET enhanced_analysis = $1 WHERE id = $2`, data, id)
}

// SetQuickScanUltra attaches an ultra-reasoning pass.
func (s *Store) SetQuickScanUltra(ctx context.Context, id string, data models.JSONMap) error {
	return s.exec(ctx, "storing ultra analysis",
		`UPDATE quick_scans SET ultra_analysis = $1 WHERE id = $2`, data, id)
}

// SetQuickScanFollowUps attaches ask-more questions.
func (s *Store) SetQuickScanFollowUps(ctx context.Context, id string, questions models.StringSlice) error {
	return s.exec(ctx, "storing follow-up questions",
		`UPDATE quick_scans SET follow_up_questions = $1 WHERE id = $2`, questions, id)
}

// ListQuickScansByIDs loads the named scans, skipping ids that do not
// exist. An empty id list loads nothing.
func (s *Store) ListQuickScansByIDs(ctx context.Context, userID string, ids []string) ([]models.QuickScan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.QuickScan
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM quick_scans WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at ASC`,
		userID, ids)
	if err != nil {
		return nil, fmt.Errorf("listing quick scans: %w", err)
	}
	return out, nil
}

// ListQuickScansInRange loads a user's scans inside a time window.
func (s *Store) ListQuickScansInRange(ctx context.Context, userID string, from, to time.Time) ([]models.QuickScan, error) {
	var out []models.QuickScan
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM quick_scans
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing quick scans: %w", err)
	}
	return out, nil
}

// ListRecentQuickScans returns a user's latest scans, newest first.
func (s *Store) ListRecentQuickScans(ctx context.Context, userID string, limit int) ([]models.QuickScan, error) {
	var out []models.QuickScan
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM quick_scans WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent quick scans: %w", err)
	}
	return out, nil
}

// InsertDeepDive persists a new session.
func (s *Store) InsertDeepDive(ctx context.Context, d *models.DeepDiveSession) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO deep_dive_sessions
		   (id, user_id, body_parts, form_data, model_used, questions, current_step,
		    internal_state, last_question, status, additional_questions, created_at)
		 VALUES
		   (:id, :user_id, :body_parts, :form_data, :model_used, :questions, :current_step,
		    :internal_state, :last_question, :status, :additional_questions, :created_at)`, d)
	if err != nil {
		return fmt.Errorf("inserting deep dive session: %w", err)
	}
	return nil
}

// GetDeepDive loads one session.
func (s *Store) GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error) {
	var d models.DeepDiveSession
	err := s.db.GetContext(ctx, &d, `SELECT * FROM deep_dive_sessions WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "deep dive session")
	}
	return &d, nil
}

// UpdateDeepDive writes back every mutable field of a session in one
// statement, so question appends and status transitions land atomically.
func (s *Store) UpdateDeepDive(ctx context.Context, d *models.DeepDiveSession) error {
	res, err := s.db.NamedExecContext(ctx,
		`UPDATE deep_dive_sessions SET
		   questions = :questions,
		   current_step = :current_step,
		   internal_state = :internal_state,
		   last_question = :last_question,
		   status = :status,
		   model_used = :model_used,
		   final_analysis = :final_analysis,
		   final_confidence = :final_confidence,
		   initial_questions_count = :initial_questions_count,
		   additional_questions = :additional_questions,
		   enhanced_analysis = :enhanced_analysis,
		   ultra_analysis = :ultra_analysis,
		   completed_at = :completed_at
		 WHERE id = :id`, d)
	if err != nil {
		return fmt.Errorf("updating deep dive session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deep dive session: %w", ErrNotFound)
	}
	return nil
}

// ListRecentDeepDives returns a user's latest sessions, newest first.
func (s *Store) ListRecentDeepDives(ctx context.Context, userID string, limit int) ([]models.DeepDiveSession, error) {
	var out []models.DeepDiveSession
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM deep_dive_sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent deep dives: %w", err)
	}
	return out, nil
}

// ListDeepDivesByIDs loads the named sessions. An empty id list loads
// nothing.
func (s *Store) ListDeepDivesByIDs(ctx context.Context, userID string, ids []string) ([]models.DeepDiveSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.DeepDiveSession
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM deep_dive_sessions WHERE user_id = $1 AND id = ANY($2) ORDER BY created_at ASC`,
		userID, ids)
	if err != nil {
		return nil, fmt.Errorf("listing deep dive sessions: %w", err)
	}
	return out, nil
}

// ListDeepDivesInRange loads completed-or-ready sessions in a window.
func (s *Store) ListDeepDivesInRange(ctx context.Context, userID string, from, to time.Time) ([]models.DeepDiveSession, error) {
	var out []models.DeepDiveSession
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM deep_dive_sessions
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		   AND status IN ('analysis_ready', 'completed')
		 ORDER BY created_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing deep dive sessions: %w", err)
	}
	return out, nil
}
