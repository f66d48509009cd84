package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertPhotoSession creates a condition-tracking session.
func (s *Store) InsertPhotoSession(ctx context.Context, ps *models.PhotoSession) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO photo_sessions (id, user_id, condition_name, description, is_sensitive, created_at)
		 VALUES (:id, :user_id, :condition_name, :description, :is_sensitive, :created_at)`, ps)
	if err != nil {
		return fmt.Errorf("inserting photo session: %w", err)
	}
	return nil
}

// GetPhotoSession loads one session, excluding soft-deleted ones.
func (s *Store) GetPhotoSession(ctx context.Context, id string) (*models.PhotoSession, error) {
	var ps models.PhotoSession
	err := s.db.GetContext(ctx, &ps,
		`SELECT * FROM photo_sessions WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, wrapGet(err, "photo session")
	}
	return &ps, nil
}

// ListPhotoSessions returns a user's live sessions, newest activity first.
func (s *Store) ListPhotoSessions(ctx context.Context, userID string) ([]models.PhotoSession, error) {
	var out []models.PhotoSession
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_sessions
		 WHERE user_id = $1 AND deleted_at IS NULL
		 ORDER BY COALESCE(last_photo_at, created_at) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing photo sessions: %w", err)
	}
	return out, nil
}

// ListPhotoSessionsByIDs loads the named sessions. Empty list loads nothing.
func (s *Store) ListPhotoSessionsByIDs(ctx context.Context, userID string, ids []string) ([]models.PhotoSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.PhotoSession
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_sessions
		 WHERE user_id = $1 AND id = ANY($2) AND deleted_at IS NULL
		 ORDER BY created_at ASC`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("listing photo sessions: %w", err)
	}
	return out, nil
}

// MarkPhotoSessionSensitive flags a session once any sensitive photo
// lands in it. Never cleared.
func (s *Store) MarkPhotoSessionSensitive(ctx context.Context, id string) error {
	return s.exec(ctx, "flagging photo session sensitive",
		`UPDATE photo_sessions SET is_sensitive = TRUE WHERE id = $1 AND deleted_at IS NULL`, id)
}

// SoftDeletePhotoSession marks the session deleted without removing
// uploads, keeping progression history recoverable.
func (s *Store) SoftDeletePhotoSession(ctx context.Context, id, userID string) error {
	return s.exec(ctx, "deleting photo session",
		`UPDATE photo_sessions SET deleted_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
}

// InsertPhotoUpload stores one upload and bumps the session's
// last_photo_at.
func (s *Store) InsertPhotoUpload(ctx context.Context, u *models.PhotoUpload) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO photo_uploads
		   (id, session_id, category, storage_url, temporary_data, file_metadata,
		    quality_score, is_followup, followup_notes, uploaded_at)
		 VALUES
		   (:id, :session_id, :category, :storage_url, :temporary_data, :file_metadata,
		    :quality_score, :is_followup, :followup_notes, :uploaded_at)`, u)
	if err != nil {
		return fmt.Errorf("inserting photo upload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE photo_sessions SET last_photo_at = $1 WHERE id = $2`, u.UploadedAt, u.SessionID)
	if err != nil {
		return fmt.Errorf("touching photo session: %w", err)
	}
	return nil
}

// ListPhotoUploads returns a session's uploads oldest first.
func (s *Store) ListPhotoUploads(ctx context.Context, sessionID string) ([]models.PhotoUpload, error) {
	var out []models.PhotoUpload
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_uploads WHERE session_id = $1 ORDER BY uploaded_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing photo uploads: %w", err)
	}
	return out, nil
}

// ListPhotoUploadsByIDs loads the named uploads in upload order.
func (s *Store) ListPhotoUploadsByIDs(ctx context.Context, ids []string) ([]models.PhotoUpload, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.PhotoUpload
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_uploads WHERE id = ANY($1) ORDER BY uploaded_at ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("listing photo uploads: %w", err)
	}
	return out, nil
}

// PurgeExpiredTemporaryData clears inline sensitive photo bytes past
// their 24h TTL. Returns the number of uploads scrubbed.
func (s *Store) PurgeExpiredTemporaryData(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE photo_uploads SET temporary_data = NULL
		 WHERE temporary_data IS NOT NULL AND uploaded_at < $1 - interval '24 hours'`, now)
	if err != nil {
		return 0, fmt.Errorf("purging temporary photo data: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertPhotoAnalysis stores one vision pass.
func (s *Store) InsertPhotoAnalysis(ctx context.Context, a *models.PhotoAnalysis) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO photo_analyses
		   (id, session_id, photo_ids, analysis_data, model_used, confidence_score,
		    is_sensitive, expires_at, comparison, created_at)
		 VALUES
		   (:id, :session_id, :photo_ids, :analysis_data, :model_used, :confidence_score,
		    :is_sensitive, :expires_at, :comparison, :created_at)`, a)
	if err != nil {
		return fmt.Errorf("inserting photo analysis: %w", err)
	}
	return nil
}

// GetPhotoAnalysis loads one analysis.
func (s *Store) GetPhotoAnalysis(ctx context.Context, id string) (*models.PhotoAnalysis, error) {
	var a models.PhotoAnalysis
	err := s.db.GetContext(ctx, &a, `SELECT * FROM photo_analyses WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "photo analysis")
	}
	return &a, nil
}

// ListPhotoAnalyses returns a session's analyses oldest first.
func (s *Store) ListPhotoAnalyses(ctx context.Context, sessionID string) ([]models.PhotoAnalysis, error) {
	var out []models.PhotoAnalysis
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_analyses WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing photo analyses: %w", err)
	}
	return out, nil
}

// DeleteExpiredPhotoAnalyses removes analyses past their TTL. Returns
// the number deleted.
func (s *Store) DeleteExpiredPhotoAnalyses(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM photo_analyses WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired photo analyses: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListPhotoAnalysesForUser returns a user's unexpired analyses in the
// time range, oldest first.
func (s *Store) ListPhotoAnalysesForUser(ctx context.Context, userID string, from, to time.Time) ([]models.PhotoAnalysis, error) {
	var out []models.PhotoAnalysis
	err := s.db.SelectContext(ctx, &out,
		`SELECT pa.* FROM photo_analyses pa
		 JOIN photo_sessions ps ON ps.id = pa.session_id
		 WHERE ps.user_id = $1 AND ps.deleted_at IS NULL
		   AND pa.created_at >= $2 AND pa.created_at <= $3
		   AND (pa.expires_at IS NULL OR pa.expires_at > now())
		 ORDER BY pa.created_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing photo analyses for user: %w", err)
	}
	return out, nil
}

// UpsertPhotoReminder creates or replaces a session's reminder config.
func (s *Store) UpsertPhotoReminder(ctx context.Context, r *models.PhotoReminder) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO photo_reminders
		   (session_id, analysis_id, user_id, enabled, interval_days, reminder_method,
		    next_reminder_date, ai_reasoning)
		 VALUES
		   (:session_id, :analysis_id, :user_id, :enabled, :interval_days, :reminder_method,
		    :next_reminder_date, :ai_reasoning)
		 ON CONFLICT (session_id) DO UPDATE SET
		   analysis_id = EXCLUDED.analysis_id,
		   enabled = EXCLUDED.enabled,
		   interval_days = EXCLUDED.interval_days,
		   reminder_method = EXCLUDED.reminder_method,
		   next_reminder_date = EXCLUDED.next_reminder_date,
		   ai_reasoning = EXCLUDED.ai_reasoning`, r)
	if err != nil {
		return fmt.Errorf("upserting photo reminder: %w", err)
	}
	return nil
}

// GetPhotoReminder loads a session's reminder config.
func (s *Store) GetPhotoReminder(ctx context.Context, sessionID string) (*models.PhotoReminder, error) {
	var r models.PhotoReminder
	err := s.db.GetContext(ctx, &r, `SELECT * FROM photo_reminders WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, wrapGet(err, "photo reminder")
	}
	return &r, nil
}

// ListDuePhotoReminders returns enabled reminders whose next date has
// passed.
func (s *Store) ListDuePhotoReminders(ctx context.Context, now time.Time) ([]models.PhotoReminder, error) {
	var out []models.PhotoReminder
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM photo_reminders
		 WHERE enabled AND next_reminder_date <= $1
		 ORDER BY next_reminder_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("listing due photo reminders: %w", err)
	}
	return out, nil
}

// MarkPhotoReminderSent advances the reminder to its next cycle.
func (s *Store) MarkPhotoReminderSent(ctx context.Context, sessionID string, sentAt time.Time) error {
	return s.exec(ctx, "marking photo reminder sent",
		`UPDATE photo_reminders
		 SET last_sent_at = $1,
		     next_reminder_date = $1 + (interval_days || ' days')::interval
		 WHERE session_id = $2`, sentAt, sessionID)
}
