package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertReportAnalysis records a classified report request.
func (s *Store) InsertReportAnalysis(ctx context.Context, a *models.ReportAnalysis) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO report_analyses
		   (id, user_id, recommended_type, report_config, quick_scan_ids, deep_dive_ids,
		    photo_session_ids, general_assessment_ids, general_deep_dive_ids, created_at)
		 VALUES
		   (:id, :user_id, :recommended_type, :report_config, :quick_scan_ids, :deep_dive_ids,
		    :photo_session_ids, :general_assessment_ids, :general_deep_dive_ids, :created_at)`, a)
	if err != nil {
		return fmt.Errorf("inserting report analysis: %w", err)
	}
	return nil
}

// GetReportAnalysis loads one classified request.
func (s *Store) GetReportAnalysis(ctx context.Context, id string) (*models.ReportAnalysis, error) {
	var a models.ReportAnalysis
	err := s.db.GetContext(ctx, &a, `SELECT * FROM report_analyses WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "report analysis")
	}
	return &a, nil
}

// InsertReport persists a generated report.
func (s *Store) InsertReport(ctx context.Context, r *models.Report) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO reports
		   (id, user_id, analysis_id, report_type, specialty, report_data, executive_summary,
		    confidence_score, model_used, time_range_start, time_range_end, created_at)
		 VALUES
		   (:id, :user_id, :analysis_id, :report_type, :specialty, :report_data, :executive_summary,
		    :confidence_score, :model_used, :time_range_start, :time_range_end, :created_at)`, r)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}
	return nil
}

// GetReport loads one report.
func (s *Store) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	err := s.db.GetContext(ctx, &r, `SELECT * FROM reports WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "report")
	}
	return &r, nil
}

// ListReports returns a user's reports newest first.
func (s *Store) ListReports(ctx context.Context, userID string) ([]models.Report, error) {
	var out []models.Report
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM reports WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return out, nil
}

// SetReportDoctorNotes attaches doctor annotations and marks the report
// reviewed.
func (s *Store) SetReportDoctorNotes(ctx context.Context, id string, notes models.JSONMap) error {
	return s.exec(ctx, "storing doctor notes",
		`UPDATE reports SET doctor_notes = $1, doctor_reviewed = true WHERE id = $2`, notes, id)
}

// AddReportRating folds one doctor rating into the rolling average.
func (s *Store) AddReportRating(ctx context.Context, id string, rating float64) error {
	return s.exec(ctx, "recording report rating",
		`UPDATE reports SET rating_sum = rating_sum + $1, rating_count = rating_count + 1
		 WHERE id = $2`, rating, id)
}

// InsertReportShare creates a time-limited share link.
func (s *Store) InsertReportShare(ctx context.Context, sh *models.ReportShare) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO report_shares (id, report_id, token, expires_at, created_at)
		 VALUES (:id, :report_id, :token, :expires_at, :created_at)`, sh)
	if err != nil {
		return fmt.Errorf("inserting report share: %w", err)
	}
	return nil
}

// DeleteExpiredReportShares removes share links past their expiry.
// Returns the number deleted.
func (s *Store) DeleteExpiredReportShares(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM report_shares WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired report shares: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetReportShareByToken resolves an unexpired share token.
func (s *Store) GetReportShareByToken(ctx context.Context, token string, now time.Time) (*models.ReportShare, error) {
	var sh models.ReportShare
	err := s.db.GetContext(ctx, &sh,
		`SELECT * FROM report_shares WHERE token = $1 AND expires_at > $2`, token, now)
	if err != nil {
		return nil, wrapGet(err, "report share")
	}
	return &sh, nil
}
