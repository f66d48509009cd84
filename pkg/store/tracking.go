package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertTrackingSuggestion stores a suggested metric.
func (s *Store) InsertTrackingSuggestion(ctx context.Context, t *models.TrackingSuggestion) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tracking_suggestions
		   (id, user_id, source_type, source_id, metric_name, y_axis_label, y_axis_type,
		    y_axis_min, y_axis_max, tracking_type, symptom_keywords, suggested_questions,
		    ai_reasoning, confidence_score, created_at)
		 VALUES
		   (:id, :user_id, :source_type, :source_id, :metric_name, :y_axis_label, :y_axis_type,
		    :y_axis_min, :y_axis_max, :tracking_type, :symptom_keywords, :suggested_questions,
		    :ai_reasoning, :confidence_score, :created_at)`, t)
	if err != nil {
		return fmt.Errorf("inserting tracking suggestion: %w", err)
	}
	return nil
}

// GetTrackingSuggestion loads one suggestion.
func (s *Store) GetTrackingSuggestion(ctx context.Context, id string) (*models.TrackingSuggestion, error) {
	var t models.TrackingSuggestion
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tracking_suggestions WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "tracking suggestion")
	}
	return &t, nil
}

// ListUnactionedSuggestions returns suggestions newer than since that
// the user has not acted on.
func (s *Store) ListUnactionedSuggestions(ctx context.Context, userID string, since time.Time) ([]models.TrackingSuggestion, error) {
	var out []models.TrackingSuggestion
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tracking_suggestions
		 WHERE user_id = $1 AND action_taken IS NULL AND created_at >= $2
		 ORDER BY created_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("listing tracking suggestions: %w", err)
	}
	return out, nil
}

// MarkSuggestionActioned records the user's decision on a suggestion.
func (s *Store) MarkSuggestionActioned(ctx context.Context, id, action string, at time.Time) error {
	return s.exec(ctx, "marking suggestion actioned",
		`UPDATE tracking_suggestions SET action_taken = $1, actioned_at = $2 WHERE id = $3`, action, at, id)
}

// HasTrackingConfigurations reports whether the user has any approved
// metrics.
func (s *Store) HasTrackingConfigurations(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM tracking_configurations WHERE user_id = $1)`, userID)
	if err != nil {
		return false, fmt.Errorf("checking tracking configurations: %w", err)
	}
	return exists, nil
}

// InsertTrackingConfiguration stores an approved metric.
func (s *Store) InsertTrackingConfiguration(ctx context.Context, c *models.TrackingConfiguration) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tracking_configurations
		   (id, user_id, suggestion_id, metric_name, y_axis_label, y_axis_type,
		    y_axis_min, y_axis_max, tracking_type, show_on_homepage, created_at)
		 VALUES
		   (:id, :user_id, :suggestion_id, :metric_name, :y_axis_label, :y_axis_type,
		    :y_axis_min, :y_axis_max, :tracking_type, :show_on_homepage, :created_at)`, c)
	if err != nil {
		return fmt.Errorf("inserting tracking configuration: %w", err)
	}
	return nil
}

// GetTrackingConfiguration loads one configuration.
func (s *Store) GetTrackingConfiguration(ctx context.Context, id string) (*models.TrackingConfiguration, error) {
	var c models.TrackingConfiguration
	err := s.db.GetContext(ctx, &c, `SELECT * FROM tracking_configurations WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "tracking configuration")
	}
	return &c, nil
}

// ListTrackingConfigurations returns a user's metrics, most recently
// recorded first.
func (s *Store) ListTrackingConfigurations(ctx context.Context, userID string) ([]models.TrackingConfiguration, error) {
	var out []models.TrackingConfiguration
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tracking_configurations
		 WHERE user_id = $1
		 ORDER BY COALESCE(last_data_point, created_at) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tracking configurations: %w", err)
	}
	return out, nil
}

// InsertTrackingDataPoint stores one value and bumps the parent
// configuration's counters.
func (s *Store) InsertTrackingDataPoint(ctx context.Context, p *models.TrackingDataPoint) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO tracking_data_points (id, configuration_id, user_id, value, notes, recorded_at)
		 VALUES (:id, :configuration_id, :user_id, :value, :notes, :recorded_at)`, p)
	if err != nil {
		return fmt.Errorf("inserting data point: %w", err)
	}
	return s.exec(ctx, "bumping configuration stats",
		`UPDATE tracking_configurations
		 SET data_points_count = data_points_count + 1,
		     last_data_point = GREATEST(COALESCE(last_data_point, $1), $1)
		 WHERE id = $2`, p.RecordedAt, p.ConfigurationID)
}

// ListTrackingDataPoints returns a configuration's values since the
// given time, oldest first.
func (s *Store) ListTrackingDataPoints(ctx context.Context, configurationID string, since time.Time) ([]models.TrackingDataPoint, error) {
	var out []models.TrackingDataPoint
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM tracking_data_points
		 WHERE configuration_id = $1 AND recorded_at >= $2
		 ORDER BY recorded_at ASC`, configurationID, since)
	if err != nil {
		return nil, fmt.Errorf("listing data points: %w", err)
	}
	return out, nil
}
