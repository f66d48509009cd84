package store

import (
	"context"
	"fmt"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertFollowUp appends one link to a follow-up chain.
func (s *Store) InsertFollowUp(ctx context.Context, f *models.AssessmentFollowUp) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO assessment_follow_ups
		   (id, chain_id, parent_follow_up_id, user_id, source_type, source_id,
		    follow_up_number, days_since_original, base_responses, ai_questions,
		    analysis_result, primary_assessment, confidence_score, confidence_change,
		    assessment_evolution, created_at)
		 VALUES
		   (:id, :chain_id, :parent_follow_up_id, :user_id, :source_type, :source_id,
		    :follow_up_number, :days_since_original, :base_responses, :ai_questions,
		    :analysis_result, :primary_assessment, :confidence_score, :confidence_change,
		    :assessment_evolution, :created_at)`, f)
	if err != nil {
		return fmt.Errorf("inserting follow-up: %w", err)
	}
	return nil
}

// GetFollowUp loads one chain link.
func (s *Store) GetFollowUp(ctx context.Context, id string) (*models.AssessmentFollowUp, error) {
	var f models.AssessmentFollowUp
	err := s.db.GetContext(ctx, &f, `SELECT * FROM assessment_follow_ups WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "follow-up")
	}
	return &f, nil
}

// ListFollowUpChain returns every link of a chain in order.
func (s *Store) ListFollowUpChain(ctx context.Context, chainID string) ([]models.AssessmentFollowUp, error) {
	var out []models.AssessmentFollowUp
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM assessment_follow_ups WHERE chain_id = $1 ORDER BY follow_up_number ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("listing follow-up chain: %w", err)
	}
	return out, nil
}

// GetLatestFollowUp returns the newest link of a chain, or ErrNotFound
// for an unknown chain.
func (s *Store) GetLatestFollowUp(ctx context.Context, chainID string) (*models.AssessmentFollowUp, error) {
	var f models.AssessmentFollowUp
	err := s.db.GetContext(ctx, &f,
		`SELECT * FROM assessment_follow_ups
		 WHERE chain_id = $1 ORDER BY follow_up_number DESC LIMIT 1`, chainID)
	if err != nil {
		return nil, wrapGet(err, "follow-up chain")
	}
	return &f, nil
}

// GetChainForSource returns the chain id rooted at a source assessment,
// or "" when no chain exists yet.
func (s *Store) GetChainForSource(ctx context.Context, sourceType, sourceID string) (string, error) {
	var chainID string
	err := s.db.GetContext(ctx, &chainID,
		`SELECT chain_id FROM assessment_follow_ups
		 WHERE source_type = $1 AND source_id = $2
		 ORDER BY follow_up_number ASC LIMIT 1`, sourceType, sourceID)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("resolving follow-up chain: %w", err)
	}
	return chainID, nil
}

// InsertFollowUpEvent appends a chain audit event.
func (s *Store) InsertFollowUpEvent(ctx context.Context, e *models.FollowUpEvent) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO follow_up_events (chain_id, user_id, event_type, event_data, timestamp)
		 VALUES (:chain_id, :user_id, :event_type, :event_data, :timestamp)`, e)
	if err != nil {
		return fmt.Errorf("inserting follow-up event: %w", err)
	}
	return nil
}

// ListFollowUpEvents returns a chain's audit trail oldest first.
func (s *Store) ListFollowUpEvents(ctx context.Context, chainID string) ([]models.FollowUpEvent, error) {
	var out []models.FollowUpEvent
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM follow_up_events WHERE chain_id = $1 ORDER BY timestamp ASC, id ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("listing follow-up events: %w", err)
	}
	return out, nil
}
