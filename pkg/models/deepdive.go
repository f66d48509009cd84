package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeepDiveStatus is the session state machine.
type DeepDiveStatus string

// Deep-dive session states.
const (
	DeepDiveActive        DeepDiveStatus = "active"
	DeepDiveAnalysisReady DeepDiveStatus = "analysis_ready"
	DeepDiveCompleted     DeepDiveStatus = "completed"
	DeepDiveAbandoned     DeepDiveStatus = "abandoned"
)

// QuestionEntry is one asked-and-answered turn of a deep dive.
type QuestionEntry struct {
	QuestionNumber int       `json:"question_number"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Timestamp      time.Time `json:"timestamp"`
}

// QuestionList is a JSONB column of ordered Q&A entries.
type QuestionList []QuestionEntry

// Value implements driver.Valuer.
func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		return json.Marshal([]QuestionEntry{})
	}
	return json.Marshal([]QuestionEntry(q))
}

// Scan implements sql.Scanner.
func (q *QuestionList) Scan(src any) error {
	if src == nil {
		*q = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	default:
		return fmt.Errorf("cannot scan %T into QuestionList", src)
	}
}

// DeepDiveSession is a bounded-question diagnostic dialogue.
//
// Invariants: len(Questions) >= 3 before completion is allowed,
// <= 7 during the initial phase, <= 11 including ask-more.
type DeepDiveSession struct {
	ID                    string         `db:"id" json:"id"`
	UserID                *string        `db:"user_id" json:"user_id,omitempty"`
	BodyParts             StringSlice    `db:"body_parts" json:"body_parts"`
	FormData              JSONMap        `db:"form_data" json:"form_data"`
	ModelUsed             string         `db:"model_used" json:"model_used"`
	Questions             QuestionList   `db:"questions" json:"questions"`
	CurrentStep           int            `db:"current_step" json:"current_step"`
	InternalState         JSONMap        `db:"internal_state" json:"internal_state,omitempty"`
	LastQuestion          string         `db:"last_question" json:"last_question"`
	Status                DeepDiveStatus `db:"status" json:"status"`
	FinalAnalysis         JSONMap        `db:"final_analysis" json:"final_analysis,omitempty"`
	FinalConfidence       *float64       `db:"final_confidence" json:"final_confidence,omitempty"`
	InitialQuestionsCount *int           `db:"initial_questions_count" json:"initial_questions_count,omitempty"`
	AdditionalQuestions   QuestionList   `db:"additional_questions" json:"additional_questions,omitempty"`
	EnhancedAnalysis      JSONMap        `db:"enhanced_analysis" json:"enhanced_analysis,omitempty"`
	UltraAnalysis         JSONMap        `db:"ultra_analysis" json:"ultra_analysis,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	CompletedAt           *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// QuestionCount returns the number of answered initial-phase questions.
func (s *DeepDiveSession) QuestionCount() int {
	return len(s.Questions)
}

// TotalQuestionCount includes ask-more questions.
func (s *DeepDiveSession) TotalQuestionCount() int {
	return len(s.Questions) + len(s.AdditionalQuestions)
}
