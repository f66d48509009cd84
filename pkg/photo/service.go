// Package photo implements the photo pipeline: categorization with
// storage routing, vision analysis with comparison support, smart
// batching for long sessions, and progression analytics.
package photo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrInappropriatePhoto = errors.New("photo content is not acceptable")
	ErrNoPhotos           = errors.New("at least one photo is required")
	ErrNoAnalyzablePhotos = errors.New("no analyzable photos in request")
	ErrPhotoExpired       = errors.New("photo data has expired")
)

// temporaryTTL is the hard lifetime of sensitive photo bytes and
// temporary analyses.
const temporaryTTL = 24 * time.Hour

// Store is the persistence the service needs.
type Store interface {
	InsertPhotoSession(ctx context.Context, ps *models.PhotoSession) error
	GetPhotoSession(ctx context.Context, id string) (*models.PhotoSession, error)
	MarkPhotoSessionSensitive(ctx context.Context, id string) error
	InsertPhotoUpload(ctx context.Context, u *models.PhotoUpload) error
	ListPhotoUploads(ctx context.Context, sessionID string) ([]models.PhotoUpload, error)
	ListPhotoUploadsByIDs(ctx context.Context, ids []string) ([]models.PhotoUpload, error)
	InsertPhotoAnalysis(ctx context.Context, a *models.PhotoAnalysis) error
	ListPhotoAnalyses(ctx context.Context, sessionID string) ([]models.PhotoAnalysis, error)
	UpsertPhotoReminder(ctx context.Context, r *models.PhotoReminder) error
}

// VisionCaller is the multimodal LLM dependency.
type VisionCaller interface {
	CallVision(ctx context.Context, prompt string, images []string, model string, opts llm.CallOptions) (*llm.CallResult, error)
}

// SymptomTracker materializes tracking suggestions from analyses.
// Best-effort: failures never fail the analysis.
type SymptomTracker interface {
	SuggestFromAnalysis(ctx context.Context, sourceType, sourceID, userID string, analysis models.JSONMap) error
}

// Service runs the photo pipeline.
type Service struct {
	store   Store
	caller  VisionCaller
	objects ObjectStore
	tracker SymptomTracker
	batcher *Batcher

	visionModels []string

	now   func() time.Time
	newID func() string
}

// defaultVisionModels is the primary-secondary-tertiary retry chain.
// The tail entry is free so analysis degrades instead of failing when
// paid vision capacity is exhausted.
func defaultVisionModels() []string {
	return []string{
		"openai/gpt-4o",
		"google/gemini-2.5-pro",
		"qwen/qwen2.5-vl-72b-instruct:free",
	}
}

// NewService wires the service. tracker may be nil.
func NewService(store Store, caller VisionCaller, objects ObjectStore, tracker SymptomTracker) *Service {
	return &Service{
		store:        store,
		caller:       caller,
		objects:      objects,
		tracker:      tracker,
		batcher:      NewBatcher(0),
		visionModels: defaultVisionModels(),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
}

// CreateSession opens a condition-tracking session.
func (s *Service) CreateSession(ctx context.Context, userID, conditionName, description string) (*models.PhotoSession, error) {
	if conditionName == "" {
		conditionName = "Unnamed condition"
	}
	ps := &models.PhotoSession{
		ID:            s.newID(),
		UserID:        userID,
		ConditionName: conditionName,
		Description:   description,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.InsertPhotoSession(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// UploadInput is one photo in an upload batch. Data is raw base64
// without the data URL prefix.
type UploadInput struct {
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type"`
	Data          string `json:"data"`
	IsFollowup    bool   `json:"is_followup"`
	FollowupNotes string `json:"followup_notes"`
}

// UploadResult reports how each photo in a batch was routed.
type UploadResult struct {
	Uploads        []models.PhotoUpload `json:"uploads"`
	RequiresAction *RequiresAction      `json:"requires_action,omitempty"`
	Skipped        int                  `json:"skipped,omitempty"`
}

// RequiresAction asks the client to resolve unclear photos before
// analysis can proceed.
type RequiresAction struct {
	Action       string `json:"action"`
	PhotoIndexes []int  `json:"photo_indexes"`
	Message      string `json:"message"`
}

// Upload categorizes each photo and routes it per category. Sensitive
// photos keep their bytes inline with a hard TTL and never reach the
// object store. One inappropriate photo rejects the whole batch.
func (s *Service) Upload(ctx context.Context, sessionID, userID string, photos []UploadInput) (*UploadResult, error) {
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}
	session, err := s.store.GetPhotoSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{}
	var unclear []int

	for i, p := range photos {
		cat, err := s.categorize(ctx, dataURL(p.MimeType, p.Data), userID)
		if err != nil {
			return nil, err
		}

		switch cat.Category {
		case models.CategoryInappropriate:
			return nil, ErrInappropriatePhoto
		case models.CategoryNonMedical:
			result.Skipped++
			continue
		case models.CategoryUnclear:
			unclear = append(unclear, i)
			continue
		}

		upload := &models.PhotoUpload{
			ID:        s.newID(),
			SessionID: session.ID,
			Category:  cat.Category,
			FileMetadata: models.JSONMap{
				"filename":    p.Filename,
				"mime_type":   p.MimeType,
				"subcategory": cat.Subcategory,
			},
			QualityScore:  &cat.QualityScore,
			IsFollowup:    p.IsFollowup,
			FollowupNotes: p.FollowupNotes,
			UploadedAt:    s.now().UTC(),
		}

		if cat.Category == models.CategoryMedicalSensitive {
			data := dataURL(p.MimeType, p.Data)
			upload.TemporaryData = &data
			if !session.IsSensitive {
				if err := s.store.MarkPhotoSessionSensitive(ctx, session.ID); err != nil {
					return nil, err
				}
				session.IsSensitive = true
			}
		} else {
			raw, err := base64.StdEncoding.DecodeString(p.Data)
			if err != nil {
				return nil, fmt.Errorf("decoding photo %d: %w", i, err)
			}
			key, err := s.objects.Upload(ctx, objectKey(session.ID, upload.ID, extFor(p.MimeType)), p.MimeType, raw)
			if err != nil {
				return nil, fmt.Errorf("storing photo: %w", err)
			}
			upload.StorageURL = &key
		}

		if err := s.store.InsertPhotoUpload(ctx, upload); err != nil {
			return nil, err
		}
		result.Uploads = append(result.Uploads, *upload)
	}

	if len(unclear) > 0 {
		result.RequiresAction = &RequiresAction{
			Action:       "unclear_modal",
			PhotoIndexes: unclear,
			Message:      "Some photos were too unclear to classify. Retake them with better lighting and focus.",
		}
	}

	slog.Info("Photo batch routed",
		"session_id", session.ID,
		"stored", len(result.Uploads),
		"unclear", len(unclear),
		"skipped", result.Skipped)
	return result, nil
}

// imageFor recovers the analyzable bytes of one upload as a data URL.
func (s *Service) imageFor(ctx context.Context, u *models.PhotoUpload) (string, error) {
	if u.TemporaryData != nil {
		if *u.TemporaryData == "" {
			return "", ErrPhotoExpired
		}
		return *u.TemporaryData, nil
	}
	if u.StorageURL == nil {
		return "", fmt.Errorf("photo %s has no stored bytes", u.ID)
	}
	data, err := s.objects.Download(ctx, *u.StorageURL)
	if err != nil {
		return "", err
	}
	return dataURL(u.FileMetadata.GetString("mime_type"), base64.StdEncoding.EncodeToString(data)), nil
}

func dataURL(mime, base64Data string) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64Data
}

func extFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}
