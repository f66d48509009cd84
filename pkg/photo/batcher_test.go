package photo

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/models"
)

func uploadSeries(n int, start time.Time) []models.PhotoUpload {
	out := make([]models.PhotoUpload, n)
	for i := range out {
		out[i] = models.PhotoUpload{
			ID:         fmt.Sprintf("p%03d", i),
			SessionID:  "s1",
			Category:   models.CategoryMedicalNormal,
			UploadedAt: start.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func TestBatcher_PassThroughWithinWindow(t *testing.T) {
	b := NewBatcher(40)
	photos := uploadSeries(12, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	selected, info := b.Select(photos, nil)
	assert.Len(t, selected, 12)
	assert.Equal(t, 12, info.TotalPhotos)
	assert.Equal(t, 12, info.PhotosShown)
	assert.Empty(t, info.OmittedRanges)
}

func TestBatcher_KeepsBaselineAndRecent(t *testing.T) {
	b := NewBatcher(10)
	photos := uploadSeries(50, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	selected, info := b.Select(photos, nil)
	require.Len(t, selected, 10)
	assert.Equal(t, 50, info.TotalPhotos)
	assert.Equal(t, 10, info.PhotosShown)

	assert.Equal(t, "p000", selected[0].ID)
	for i, want := range []string{"p045", "p046", "p047", "p048", "p049"} {
		assert.Equal(t, want, selected[5+i].ID)
	}

	// Chronological after reinsertion.
	for i := 1; i < len(selected); i++ {
		assert.True(t, selected[i-1].UploadedAt.Before(selected[i].UploadedAt))
	}
	assert.NotEmpty(t, info.OmittedRanges)
}

func TestBatcher_RedFlagMiddleWins(t *testing.T) {
	b := NewBatcher(7) // 1 slot for the middle
	photos := uploadSeries(20, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	analyses := []models.PhotoAnalysis{{
		ID:       "a1",
		PhotoIDs: models.StringSlice{"p009"},
		AnalysisData: models.JSONMap{
			"red_flags": []any{"irregular border"},
		},
		ConfidenceScore: 90,
	}}

	selected, _ := b.Select(photos, analyses)
	ids := make([]string, 0, len(selected))
	for _, u := range selected {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, "p009")
}

func TestBatcher_Deterministic(t *testing.T) {
	b := NewBatcher(12)
	photos := uploadSeries(60, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first, _ := b.Select(photos, nil)
	second, _ := b.Select(photos, nil)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}
