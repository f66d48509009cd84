package photo

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// defaultMaxPhotos is the vision window: baseline + 5 recent + scored
// middles.
const defaultMaxPhotos = 40

// Batcher selects a representative subset of a long session for
// comparison, deterministically.
type Batcher struct {
	maxPhotos int
}

// NewBatcher builds a batcher. maxPhotos <= 0 uses the default window.
func NewBatcher(maxPhotos int) *Batcher {
	if maxPhotos <= 0 {
		maxPhotos = defaultMaxPhotos
	}
	return &Batcher{maxPhotos: maxPhotos}
}

// SelectionInfo describes what the batcher kept and dropped.
type SelectionInfo struct {
	TotalPhotos        int         `json:"total_photos"`
	PhotosShown        int         `json:"photos_shown"`
	SelectionReasoning []string    `json:"selection_reasoning"`
	OmittedRanges      []DateRange `json:"omitted_ranges,omitempty"`
}

// DateRange is a contiguous span of omitted uploads.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Select returns the chosen photos in chronological order plus the
// selection rationale. Sessions within the window pass through whole.
func (b *Batcher) Select(photos []models.PhotoUpload, analyses []models.PhotoAnalysis) ([]models.PhotoUpload, SelectionInfo) {
	sorted := make([]models.PhotoUpload, len(photos))
	copy(sorted, photos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt.Before(sorted[j].UploadedAt)
	})

	if len(sorted) <= b.maxPhotos {
		return sorted, SelectionInfo{
			TotalPhotos:        len(sorted),
			PhotosShown:        len(sorted),
			SelectionReasoning: []string{"All photos fit within the comparison window"},
		}
	}

	first := sorted[0]
	recent := sorted[len(sorted)-5:]
	middle := sorted[1 : len(sorted)-5]
	slots := b.maxPhotos - 6

	scores := make([]float64, len(middle))
	for i := range middle {
		scores[i] = middleScore(i, len(middle), slots, &middle[i], analyses)
	}

	// Top-K by score; ties break toward earlier photos so selection
	// stays deterministic.
	order := make([]int, len(middle))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, c int) bool { return scores[order[a]] > scores[order[c]] })
	keep := map[int]bool{}
	for _, idx := range order[:slots] {
		keep[idx] = true
	}

	selected := []models.PhotoUpload{first}
	var omitted []DateRange
	var omitStart *time.Time
	for i := range middle {
		if keep[i] {
			if omitStart != nil {
				omitted = append(omitted, DateRange{Start: *omitStart, End: middle[i-1].UploadedAt})
				omitStart = nil
			}
			selected = append(selected, middle[i])
			continue
		}
		if omitStart == nil {
			t := middle[i].UploadedAt
			omitStart = &t
		}
	}
	if omitStart != nil {
		omitted = append(omitted, DateRange{Start: *omitStart, End: middle[len(middle)-1].UploadedAt})
	}
	selected = append(selected, recent...)

	info := SelectionInfo{
		TotalPhotos:   len(sorted),
		PhotosShown:   len(selected),
		OmittedRanges: omitted,
		SelectionReasoning: []string{
			"Included the first photo as baseline",
			"Included the 5 most recent photos",
			fmt.Sprintf("Selected %d of %d middle photos by clinical importance", slots, len(middle)),
		},
	}
	return selected, info
}

// middleScore ranks a middle photo by temporal spread, image quality,
// clinical signal from any analysis that references it, and follow-up
// notes.
func middleScore(i, n, slots int, u *models.PhotoUpload, analyses []models.PhotoAnalysis) float64 {
	idealSpacing := float64(n) / float64(slots)
	score := 100 * (1 - math.Abs(math.Mod(float64(i), idealSpacing))/idealSpacing)

	if u.QualityScore != nil {
		score += 0.5 * *u.QualityScore
	}
	if a := analysisFor(u.ID, analyses); a != nil {
		if a.ConfidenceScore < 70 {
			score += 50
		}
		if len(a.AnalysisData.GetSlice("red_flags")) > 0 {
			score += 100
		}
		if a.Comparison.GetString("trend") == "worsening" {
			score += 80
		}
	}
	if u.FollowupNotes != "" {
		score += 75
	}
	return score
}

func analysisFor(photoID string, analyses []models.PhotoAnalysis) *models.PhotoAnalysis {
	for i := range analyses {
		for _, id := range analyses[i].PhotoIDs {
			if id == photoID {
				return &analyses[i]
			}
		}
	}
	return nil
}
