package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// dataBundle is everything a report prompt can draw on.
type dataBundle struct {
	QuickScans     []models.QuickScan
	DeepDives      []models.DeepDiveSession
	PhotoAnalyses  []models.PhotoAnalysis
	TrackingSeries []trackingSeries
	Messages       []models.Message

	Start time.Time
	End   time.Time
}

type trackingSeries struct {
	Config models.TrackingConfiguration
	Points []models.TrackingDataPoint
}

// selectedMode reports whether the analysis carries explicit id lists.
// An empty non-nil list means "load nothing of that kind"; it never
// falls back to loading everything.
func selectedMode(a *models.ReportAnalysis) bool {
	return a.QuickScanIDs != nil || a.DeepDiveIDs != nil || a.PhotoSessionIDs != nil
}

// gather loads report data per the analysis' mode.
func (e *Engine) gather(ctx context.Context, a *models.ReportAnalysis, start, end time.Time) (*dataBundle, error) {
	b := &dataBundle{Start: start, End: end}

	if selectedMode(a) {
		if len(a.QuickScanIDs) > 0 {
			scans, err := e.store.ListQuickScansByIDs(ctx, a.UserID, a.QuickScanIDs)
			if err != nil {
				return nil, err
			}
			b.QuickScans = scans
		}
		if len(a.DeepDiveIDs) > 0 {
			dives, err := e.store.ListDeepDivesByIDs(ctx, a.UserID, a.DeepDiveIDs)
			if err != nil {
				return nil, err
			}
			b.DeepDives = dives
		}
		for _, sessionID := range a.PhotoSessionIDs {
			analyses, err := e.store.ListPhotoAnalyses(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			b.PhotoAnalyses = append(b.PhotoAnalyses, analyses...)
		}
		return b, nil
	}

	scans, err := e.store.ListQuickScansInRange(ctx, a.UserID, start, end)
	if err != nil {
		return nil, err
	}
	b.QuickScans = scans

	dives, err := e.store.ListDeepDivesInRange(ctx, a.UserID, start, end)
	if err != nil {
		return nil, err
	}
	b.DeepDives = dives

	photos, err := e.store.ListPhotoAnalysesForUser(ctx, a.UserID, start, end)
	if err != nil {
		return nil, err
	}
	b.PhotoAnalyses = photos

	configs, err := e.store.ListTrackingConfigurations(ctx, a.UserID)
	if err != nil {
		return nil, err
	}
	for _, c := range configs {
		points, err := e.store.ListTrackingDataPoints(ctx, c.ID, start)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			b.TrackingSeries = append(b.TrackingSeries, trackingSeries{Config: c, Points: points})
		}
	}

	messages, err := e.store.ListUserMessagesInRange(ctx, a.UserID, start, end)
	if err != nil {
		return nil, err
	}
	b.Messages = messages

	return b, nil
}

// empty reports whether nothing was gathered.
func (b *dataBundle) empty() bool {
	return len(b.QuickScans) == 0 && len(b.DeepDives) == 0 &&
		len(b.PhotoAnalyses) == 0 && len(b.TrackingSeries) == 0 && len(b.Messages) == 0
}

// summarize renders the bundle as compact prompt text. Full rows are
// never inlined; each record contributes one line.
func (b *dataBundle) summarize() string {
	var s strings.Builder

	fmt.Fprintf(&s, "Data window: %s to %s\n",
		b.Start.Format("2006-01-02"), b.End.Format("2006-01-02"))

	if len(b.QuickScans) > 0 {
		fmt.Fprintf(&s, "\nQuick scans (%d):\n", len(b.QuickScans))
		for _, q := range b.QuickScans {
			fmt.Fprintf(&s, "- %s: %s (confidence %.0f, urgency %s, body parts: %s)\n",
				q.CreatedAt.Format("2006-01-02"),
				q.AnalysisResult.GetString("primaryCondition"),
				q.ConfidenceScore, q.UrgencyLevel, strings.Join(q.BodyParts, ", "))
		}
	}

	if len(b.DeepDives) > 0 {
		fmt.Fprintf(&s, "\nDeep dives (%d):\n", len(b.DeepDives))
		for _, d := range b.DeepDives {
			conf := 0.0
			if d.FinalConfidence != nil {
				conf = *d.FinalConfidence
			}
			fmt.Fprintf(&s, "- %s: %s (confidence %.0f, %d questions asked)\n",
				d.CreatedAt.Format("2006-01-02"),
				d.FinalAnalysis.GetString("primaryCondition"), conf, len(d.Questions))
		}
	}

	if len(b.PhotoAnalyses) > 0 {
		fmt.Fprintf(&s, "\nPhoto analyses (%d):\n", len(b.PhotoAnalyses))
		for _, p := range b.PhotoAnalyses {
			line := fmt.Sprintf("- %s: %s (confidence %.0f",
				p.CreatedAt.Format("2006-01-02"),
				p.AnalysisData.GetString("description"), p.ConfidenceScore)
			if trend := p.Comparison.GetString("trend"); trend != "" {
				line += ", trend " + trend
			}
			if flags := p.AnalysisData.GetStrings("red_flags"); len(flags) > 0 {
				line += ", red flags: " + strings.Join(flags, "; ")
			}
			s.WriteString(line + ")\n")
		}
	}

	if len(b.TrackingSeries) > 0 {
		fmt.Fprintf(&s, "\nTracked metrics (%d):\n", len(b.TrackingSeries))
		for _, ts := range b.TrackingSeries {
			min, max, sum := ts.Points[0].Value, ts.Points[0].Value, 0.0
			for _, p := range ts.Points {
				if p.Value < min {
					min = p.Value
				}
				if p.Value > max {
					max = p.Value
				}
				sum += p.Value
			}
			fmt.Fprintf(&s, "- %s: %d points, min %.1f, max %.1f, avg %.1f (latest %.1f on %s)\n",
				ts.Config.MetricName, len(ts.Points), min, max, sum/float64(len(ts.Points)),
				ts.Points[len(ts.Points)-1].Value,
				ts.Points[len(ts.Points)-1].RecordedAt.Format("2006-01-02"))
		}
	}

	if len(b.Messages) > 0 {
		fmt.Fprintf(&s, "\nHealth chat activity: %d messages in window.\n", len(b.Messages))
		recent := b.Messages
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}
		for _, m := range recent {
			if m.Role != models.RoleUser {
				continue
			}
			content := m.Content
			if len(content) > 120 {
				content = content[:120] + "…"
			}
			fmt.Fprintf(&s, "- user: %s\n", content)
		}
	}

	if b.empty() {
		s.WriteString("\nNo health data was recorded in this window.\n")
	}
	return s.String()
}
