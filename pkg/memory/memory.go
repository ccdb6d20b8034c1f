// Package memory provides the experience memory: an append-only store of
// past (task, resolution, critique) tuples that biases future attempts.
package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/mendsys/mend/pkg/incident"
)

// DefaultTopK bounds how many experiences a retrieval returns when the
// query does not say otherwise.
const DefaultTopK = 3

// Query selects experiences relevant to a task.
type Query struct {
	// Category filters by incident category. Matching is a substring
	// test so "db" finds "database".
	Category string

	// Text is the task statement, used by similarity-capable backends.
	Text string

	// TopK bounds the result size. Zero means DefaultTopK.
	TopK int
}

func (q Query) limit() int {
	if q.TopK > 0 {
		return q.TopK
	}
	return DefaultTopK
}

// Store is the experience memory contract. Implementations are
// append-only: records are never updated, only added or cleared.
type Store interface {
	// Store appends an experience record.
	Store(ctx context.Context, exp *incident.Experience) error

	// Retrieve returns past experiences ranked most relevant first.
	// An empty memory yields an empty slice and a nil error.
	Retrieve(ctx context.Context, q Query) ([]*incident.Experience, error)

	// Stats summarizes the improvement trajectory.
	Stats(ctx context.Context) (*Stats, error)

	// Timeline returns per-record entries with running averages.
	Timeline(ctx context.Context) ([]TimelineEntry, error)

	// Clear removes all stored experiences.
	Clear(ctx context.Context) error
}

// CategoryStats aggregates scores for one category.
type CategoryStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"avg"`
}

// Stats summarizes how resolution quality has evolved.
type Stats struct {
	TotalResolutions   int                       `json:"total_resolutions"`
	OverallAverage     float64                   `json:"overall_average_score"`
	BestScore          float64                   `json:"best_score"`
	LatestScore        float64                   `json:"latest_score"`
	FirstToLastDelta   float64                   `json:"improvement_first_to_last"`
	ByCategory         map[string]CategoryStats  `json:"by_category"`
}

// TimelineEntry is one point on the improvement chart.
type TimelineEntry struct {
	Index         int     `json:"index"`
	Timestamp     string  `json:"timestamp"`
	Category      string  `json:"category"`
	Score         float64 `json:"score"`
	CumulativeAvg float64 `json:"cumulative_avg"`
}

// rank filters experiences by category substring, orders them best score
// first, and truncates to the query limit.
func rank(all []*incident.Experience, q Query) []*incident.Experience {
	cat := strings.ToLower(strings.TrimSpace(q.Category))
	matched := make([]*incident.Experience, 0, len(all))
	for _, e := range all {
		if cat == "" || strings.Contains(string(e.Category), cat) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Score() > matched[j].Score()
	})
	if limit := q.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// computeStats derives Stats from records in insertion order.
func computeStats(all []*incident.Experience) *Stats {
	stats := &Stats{
		ByCategory: make(map[string]CategoryStats),
	}
	if len(all) == 0 {
		return stats
	}

	var sum float64
	perCat := make(map[string][]float64)
	for _, e := range all {
		s := e.Score()
		sum += s
		if s > stats.BestScore {
			stats.BestScore = s
		}
		cat := string(e.Category)
		perCat[cat] = append(perCat[cat], s)
	}

	stats.TotalResolutions = len(all)
	stats.OverallAverage = incident.Round3(sum / float64(len(all)))
	stats.LatestScore = all[len(all)-1].Score()
	stats.FirstToLastDelta = incident.Round3(all[len(all)-1].Score() - all[0].Score())

	for cat, scores := range perCat {
		var catSum float64
		for _, s := range scores {
			catSum += s
		}
		stats.ByCategory[cat] = CategoryStats{
			Count:   len(scores),
			Average: incident.Round3(catSum / float64(len(scores))),
		}
	}
	return stats
}

// computeTimeline derives chart entries from records in insertion order.
func computeTimeline(all []*incident.Experience) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(all))
	var runningSum float64
	for i, e := range all {
		runningSum += e.Score()
		entries = append(entries, TimelineEntry{
			Index:         i + 1,
			Timestamp:     e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Category:      string(e.Category),
			Score:         e.Score(),
			CumulativeAvg: incident.Round3(runningSum / float64(i+1)),
		})
	}
	return entries
}
