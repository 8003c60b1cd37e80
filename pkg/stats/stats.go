// Package stats derives viewing statistics from a diary collection.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Sriram-PR/filmlog-scraper/pkg/models"
)

// TopDirectorsLimit caps StatsSummary.TopDirectors
const TopDirectorsLimit = 5

// RatingKeys are the rating_distribution buckets, always all present
var RatingKeys = []string{"0.5", "1.0", "1.5", "2.0", "2.5", "3.0", "3.5", "4.0", "4.5", "5.0"}

// Compute aggregates records as of now. It does not modify records, and two calls on
// the same collection differ only in LastUpdated. ProfileFilmCount is left at 0.
func Compute(records []models.MovieRecord, now time.Time) models.StatsSummary {
	summary := models.StatsSummary{
		TotalFilms:          len(records),
		GenreDistribution:   map[string]int{},
		RatingDistribution:  make(map[string]int, len(RatingKeys)),
		CountryDistribution: map[string]int{},
		TopDirectors:        []models.DirectorCount{},
		LastUpdated:         now,
	}
	for _, k := range RatingKeys {
		summary.RatingDistribution[k] = 0
	}

	directors := map[string]int{}
	var ratingSum float64
	var rated int

	for _, rec := range records {
		summary.TotalRuntimeMinutes += rec.RuntimeMinutes

		if watched, ok := rec.WatchTime(); ok && watched.Year() == now.Year() {
			summary.FilmsThisYear++
			summary.MonthlyCounts[watched.Month()-1]++
			summary.MonthlyRuntime[watched.Month()-1] += rec.RuntimeMinutes
		}

		if rec.Rating.IsRated() {
			ratingSum += rec.Rating.Stars()
			rated++
			summary.RatingDistribution[rec.Rating.String()]++
		}

		for _, g := range rec.Genres {
			if g = strings.TrimSpace(g); g != "" {
				summary.GenreDistribution[g]++
			}
		}
		if c := strings.TrimSpace(rec.Country); c != "" {
			summary.CountryDistribution[c]++
		}
		if d := strings.TrimSpace(rec.Director); d != "" {
			directors[d]++
		}
	}

	if rated > 0 {
		summary.AverageRating = roundTo(ratingSum/float64(rated), 1)
	}
	summary.TopDirectors = topDirectors(directors, TopDirectorsLimit)
	return summary
}

// topDirectors orders by count descending, then name ascending
func topDirectors(counts map[string]int, limit int) []models.DirectorCount {
	out := make([]models.DirectorCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.DirectorCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
