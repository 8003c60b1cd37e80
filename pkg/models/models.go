package models

import (
	"strconv"
	"time"
)

// MaxCastMembers is the number of top-billed cast names kept per movie
const MaxCastMembers = 3

// ParseState carries the month/year header seen on an earlier diary row.
// Empty strings mean "not seen yet". Values persist across rows and pages of one run.
type ParseState struct {
	Month string `json:"month,omitempty"`
	Year  string `json:"year,omitempty"`
}

// Ready reports whether both month and year have been seen
func (s ParseState) Ready() bool {
	return s.Month != "" && s.Year != ""
}

// Rating is a half-star step on the 10-step diary scale (1 = 0.5 stars, 10 = 5 stars).
// The zero value means unrated.
type Rating int

// Stars converts the step to a star value; 0 for unrated
func (r Rating) Stars() float64 {
	if !r.IsRated() {
		return 0
	}
	return float64(r) / 2.0
}

// IsRated reports whether the step lies within the valid 1..10 range
func (r Rating) IsRated() bool {
	return r >= 1 && r <= 10
}

// String renders the star value with one decimal ("4.5", "5.0"), or "" when unrated
func (r Rating) String() string {
	if !r.IsRated() {
		return ""
	}
	return strconv.FormatFloat(r.Stars(), 'f', 1, 64)
}

// MovieRecord is one diary entry, optionally enriched with catalog metadata
type MovieRecord struct {
	Title          string   `json:"title"`
	ReleaseYear    string   `json:"year"`
	WatchDate      string   `json:"watch_date"` // YYYY-MM-DD
	Rating         Rating   `json:"rating,omitempty"`
	Director       string   `json:"director,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	RuntimeMinutes int      `json:"runtime,omitempty"`
	Country        string   `json:"country,omitempty"`
	Cast           []string `json:"cast,omitempty"`
}

// WatchTime parses WatchDate; ok is false when the date is missing or malformed
func (m MovieRecord) WatchTime() (t time.Time, ok bool) {
	t, err := time.Parse(time.DateOnly, m.WatchDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsEnriched reports whether any catalog field has been filled
func (m MovieRecord) IsEnriched() bool {
	return m.Director != "" || len(m.Genres) > 0 || m.RuntimeMinutes > 0 || m.Country != "" || len(m.Cast) > 0
}

// DirectorCount is one entry of the top-directors list
type DirectorCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsSummary holds aggregate statistics derived from a MovieRecord collection
type StatsSummary struct {
	TotalFilms          int             `json:"total_films"`
	FilmsThisYear       int             `json:"films_this_year"`
	AverageRating       float64         `json:"average_rating"`
	TotalRuntimeMinutes int             `json:"total_runtime"`
	MonthlyCounts       [12]int         `json:"monthly_data"`    // current year, Jan..Dec
	MonthlyRuntime      [12]int         `json:"monthly_runtime"` // current year, minutes, Jan..Dec
	GenreDistribution   map[string]int  `json:"genre_distribution"`
	RatingDistribution  map[string]int  `json:"rating_distribution"`
	CountryDistribution map[string]int  `json:"country_distribution"`
	TopDirectors        []DirectorCount `json:"top_directors"`
	ProfileFilmCount    int             `json:"profile_film_count"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// RunCheckpoint is the persisted snapshot of a run in progress
type RunCheckpoint struct {
	RunID     string        `json:"run_id"`
	Username  string        `json:"username"`
	Page      int           `json:"page"` // last page fully parsed
	State     ParseState    `json:"state"`
	Records   []MovieRecord `json:"records"`
	Enriched  int           `json:"enriched"` // records[:Enriched] have been through the enricher
	Completed bool          `json:"completed"`
	UpdatedAt time.Time     `json:"updated_at"`
}
