package tmdb

// SearchResult is one candidate from /search/movie
type SearchResult struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
}

type searchResponse struct {
	Page         int            `json:"page"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

// Genre is a named genre in API order
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductionCountry is one entry of production_countries
type ProductionCountry struct {
	ISO3166 string `json:"iso_3166_1"`
	Name    string `json:"name"`
}

// MovieDetails holds the /movie/{id} fields used for enrichment
type MovieDetails struct {
	ID                  int                 `json:"id"`
	Title               string              `json:"title"`
	Runtime             int                 `json:"runtime"`
	Genres              []Genre             `json:"genres"`
	ProductionCountries []ProductionCountry `json:"production_countries"`
}

// CastMember is one cast credit
type CastMember struct {
	Name       string  `json:"name"`
	Character  string  `json:"character"`
	Popularity float64 `json:"popularity"`
	Order      int     `json:"order"`
}

// CrewMember is one crew credit
type CrewMember struct {
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// Credits holds /movie/{id}/credits
type Credits struct {
	ID   int          `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// errorResponse is the body TMDB sends with non-2xx statuses
type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}
