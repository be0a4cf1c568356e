package sdk

// SearchResult is a single ranked hit.
type SearchResult struct {
	BookID          string  `json:"book_id"`
	Score           float64 `json:"score"`
	Title           string  `json:"title,omitempty"`
	Snippet         string  `json:"snippet,omitempty"`
	CoverID         *int64  `json:"cover_i,omitempty"`
	CoverURL        string  `json:"cover_url,omitempty"`
	FullDescription string  `json:"full_description,omitempty"`
}

// SearchResponse is the answer to a free-text search.
type SearchResponse struct {
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Results []SearchResult `json:"results"`
}

// Seed describes the reference book of a similarity query.
type Seed struct {
	BookID   string  `json:"book_id"`
	Score    float64 `json:"score"`
	Title    string  `json:"title,omitempty"`
	Snippet  string  `json:"snippet,omitempty"`
	CoverID  *int64  `json:"cover_i,omitempty"`
	CoverURL string  `json:"cover_url,omitempty"`
}

// SimilarResponse is the answer to a more-like-this query.
type SimilarResponse struct {
	Seed    Seed           `json:"seed"`
	Query   string         `json:"query"`
	K       int            `json:"k"`
	Results []SearchResult `json:"results"`
}

// HealthReport is the aggregated service health.
type HealthReport struct {
	Status    string            `json:"status"`
	IndexSize int               `json:"index_size"`
	Checks    map[string]string `json:"checks"`
}
