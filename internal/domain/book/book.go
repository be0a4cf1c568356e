// Package book holds the catalog-item types shared between the retrieval
// engine and its callers.
package book

// Meta is one row of the metadata table. Its position in the table is the
// join key to the vector index, so the field carries no identifier beyond Key.
type Meta struct {
	Key     string
	Title   string
	CoverID int64 // 0 when the catalog has no cover for this book
}

// Hit is a single ranked search result. Score is the inner product against
// the query vector, in [-1, 1]; higher is more similar. Title and Snippet
// default to "" and CoverID to nil when enrichment data is missing — gaps in
// display fields never fail a search.
type Hit struct {
	Key     string
	Score   float64
	Title   string
	Snippet string
	CoverID *int64
}
