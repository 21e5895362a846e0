package types

// DocumentRef identifies a document and carries its display fields.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Plot  string `json:"plot"`
	Year  int    `json:"year"`
}

// ScoredHit is a single source's opinion about a document: its reciprocal
// rank score for that source.
type ScoredHit struct {
	Doc   DocumentRef
	Score float64
}

// FusedResult represents a single result from a hybrid query.
type FusedResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Plot  string `json:"plot"`
	Year  int    `json:"year"`

	// VectorScore is the reciprocal rank score from the vector source,
	// 0 if the document was not returned by it.
	VectorScore float64 `json:"vector_score"`

	// TextScore is the reciprocal rank score from the full-text source,
	// 0 if the document was not returned by it.
	TextScore float64 `json:"text_score"`

	// CombinedScore is VectorScore + TextScore.
	CombinedScore float64 `json:"score"`
}

// Document returns the display fields of the result.
func (r FusedResult) Document() DocumentRef {
	return DocumentRef{ID: r.ID, Title: r.Title, Plot: r.Plot, Year: r.Year}
}
