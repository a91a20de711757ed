package models

// SearchResult is a ranked hit as produced by the index store.
// DenseScore and SparseScore are the fusion inputs; both are zero for blank queries.
type SearchResult struct {
	Document    Document `json:"document"`
	Score       float64  `json:"score"`
	DenseScore  float64  `json:"dense_score"`
	SparseScore float64  `json:"sparse_score"`
	Rank        int      `json:"rank"`
}

// SearchResponse is what the facade's HTTP surface returns: documents only.
type SearchResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Query     string     `json:"query"`
	QueryTime int64      `json:"query_time_ms"`
}
