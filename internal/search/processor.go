package search

import "github.com/hyperjump/dashrag/internal/models"

// ProcessQuery validates the query and applies the k defaults in place.
func ProcessQuery(query *models.SearchQuery, defaultK, maxK int) error {
	if query == nil {
		return models.ErrInvalidK
	}
	return query.Validate(defaultK, maxK)
}
