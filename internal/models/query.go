package models

import "strings"

// SearchQuery is a request to the search facade.
// K of zero means "use the default"; negative K is rejected.
type SearchQuery struct {
	Query      string `json:"query"`
	K          int    `json:"k,omitempty"`
	TablesOnly bool   `json:"tables_only,omitempty"`
	Filter     Filter `json:"filter,omitempty"`
}

// Validate applies defaults and bounds. defaultK and maxK come from configuration.
func (q *SearchQuery) Validate(defaultK, maxK int) error {
	if q.K < 0 {
		return ErrInvalidK
	}
	if q.K == 0 {
		q.K = defaultK
	}
	if q.K < 1 {
		q.K = 1
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

// IsBlank reports whether the query has no searchable text.
func (q *SearchQuery) IsBlank() bool {
	return strings.TrimSpace(q.Query) == ""
}

// EffectiveFilter combines Filter with the TablesOnly flag.
func (q *SearchQuery) EffectiveFilter() Filter {
	if q.TablesOnly {
		return q.Filter.Merge(TablesOnly())
	}
	return q.Filter.Merge(nil)
}
