// Package cli formats search results and collection status for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

const previewRunes = 200

// SearchOutput is the JSON shape of a search printed by the CLI.
type SearchOutput struct {
	Query     string                 `json:"query"`
	QueryTime int64                  `json:"query_time_ms"`
	Total     int                    `json:"total"`
	Results   []*models.SearchResult `json:"results"`
}

// WriteSearchResults writes results to w in the given format. Unknown formats fall
// back to text.
func WriteSearchResults(w io.Writer, query string, results []*models.SearchResult, elapsed time.Duration, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		if results == nil {
			results = []*models.SearchResult{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(SearchOutput{
			Query:     query,
			QueryTime: elapsed.Milliseconds(),
			Total:     len(results),
			Results:   results,
		})
	case OutputCompact:
		for _, r := range results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n", r.Rank, r.Score, r.Document.ID,
				r.Document.Metadata.SourceFile, TruncateWords(oneLine(r.Document.Content), 12))
		}
		return nil
	default:
		writeSearchResultsText(w, query, results, elapsed)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, query string, results []*models.SearchResult, elapsed time.Duration) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", len(results), query, elapsed.Milliseconds())
	for _, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Dense: %.4f, Sparse: %.4f)\n", r.Rank, r.Score, r.DenseScore, r.SparseScore)
		fmt.Fprintf(w, "ID: %s\n", r.Document.ID)
		fmt.Fprintf(w, "Source: %s", r.Document.Metadata.SourceFile)
		if r.Document.Metadata.HasTable {
			fmt.Fprint(w, " [table]")
		}
		fmt.Fprintf(w, "\n\n%s\n\n", utils.Truncate(r.Document.Content, previewRunes))
	}
}

// WriteStatus prints a collection summary. info is nil when no collection exists yet.
func WriteStatus(w io.Writer, path string, info *models.CollectionInfo, documents int, diskBytes int64) {
	fmt.Fprintf(w, "Collection: %s\n", path)
	if info == nil {
		fmt.Fprintln(w, "Status:     not built (ingest a file to create it)")
		return
	}
	fmt.Fprintf(w, "Name:       %s\n", info.Name)
	fmt.Fprintf(w, "Backend:    %s\n", info.Backend)
	fmt.Fprintf(w, "Dense:      %s (%d dims)\n", info.DenseModel, info.Dimensions)
	fmt.Fprintf(w, "Sparse:     %s\n", info.SparseModel)
	fmt.Fprintf(w, "Created:    %s\n", info.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Documents:  %d\n", documents)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(diskBytes))
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
