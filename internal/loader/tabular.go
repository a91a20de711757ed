package loader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultPreviewRows = 5
	topValues          = 5
)

// table is a header plus string rows, as read from CSV or a spreadsheet sheet.
type table struct {
	name   string
	header []string
	rows   [][]string
}

type columnKind string

const (
	kindNumeric     columnKind = "numeric"
	kindCategorical columnKind = "categorical"
	kindEmpty       columnKind = "empty"
)

type columnStats struct {
	name     string
	kind     columnKind
	nulls    int
	min, max float64
	mean     float64
	median   float64
	unique   int
	top      []valueCount
}

type valueCount struct {
	value string
	count int
}

// newTable trims trailing empty rows and pads ragged rows to the header width.
// The first non-empty row is the header; blank header cells become column_<n>.
func newTable(name string, records [][]string) *table {
	var rows [][]string
	for _, r := range records {
		if !blankRow(r) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return &table{name: name}
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	header := make([]string, width)
	for i := range header {
		if i < len(rows[0]) {
			header[i] = strings.TrimSpace(rows[0][i])
		}
		if header[i] == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	body := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		padded := make([]string, width)
		for i := range padded {
			if i < len(r) {
				padded[i] = strings.TrimSpace(r[i])
			}
		}
		body = append(body, padded)
	}
	return &table{name: name, header: header, rows: body}
}

func blankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (t *table) column(i int) []string {
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out
}

func describe(name string, values []string) columnStats {
	st := columnStats{name: name}
	var nums []float64
	counts := make(map[string]int)
	for _, v := range values {
		if v == "" {
			st.nulls++
			continue
		}
		counts[v]++
		if isNumeric(v) {
			if f, ok := parseNumber(v); ok {
				nums = append(nums, f)
			}
		}
	}
	nonNull := len(values) - st.nulls
	st.unique = len(counts)
	switch {
	case nonNull == 0:
		st.kind = kindEmpty
	case len(nums) == nonNull:
		st.kind = kindNumeric
		sort.Float64s(nums)
		st.min, st.max = nums[0], nums[len(nums)-1]
		var sum float64
		for _, f := range nums {
			sum += f
		}
		st.mean = sum / float64(len(nums))
		mid := len(nums) / 2
		if len(nums)%2 == 0 {
			st.median = (nums[mid-1] + nums[mid]) / 2
		} else {
			st.median = nums[mid]
		}
	default:
		st.kind = kindCategorical
		for v, c := range counts {
			st.top = append(st.top, valueCount{value: v, count: c})
		}
		sort.Slice(st.top, func(i, j int) bool {
			if st.top[i].count != st.top[j].count {
				return st.top[i].count > st.top[j].count
			}
			return st.top[i].value < st.top[j].value
		})
		if len(st.top) > topValues {
			st.top = st.top[:topValues]
		}
	}
	return st
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimLeft(s, "$€£¥")
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// summarize serializes a table into a searchable data summary: shape, column
// kinds, numeric and categorical statistics, and a markdown preview.
func summarize(t *table, previewRows int) string {
	var b strings.Builder
	if t.name != "" {
		fmt.Fprintf(&b, "# %s\n\n", t.name)
	}
	fmt.Fprintf(&b, "Data Info: %d rows x %d columns\n", len(t.rows), len(t.header))
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(t.header, ", "))

	stats := make([]columnStats, len(t.header))
	for i, h := range t.header {
		stats[i] = describe(h, t.column(i))
	}

	b.WriteString("Column Types:\n")
	for _, st := range stats {
		fmt.Fprintf(&b, "- %s: %s\n", st.name, st.kind)
	}

	var numeric, categorical []columnStats
	for _, st := range stats {
		switch st.kind {
		case kindNumeric:
			numeric = append(numeric, st)
		case kindCategorical:
			categorical = append(categorical, st)
		}
	}
	if len(numeric) > 0 {
		b.WriteString("\nNumerical Columns:\n")
		for _, st := range numeric {
			fmt.Fprintf(&b, "- %s: min=%s max=%s mean=%s median=%s nulls=%d\n",
				st.name, formatFloat(st.min), formatFloat(st.max), formatFloat(st.mean), formatFloat(st.median), st.nulls)
		}
	}
	if len(categorical) > 0 {
		b.WriteString("\nCategorical Columns:\n")
		for _, st := range categorical {
			tops := make([]string, len(st.top))
			for i, vc := range st.top {
				tops[i] = fmt.Sprintf("%s (%d)", vc.value, vc.count)
			}
			fmt.Fprintf(&b, "- %s: unique=%d nulls=%d top=%s\n", st.name, st.unique, st.nulls, strings.Join(tops, ", "))
		}
	}

	if len(t.rows) > 0 {
		b.WriteString("\nPreview:\n")
		writeMarkdownTable(&b, t.header, t.rows[:min(previewRows, len(t.rows))])
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(escapeCells(header), " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, r := range rows {
		b.WriteString("| " + strings.Join(escapeCells(r), " | ") + " |\n")
	}
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "\n", " ")
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
