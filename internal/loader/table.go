package loader

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	markdownSeparator = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?$`)
	multiSpace        = regexp.MustCompile(`\s{2,}`)
)

const minTableRows = 3

// DetectTable reports whether text contains tabular data: a markdown table (pipe row
// followed by a separator row), at least three consecutive lines of three or more
// tab-separated cells, or at least three consecutive lines of three or more
// space-aligned columns that are mostly numeric.
func DetectTable(text string) bool {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		prev := strings.TrimSpace(lines[i-1])
		cur := strings.TrimSpace(lines[i])
		if strings.Count(prev, "|") >= 2 && markdownSeparator.MatchString(cur) {
			return true
		}
	}
	return consecutive(lines, tabRow) || consecutive(lines, alignedNumericRow)
}

func consecutive(lines []string, isRow func(string) bool) bool {
	run := 0
	for _, line := range lines {
		if isRow(line) {
			run++
			if run >= minTableRows {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func tabRow(line string) bool {
	return len(strings.Split(strings.TrimSpace(line), "\t")) >= 3
}

func alignedNumericRow(line string) bool {
	cells := multiSpace.Split(strings.TrimSpace(line), -1)
	if len(cells) < 3 {
		return false
	}
	numeric := 0
	for _, c := range cells {
		if isNumeric(c) {
			numeric++
		}
	}
	return numeric*2 > len(cells)
}

// isNumeric accepts plain numbers plus common decorations: thousands separators,
// currency symbols, percent signs, and accounting parentheses.
func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimLeft(s, "$€£¥")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
