package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AnalyzedQuery is a query split into the parts the embedders see and the
// search-box syntax they do not.
type AnalyzedQuery struct {
	Original string
	// Terms are the bare words, in order, with their original casing.
	Terms []string
	// Phrases are the contents of double-quoted spans.
	Phrases []string
	// Negated holds -term words. They are dropped from the embedded text.
	Negated []string
	// text is Original with operators, quotes and negations removed.
	text string
}

var queryTokenRe = regexp.MustCompile(`"[^"]*"|\S+`)

// AnalyzeQuery strips search-box syntax from a query: AND/OR/NOT operators,
// double quotes around phrases, and -term negations.
func AnalyzeQuery(query string) *AnalyzedQuery {
	aq := &AnalyzedQuery{Original: query}
	var parts []string
	for _, tok := range queryTokenRe.FindAllString(query, -1) {
		switch {
		case len(tok) >= 2 && strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`):
			phrase := strings.TrimSpace(tok[1 : len(tok)-1])
			if phrase != "" {
				aq.Phrases = append(aq.Phrases, phrase)
				parts = append(parts, phrase)
			}
		case tok == "AND" || tok == "OR" || tok == "NOT":
		case isNegation(tok):
			aq.Negated = append(aq.Negated, tok[1:])
		default:
			tok = strings.Trim(tok, `"`)
			if tok != "" {
				aq.Terms = append(aq.Terms, tok)
				parts = append(parts, tok)
			}
		}
	}
	aq.text = strings.Join(parts, " ")
	return aq
}

// isNegation matches -word but not numbers such as -5%.
func isNegation(tok string) bool {
	if len(tok) < 2 || tok[0] != '-' {
		return false
	}
	r, _ := utf8.DecodeRuneInString(tok[1:])
	return unicode.IsLetter(r)
}

// Text returns the query as the embedders should see it. A query that is nothing
// but syntax falls back to the trimmed original so it is not mistaken for a blank query.
func (aq *AnalyzedQuery) Text() string {
	if aq.text == "" {
		return strings.TrimSpace(aq.Original)
	}
	return aq.text
}
