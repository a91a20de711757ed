package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BERT special tokens. Every vocab.txt of an uncased BERT-family model carries them.
const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"

	maxWordRunes = 100
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// WordPieceTokenizer is the uncased BERT tokenizer: lowercase, strip accents, split on
// whitespace and punctuation, then greedy longest-match WordPiece against the model's
// vocabulary. The IDs it emits are only meaningful for the model the vocabulary ships with.
type WordPieceTokenizer struct {
	vocab              map[string]int64
	cls, sep, pad, unk int64
}

// LoadVocab reads a vocab.txt file with one token per line; the line number is the ID.
func LoadVocab(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var tokens []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		tokens = append(tokens, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return NewWordPieceTokenizer(tokens)
}

// NewWordPieceTokenizer builds a tokenizer from tokens in ID order.
func NewWordPieceTokenizer(tokens []string) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{vocab: make(map[string]int64, len(tokens))}
	for i, tok := range tokens {
		if _, dup := t.vocab[tok]; !dup {
			t.vocab[tok] = int64(i)
		}
	}
	for _, sp := range []struct {
		name string
		dst  *int64
	}{{tokenCLS, &t.cls}, {tokenSEP, &t.sep}, {tokenPAD, &t.pad}, {tokenUNK, &t.unk}} {
		id, ok := t.vocab[sp.name]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", sp.name)
		}
		*sp.dst = id
	}
	return t, nil
}

// Tokenize returns [CLS] pieces [SEP] padded with [PAD] to maxTokens. Text beyond
// maxTokens-2 pieces is truncated.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.pad
	}

	inputIDs[0] = t.cls
	attentionMask[0] = 1
	pos := 1
	for _, id := range t.Encode(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = t.sep
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Encode returns the WordPiece IDs of text without special tokens.
func (t *WordPieceTokenizer) Encode(text string) []int64 {
	var ids []int64
	for _, word := range basicTokens(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

func (t *WordPieceTokenizer) wordPiece(word string) []int64 {
	rs := []rune(word)
	if len(rs) > maxWordRunes {
		return []int64{t.unk}
	}
	var ids []int64
	for start := 0; start < len(rs); {
		end := len(rs)
		found := int64(-1)
		for ; end > start; end-- {
			sub := string(rs[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return []int64{t.unk}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// basicTokens lowercases, strips accents and splits text into words, with every
// punctuation mark and CJK ideograph as its own token.
func basicTokens(text string) []string {
	clean, _, err := transform.String(stripAccents, strings.ToLower(text))
	if err != nil {
		clean = strings.ToLower(text)
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range clean {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
		case unicode.IsSpace(r):
			flush()
		case isPunct(r) || unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// isPunct treats every non-alphanumeric ASCII symbol as punctuation, as BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// Terms lowercases text and splits it into runs of letters and digits.
// Currency and percent signs are dropped; "Q1" and "2024" are kept as terms.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
