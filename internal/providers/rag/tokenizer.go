package rag

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens and cuts text into pieces of at most maxTokens.
type Tokenizer interface {
	Count(text string) int
	Split(text string, maxTokens int) []string
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. The BPE ranks are fetched on
// first use, so this fails without network access or a TIKTOKEN_CACHE_DIR.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Split(text string, maxTokens int) []string {
	tokens := t.enc.Encode(text, nil, nil)

	var parts []string
	for i := 0; i < len(tokens); i += maxTokens {
		end := min(i+maxTokens, len(tokens))
		parts = append(parts, t.enc.Decode(tokens[i:end]))
	}
	return parts
}

// Heuristic approximates a BPE tokenizer: every word costs one token per
// four runes, rounded up.
type Heuristic struct{}

const runesPerToken = 4

func (Heuristic) Count(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		n += wordTokens(w)
	}
	return n
}

func (Heuristic) Split(text string, maxTokens int) []string {
	var (
		parts  []string
		cur    []string
		tokens int
	)
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.Join(cur, " "))
			cur, tokens = nil, 0
		}
	}

	for _, w := range strings.Fields(text) {
		wt := wordTokens(w)
		if wt > maxTokens {
			flush()
			parts = append(parts, splitRunes(w, maxTokens*runesPerToken)...)
			continue
		}
		if tokens+wt > maxTokens {
			flush()
		}
		cur = append(cur, w)
		tokens += wt
	}
	flush()
	return parts
}

func wordTokens(w string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(w)) / runesPerToken))
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += size {
		out = append(out, string(runes[i:min(i+size, len(runes))]))
	}
	return out
}
