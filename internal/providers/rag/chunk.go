package rag

import (
	"strings"
	"unicode"
)

type Chunk struct {
	Text      string
	TokenSize int
	Index     int
}

type ChunkerConfig struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultChunkerConfig fits the 512 token input of small embedding models.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens:     400,
		OverlapTokens: 50,
	}
}

type Chunker struct {
	tok Tokenizer
	cfg ChunkerConfig
}

func NewChunker(tok Tokenizer, cfg ChunkerConfig) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg = DefaultChunkerConfig()
	}
	return &Chunker{tok: tok, cfg: cfg}
}

// Chunk packs whole sentences into chunks of at most MaxTokens, repeating
// trailing sentences of the previous chunk as overlap.
func (c *Chunker) Chunk(text string) []Chunk {
	cfg := c.cfg
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []Chunk
	var currentChunk strings.Builder
	currentTokens := 0
	chunkIndex := 0

	for i, sentence := range sentences {
		sentenceTokens := c.tok.Count(sentence)

		// Oversized sentence: flush, then cut it by tokens
		if sentenceTokens > cfg.MaxTokens {
			// Flush current buffer if not empty
			if currentChunk.Len() > 0 {
				chunks = append(chunks, Chunk{
					Text:      strings.TrimSpace(currentChunk.String()),
					TokenSize: currentTokens,
					Index:     chunkIndex,
				})
				chunkIndex++
				currentChunk.Reset()
				currentTokens = 0
			}

			for _, piece := range c.tok.Split(sentence, cfg.MaxTokens) {
				piece = strings.TrimSpace(piece)
				if piece == "" {
					continue
				}
				chunks = append(chunks, Chunk{
					Text:      piece,
					TokenSize: c.tok.Count(piece),
					Index:     chunkIndex,
				})
				chunkIndex++
			}
			continue
		}

		if currentTokens+sentenceTokens > cfg.MaxTokens && currentChunk.Len() > 0 {
			chunks = append(chunks, Chunk{
				Text:      strings.TrimSpace(currentChunk.String()),
				TokenSize: currentTokens,
				Index:     chunkIndex,
			})
			chunkIndex++

			overlap := c.overlap(sentences, i)
			currentChunk.Reset()
			currentChunk.WriteString(overlap)
			currentTokens = c.tok.Count(overlap)
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString(" ")
		}
		currentChunk.WriteString(sentence)
		currentTokens += sentenceTokens
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, Chunk{
			Text:      strings.TrimSpace(currentChunk.String()),
			TokenSize: currentTokens,
			Index:     chunkIndex,
		})
	}

	return chunks
}

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '．': true, '…': true,
}

// splitSentences splits paragraphs at sentence enders followed by space,
// end of text or a CJK rune.
func splitSentences(text string) []string {
	paragraphs := splitParagraphs(text)

	var sentences []string

	for _, para := range paragraphs {
		var current strings.Builder
		runes := []rune(para)

		for i, r := range runes {
			current.WriteRune(r)

			if sentenceEnders[r] {
				if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || isCJK(runes[i+1]) {
					s := strings.TrimSpace(current.String())
					if s != "" {
						sentences = append(sentences, s)
					}
					current.Reset()
				}
			}
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
	}

	if len(sentences) == 0 && text != "" {
		return []string{text}
	}

	return sentences
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n\n")

	var result []string
	for _, p := range parts {
		// single newlines are soft wraps
		p = strings.ReplaceAll(p, "\n", " ")
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func (c *Chunker) overlap(sentences []string, currentIdx int) string {
	targetTokens := c.cfg.OverlapTokens
	if currentIdx == 0 || targetTokens <= 0 {
		return ""
	}

	var overlap []string
	tokens := 0

	for i := currentIdx - 1; i >= 0 && tokens < targetTokens; i-- {
		sentTokens := c.tok.Count(sentences[i])
		overlap = append([]string{sentences[i]}, overlap...)
		tokens += sentTokens
	}

	return strings.Join(overlap, " ")
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
