// Package rag owns the retrieval side: chunking KB entries, embedding
// them, the flat vector index, and the index lifecycle with its
// staleness protocol.
package rag

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/bizbot-il/bizbot/model"
)

var blankLinePattern = regexp.MustCompile(`\n\s*\n`)

// EstimateTokens approximates the provider tokenizer with a per-script
// heuristic: Hebrew and Arabic tokenize denser (~3 chars/token) than
// Latin text (~4 chars/token). The split ordering is the correctness
// property, not the exact count.
func EstimateTokens(text string) int {
	dense := 0
	other := 0
	for _, r := range text {
		if unicode.Is(unicode.Hebrew, r) || unicode.Is(unicode.Arabic, r) {
			dense++
		} else {
			other++
		}
	}
	return dense/3 + other/4 + 1
}

// ChunkText splits text under the token budget, hierarchically:
// paragraphs first, then sentences, then words. A single word that
// alone exceeds the budget is emitted as an oversize chunk rather than
// truncated mid-word.
func ChunkText(text string, maxTokens int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if EstimateTokens(trimmed) <= maxTokens {
		return []string{trimmed}
	}

	var chunks []string
	current := ""

	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	// add greedily concatenates piece onto the current chunk, flushing
	// when the budget would be exceeded.
	add := func(piece, sep string) {
		candidate := piece
		if current != "" {
			candidate = current + sep + piece
		}
		if EstimateTokens(candidate) <= maxTokens {
			current = candidate
			return
		}
		flush()
		current = piece
	}

	for _, para := range blankLinePattern.Split(trimmed, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if EstimateTokens(para) <= maxTokens {
			add(para, "\n\n")
			continue
		}

		flush()
		for _, sentence := range splitSentences(para) {
			if EstimateTokens(sentence) <= maxTokens {
				add(sentence, " ")
				continue
			}
			flush()
			for _, word := range strings.Fields(sentence) {
				add(word, " ")
			}
		}
	}

	flush()
	return chunks
}

// splitSentences splits on sentence terminators followed by
// whitespace, keeping the terminator with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// ChunksForEntry chunks a KB entry's content and prefixes each chunk
// with its origin so the embedding captures where the text came from.
func ChunksForEntry(entry model.KBEntry, maxTokens int) []model.Chunk {
	raw := ChunkText(entry.Content, maxTokens)

	chunks := make([]model.Chunk, 0, len(raw))
	for i, text := range raw {
		chunks = append(chunks, model.Chunk{
			EntryID: entry.ID,
			Index:   i,
			Text:    fmt.Sprintf("[%s — %s]\n%s", entry.Category, entry.Title, text),
		})
	}
	return chunks
}
