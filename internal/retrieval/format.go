package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Format defaults.
const (
	ContextHeader        = "**Relevant Policy Context:**"
	DefaultMaxContextLen = 2000
	chunkSeparator       = "\n---\n\n"
)

// Format renders results as one grounding block for the prompt and returns
// the matching source list. The whole block, header and separators included,
// stays within maxLen. Chunks are added in order until the next one would not
// fit; the first chunk is always kept, truncated when it is too long on its
// own. An empty result set returns "" and no sources.
func Format(results []Result, maxLen int) (string, []Source) {
	if len(results) == 0 {
		return "", nil
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxContextLen
	}

	prefix := ContextHeader + "\n\n"
	var b strings.Builder
	var sources []Source
	for i, r := range results {
		m := r.Chunk.Metadata
		docID := m.DocumentID
		if docID == "" {
			docID = "UNKNOWN"
		}
		title := m.Title
		if title == "" {
			title = "Untitled"
		}
		label := fmt.Sprintf("[Document %d - %s: %s]\n", i+1, docID, title)
		text := r.Chunk.Text

		used := len(prefix) + b.Len()
		if i > 0 {
			used += len(chunkSeparator)
		}
		if used+len(label)+len(text)+1 > maxLen {
			if i > 0 {
				break
			}
			room := maxLen - used - len(label) - 1
			if room <= 0 {
				return "", nil
			}
			text = truncateUTF8(text, room)
		}
		if i > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(label)
		b.WriteString(text)
		b.WriteString("\n")
		sources = append(sources, Source{
			DocumentID:   docID,
			Title:        title,
			DocumentType: m.DocumentType,
			ChunkID:      r.Chunk.ID,
			Score:        r.Score,
			Path:         m.Source,
		})
	}
	return prefix + b.String(), sources
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
