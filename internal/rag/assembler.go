package rag

import (
	"strings"
	"unicode/utf8"

	prose "github.com/jdkato/prose/v2"

	"github.com/agentforge/backend/internal/vector"
)

// ContextDelimiter separates chunks inside the assembled context.
const ContextDelimiter = "\n\n---\n\n"

const excerptMaxChars = 200

type Citation struct {
	SourceFilename string  `json:"source_filename"`
	Score          float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
}

type AssembledContext struct {
	Text      string
	Citations []Citation
}

// Assemble packs relevance-ordered results into a context string bounded by
// maxContextChars. A chunk that would overflow the budget is dropped whole
// rather than cut mid-sentence; the only exception is the first chunk, which
// is hard-truncated so a non-empty result set always yields a non-empty
// context. Citations cover exactly the chunks that made it in, in order.
func Assemble(results []vector.Match, maxContextChars int) AssembledContext {
	var out AssembledContext
	if maxContextChars <= 0 {
		return out
	}

	var builder strings.Builder
	for _, result := range results {
		addition := len(result.Text)
		if builder.Len() > 0 {
			addition += len(ContextDelimiter)
		}

		if builder.Len()+addition > maxContextChars {
			if builder.Len() > 0 {
				break
			}
			// A single oversized chunk is truncated to fit.
			builder.WriteString(truncate(result.Text, maxContextChars))
			out.Citations = append(out.Citations, makeCitation(result))
			break
		}

		if builder.Len() > 0 {
			builder.WriteString(ContextDelimiter)
		}
		builder.WriteString(result.Text)
		out.Citations = append(out.Citations, makeCitation(result))
	}

	out.Text = builder.String()
	return out
}

func makeCitation(result vector.Match) Citation {
	return Citation{
		SourceFilename: result.SourceFilename,
		Score:          result.Score,
		Excerpt:        excerpt(result.Text),
	}
}

// excerpt returns the first sentence of a chunk, capped for display.
func excerpt(text string) string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		if sentences := doc.Sentences(); len(sentences) > 0 {
			text = sentences[0].Text
		}
	}

	return truncate(strings.TrimSpace(text), excerptMaxChars)
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
