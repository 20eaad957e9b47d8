package retrieval

import (
	"math"

	"banyan/types"
)

const (
	snippetLength = 300
	ellipsis      = "..."
)

// FormatReference projects a search row into the public passage shape.
func FormatReference(m types.ChunkMatch) types.ReferencePassage {
	ref := types.ReferencePassage{
		ID:         m.ChunkID.String(),
		PaperID:    m.SourceID.String(),
		PaperTitle: m.SourceTitle,
		Snippet:    snippet(m.ChunkContent),
		Score:      roundScore(m.Similarity),
		Stance:     ClassifyStance(m.ChunkContent),
	}
	if m.SourceURL != nil {
		ref.URL = *m.SourceURL
	}
	if m.ChunkSection != nil {
		ref.Section = *m.ChunkSection
	}
	return ref
}

// snippet cuts on rune boundaries so multi-byte text is never split.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + ellipsis
}

func roundScore(s float64) float64 {
	r := math.Round(s*1000) / 1000
	return math.Max(0, math.Min(1, r))
}
