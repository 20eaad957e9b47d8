package qa

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"banyan/types"
)

const minExtractedLength = 20

// longEnough counts characters, not bytes.
func longEnough(s string) bool {
	return utf8.RuneCountInString(s) > minExtractedLength
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// ExtractClaims turns a Vision Framework into checkable claims: up to three
// vision sentences, three strategy items, three metrics, two near-term bets
// and two tensions. Ids are positional, e.g. "strategy-2".
func ExtractClaims(f types.Framework) []types.Claim {
	var claims []types.Claim
	add := func(id, text string, section types.Section) {
		if len([]rune(text)) < types.MinClaimTextLength {
			return
		}
		claims = append(claims, types.Claim{ID: id, Text: text, Section: section})
	}

	if longEnough(f.Vision) {
		var sentences []string
		for _, s := range sentenceSplit.Split(f.Vision, -1) {
			if s = strings.TrimSpace(s); longEnough(s) {
				sentences = append(sentences, s)
			}
		}
		for i, s := range first(sentences, 3) {
			add(fmt.Sprintf("vision-%d", i), s, types.SectionVision)
		}
	}

	for i, item := range first(f.Strategy, 3) {
		if longEnough(item) {
			add(fmt.Sprintf("strategy-%d", i), item, types.SectionStrategy)
		}
	}

	for i, m := range first(f.Metrics, 3) {
		if m.Name != "" && m.Target != "" {
			add(fmt.Sprintf("metrics-%d", i), m.Name+": "+m.Target, types.SectionMetrics)
		}
	}

	for i, b := range first(f.NearTermBets, 2) {
		if longEnough(b.Bet) {
			add(fmt.Sprintf("bet-%d", i), b.Bet, types.SectionRisk)
		}
	}

	for i, t := range first(f.Tensions, 2) {
		if longEnough(t) {
			add(fmt.Sprintf("tension-%d", i), t, types.SectionRisk)
		}
	}

	if claims == nil {
		return []types.Claim{}
	}
	return claims
}

func first[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
