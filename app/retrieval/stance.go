package retrieval

import (
	"strings"

	"banyan/types"
)

// Keyword lists are matched against the lower-cased passage. Conflict
// keywords win over support keywords. This is a best-effort heuristic, not a
// classifier: it ignores negation and the claim itself.
var (
	conflictKeywords = []string{"contradict", "however,", "in contrast", "disagree", "opposes"}
	supportKeywords  = []string{"evidence", "supports", "consistent with", "confirms", "validates", "demonstrates"}
)

func ClassifyStance(content string) types.Stance {
	lower := strings.ToLower(content)
	if containsAny(lower, conflictKeywords) {
		return types.StanceConflicts
	}
	if containsAny(lower, supportKeywords) {
		return types.StanceSupports
	}
	return types.StanceNeutral
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
