package internal

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Headings of a typical academic paper, or markdown headings up to ###.
var sectionRegex = regexp.MustCompile(`(?im)^(#{1,3}\s+.+|(?:Abstract|Introduction|Methods|Results|Discussion|Conclusion|References|Findings|Implications)[\s:]+)`)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

type TokenCounter func(text string) int

// EstimateTokens is the rough 1 token ~ 4 characters rule.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// NewTokenCounter counts with the cl100k_base encoding used by the OpenAI
// embedding models. tiktoken fetches its BPE ranks on first use; when that
// fails the estimate is used instead.
func NewTokenCounter(logger *slog.Logger) TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens from length", "error", err)
		return EstimateTokens
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}

type TextChunk struct {
	Content string
	Tokens  int
	Section *string
}

// Chunker packs paragraphs into chunks of about TargetTokens tokens. Each new
// chunk starts with the last Overlap words of the previous one.
type Chunker struct {
	TargetTokens int
	Overlap      int
	Count        TokenCounter
}

func (c Chunker) Split(text string) []TextChunk {
	count := c.Count
	if count == nil {
		count = EstimateTokens
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		result  []TextChunk
		current string
		tokens  int
		section *string
	)

	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraTokens := count(para)

		if current != "" && tokens+paraTokens > c.TargetTokens {
			result = append(result, TextChunk{Content: strings.TrimSpace(current), Tokens: tokens, Section: section})

			if tail := overlapTail(current, c.Overlap); tail != "" {
				current = tail + "\n\n" + para
			} else {
				current = para
			}
			tokens = count(current)
		} else {
			if current != "" {
				current += "\n\n"
			}
			current += para
			tokens += paraTokens
		}

		// a heading labels the chunks that follow it
		if m := sectionRegex.FindString(para); m != "" {
			s := strings.TrimSpace(m)
			section = &s
		}
	}

	if strings.TrimSpace(current) != "" {
		result = append(result, TextChunk{Content: strings.TrimSpace(current), Tokens: tokens, Section: section})
	}
	return result
}

func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
