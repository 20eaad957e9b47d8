package types

import (
	"time"

	"github.com/google/uuid"
)

type SourceType string

const (
	SourcePaper   SourceType = "paper"
	SourceArticle SourceType = "article"
	SourceBook    SourceType = "book"
	SourceReport  SourceType = "report"
	SourceThesis  SourceType = "thesis"
)

// Source is the metadata of one research document in the corpus.
type Source struct {
	ID           uuid.UUID
	Title        string
	Type         SourceType
	Authors      []string
	URL          *string
	PublishedAt  *time.Time
	VettingScore *float64
	Hash         string // sha256 of the full text, used for deduplication
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Chunk is an embedded slice of a source's text. Chunks are never updated,
// they only disappear together with their source.
type Chunk struct {
	ID        uuid.UUID
	SourceID  uuid.UUID
	Ord       int
	Content   string
	Tokens    int
	Section   *string
	Embedding []float32
}

// ChunkMatch is one row of a similarity search: a chunk joined to its source.
type ChunkMatch struct {
	ChunkID       uuid.UUID
	ChunkContent  string
	ChunkSection  *string
	SourceID      uuid.UUID
	SourceTitle   string
	SourceURL     *string
	SourceAuthors []string
	Similarity    float64
}

type Section string

const (
	SectionVision   Section = "vision"
	SectionStrategy Section = "strategy"
	SectionRisk     Section = "risk"
	SectionMetrics  Section = "metrics"
	SectionOther    Section = "other"
)

type Claim struct {
	ID      string  `json:"id" yaml:"id" validate:"required"`
	Text    string  `json:"text" yaml:"text" validate:"min=8"`
	Section Section `json:"section,omitempty" yaml:"section,omitempty" validate:"omitempty,oneof=vision strategy risk metrics other"`
}

type Stance string

const (
	StanceSupports  Stance = "supports"
	StanceConflicts Stance = "conflicts"
	StanceNeutral   Stance = "neutral"
)

// ReferencePassage is the public projection of a ChunkMatch.
type ReferencePassage struct {
	ID         string  `json:"id"`
	PaperID    string  `json:"paperId"`
	PaperTitle string  `json:"paperTitle"`
	URL        string  `json:"url,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	Location   string  `json:"location,omitempty"` // page numbers are not tracked, always empty
	Stance     Stance  `json:"stance"`
	Section    string  `json:"section,omitempty"`
}

type QAClaimCheck struct {
	ClaimID    string             `json:"claimId"`
	Pass       bool               `json:"pass"`
	Issues     []string           `json:"issues"`
	References []ReferencePassage `json:"references"`
}

// Framework is the subset of a Vision Framework document that claims are
// extracted from.
type Framework struct {
	Vision       string            `json:"vision"`
	Strategy     []string          `json:"strategy"`
	Metrics      []FrameworkMetric `json:"metrics"`
	NearTermBets []FrameworkBet    `json:"near_term_bets"`
	Tensions     []string          `json:"tensions"`
}

type FrameworkMetric struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

type FrameworkBet struct {
	Bet string `json:"bet"`
}
