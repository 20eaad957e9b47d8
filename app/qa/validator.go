package qa

import (
	"context"
	"fmt"
	"log/slog"

	"banyan/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	issueNoEvidence     = "No similar evidence found in research corpus."
	issueBelowThreshold = "Evidence similarity (%.2f) below threshold (%.2f)."
	issueFailed         = "Validation failed: %s"
)

// ReferenceFinder is the reference pipeline as seen by the validator. It is
// satisfied by the in-process retrieval.Retriever and by HTTPReferenceClient.
type ReferenceFinder interface {
	FindReferences(ctx context.Context, text string, opts types.SearchOptions) ([]types.ReferencePassage, error)
}

type Validator struct {
	finder      ReferenceFinder
	concurrency int
	logger      *slog.Logger
	checked     metric.Int64Counter
}

// NewValidator returns a validator that checks claims one at a time when
// concurrency <= 1 and with at most concurrency claims in flight otherwise.
func NewValidator(finder ReferenceFinder, concurrency int, logger *slog.Logger) *Validator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	checked, err := otel.Meter("banyan/qa").Int64Counter(
		"qa.claims.checked",
		metric.WithDescription("Claims checked, by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create claims counter", "error", err)
	}
	return &Validator{
		finder:      finder,
		concurrency: concurrency,
		logger:      logger,
		checked:     checked,
	}
}

// Run returns exactly one check per claim, in input order. A failing claim
// never affects the others.
func (v *Validator) Run(ctx context.Context, claims []types.Claim, opts types.ValidationOptions) []types.QAClaimCheck {
	v.logger.Info("validating claims", "count", len(claims), "concurrency", v.concurrency)

	checks := make([]types.QAClaimCheck, len(claims))
	if v.concurrency == 1 {
		for i, c := range claims {
			checks[i] = v.check(ctx, c, opts)
		}
	} else {
		// the group context is never cancelled: check swallows every error
		var g errgroup.Group
		g.SetLimit(v.concurrency)
		for i, c := range claims {
			g.Go(func() error {
				checks[i] = v.check(ctx, c, opts)
				return nil
			})
		}
		_ = g.Wait()
	}

	passed := 0
	for _, c := range checks {
		if c.Pass {
			passed++
		}
	}
	v.logger.Info("claims validated", "passed", passed, "total", len(checks))
	return checks
}

func (v *Validator) check(ctx context.Context, claim types.Claim, opts types.ValidationOptions) types.QAClaimCheck {
	refs, err := v.finder.FindReferences(ctx, claim.Text, opts.SearchOptions)
	if err != nil {
		v.logger.Error("claim validation failed", "claim_id", claim.ID, "error", err)
		v.record(ctx, "error")
		return types.QAClaimCheck{
			ClaimID:    claim.ID,
			Pass:       false,
			Issues:     []string{fmt.Sprintf(issueFailed, err.Error())},
			References: []types.ReferencePassage{},
		}
	}
	if refs == nil {
		refs = []types.ReferencePassage{}
	}

	check := Evaluate(claim.ID, refs, opts.PassThreshold)
	if check.Pass {
		v.record(ctx, "pass")
	} else {
		v.record(ctx, "fail")
	}
	return check
}

// Evaluate applies the pass rule to the references of one claim: the best
// (first) reference must reach passThreshold. No references never passes.
func Evaluate(claimID string, refs []types.ReferencePassage, passThreshold float64) types.QAClaimCheck {
	check := types.QAClaimCheck{
		ClaimID:    claimID,
		Issues:     []string{},
		References: refs,
	}

	// No evidence never passes, not even at threshold 0, where the
	// score comparison alone would accept anything.
	if len(refs) == 0 {
		check.Issues = append(check.Issues, issueNoEvidence)
		return check
	}

	best := refs[0].Score
	check.Pass = best >= passThreshold
	if !check.Pass {
		check.Issues = append(check.Issues, fmt.Sprintf(issueBelowThreshold, best, passThreshold))
	}
	return check
}

func (v *Validator) record(ctx context.Context, outcome string) {
	if v.checked == nil {
		return
	}
	v.checked.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
