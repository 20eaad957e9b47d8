package main

import (
	"context"
	"testing"
	"time"

	"banyan/app/qa"
	"banyan/types"
)

type stubFinder struct{}

func (stubFinder) FindReferences(context.Context, string, types.SearchOptions) ([]types.ReferencePassage, error) {
	return nil, nil
}

func TestClaimFinder(t *testing.T) {
	local := stubFinder{}

	if got := claimFinder(local, "", time.Second); got != qa.ReferenceFinder(local) {
		t.Errorf("without REFERENCES_URL claims must use the local retriever, got %T", got)
	}
	if got, ok := claimFinder(local, "http://localhost:3000", time.Second).(*qa.HTTPReferenceClient); !ok || got == nil {
		t.Errorf("with REFERENCES_URL claims must go through the HTTP client")
	}
}
