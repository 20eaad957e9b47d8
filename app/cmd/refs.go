package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"banyan/types"

	"github.com/spf13/cobra"
)

var searchFlags struct {
	topK          int
	minSimilarity float64
	passThreshold float64
}

var refsCmd = &cobra.Command{
	Use:   "refs <claim>",
	Short: "Find research passages for a claim",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := types.ReferenceParams{ClaimText: strings.Join(args, " ")}
		params.TopK, params.MinSimilarity, _ = knobs(cmd)
		if err := invalid(types.Validate(&params)); err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		refs, err := rt.retriever.FindReferences(ctx, params.ClaimText, params.Options())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"references": refs})
	},
}

// knobs returns the search flags that were set on the command line.
func knobs(cmd *cobra.Command) (topK *int, minSimilarity, passThreshold *float64) {
	f := cmd.Flags()
	if f.Changed("top-k") {
		topK = &searchFlags.topK
	}
	if f.Changed("min-similarity") {
		minSimilarity = &searchFlags.minSimilarity
	}
	if f.Changed("pass-threshold") {
		passThreshold = &searchFlags.passThreshold
	}
	return topK, minSimilarity, passThreshold
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&searchFlags.topK, "top-k", types.DefaultTopK, "number of passages per claim (1-10)")
	cmd.Flags().Float64Var(&searchFlags.minSimilarity, "min-similarity", types.DefaultMinSimilarity, "similarity floor (0-1)")
}

// invalid turns validation details into a single error, fields sorted.
func invalid(details map[string]string) error {
	if len(details) == 0 {
		return nil
	}
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, len(fields))
	for i, field := range fields {
		msgs[i] = field + " " + details[field]
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	addSearchFlags(refsCmd)
	rootCmd.AddCommand(refsCmd)
}
