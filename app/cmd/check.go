package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"banyan/app/qa"
	"banyan/types"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var frameworkFile bool

var checkCmd = &cobra.Command{
	Use:   "check <claims-file>",
	Short: "Validate a batch of claims against the corpus",
	Long: `Validate the claims listed in a YAML or JSON file:

  claims:
    - id: c1
      text: Goal congruence improves employee engagement
      section: strategy

With --framework the file is a Vision Framework JSON document and the claims
are extracted from it first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := readClaims(args[0], frameworkFile)
		if err != nil {
			return err
		}

		params := types.RunClaimsParams{Claims: claims}
		params.TopK, params.MinSimilarity, params.PassThreshold = knobs(cmd)
		if err := invalid(types.Validate(&params)); err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		checks := rt.validator().Run(ctx, params.Claims, params.Options())
		return printJSON(cmd.OutOrStdout(), map[string]any{"claims": params.Claims, "checks": checks})
	},
}

type claimsFile struct {
	Claims []types.Claim `yaml:"claims"`
}

func readClaims(path string, framework bool) ([]types.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if framework {
		var f types.Framework
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid framework %s: %w", path, err)
		}
		return qa.ExtractClaims(f), nil
	}

	var f claimsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid claims file %s: %w", path, err)
	}
	if f.Claims == nil {
		return nil, fmt.Errorf("no claims in %s", path)
	}
	return f.Claims, nil
}

func init() {
	addSearchFlags(checkCmd)
	checkCmd.Flags().Float64Var(&searchFlags.passThreshold, "pass-threshold", types.DefaultPassThreshold, "score the best passage must reach (0-1)")
	checkCmd.Flags().BoolVar(&frameworkFile, "framework", false, "read a Vision Framework JSON document")
	rootCmd.AddCommand(checkCmd)
}
