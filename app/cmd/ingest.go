package main

import (
	"context"

	"banyan/loader/service"

	"github.com/spf13/cobra"
)

var ingestFlags struct {
	title     string
	authors   []string
	url       string
	kind      string
	published string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a single source file",
	Long: `Chunk, embed and store one .pdf, .txt or .md file. Flags override the
metadata read from the file and its .meta.yaml sidecar. The file itself is
left in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		res, err := rt.ingester().IngestFile(ctx, args[0], applyIngestFlags(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func applyIngestFlags(cmd *cobra.Command) func(*service.SourceInput) error {
	return func(in *service.SourceInput) error {
		f := cmd.Flags()
		if f.Changed("title") {
			in.Title = ingestFlags.title
		}
		if f.Changed("author") {
			in.Authors = ingestFlags.authors
		}
		if f.Changed("url") {
			url := ingestFlags.url
			in.URL = &url
		}
		if f.Changed("type") {
			t, err := service.ParseSourceType(ingestFlags.kind)
			if err != nil {
				return err
			}
			in.Type = t
		}
		if f.Changed("published") {
			t, err := service.ParseDate(ingestFlags.published)
			if err != nil {
				return err
			}
			in.PublishedAt = &t
		}
		return nil
	}
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.title, "title", "", "source title")
	f.StringSliceVar(&ingestFlags.authors, "author", nil, "author, repeatable")
	f.StringVar(&ingestFlags.url, "url", "", "source URL")
	f.StringVar(&ingestFlags.kind, "type", "paper", "paper, article, book, report or thesis")
	f.StringVar(&ingestFlags.published, "published", "", "publication date (2006, 2006-01-02 or RFC 3339)")
	rootCmd.AddCommand(ingestCmd)
}
