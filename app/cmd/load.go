package main

import (
	"context"
	"time"

	"banyan/loader/service"

	"github.com/spf13/cobra"
)

var pollInterval time.Duration

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Watch the inbox directory and ingest new sources",
	Long: `Watch LOADER_SOURCE_DIR for .pdf, .txt and .md files. A file is ingested once
it has been unchanged for LOADER_MONITORING_TIME, then moved to a dated folder
under LOADER_ARCHIVE_DIR, or LOADER_BAD_DIR when it cannot be ingested.
Metadata may be supplied in a <name>.meta.yaml file next to the source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		svc, err := service.New(rt.ingester(), service.Config{
			SourceDir:      cfg.Loader.SourceDir,
			ArchiveDir:     cfg.Loader.ArchiveDir,
			BadDir:         cfg.Loader.BadDir,
			MonitoringTime: cfg.Loader.MonitoringTime,
			PollInterval:   pollInterval,
		}, log)
		if err != nil {
			return err
		}

		svc.Run(ctx)
		return nil
	},
}

func init() {
	loadCmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "inbox polling interval")
	rootCmd.AddCommand(loadCmd)
}
