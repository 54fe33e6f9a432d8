package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/database"
)

func newReindexCommand() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rewrite every listing from the primary store into the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = d.close() }()

			if batchSize <= 0 {
				batchSize = d.cfg.Sync.ReindexBatchSize
			}

			if ensureErr := d.index.EnsureIndex(ctx, d.cfg.Elasticsearch.Shards, d.cfg.Elasticsearch.Replicas); ensureErr != nil {
				return ensureErr
			}

			listings := database.NewListingRepository(d.db)
			stats, err := d.newSynchronizer(listings).Reindex(ctx, listings, batchSize)
			if err != nil {
				return err
			}

			d.log.Info("Reindex finished",
				logger.Int("scanned", stats.Scanned),
				logger.Int("failed", stats.Failed),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "listings per primary-store page (default from config)")
	return cmd
}
