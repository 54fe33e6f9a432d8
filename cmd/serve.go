package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	infragin "github.com/jonesrussell/north-cloud/listings/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/listings/internal/api"
	"github.com/jonesrussell/north-cloud/listings/internal/database"
	"github.com/jonesrussell/north-cloud/listings/internal/enrichment"
	"github.com/jonesrussell/north-cloud/listings/internal/ranking"
	"github.com/jonesrussell/north-cloud/listings/internal/scheduler"
	"github.com/jonesrussell/north-cloud/listings/internal/search"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the synchronizer and the reclassifier schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	d, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = d.close() }()

	cfg := d.cfg
	log := d.log
	log.Info("Starting listings service",
		logger.String("version", cfg.Service.Version),
		logger.Int("port", cfg.Service.Port),
		logger.String("timezone", cfg.Lifecycle.Timezone),
		logger.String("index_alias", cfg.Elasticsearch.IndexAlias),
	)

	if ensureErr := d.index.EnsureIndex(ctx, cfg.Elasticsearch.Shards, cfg.Elasticsearch.Replicas); ensureErr != nil {
		return fmt.Errorf("ensure index: %w", ensureErr)
	}

	listings := database.NewListingRepository(d.db)
	synchronizer := d.newSynchronizer(listings)
	synchronizer.Start(ctx)
	defer synchronizer.Stop()

	reclassifier := d.newReclassifier(ctx)
	if cfg.Reclassifier.Enabled {
		sched, schedErr := scheduler.New(scheduler.Config{
			Interval:      cfg.Reclassifier.Interval,
			RunAtMidnight: cfg.Reclassifier.RunAtMidnight,
			Location:      d.classifier.Location(),
		}, reclassifier, log)
		if schedErr != nil {
			return fmt.Errorf("create scheduler: %w", schedErr)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := sched.Stop(stopCtx); stopErr != nil {
				log.Warn("Scheduler did not stop cleanly", logger.Error(stopErr))
			}
		}()
	}

	searchService := search.NewService(search.Params{
		Index:     d.index,
		Projector: enrichment.NewProjector(database.NewAggregateRepository(d.db), d.classifier.Location(), log),
		Bounds:    d.classifier,
		Builder:   ranking.NewQueryBuilder(ranking.DefaultBoosts()),
		Metrics:   d.metrics,
		Logger:    log,
		Limits: search.Limits{
			MaxPageSize:     cfg.Service.MaxPageSize,
			DefaultPageSize: cfg.Service.DefaultPageSize,
			MaxQueryLength:  cfg.Service.MaxQueryLength,
			Timeout:         cfg.Service.SearchTimeout,
		},
	})

	handler := api.NewHandler(listings, synchronizer, searchService, reclassifier, log)
	server := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithHealthCheck("elasticsearch", d.index.Ping).
		WithHealthCheck("database", d.db.PingContext).
		WithRoutes(func(r *gin.Engine) {
			api.SetupRoutes(r, handler, d.registry)
		}).
		Build()

	if runErr := server.Run(ctx); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return runErr
	}

	log.Info("Listings service exited cleanly")
	return nil
}
