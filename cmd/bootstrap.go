package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	infraconfig "github.com/jonesrussell/north-cloud/listings/infrastructure/config"
	infraes "github.com/jonesrussell/north-cloud/listings/infrastructure/elasticsearch"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/listings/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/listings/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/listings/internal/config"
	"github.com/jonesrussell/north-cloud/listings/internal/database"
	"github.com/jonesrussell/north-cloud/listings/internal/elasticsearch"
	"github.com/jonesrussell/north-cloud/listings/internal/indexsync"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/listings/internal/lock"
	"github.com/jonesrussell/north-cloud/listings/internal/metrics"
	"github.com/jonesrussell/north-cloud/listings/internal/reclassify"
)

// deps holds the shared collaborators built for a command.
type deps struct {
	cfg        *config.Config
	log        logger.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	classifier *lifecycle.Classifier
	index      *elasticsearch.ListingIndex
	db         *sqlx.DB
	redis      *redis.Client
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = infraconfig.GetConfigPath("config.yml")
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, err
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// bootstrap loads configuration and connects to the index. The primary store
// is opened only when withDB is set.
func bootstrap(ctx context.Context, withDB bool) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	zone, err := lifecycle.ParseZone(cfg.Lifecycle.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reference timezone: %w", err)
	}
	classifier, err := lifecycle.NewClassifier(zone, nil, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &deps{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		metrics:    metrics.NewMetrics(registry),
		classifier: classifier,
	}

	esClient, err := infraes.NewClient(ctx, infraes.Config{
		URL:        cfg.Elasticsearch.URL,
		Username:   cfg.Elasticsearch.Username,
		Password:   cfg.Elasticsearch.Password,
		APIKey:     cfg.Elasticsearch.APIKey,
		MaxRetries: cfg.Elasticsearch.MaxRetries,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}
	d.index = elasticsearch.NewListingIndex(
		esClient,
		cfg.Elasticsearch.IndexAlias,
		cfg.Elasticsearch.IndexName,
		classifier,
		log,
	)

	if withDB {
		d.db, err = database.NewPostgresConnection(ctx, database.Config{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		log.Info("Connected to database",
			logger.String("host", cfg.Database.Host),
			logger.String("database", cfg.Database.Database),
		)
	}

	return d, nil
}

// newReclassifier wires the reclassifier. A Redis failure leaves runs
// unserialized rather than stopping the process.
func (d *deps) newReclassifier(ctx context.Context) *reclassify.Reclassifier {
	p := reclassify.Params{
		Index:       d.index,
		Classifier:  d.classifier,
		Metrics:     d.metrics,
		Logger:      d.log,
		PassTimeout: d.cfg.Reclassifier.PassTimeout,
	}

	if d.cfg.Redis.Enabled {
		client, err := infraredis.NewClient(ctx, infraredis.Config{
			Address:  d.cfg.Redis.Address,
			Password: d.cfg.Redis.Password,
			DB:       d.cfg.Redis.DB,
		})
		if err != nil {
			d.log.Warn("Redis unavailable, reclassify runs are not serialized", logger.Error(err))
		} else {
			d.redis = client
			p.Locker = lock.NewRunLock(client, d.cfg.Elasticsearch.IndexAlias, d.cfg.Reclassifier.LockTTL)
		}
	}

	return reclassify.New(p)
}

func (d *deps) newSynchronizer(source indexsync.ListingSource) *indexsync.Synchronizer {
	return indexsync.New(indexsync.Params{
		Index:      d.index,
		Listings:   source,
		Classifier: d.classifier,
		Metrics:    d.metrics,
		Logger:     d.log,
		Workers:    d.cfg.Sync.Workers,
		QueueSize:  d.cfg.Sync.QueueSize,
		Timeout:    d.cfg.Sync.Timeout,
		Retry: retry.Config{
			MaxAttempts:  d.cfg.Sync.MaxAttempts,
			InitialDelay: d.cfg.Sync.InitialDelay,
			MaxDelay:     d.cfg.Sync.MaxDelay,
			IsRetryable:  retry.DefaultIsRetryable,
		},
	})
}

func (d *deps) close() error {
	var errs []error
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	_ = d.log.Sync()
	return errors.Join(errs...)
}
