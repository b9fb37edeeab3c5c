package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"HisCollect/internal/domain/models"
	"HisCollect/internal/domain/repository"
	"HisCollect/internal/handler/api"
	internalrepo "HisCollect/internal/repository"
	"HisCollect/internal/usecase"
	"HisCollect/pkg/cache"
	pkgch "HisCollect/pkg/clickhouse"
	"HisCollect/pkg/config"
	xhttp "HisCollect/pkg/http"
	pkgkafka "HisCollect/pkg/kafka"
	"HisCollect/pkg/logger"
	"HisCollect/pkg/metrics"
	"HisCollect/pkg/server"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideFactStore opens the configured fact backend and ensures its schema.
// The cleanup closes the ClickHouse connection pool.
func ProvideFactStore(cfg *config.Config, l *logger.Logger) (repository.FactStore, func(), error) {
	if cfg.Store.Backend == "memory" {
		l.Warn("using in-memory fact store")
		return internalrepo.NewMemoryFactStore(), func() {}, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	store := internalrepo.NewCHFactStore(client, cfg.ClickHouse.Database, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse connected and schema ready", logger.String("db", cfg.ClickHouse.Database))
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideIDDirectory merges the store's identifier universe with static ids.
func ProvideIDDirectory(store repository.FactStore, cfg *config.Config) repository.IDDirectory {
	static := make(map[models.Market]internalrepo.StaticIDs, len(cfg.Collect.StaticIDs))
	for m, ids := range cfg.Collect.StaticIDs {
		static[models.Market(m)] = internalrepo.StaticIDs{Stocks: ids.Stocks, Brokers: ids.Brokers}
	}
	base, _ := store.(repository.IDDirectory)
	return internalrepo.NewMergedDirectory(base, static)
}

// ProvideCache creates the cache service backing the ranked map.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	var (
		c   cache.Service
		err error
	)
	if cfg.RankMap.Backend == "memory" {
		c = cache.NewMemoryCache()
	} else {
		c, err = newRedisCache(cfg)
		if err != nil {
			return nil, nil, err
		}
	}
	cleanup := func() {
		if err := c.Close(); err != nil {
			l.Warn("rank cache close error", logger.Error(err))
		}
	}
	return c, cleanup, nil
}

func newRedisCache(cfg *config.Config) (cache.Service, error) {
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("hiscollect"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideRankStore creates the ranked-map store on top of the cache.
func ProvideRankStore(c cache.Service, cfg *config.Config) repository.RankStore {
	return internalrepo.NewCacheRankStore(c, cfg.RankMap.Prefix)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when reports are off.
// The cleanup flushes and closes the writer.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Collect.PublishReports {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideReportPublisher ships collection reports to Kafka when enabled.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	if producer == nil {
		return internalrepo.NopReportPublisher{}
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportsTopic)
}

// ProvideKafkaConsumer creates the fact-ingest consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaFactsHandler handles the facts topic.
func ProvideKafkaFactsHandler(store repository.FactStore, m repository.Metrics, cfg *config.Config) *usecase.KafkaFactsHandler {
	return usecase.NewKafkaFactsHandler(cfg.Kafka.FactsTopic, store, m)
}

// ProvideAggregator creates the aggregation engine.
func ProvideAggregator(
	store repository.FactStore,
	ranks repository.RankStore,
	m repository.Metrics,
	cfg *config.Config,
	l *logger.Logger,
) *usecase.Aggregator {
	return usecase.NewAggregator(store,
		usecase.WithRankStore(ranks),
		usecase.WithAggregatorMetrics(m),
		usecase.WithAggregatorLogger(l),
		usecase.WithScopeLocking(cfg.Collect.LockTTL, cfg.Collect.RetryTries, 100*time.Millisecond, 2*time.Second),
	)
}

// ProvideCollector creates the cascading collection pipeline.
func ProvideCollector(
	agg *usecase.Aggregator,
	dir repository.IDDirectory,
	pub repository.ReportPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *logger.Logger,
) *usecase.Collector {
	markets := make([]models.Market, 0, len(cfg.Collect.Markets))
	for _, mk := range cfg.Collect.Markets {
		markets = append(markets, models.Market(mk))
	}
	return usecase.NewCollector(agg,
		usecase.WithDirectory(dir),
		usecase.WithReportPublisher(pub),
		usecase.WithCollectorMetrics(m),
		usecase.WithCollectorLogger(l),
		usecase.WithQueryTimeout(cfg.Collect.QueryTimeout),
		usecase.WithMarkets(markets...),
	)
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(l *logger.Logger, col *usecase.Collector, agg *usecase.Aggregator, store repository.FactStore) xhttp.Handler {
	return api.NewCollectEchoHandler(l, col, agg, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaFactsHandler,
) *server.App {
	var mh pkgkafka.MessageHandler
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
		mh = kh
	}
	return server.New(cfg, l, handler, consumer, mh)
}

// Tools is the offline subset used by the CLI: no HTTP, no consumer.
type Tools struct {
	Collector *usecase.Collector
	Store     repository.FactStore
}

// ProvideNopMetrics is the recorder for short-lived CLI runs.
func ProvideNopMetrics() repository.Metrics {
	return metrics.Nop{}
}

// ProvideNopReportPublisher disables report shipping for CLI runs.
func ProvideNopReportPublisher() repository.ReportPublisher {
	return internalrepo.NopReportPublisher{}
}

func ProvideTools(col *usecase.Collector, store repository.FactStore) *Tools {
	return &Tools{Collector: col, Store: store}
}
