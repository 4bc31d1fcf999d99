package di

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"LagScope/internal/domain/repository"
	"LagScope/internal/domain/service"
	"LagScope/internal/handler/api"
	internalrepo "LagScope/internal/repository"
	"LagScope/internal/services/providers"
	"LagScope/internal/usecase"
	"LagScope/pkg/cache"
	pkgch "LagScope/pkg/clickhouse"
	"LagScope/pkg/config"
	xhttp "LagScope/pkg/http"
	pkgkafka "LagScope/pkg/kafka"
	applogger "LagScope/pkg/logger"
	"LagScope/pkg/metrics"
	"LagScope/pkg/server"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry returns the registry every collector registers with and
// /metrics serves.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideCache builds the configured cache backend.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	c := cfg.Cache
	var svc cache.Service
	switch c.Backend {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(c.Redis.Host),
			cache.WithRedisPort(c.Redis.Port),
			cache.WithRedisPassword(c.Redis.Password),
			cache.WithRedisDB(c.Redis.DB),
			cache.WithRedisPool(c.Redis.PoolSize, 0, 0),
			cache.WithRedisPrefix(c.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
		if c.Backend == "layered" {
			svc = cache.NewLayeredCache(rc, c.Memory.MaxSize, c.TTL)
		}
	default:
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(c.Memory.MaxSize),
			cache.WithMemoryCleanup(c.Memory.CleanupInterval),
		)
	}
	l.Info("cache ready", applogger.String("backend", c.Backend), applogger.Duration("ttl", c.TTL))
	cleanup := func() {
		if err := svc.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// ProvideClickHouseClient connects to ClickHouse, or returns nil when the
// archive is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	ch := cfg.ClickHouse
	if !ch.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvidePointStore wraps the ClickHouse client; nil client means no archive.
func ProvidePointStore(client *pkgch.Client, l *applogger.Logger) repository.PointStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHPointStore(client, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger),
		pkgkafka.WithWriteTimeout(k.Producer.WriteTimeout),
		pkgkafka.WithAsync(k.Producer.Async),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	cleanup := func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideReportPublisher publishes runs to the report topic. The producer
// is closed by its own cleanup.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportTopic)
}

// ProvideKafkaConsumer creates the points consumer. It only runs when both
// Kafka and the archive it writes to are enabled.
func ProvideKafkaConsumer(cfg *config.Config, store repository.PointStore, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka
	if !k.Enabled || store == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(k.Brokers),
		pkgkafka.WithConsumerGroupID(k.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(k.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(k.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(k.Consumer.RetryMax, k.Consumer.BackoffMin, k.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(k.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(k.Consumer.MinBytes, k.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvidePointsHandler handles the points topic.
func ProvidePointsHandler(store repository.PointStore, m repository.Metrics, cfg *config.Config) pkgkafka.MessageHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaPointsHandler(cfg.Kafka.PointsTopic, store, m)
}

// ProvideProviderRouter registers the price providers in preference order.
func ProvideProviderRouter(cfg *config.Config, l *applogger.Logger) *providers.Router {
	p := cfg.Providers
	common := []providers.Option{
		providers.WithBreaker(p.BreakerTimeout, p.BreakerFails),
		providers.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(p.Timeout), xhttp.WithUserAgent("lagscope/1.0"))),
	}
	with := func(opts ...providers.Option) []providers.Option {
		return append(append([]providers.Option{}, common...), opts...)
	}

	coingecko := providers.NewCoinGecko(with(providers.WithBaseURL(p.CoinGecko.BaseURL))...)
	av := providers.NewAlphaVantage(with(
		providers.WithBaseURL(p.AlphaVantage.BaseURL),
		providers.WithAPIKey(p.AlphaVantage.APIKey),
		providers.WithRequestsPerSecond(p.AlphaVantage.RequestsPerSec),
	)...)
	stooq := providers.NewStooq(with(providers.WithBaseURL(p.Stooq.BaseURL))...)

	var list []service.PriceProvider
	if p.Binance.Enabled {
		list = append(list, providers.NewBinance(with(providers.WithBaseURL(p.Binance.BaseURL))...))
	}
	list = append(list, coingecko)

	var equitySearch service.AssetSearcher
	if av.Enabled() {
		list = append(list, av)
		equitySearch = av
	} else {
		l.Info("alphavantage key not set, equities served by stooq")
	}
	list = append(list, stooq)

	return providers.NewRouter(list, coingecko, equitySearch, l)
}

// ProvideDatasetLoader wires the loader to the router, cache and archive.
func ProvideDatasetLoader(
	router *providers.Router,
	c cache.Service,
	store repository.PointStore,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.DatasetLoader {
	opts := []usecase.LoaderOption{
		usecase.WithCache(c, cfg.Cache.Prefix, cfg.Cache.TTL),
		usecase.WithLoaderMetrics(m),
		usecase.WithLoaderLogger(l),
		usecase.WithMaxBuckets(cfg.Analysis.MaxBuckets),
	}
	if store != nil {
		opts = append(opts, usecase.WithPointStore(store))
	}
	return usecase.NewDatasetLoader(router, opts...)
}

// ProvideAnalysisRunner wires the runner to the optional report publisher.
func ProvideAnalysisRunner(pub repository.ReportPublisher, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.AnalysisRunner {
	opts := []usecase.RunnerOption{
		usecase.WithRunnerMetrics(m),
		usecase.WithRunnerLogger(l),
		usecase.WithWorkers(cfg.Analysis.Workers),
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	return usecase.NewAnalysisRunner(opts...)
}

// ProvideLeadLagHandler creates the HTTP handler with configured defaults.
func ProvideLeadLagHandler(
	l *applogger.Logger,
	loader *usecase.DatasetLoader,
	runner *usecase.AnalysisRunner,
	router *providers.Router,
	cfg *config.Config,
) *api.LeadLagEchoHandler {
	a := cfg.Analysis
	return api.NewLeadLagEchoHandler(l, loader, runner, router, api.Defaults{
		Range:       a.Range,
		Interval:    a.Interval,
		Align:       a.Align,
		Transform:   a.Transform,
		Mode:        a.Mode,
		Residualize: a.Residualize,
		MaxAssets:   a.MaxAssets,
		MaxBuckets:  a.MaxBuckets,
	})
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(h *api.LeadLagEchoHandler, reg *prometheus.Registry, cfg *config.Config, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithRateLimit(cfg.Server.RateLimit.RequestsPerSec, cfg.Server.RateLimit.Burst),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	points pkgkafka.MessageHandler,
	store repository.PointStore,
) *server.App {
	return server.New(cfg, l, srv, consumer, points, store)
}
