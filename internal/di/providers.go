package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FinRange/internal/domain/models"
	drepo "FinRange/internal/domain/repository"
	"FinRange/internal/handler/api"
	internalrepo "FinRange/internal/repository"
	"FinRange/internal/service/finnhub"
	"FinRange/internal/services/analytics"
	"FinRange/internal/services/calendar"
	"FinRange/internal/usecase"
	pkgcache "FinRange/pkg/cache"
	pkgch "FinRange/pkg/clickhouse"
	"FinRange/pkg/config"
	xhttp "FinRange/pkg/http"
	pkgkafka "FinRange/pkg/kafka"
	applogger "FinRange/pkg/logger"
	"FinRange/pkg/metrics"
	"FinRange/pkg/server"
	"FinRange/pkg/util"
)

const initTimeout = 15 * time.Second

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvidePrometheusRegistry returns a private registry with runtime collectors.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus job recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideCalendar builds the exchange calendar and registers every configured
// contract's expiration rule.
func ProvideCalendar(cfg *config.Config) (*calendar.Calendar, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	hh, mm, err := config.ClockTime(cfg.Exchange.ExpirationClose)
	if err != nil {
		return nil, err
	}
	opts := []calendar.Option{calendar.WithLocation(loc), calendar.WithClose(hh, mm)}
	for year, raw := range cfg.Calendar.Holidays {
		days := make([]time.Time, 0, len(raw))
		for _, s := range raw {
			d, ok := util.ParseDate(s)
			if !ok || d.Year() != year {
				return nil, fmt.Errorf("calendar.holidays[%d]: bad date %q", year, s)
			}
			days = append(days, d)
		}
		opts = append(opts, calendar.WithHolidays(year, days))
	}
	cal, err := calendar.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	for _, ct := range cfg.Contracts {
		if err := cal.Register(ct.Symbol, models.ContractClass(ct.Class), models.ExpirationRule(ct.Rule)); err != nil {
			return nil, fmt.Errorf("calendar: %w", err)
		}
	}
	return cal, nil
}

// ProvideContracts seeds the contract store from configuration.
func ProvideContracts(cfg *config.Config) drepo.ContractStore {
	cs := make([]models.Contract, 0, len(cfg.Contracts))
	for _, ct := range cfg.Contracts {
		cs = append(cs, models.Contract{
			Symbol:      ct.Symbol,
			Name:        ct.Name,
			QuoteSymbol: ct.QuoteSymbol,
			TickSize:    ct.TickSize,
			Class:       models.ContractClass(ct.Class),
			Rule:        models.ExpirationRule(ct.Rule),
			WeeklyIV:    ct.WeeklyIV,
			DailyIV:     ct.DailyIV,
		})
	}
	return internalrepo.NewMemoryContracts(cs)
}

// ProvideModels returns the volatility model registry.
func ProvideModels() *analytics.Registry {
	return analytics.NewRegistry()
}

// ProvideCache connects Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		l.Info("redis disabled, using in-memory state and locks")
		return pkgcache.NewMemoryCache(), nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPoolSize(cfg.Redis.PoolSize),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	l.Info("redis connected", applogger.String("addr", cfg.RedisAddr()))
	return c, nil
}

// ProvideState keeps scheduler markers and job locks in the cache.
func ProvideState(c pkgcache.Service) *internalrepo.CacheState {
	return internalrepo.NewCacheState(c)
}

// ProvideStorage opens the configured backend and creates its schema.
func ProvideStorage(cfg *config.Config, locker drepo.Locker, l *applogger.Logger) (drepo.Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store drepo.Storage
	switch cfg.Storage.Backend {
	case "clickhouse":
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewCHStorage(client, locker, l)
	case "postgres":
		pool, err := internalrepo.ConnectPostgres(ctx, cfg.Postgres.DSN, int(cfg.Postgres.MaxConns))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		store = internalrepo.NewPGStorage(pool, l)
	default:
		store = internalrepo.NewMemoryStorage()
	}

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s schema: %w", cfg.Storage.Backend, err)
	}
	l.Info("storage ready", applogger.String("backend", cfg.Storage.Backend))
	return store, nil
}

// ProvideQuoteProvider creates the Finnhub REST client.
func ProvideQuoteProvider(cfg *config.Config, l *applogger.Logger) drepo.QuoteProvider {
	q := cfg.Quotes
	return finnhub.New(finnhub.Options{
		BaseURL:       q.BaseURL,
		APIKey:        q.APIKey,
		Timeout:       q.Timeout,
		RatePerSecond: q.RatePerSecond,
		Burst:         q.Burst,
		Concurrency:   q.Concurrency,
		MaxFailures:   q.Breaker.MaxFailures,
		OpenTimeout:   q.Breaker.OpenTimeout,
	}, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher publishes created records and weekly rows.
func ProvidePublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, internalrepo.PublisherTopics{
		Records: cfg.Kafka.Topics.Records,
		Weekly:  cfg.Kafka.Topics.Weekly,
	})
}

// ProvideSettler creates the settlement use case shared by HTTP, Kafka and the daily job.
func ProvideSettler(store drepo.Storage, m drepo.Metrics, l *applogger.Logger) *usecase.Settler {
	return usecase.NewSettler(store, store, m, l)
}

// ProvideScheduler builds the nightly scheduler from the exchange and scheduler sections.
func ProvideScheduler(
	cfg *config.Config,
	contracts drepo.ContractStore,
	store drepo.Storage,
	quotes drepo.QuoteProvider,
	pub drepo.Publisher,
	state *internalrepo.CacheState,
	cal *calendar.Calendar,
	registry *analytics.Registry,
	settler *usecase.Settler,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.Scheduler, error) {
	openH, openM, err := config.ClockTime(cfg.Exchange.SessionOpen)
	if err != nil {
		return nil, err
	}
	closeH, closeM, err := config.ClockTime(cfg.Exchange.SessionClose)
	if err != nil {
		return nil, err
	}
	return usecase.NewScheduler(usecase.SchedulerConfig{
		Interval:     cfg.Scheduler.CheckInterval,
		QuoteTimeout: cfg.Scheduler.QuoteTimeout,
		LockTTL:      cfg.Scheduler.LockTTL,
		Model:        cfg.Scheduler.Model,
		SessionOpen:  openH*60 + openM,
		SessionClose: closeH*60 + closeM,
		DailyRunHour: cfg.Exchange.DailyRunHour,
		RunOnStartup: cfg.Scheduler.RunOnStartup,
	}, usecase.Deps{
		Contracts: contracts,
		Storage:   store,
		Quotes:    quotes,
		Publisher: pub,
		State:     state,
		Locker:    state,
		Calendar:  cal,
		Models:    registry,
		Settler:   settler,
		Metrics:   m,
	}, l)
}

// ProvideKafkaConsumer creates the settlement consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, settler *usecase.Settler, m drepo.Metrics, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook{Log: l})),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewSettlementHandler(cfg.Kafka.Topics.Settlements, settler, m, l))
	return consumer, nil
}

// ProvideHandler creates the operator API handler.
func ProvideHandler(
	l *applogger.Logger,
	contracts drepo.ContractStore,
	store drepo.Storage,
	cal *calendar.Calendar,
	registry *analytics.Registry,
	settler *usecase.Settler,
	jobs api.Jobs,
	c pkgcache.Service,
) *api.MovesHandler {
	return api.NewMovesHandler(l, contracts, store, cal, registry, settler, jobs, api.WithCache(c))
}

// ProvideHTTPServer creates the echo server and mounts /metrics on reg.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.MovesHandler, reg *prometheus.Registry) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		xhttp.WithMetrics(path, reg, reg),
	)
}

// ProvideApp assembles the application and its shutdown order.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.Scheduler,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	pub drepo.Publisher,
	store drepo.Storage,
	c pkgcache.Service,
) *server.App {
	if cfg.ErrorCollector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.ErrorCollector.FlushInterval,
			Topic:        cfg.Kafka.Topics.Errors,
			Publisher:    producer,
		})
	}
	return server.New(cfg, l, scheduler, srv, consumer,
		server.Closer{Name: "cache", Close: c.Close},
		server.Closer{Name: "storage", Close: store.Close},
		server.Closer{Name: "publisher", Close: pub.Close},
	)
}
