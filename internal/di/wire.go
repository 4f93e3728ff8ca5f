//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	drepo "FinRange/internal/domain/repository"
	"FinRange/internal/handler/api"
	internalrepo "FinRange/internal/repository"
	"FinRange/internal/usecase"
	"FinRange/pkg/config"
	"FinRange/pkg/metrics"
	"FinRange/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvidePrometheusRegistry,
	ProvideMetrics,
	wire.Bind(new(drepo.Metrics), new(*metrics.Recorder)),
	ProvideCache,
	ProvideState,
	wire.Bind(new(drepo.Locker), new(*internalrepo.CacheState)),
	ProvideStorage,
	ProvideKafkaProducer,
	ProvidePublisher,
	ProvideQuoteProvider,
)

var domainSet = wire.NewSet(
	ProvideCalendar,
	ProvideContracts,
	ProvideModels,
	ProvideSettler,
	ProvideScheduler,
	wire.Bind(new(api.Jobs), new(*usecase.Scheduler)),
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		domainSet,
		ProvideKafkaConsumer,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
