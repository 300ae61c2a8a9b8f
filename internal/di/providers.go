package di

import (
	"context"
	"fmt"

	"TradeFloor/internal/agents/director"
	"TradeFloor/internal/egress"
	"TradeFloor/internal/handler/api"
	"TradeFloor/internal/market"
	"TradeFloor/internal/orchestrator"
	"TradeFloor/internal/risk"
	"TradeFloor/pkg/config"
	xhttp "TradeFloor/pkg/http"
	pkgkafka "TradeFloor/pkg/kafka"
	applogger "TradeFloor/pkg/logger"
	"TradeFloor/pkg/metrics"
	"TradeFloor/pkg/server"
	"TradeFloor/pkg/substrate"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// SubstratePair bundles the broker and time-series store backed by the
// same connection, so they are selected together.
type SubstratePair struct {
	Broker     substrate.MessageBroker
	TimeSeries substrate.TimeSeriesStore
}

// ProvideSubstrate probes the networked backend and falls back to the
// in-process substrate when it is unreachable.
func ProvideSubstrate(cfg *config.Config, lgr *applogger.Logger) SubstratePair {
	broker, ts := substrate.Connect(context.Background(), substrate.RedisConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		ProbeTimeout: cfg.Redis.ProbeTimeout,
	}, lgr)
	return SubstratePair{Broker: broker, TimeSeries: ts}
}

// ProvideBroker unwraps the message broker.
func ProvideBroker(pair SubstratePair) substrate.MessageBroker { return pair.Broker }

// ProvideTimeSeries unwraps the time-series store.
func ProvideTimeSeries(pair SubstratePair) substrate.TimeSeriesStore { return pair.TimeSeries }

// ProvidePortfolio creates the shared portfolio state.
func ProvidePortfolio(cfg *config.Config) *risk.PortfolioState {
	return risk.NewPortfolioState(cfg.Portfolio.InitialCash)
}

// ProvideMarketProvider selects the market data source.
func ProvideMarketProvider(cfg *config.Config, lgr *applogger.Logger) market.Provider {
	if cfg.Market.Provider == "websocket" && cfg.Market.APIKey != "" {
		p := market.NewStreamProvider(
			cfg.Market.APIKey,
			cfg.Market.WebSocketURL,
			cfg.Pipeline.Tickers,
			cfg.Market.ReconnectDelay,
			cfg.Market.PingInterval,
			lgr,
		)
		go p.Start(context.Background())
		return p
	}
	return market.NewSimProvider()
}

// ProvideStrategy selects the director's decision path. The deterministic
// strategy is always the fallback; this only decides the primary.
func ProvideStrategy(cfg *config.Config) director.Strategy {
	if cfg.Director.LLM.Enabled {
		return director.NewLLMStrategy(cfg.Director.LLM)
	}
	return director.NewRuleStrategy(cfg.Director.ConfidenceThreshold)
}

// ProvideEgress creates the execution-signal publisher.
func ProvideEgress(cfg *config.Config, lgr *applogger.Logger) (egress.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return egress.NewLogPublisher(lgr), nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return egress.NewKafkaPublisher(producer, cfg.Kafka.Topic, lgr), nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideOrchestrator assembles the full 198-unit hierarchy.
func ProvideOrchestrator(
	cfg *config.Config,
	broker substrate.MessageBroker,
	ts substrate.TimeSeriesStore,
	portfolio *risk.PortfolioState,
	provider market.Provider,
	strategy director.Strategy,
	publisher egress.Publisher,
	rec *metrics.Recorder,
	lgr *applogger.Logger,
) *orchestrator.Orchestrator {
	return orchestrator.Build(cfg, broker, ts, portfolio, provider, strategy, publisher, rec, lgr)
}

// ProvideHandler creates the monitoring HTTP handler.
func ProvideHandler(
	lgr *applogger.Logger,
	orc *orchestrator.Orchestrator,
	ts substrate.TimeSeriesStore,
) xhttp.Handler {
	return api.NewStatsHandler(lgr, orc, orc.Director(), ts)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	orc *orchestrator.Orchestrator,
	broker substrate.MessageBroker,
	ts substrate.TimeSeriesStore,
	publisher egress.Publisher,
	handler xhttp.Handler,
	lgr *applogger.Logger,
) *server.App {
	return server.New(cfg, orc, broker, ts, publisher, handler, lgr)
}
