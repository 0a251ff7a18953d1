package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tradepulse "github.com/MLOpsArtisan/TradePulse-ver1.2"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/engine"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange/binance"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/notification"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/order"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/predictor"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/storage"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	notificationQueueSize = 256
	shutdownTimeout       = 5 * time.Second
)

// Run command flags
var (
	configFile  string
	paperSource string
	metricsAddr string
)

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine on a paper account",
		RunE:  runEngine,
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file path (e.g. ./tradepulse.yaml)")
	runCmd.Flags().StringVar(&paperSource, "paper-source", "", "Paper market data source: binance or csv")
	runCmd.Flags().StringVar(&metricsAddr, "metrics", "", "Prometheus listen address (e.g. :2112)")

	return runCmd
}

func runEngine(cmd *cobra.Command, _ []string) error {
	log := tradepulse.DefaultLog

	v, cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if paperSource != "" {
		cfg.Paper.Source = paperSource
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := validate.Struct(cfg.Paper); err != nil {
		return fmt.Errorf("invalid paper config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	market, clock, err := newMarket(ctx, cfg, log)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	brokerOptions := []exchange.PaperBrokerOption{
		exchange.WithPaperBalance(cfg.Paper.Balance),
		exchange.WithContractSize(cfg.Paper.ContractSize),
		exchange.WithCommission(cfg.Paper.Commission),
		exchange.WithPaperLogger(log),
	}
	engineOptions := []engine.Option{
		engine.WithRegistry(newRegistry(cfg, log)),
		engine.WithLedger(order.NewLedger(order.WithTradeStore(store), order.WithLedgerLogger(log))),
		engine.WithLogger(log),
		engine.WithObserver(notification.NewLog(log)),
	}
	if clock != nil {
		brokerOptions = append(brokerOptions, exchange.WithPaperClock(clock))
		engineOptions = append(engineOptions, engine.WithClock(clock))
	}

	broker := exchange.NewPaperBroker(market, brokerOptions...)
	eng, err := engine.New(cfg.Engine.BotID, broker, cfg.Engine, engineOptions...)
	if err != nil {
		return err
	}

	cleanup, err := attachObservers(ctx, eng, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}

	watchConfig(v, eng, log)

	if err := eng.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")
	return eng.Stop()
}

// newMarket returns the prices the paper account trades against. A CSV
// source replays its bars at the configured pace and is also the clock.
func newMarket(ctx context.Context, cfg AppConfig, log logger.Logger) (exchange.MarketData, func() time.Time, error) {
	if cfg.Paper.Source == "csv" {
		feed, err := exchange.NewCSVFeed(cfg.Engine.Symbol, cfg.Paper.File, cfg.Paper.Timeframe,
			exchange.WithSpreadPoints(cfg.Paper.SpreadPoints))
		if err != nil {
			return nil, nil, err
		}
		go advanceFeed(ctx, feed, cfg.Paper.BarInterval, log)
		return feed, feed.Now, nil
	}

	options := []binance.SpotOption{
		binance.WithAttempts(cfg.Binance.Attempts),
		binance.WithLogger(log),
	}
	if cfg.Binance.APIKey != "" {
		options = append(options, binance.WithCredentials(cfg.Binance.APIKey, cfg.Binance.APISecret))
	}
	if cfg.Binance.TestNet {
		options = append(options, binance.WithTestNet())
	}
	if cfg.Binance.Pair != "" {
		options = append(options, binance.WithSymbol(cfg.Engine.Symbol, cfg.Binance.Pair))
	}

	spot, err := binance.NewSpot(ctx, options...)
	if err != nil {
		return nil, nil, err
	}
	return spot, nil, nil
}

func advanceFeed(ctx context.Context, feed *exchange.CSVFeed, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !feed.Advance() {
				log.Infof("end of %s data at %s", feed.Symbol(), feed.Now().Format(time.RFC3339))
				return
			}
		}
	}
}

func openStore(cfg StorageConfig, log logger.Logger) (*storage.TradeStore, error) {
	var (
		store *storage.TradeStore
		err   error
	)
	if cfg.Path == "" {
		store, err = storage.FromMemory()
	} else {
		store, err = storage.FromFile(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("open trade store: %w", err)
	}
	store.SetLogger(log)
	return store, nil
}

func newRegistry(cfg AppConfig, log logger.Logger) *strategy.Registry {
	options := []strategy.RegistryOption{strategy.WithLogger(log)}
	if cfg.Predictor.URL != "" {
		client := predictor.NewClient(
			predictor.WithBaseURL(cfg.Predictor.URL),
			predictor.WithSymbol(cfg.Engine.Symbol),
			predictor.WithAttempts(cfg.Predictor.Attempts),
			predictor.WithHTTPClient(&http.Client{Timeout: cfg.Predictor.Timeout}),
			predictor.WithLogger(log),
		)
		options = append(options, strategy.WithPredictor(client))
	}
	return strategy.NewRegistry(options...)
}

// attachObservers subscribes the configured notifiers to the engine. The
// returned cleanup flushes and closes them, and is safe to call on error.
func attachObservers(ctx context.Context, eng *engine.Engine, cfg AppConfig, log logger.Logger) (func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Metrics.Addr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		eng.Subscribe(notification.NewMetrics(registry))

		server := serveMetrics(cfg.Metrics.Addr, registry, log)
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaOptions := []notification.KafkaOption{notification.WithKafkaLogger(log)}
		if !cfg.Kafka.BotUpdates {
			kafkaOptions = append(kafkaOptions, notification.WithoutKinds(engine.KindBotUpdate))
		}
		kafka := notification.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, kafkaOptions...)
		async := notification.NewAsync(kafka, notificationQueueSize, log)
		eng.Subscribe(async)
		closers = append(closers, func() {
			async.Close()
			if err := kafka.Close(); err != nil {
				log.WithError(err).Warn("kafka writer close")
			}
		})
	}

	if cfg.Telegram.Enabled {
		telegram, err := notification.NewTelegram(eng, notification.TelegramSettings{
			Token: cfg.Telegram.Token,
			Users: cfg.Telegram.Users,
		}, log)
		if err != nil {
			return cleanup, err
		}
		telegram.Start(ctx)
		async := notification.NewAsync(telegram, notificationQueueSize, log)
		eng.Subscribe(async)
		closers = append(closers, func() {
			async.Close()
			telegram.Stop()
		})
	}

	if cfg.Mail.Enabled {
		async := notification.NewAsync(notification.NewMail(cfg.Mail.MailParams(), log), notificationQueueSize, log)
		eng.Subscribe(async)
		closers = append(closers, async.Close)
	}

	return cleanup, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server")
		}
	}()
	return server
}
