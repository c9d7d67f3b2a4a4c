package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rzzdr/credit-risk-pipeline/config"
	"github.com/rzzdr/credit-risk-pipeline/internal/kafka"
	"github.com/rzzdr/credit-risk-pipeline/internal/risk"
	"github.com/rzzdr/credit-risk-pipeline/internal/store"
	"github.com/rzzdr/credit-risk-pipeline/internal/websocket"
	"github.com/rzzdr/credit-risk-pipeline/pkg/api"
	"github.com/rzzdr/credit-risk-pipeline/pkg/metrics"
	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/backpressure"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/circuit"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

const samplePortfolioID = "sample-portfolio"

var (
	configFile = flag.String("config", config.GetConfigPath(), "Path to configuration file")
)

func main() {
	// Parse command line flags
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.GetLogger("risk-engine.main").Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(logger.Config{Level: cfg.App.LogLevel, Environment: cfg.App.Environment})
	log := logger.GetLogger("risk-engine.main")
	log.Infof("Starting %s credit risk engine", cfg.App.Name)

	// Create a context that will be canceled on program termination
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	// Create loan book store, seeded with a demo book
	books := store.NewInMemoryLoanBookStore()
	if cfg.Risk.SampleLoans > 0 {
		rng := rand.New(rand.NewSource(cfg.Risk.SampleSeed))
		sample := &models.LoanBook{
			ID:    samplePortfolioID,
			Name:  "Sample commercial loan book",
			Loans: risk.GenerateSampleLoans(rng, cfg.Risk.SampleLoans),
		}
		if err := books.SaveLoanBook(sample); err != nil {
			log.Fatalf("Failed to seed sample loan book: %v", err)
		}
		log.Infof("Seeded loan book %s with %d loans", sample.ID, len(sample.Loans))
	}

	// Create stress history store
	var history risk.StressRunStore
	if cfg.Database.Enabled {
		runs, err := store.OpenSQLiteStressRunStore(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to open stress history database: %v", err)
		}
		defer runs.Close()
		history = runs
	}

	// Snapshot fan-out: websocket clients always, Kafka when enabled
	hub := websocket.NewHub(nil)
	publishers := []risk.SnapshotPublisher{hub}
	var breakers []api.BreakerReporter

	var producer *kafka.SnapshotPublisher
	if cfg.Kafka.Enabled {
		producer, err = kafka.NewSnapshotPublisher(kafka.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topics.RiskMetrics,
			Encoding:     cfg.Kafka.Producer.Encoding,
			BatchTimeout: cfg.Kafka.Producer.BatchTimeout,
			WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
			Breaker: circuit.Config{
				MaxFailures: cfg.Kafka.Producer.MaxFailures,
				OpenTimeout: cfg.Kafka.Producer.BreakerTimeout,
				MaxProbes:   1,
				OnStateChange: func(name string, from, to circuit.State) {
					log.Warnf("Circuit %s moved from %s to %s", name, from, to)
				},
			},
		})
		if err != nil {
			log.Fatalf("Failed to create Kafka snapshot publisher: %v", err)
		}
		publishers = append(publishers, producer)
		breakers = append(breakers, producer)
	}

	// Create risk calculator
	calculator := risk.NewCalculator(
		risk.CalculatorConfig{
			StressWorkers:       cfg.Risk.StressWorkers,
			DefaultHistoryLimit: cfg.Risk.HistoryLimit,
		},
		books,
		history,
		recorder,
		publishers...,
	)
	hub.SetSource(calculator)
	go hub.Run(ctx)

	// Consume loan books from upstream systems
	var consumer *kafka.LoanBookConsumer
	if cfg.Kafka.Enabled && cfg.Kafka.Consumer.Enabled {
		consumer, err = kafka.NewLoanBookConsumer(
			kafka.ConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topics.LoanBooks,
				GroupID: cfg.Kafka.Consumer.GroupID,
			},
			func(ctx context.Context, book *models.LoanBook) error {
				if err := books.SaveLoanBook(book); err != nil {
					return err
				}
				if _, err := calculator.Snapshot(ctx, book.ID); err != nil {
					log.WithPortfolio(book.ID).Errorf("Failed to snapshot ingested loan book: %v", err)
				}
				return nil
			},
		)
		if err != nil {
			log.Fatalf("Failed to create loan book consumer: %v", err)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Errorf("Loan book consumer stopped: %v", err)
			}
		}()
	}

	// Recompute snapshots periodically for all loan books
	if cfg.Risk.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Risk.RefreshInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := calculator.RefreshAll(ctx)
					if err != nil {
						log.Errorf("Periodic risk refresh failed: %v", err)
						continue
					}
					log.Debugf("Refreshed %d loan books", n)
				}
			}
		}()
	}

	// Start Prometheus server
	var promServer *metrics.PrometheusServer
	if cfg.Metrics.Prometheus.Enabled {
		promServer = metrics.NewPrometheusServer(cfg.Metrics.Prometheus.Port, registry)
		go func() {
			if err := promServer.Start(); err != nil {
				log.Errorf("Prometheus server error: %v", err)
			}
		}()
		go metrics.CollectSystemMetrics(ctx, recorder, cfg.Metrics.Interval)
	}

	var limiter *backpressure.ClientLimiter
	if cfg.API.RateLimit.Enabled {
		limiter = backpressure.NewClientLimiter(backpressure.LimiterConfig{
			RequestsPerSecond: cfg.API.RateLimit.RequestsPerSecond,
			Burst:             cfg.API.RateLimit.Burst,
			IdleTTL:           cfg.API.RateLimit.IdleTTL,
		})
		go limiter.Run(ctx, time.Minute)
	}

	apiServer := api.NewServer(
		api.Config{
			Host:         cfg.API.Host,
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			Mode:         cfg.API.Mode,
		},
		api.Dependencies{
			Calculator: calculator,
			Books:      books,
			Recorder:   recorder,
			Gatherer:   registry,
			Hub:        hub,
			Breakers:   breakers,
			Limiter:    limiter,
		},
	)

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Errorf("API server error: %v", err)
			cancel()
		}
	}()

	log.Info("Risk engine started")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
		log.Info("Context cancelled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}
	if promServer != nil {
		if err := promServer.Stop(shutdownCtx); err != nil {
			log.Errorf("Prometheus server shutdown error: %v", err)
		}
	}

	// Stop background work before closing Kafka clients
	cancel()

	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Errorf("Loan book consumer shutdown error: %v", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Kafka publisher shutdown error: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
