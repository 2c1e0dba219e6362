package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/config"
	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/handler"
	"github.com/basel-ax/stylemesh/internal/infrastructure/accelerator"
	"github.com/basel-ax/stylemesh/internal/infrastructure/sdwebui"
	"github.com/basel-ax/stylemesh/internal/logging"
	"github.com/basel-ax/stylemesh/internal/metrics"
	"github.com/basel-ax/stylemesh/internal/models"
	"github.com/basel-ax/stylemesh/internal/queue"
	"github.com/basel-ax/stylemesh/internal/repository"
	"github.com/basel-ax/stylemesh/internal/server"
	"github.com/basel-ax/stylemesh/internal/service"
	"github.com/basel-ax/stylemesh/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the worker and blocks until shutdown. It returns the process exit code so that
// deferred cleanup always runs before the process exits.
func run(args []string) int {
	// Parse command line flags
	flags := flag.NewFlagSet("worker", flag.ContinueOnError)
	verbose := flags.Bool("verbose", false, "Enable debug logging")
	serve := flags.Bool("serve", false, "Serve jobs over HTTP (POST /runsync, GET /health, GET /metrics, GET /jobs/{id})")
	consume := flags.Bool("consume", false, "Consume jobs from RabbitMQ")
	jobFile := flags.String("job", "", "Run a single job document from this file and print the result")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if !*serve && !*consume && *jobFile == "" {
		fmt.Fprintln(os.Stderr, "Please specify at least one mode: -serve, -consume, or -job <file>")
		return 2
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	defer logger.Sync()
	logger.Info("configuration loaded",
		zap.String("model_server", cfg.Models.BaseURL),
		zap.Bool("queue", cfg.Queue.Enabled()),
		zap.Bool("storage", cfg.Storage.Enabled()),
		zap.Bool("history", cfg.DB.Enabled()))

	if *consume && !cfg.Queue.Enabled() {
		logger.Error("RABBITMQ_URL is required for -consume")
		return 1
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	// Load models once; the registry is read-only afterwards
	client := sdwebui.NewClient(cfg.Models.BaseURL, cfg.Models.PoseModule, cfg.TargetSize, cfg.Models.Timeout)
	registry := models.Load(ctx, cfg.Models, client, accelerator.ExecRunner, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observers := []handler.Observer{metrics.NewCollector("stylemesh", reg)}

	var uploader service.Uploader
	if cfg.Storage.Enabled() {
		store, err := storage.NewClient(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
			cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			logger.Error("failed to create storage client", zap.Error(err))
			return 1
		}
		uploader = store
	}

	var jobRepo repository.JobRepository
	if cfg.DB.Enabled() {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			logger.Error("failed to connect to database", zap.Error(err))
			return 1
		}
		defer db.Close()
		jobRepo = repository.NewPostgresJobRepository(db)
		if err := jobRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare job history table", zap.Error(err))
			return 1
		}
		observers = append(observers, repository.NewHistoryRecorder(jobRepo))
		logger.Info("job history enabled", zap.Duration("retention", cfg.DB.Retention))
	}

	styleSvc := service.NewStyleConversionService(registry, service.StyleOptions{
		Prompts:         cfg.Prompts,
		TargetSize:      cfg.TargetSize,
		Seed:            cfg.Seed,
		ControlModels:   cfg.Models.ControlNetModels,
		SecondaryModule: cfg.Models.SecondaryModule,
	}, logger)
	modelSvc := service.NewModelGenerationService(registry, uploader, logger)
	healthSvc := service.NewHealthService(registry, accelerator.HostStats, logger)
	jobs := handler.New(styleSvc, modelSvc, healthSvc, registry.Accelerator().Name, logger, observers...)

	// One-shot mode
	if *jobFile != "" {
		return runJobFile(ctx, jobs, *jobFile, logger)
	}

	scheduler, err := startScheduler(ctx, cfg, jobRepo, healthSvc, logger)
	if err != nil {
		logger.Error("failed to start scheduler", zap.Error(err))
		return 1
	}
	defer scheduler.Stop()

	errCh := make(chan error, 2)
	running := 0
	if *serve {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.ListenAddr
		srvCfg.Concurrency = cfg.Concurrency
		srv := server.New(jobs, reg, srvCfg, logger)
		if jobRepo != nil {
			srv.WithHistory(jobRepo)
		}
		running++
		go func() { errCh <- srv.ListenAndServe(ctx) }()
	}

	if *consume {
		mq, err := queue.NewRabbitMQService(cfg.Queue.URL, queue.Config{
			JobQueue:    cfg.Queue.JobQueue,
			ResultQueue: cfg.Queue.ResultQueue,
			Prefetch:    cfg.Queue.Prefetch,
			Concurrency: cfg.Concurrency,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", zap.Error(err))
			cancel()
			drain(errCh, running)
			return 1
		}
		defer mq.Close()
		running++
		go func() { errCh <- mq.Consume(ctx, jobs) }()
	}

	// Wait for cancellation or a transport failure
	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		running--
		if err != nil && ctx.Err() == nil {
			logger.Error("transport stopped", zap.Error(err))
			code = 1
		}
	}
	cancel()
	drain(errCh, running)
	logger.Info("shutting down gracefully")
	return code
}

// drain waits for n transports to return after cancellation
func drain(errCh <-chan error, n int) {
	for ; n > 0; n-- {
		<-errCh
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// runJobFile runs the job document at path and prints its result. It returns the exit code.
func runJobFile(ctx context.Context, jobs *handler.Handler, path string, logger *zap.Logger) int {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read job file", zap.String("path", path), zap.Error(err))
		return 1
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		logger.Error("failed to parse job file", zap.String("path", path), zap.Error(err))
		return 1
	}

	res := jobs.Handle(ctx, job)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("failed to write result", zap.Error(err))
		return 1
	}
	if res.Status != domain.StatusSuccess {
		return 1
	}
	return 0
}

// startScheduler runs periodic health logging and, when history is enabled, retention pruning
func startScheduler(ctx context.Context, cfg *config.Config, repo repository.JobRepository, health *service.HealthService, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	logger = logger.With(zap.String("component", "cron"))

	_, err := c.AddFunc(cfg.HealthLogSchedule, func() {
		report := health.Check(ctx)
		logger.Info("health",
			zap.Bool("gpu_available", report.Available),
			zap.Bool("diffusion", report.Models.Diffusion),
			zap.Bool("pose_detector", report.Models.PoseDetector),
			zap.Any("host", report.Host))
	})
	if err != nil {
		return nil, err
	}

	if repo != nil {
		_, err = c.AddFunc("0 0 * * * *", func() {
			cutoff := time.Now().Add(-cfg.DB.Retention)
			n, err := repo.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				logger.Error("failed to prune job history", zap.Error(err))
				return
			}
			logger.Info("pruned job history", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
		})
		if err != nil {
			return nil, err
		}
	}

	c.Start()
	logger.Info("cron scheduler started")
	return c, nil
}
