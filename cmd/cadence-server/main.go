package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cadence/internal/api"
	"github.com/shaiso/Cadence/internal/bridge"
	"github.com/shaiso/Cadence/internal/config"
	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/mq"
	"github.com/shaiso/Cadence/internal/pipeline"
	"github.com/shaiso/Cadence/internal/repo"
	"github.com/shaiso/Cadence/internal/runner"
	"github.com/shaiso/Cadence/internal/scheduler"
	"github.com/shaiso/Cadence/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting cadence-server")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "cadence.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err, "path", configPath)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	if cfg.Database.URL != "" {
		os.Setenv("DB_URL", cfg.Database.URL)
	}
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Репозитории
	agentRepo := repo.NewAgentRepo(pool)
	runRepo := repo.NewRunRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)
	pipelineRepo := repo.NewPipelineRepo(pool)
	knowledgeRepo := repo.NewKnowledgeRepo(pool)

	// Посев конфигурации
	if err := config.Seed(ctx, cfg, agentRepo, scheduleRepo, pipelineRepo, logger); err != nil {
		logger.Error("failed to seed configuration", "error", err)
		os.Exit(1)
	}

	// RabbitMQ опционален: без него события просто не публикуются
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	if cfg.MQ.URL != "" {
		conn, err := mq.NewConnection(cfg.MQ.URL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events disabled", "error", err)
		} else {
			defer conn.Close()
			mqConn = conn
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to set up mq topology", "error", err)
			} else {
				publisher = mq.NewPublisher(conn, logger)
			}
		}
	}

	// Метрики
	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	// Bridge и диспетчеризация
	invoker := bridge.NewSubprocessInvoker(bridge.SubprocessConfig{
		Binary:  cfg.Bridge.Binary,
		Timeout: cfg.Bridge.Timeout,
		Logger:  logger,
	})

	knowledge := dispatch.NewKnowledgeCollaborator(knowledgeRepo, logger)

	dispatcher := dispatch.New(dispatch.Config{
		Resolver:       dispatch.DefaultRegistry(),
		Invoker:        invoker,
		Knowledge:      knowledge,
		MaxRunsPerHour: cfg.Budget.MaxRunsPerHour,
		SessionPrefix:  cfg.Bridge.SessionPrefix,
		Logger:         logger,
	})

	workPool := dispatch.NewPool(ctx, dispatch.PoolConfig{
		Size:   cfg.Scheduler.PoolSize,
		Logger: logger,
	})
	defer workPool.Stop()

	// Pipeline Engine
	var events pipeline.EventPublisher
	var runEvents runner.EventPublisher
	if publisher != nil {
		events = publisher
		runEvents = publisher
	}

	pipelineEngine := pipeline.New(pipeline.Config{
		Store:      pipelineRepo,
		Runs:       runRepo,
		Agents:     agentRepo,
		Dispatcher: dispatcher,
		Submitter:  workPool,
		Events:     events,
		Logger:     logger,
	})

	// Runner
	runService := runner.New(runner.Config{
		Runs:       runRepo,
		Agents:     agentRepo,
		Dispatcher: dispatcher,
		Pool:       workPool,
		Hook:       pipelineEngine,
		Events:     runEvents,
		Metrics:    metrics,
		Logger:     logger,
	})

	// Планировщик с бюджетом
	budget := scheduler.NewBudgetGuard(scheduler.BudgetConfig{
		Costs:          runRepo,
		MaxCostPerRun:  cfg.Budget.MaxCostPerRun,
		MaxRunsPerHour: cfg.Budget.MaxRunsPerHour,
		Logger:         logger,
	})

	sched := scheduler.New(scheduler.Config{
		Schedules:    scheduleRepo,
		Firer:        runService,
		Sweeper:      pipelineEngine,
		Budget:       budget,
		Metrics:      metrics,
		TickInterval: cfg.Scheduler.TickInterval,
		Logger:       logger,
	})
	sched.Start(ctx)
	defer sched.Stop()

	// Hot-reload pipelines при изменении конфигурации
	go func() {
		err := config.Watch(ctx, configPath, logger, func(newCfg *config.Config) {
			if err := config.SeedPipelines(ctx, newCfg, pipelineRepo); err != nil {
				logger.Error("failed to reseed pipelines", "error", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	// HTTP API
	apiCfg := api.Config{
		AgentRepo:    agentRepo,
		RunRepo:      runRepo,
		ScheduleRepo: scheduleRepo,
		PipelineRepo: pipelineRepo,
		Runner:       runService,
		Pipelines:    pipelineEngine,
		Knowledge:    knowledge,
		Killer:       invoker,
		Logger:       logger,
	}
	if mqConn != nil {
		apiCfg.Broker = mqConn
	}
	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
