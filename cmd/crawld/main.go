// Package main wires together the crawl job service daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/api"
	"github.com/crawlkit/crawld/internal/config"
	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/engine/collyengine"
	"github.com/crawlkit/crawld/internal/engine/headless"
	"github.com/crawlkit/crawld/internal/janitor"
	"github.com/crawlkit/crawld/internal/logging"
	"github.com/crawlkit/crawld/internal/manager"
	"github.com/crawlkit/crawld/internal/metrics"
	queueMemory "github.com/crawlkit/crawld/internal/queue/memory"
	"github.com/crawlkit/crawld/internal/queue/redisqueue"
	storeMemory "github.com/crawlkit/crawld/internal/store/memory"
	"github.com/crawlkit/crawld/internal/store/redisstore"
	"github.com/crawlkit/crawld/internal/worker"
)

const memoryQueueDepth = 1024

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobStore crawler.JobStore
		apiQueue crawler.Queue
		popQueue crawler.Queue
		closers  []func() error
	)
	switch cfg.Store.Backend {
	case config.BackendRedis:
		// Two clients: BLPOP parks its connection, so the worker's blocking
		// pop gets a handle of its own and never head-of-line-blocks reads.
		apiClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		popClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		closers = append(closers, apiClient.Close, popClient.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := apiClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

		jobStore = redisstore.New(apiClient, cfg.Redis.JobTTL, cfg.Redis.ResultsTTL)
		apiQueue = redisqueue.New(apiClient)
		popQueue = redisqueue.New(popClient)
	case config.BackendMemory:
		logger.Info("using in-memory store; jobs will not survive restarts")
		jobStore = storeMemory.NewJobStore()
		sharedQueue := queueMemory.NewQueue(memoryQueueDepth)
		apiQueue = sharedQueue
		popQueue = sharedQueue
	default:
		logger.Fatal("unknown store backend", zap.String("backend", cfg.Store.Backend))
	}

	clock := crawler.NewSystemClock()
	idGen := crawler.NewUUIDGenerator()

	apiManager := manager.New(jobStore, apiQueue, idGen, clock,
		cfg.Crawler.DefaultMaxRequests, logger.Named("manager"))
	workerManager := manager.New(jobStore, popQueue, idGen, clock,
		cfg.Crawler.DefaultMaxRequests, logger.Named("manager"))

	engineFactory := newEngineFactory(cfg, clock, logger)

	wk := worker.New(workerManager, engineFactory, worker.Config{
		IdleBackoff:    cfg.Worker.IdleBackoff,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	}, clock, logger.Named("worker"))

	jan := janitor.New(jobStore, apiManager, cfg.Janitor.Interval, cfg.Janitor.Retention,
		clock, logger.Named("janitor"))

	apiServer := api.NewServer(apiManager, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The worker gets its own context so the signal can stop intake first
	// and still let the current job finish, with cancellation as fallback.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		wk.Run(workerCtx)
	}()

	go jan.Run(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	wk.Stop()
	select {
	case <-workerDone:
	case <-time.After(30 * time.Second):
		logger.Warn("worker did not stop in time, canceling current job")
		workerCancel()
		<-workerDone
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close store connection failed", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newEngineFactory builds a fresh engine per job so browser resources are
// scoped to the job and released in the worker's finalizing step.
func newEngineFactory(cfg config.Config, clock crawler.Clock, logger *zap.Logger) crawler.EngineFactory {
	return func(crawler.Job) (crawler.Engine, error) {
		engineCfg := collyengine.Config{
			UserAgent:            cfg.Crawler.UserAgent,
			MaxConcurrency:       cfg.Crawler.MaxConcurrency,
			MaxRequestsPerMinute: cfg.Crawler.MaxRequestsPerMinute,
			MaxLinksPerPage:      cfg.Crawler.MaxLinksPerPage,
			PageTimeout:          cfg.Crawler.PageTimeout,
		}
		if cfg.Headless.Enabled {
			renderer, err := headless.New(headless.Config{
				MaxParallel: cfg.Headless.MaxParallel,
				UserAgent:   cfg.Crawler.UserAgent,
				NavTimeout:  cfg.Headless.NavTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("init headless renderer: %w", err)
			}
			engineCfg.Renderer = renderer
			engineCfg.MinTextBytes = cfg.Headless.MinTextBytes
		}
		return collyengine.New(engineCfg, clock, logger.Named("engine")), nil
	}
}
