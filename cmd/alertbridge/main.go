package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/alertbridge/internal/annotate"
	httptransport "github.com/spec-kit/alertbridge/internal/api/http"
	"github.com/spec-kit/alertbridge/internal/api/http/handlers"
	"github.com/spec-kit/alertbridge/internal/config"
	"github.com/spec-kit/alertbridge/internal/events"
	"github.com/spec-kit/alertbridge/internal/lock"
	"github.com/spec-kit/alertbridge/internal/maintenance"
	"github.com/spec-kit/alertbridge/internal/observability"
	"github.com/spec-kit/alertbridge/internal/persistence"
	"github.com/spec-kit/alertbridge/internal/queue"
	"github.com/spec-kit/alertbridge/internal/reconcile"
	"github.com/spec-kit/alertbridge/internal/repository"
	"github.com/spec-kit/alertbridge/internal/retry"
	"github.com/spec-kit/alertbridge/internal/service"
	"github.com/spec-kit/alertbridge/internal/ticketing"
	"github.com/spec-kit/alertbridge/internal/worker"
)

const (
	modeAPI    = "api"
	modeWorker = "worker"
	modeAll    = "all"
)

type options struct {
	mode          string
	workers       int
	endpointsFile string
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	opts := options{}
	flagSet := pflag.NewFlagSet("alertbridge", pflag.ContinueOnError)
	flagSet.StringVar(&opts.mode, "mode", modeAll, "process role: api, worker or all")
	flagSet.IntVar(&opts.workers, "workers", cfg.Worker.Count, "number of concurrent workers")
	flagSet.StringVar(&opts.endpointsFile, "endpoints-file", cfg.Endpoints.File, "YAML or JSONC endpoint definitions")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	switch opts.mode {
	case modeAPI, modeWorker, modeAll:
	default:
		return opts, fmt.Errorf("invalid --mode %q", opts.mode)
	}
	if opts.mode != modeAll {
		// Split processes only see each other through shared backends.
		if cfg.Queue.Backend == config.BackendMemory {
			return opts, errors.New("the memory queue requires --mode=all")
		}
		if cfg.Worker.LockBackend == config.BackendMemory {
			return opts, errors.New("the memory lock backend requires --mode=all")
		}
	}
	if flagSet.Changed("endpoints-file") {
		cfg.Endpoints.File = opts.endpointsFile
	}
	return opts, nil
}

type repositories struct {
	endpoints   repository.EndpointRepository
	tenants     repository.TenantMappingRepository
	deadLetters repository.DeadLetterRepository
	eventLog    repository.EventLogRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.With(zap.String("mode", opts.mode))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	repos, err := buildRepositories(ctx, pg, cfg.Endpoints.File, logger)
	if err != nil {
		logger.Fatal("failed to load endpoints", zap.Error(err))
	}

	var deps []handlers.Dependency
	if pg.PoolHandle() != nil {
		deps = append(deps, handlers.Dependency{Name: "postgres", Pinger: pg})
	}

	var redis *persistence.Redis
	if cfg.Queue.Backend == config.BackendRedis || cfg.Worker.LockBackend == config.BackendRedis {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: redis})
	}

	var q queue.Queue
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		q = queue.NewRedisQueue(redis.Client, cfg.Queue.Name, cfg.Queue.PollInterval, cfg.Queue.VisibilityTimeout, logger)
	case config.BackendNATS:
		nc, err := persistence.NewNATS(cfg.NATS, logger)
		if err != nil {
			logger.Fatal("failed to connect nats", zap.Error(err))
		}
		defer nc.Close()
		deps = append(deps, handlers.Dependency{Name: "nats", Pinger: nc})
		q, err = queue.NewNATSQueue(ctx, nc.Conn, cfg.NATS, cfg.Queue, logger)
		if err != nil {
			logger.Fatal("failed to set up nats queue", zap.Error(err))
		}
	default:
		memory := queue.NewMemoryQueue(cfg.Queue.VisibilityTimeout)
		defer memory.Close()
		q = memory
	}

	var (
		locker lock.Locker
		flag   maintenance.FlagStore
	)
	if cfg.Worker.LockBackend == config.BackendRedis {
		locker = lock.NewRedisLocker(redis.Client)
		flag = maintenance.NewRedisFlagStore(redis.Client, maintenance.DefaultFlagKey)
	} else {
		locker = lock.NewMemoryLocker()
		flag = maintenance.NewMemoryFlagStore()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, metrics)

	var (
		pool              *worker.Pool
		retention         *worker.Retention
		annotationService *service.AnnotationService
	)
	if opts.mode != modeAPI {
		adapter := buildAdapter(cfg.Ticketing, logger)
		retries := retry.NewManager()
		machine := reconcile.NewMachine(adapter, locker, retries, cfg.Worker.LockWait, cfg.Worker.LockSlack, logger)

		if cfg.Annotator.Enabled() {
			gemini, err := annotate.NewGemini(ctx, cfg.Annotator)
			if err != nil {
				logger.Warn("annotator disabled", zap.Error(err))
			} else {
				annotationService = service.NewAnnotationService(service.AnnotationDependencies{
					Dispatcher: dispatcher,
					Annotator:  gemini,
					Adapter:    adapter,
					Locker:     locker,
					Timeout:    cfg.Annotator.Timeout,
					LockWait:   cfg.Worker.LockWait,
					Logger:     logger,
				})
			}
		}

		pipeline := service.NewPipelineService(service.PipelineDependencies{
			EndpointRepo:   repos.endpoints,
			TenantRepo:     repos.tenants,
			DeadLetterRepo: repos.deadLetters,
			EventLogRepo:   repos.eventLog,
			Flag:           flag,
			Queue:          q,
			Machine:        machine,
			Retries:        retries,
			Dispatcher:     dispatcher,
			Logger:         logger,
		})
		pool = worker.NewPool(q, pipeline, opts.workers, logger)
		if window := cfg.Retention.Window(); window > 0 {
			retention = worker.NewRetention(service.NewEventLogService(repos.eventLog), window, cfg.Retention.Interval, logger)
		}
	}
	worker.StartSubscribers(notificationService, annotationService)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		BodyLimit:             cfg.App.BodyLimitBytes,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	routes := httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, q, metrics, deps...),
	}
	if opts.mode != modeWorker {
		routes.Webhooks = handlers.NewWebhookHandler(service.NewIngestService(repos.endpoints, q))
		routes.DeadLetters = handlers.NewDeadLettersHandler(service.NewDeadLetterService(repos.deadLetters, q, dispatcher, logger))
		routes.Maintenance = handlers.NewMaintenanceHandler(service.NewMaintenanceService(flag, logger))
		routes.Events = handlers.NewEventsHandler(service.NewEventLogService(repos.eventLog))
	}
	httptransport.RegisterRoutes(app, routes)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if pool != nil {
		pool.Start(workerCtx)
	}
	if retention != nil {
		retention.Start(workerCtx)
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	stopWorkers()
	if pool != nil {
		pool.Wait()
	}
	if retention != nil {
		retention.Wait()
	}
	if annotationService != nil {
		annotationService.Wait()
	}
}

// buildRepositories uses Postgres when a pool is available, seeding it from
// the endpoint file when one exists, and in-memory stores otherwise.
func buildRepositories(ctx context.Context, pg *persistence.Postgres, path string, logger *zap.Logger) (repositories, error) {
	file, err := loadEndpointFile(path, logger)
	if err != nil {
		return repositories{}, err
	}

	if pool := pg.PoolHandle(); pool != nil {
		repos := repositories{
			endpoints:   repository.NewEndpointRepository(pool),
			tenants:     repository.NewTenantMappingRepository(pool),
			deadLetters: repository.NewDeadLetterRepository(pool),
			eventLog:    repository.NewEventLogRepository(pool),
		}
		for i := range file.Endpoints {
			if err := repos.endpoints.Upsert(ctx, &file.Endpoints[i]); err != nil {
				return repositories{}, fmt.Errorf("sync endpoint %s: %w", file.Endpoints[i].ID, err)
			}
		}
		for i := range file.TenantMappings {
			if err := repos.tenants.Upsert(ctx, &file.TenantMappings[i]); err != nil {
				return repositories{}, fmt.Errorf("sync tenant mapping %s: %w", file.TenantMappings[i].TenantValue, err)
			}
		}
		return repos, nil
	}

	logger.Warn("no database configured; dead letters and event log are kept in memory")
	return repositories{
		endpoints:   repository.NewMemoryEndpointRepository(file.Endpoints...),
		tenants:     repository.NewMemoryTenantMappingRepository(file.TenantMappings...),
		deadLetters: repository.NewMemoryDeadLetterRepository(),
		eventLog:    repository.NewMemoryEventLogRepository(10000),
	}, nil
}

func loadEndpointFile(path string, logger *zap.Logger) (*repository.EndpointFile, error) {
	if path == "" {
		return &repository.EndpointFile{}, nil
	}
	file, err := repository.LoadEndpointFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("endpoint file not found", zap.String("path", path))
		return &repository.EndpointFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("endpoint file loaded",
		zap.String("path", path),
		zap.Int("endpoints", len(file.Endpoints)),
		zap.Int("tenant_mappings", len(file.TenantMappings)),
	)
	return file, nil
}

func buildAdapter(cfg config.TicketingConfig, logger *zap.Logger) ticketing.Adapter {
	if cfg.Backend == config.BackendMemory {
		logger.Warn("using in-memory ticketing adapter")
		return ticketing.NewMemoryAdapter()
	}
	return ticketing.NewConnectWise(cfg, logger)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
